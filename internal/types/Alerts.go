/*

This file contains the types for rebalance alerts and the analysis that groups them.

*/

package types

import (
	"time"
)

// AlertType names the check that produced an alert.
type AlertType string

const (
	AlertTypeApyDrop           AlertType = "apy_drop"
	AlertTypeRiskIncrease      AlertType = "risk_increase"
	AlertTypeBetterAlternative AlertType = "better_alternative"
	AlertTypeProtocolIssue     AlertType = "protocol_issue"
)

// AlertSeverity classifies how urgent an alert is.
type AlertSeverity string

const (
	SeverityCritical AlertSeverity = "critical"
	SeverityWarning  AlertSeverity = "warning"
	SeverityInfo     AlertSeverity = "info"
)

// Rank orders severities for sorting, critical first.
func (s AlertSeverity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityWarning:
		return 1
	case SeverityInfo:
		return 2
	}
	return 3
}

// OverallHealth is the verdict over an alert set.
type OverallHealth string

const (
	HealthHealthy      OverallHealth = "healthy"
	HealthAttention    OverallHealth = "attention"
	HealthActionNeeded OverallHealth = "action_needed"
)

// Rank orders verdicts from healthy (0) to action_needed (2).
func (h OverallHealth) Rank() int {
	switch h {
	case HealthHealthy:
		return 0
	case HealthAttention:
		return 1
	case HealthActionNeeded:
		return 2
	}
	return -1
}

// AlertImpact quantifies an alert. SuggestedValue and PotentialGain are optional.
type AlertImpact struct {
	CurrentValue   float64  `json:"currentValue"`
	SuggestedValue *float64 `json:"suggestedValue,omitempty"`
	PotentialGain  *float64 `json:"potentialGain,omitempty"`
}

// RebalanceAlert is a single finding of the rebalance detector.
type RebalanceAlert struct {
	ID                string        `json:"id"`
	Type              AlertType     `json:"type"`
	Severity          AlertSeverity `json:"severity"`
	PoolID            string        `json:"poolId"`
	Title             string        `json:"title"`
	Message           string        `json:"message"`
	Action            string        `json:"action"`
	Impact            AlertImpact   `json:"impact"`
	AlternativePoolID string        `json:"alternativePoolId,omitempty"`
	CreatedAt         time.Time     `json:"createdAt"`
}

// AlertCounts tallies alerts per severity.
type AlertCounts struct {
	Critical int `json:"critical"`
	Warning  int `json:"warning"`
	Info     int `json:"info"`
}

// Total returns the number of alerts counted.
func (c AlertCounts) Total() int {
	return c.Critical + c.Warning + c.Info
}

// RebalanceAnalysis is the detector output. Alerts are sorted critical, warning, info.
type RebalanceAnalysis struct {
	Alerts        []RebalanceAlert `json:"alerts"`
	OverallHealth OverallHealth    `json:"overallHealth"`
	Summary       string           `json:"summary"`
	LastChecked   time.Time        `json:"lastChecked"`
	Counts        AlertCounts      `json:"counts"`
	SkippedPools  []string         `json:"skippedPools,omitempty"`
	// NoTvlHistoryPools lists analyzed pools whose outflow check ran without a 24h TVL history.
	NoTvlHistoryPools []string `json:"noTvlHistoryPools,omitempty"`
}

// AnalysisRecord is a persisted analysis of a stored portfolio.
type AnalysisRecord struct {
	AnalysisID int64             `json:"analysisId"`
	SnapshotID int64             `json:"snapshotId"`
	RunNumber  int64             `json:"runNumber"`
	Analysis   RebalanceAnalysis `json:"analysis"`
}
