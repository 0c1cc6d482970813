/*

This file contains the pool snapshot type, the single observation of a yield opportunity
that every scoring, allocation and rebalance check consumes.

*/

package types

import (
	"time"
)

// ILRisk is the impermanent-loss exposure class of a pool.
type ILRisk string

const (
	ILRiskNone   ILRisk = "none"
	ILRiskLow    ILRisk = "low"
	ILRiskMedium ILRisk = "medium"
	ILRiskHigh   ILRisk = "high"
)

// Valid reports whether the value is one of the known IL classes.
func (r ILRisk) Valid() bool {
	switch r {
	case ILRiskNone, ILRiskLow, ILRiskMedium, ILRiskHigh:
		return true
	}
	return false
}

// Exposure describes whether a pool holds a single asset or a pair/basket.
type Exposure string

const (
	ExposureSingle Exposure = "single"
	ExposureMulti  Exposure = "multi"
)

// PoolStatus is the lifecycle state the catalog reports for a pool.
type PoolStatus string

const (
	PoolStatusActive     PoolStatus = "active"
	PoolStatusWarning    PoolStatus = "warning"
	PoolStatusDeprecated PoolStatus = "deprecated"
)

// Valid reports whether the status is known.
func (s PoolStatus) Valid() bool {
	switch s {
	case PoolStatusActive, PoolStatusWarning, PoolStatusDeprecated:
		return true
	}
	return false
}

// RiskLevel is the bucketed form of a risk score.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelVeryHigh RiskLevel = "very_high"
)

// Rank orders levels from least (0) to most (3) risky. Unknown levels rank -1.
func (l RiskLevel) Rank() int {
	switch l {
	case RiskLevelLow:
		return 0
	case RiskLevelMedium:
		return 1
	case RiskLevelHigh:
		return 2
	case RiskLevelVeryHigh:
		return 3
	}
	return -1
}

// RiskBreakdown holds the five normalized (0-100) sub-scores before weighting.
type RiskBreakdown struct {
	Tvl               float64 `json:"tvl"`
	ApySustainability float64 `json:"apySustainability"`
	AssetVolatility   float64 `json:"assetVolatility"`
	ImpermanentLoss   float64 `json:"impermanentLoss"`
	ProtocolTrust     float64 `json:"protocolTrust"`
}

// RiskResult is the output of scoring a single pool.
type RiskResult struct {
	RiskScore     int           `json:"riskScore"`
	RiskLevel     RiskLevel     `json:"riskLevel"`
	RiskBreakdown RiskBreakdown `json:"riskBreakdown"`
}

// PoolSnapshot is one observation of a yield pool, produced fresh on every catalog refresh.
// The engine never mutates a snapshot it receives; scoring annotates a copy.
type PoolSnapshot struct {
	ID       string `json:"id"`       // e.g., "747c1d2a-c668-4682-b9f9-296708a3dd90"
	Protocol string `json:"protocol"` // e.g., "aave-v3"
	Chain    string `json:"chain"`    // e.g., "Ethereum"
	Symbol   string `json:"symbol"`   // e.g., "USDC-WETH"
	Asset    string `json:"asset,omitempty"`

	TvlUsd              float64 `json:"tvlUsd"`
	Apy                 float64 `json:"apy"`       // apyBase + apyReward, in percent
	ApyBase             float64 `json:"apyBase"`   // organic yield (fees, interest)
	ApyReward           float64 `json:"apyReward"` // incentive emissions
	TvlChange24hPercent float64 `json:"tvlChange24hPercent"`
	// TvlChangeUnknown is set by the collector when no chart backs TvlChange24hPercent.
	TvlChangeUnknown bool `json:"tvlChangeUnknown,omitempty"`

	// Historical APY statistics reported by the collector. Zero means unknown.
	ApyMean30d float64 `json:"apyMean30d,omitempty"`
	ApyPct7d   float64 `json:"apyPct7d,omitempty"`

	Stablecoin         bool     `json:"stablecoin"`
	ILRisk             ILRisk   `json:"ilRisk"`
	Exposure           Exposure `json:"exposure,omitempty"`
	AssetVolatility    float64  `json:"assetVolatility,omitempty"` // annualized sigma as a fraction, 0 when unknown
	ProtocolTrustScore float64  `json:"protocolTrustScore"`        // 0-100, higher means more trusted

	Status        PoolStatus `json:"status"`
	ProtocolAlert string     `json:"protocolAlert,omitempty"` // message attached to a warning status
	UpdatedAt     time.Time  `json:"updatedAt,omitempty"`

	// Derived by the risk scorer on a copy of the snapshot.
	RiskScore     int            `json:"riskScore"`
	RiskLevel     RiskLevel      `json:"riskLevel,omitempty"`
	RiskBreakdown *RiskBreakdown `json:"riskBreakdown,omitempty"`
}

// IsScored reports whether the risk scorer has annotated this snapshot.
func (p PoolSnapshot) IsScored() bool {
	return p.RiskBreakdown != nil
}

// WithRisk returns a copy of the snapshot annotated with the given result.
func (p PoolSnapshot) WithRisk(r RiskResult) PoolSnapshot {
	breakdown := r.RiskBreakdown
	p.RiskScore = r.RiskScore
	p.RiskLevel = r.RiskLevel
	p.RiskBreakdown = &breakdown
	return p
}

// MarketDistribution is the reference APY distribution used to judge whether a yield is an outlier.
type MarketDistribution struct {
	MeanApy   float64 `json:"meanApy" mapstructure:"mean_apy"`
	StdDevApy float64 `json:"stdDevApy" mapstructure:"std_dev_apy"`
	Samples   int     `json:"samples" mapstructure:"-"`
}
