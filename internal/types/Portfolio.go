/*

This file contains the types for allocations produced by the portfolio optimizer,
and the snapshot record under which a produced portfolio is stored for later rebalance checks.

*/

package types

import (
	"time"
)

// RiskTolerance bounds the risk scores a user accepts.
type RiskTolerance string

const (
	RiskToleranceConservative RiskTolerance = "conservative"
	RiskToleranceModerate     RiskTolerance = "moderate"
	RiskToleranceAggressive   RiskTolerance = "aggressive"
)

// Valid reports whether the tier is known.
func (t RiskTolerance) Valid() bool {
	switch t {
	case RiskToleranceConservative, RiskToleranceModerate, RiskToleranceAggressive:
		return true
	}
	return false
}

// NominalLevel is the highest risk level that does not warrant a warning for this tier.
func (t RiskTolerance) NominalLevel() RiskLevel {
	switch t {
	case RiskToleranceConservative:
		return RiskLevelLow
	case RiskToleranceModerate:
		return RiskLevelMedium
	case RiskToleranceAggressive:
		return RiskLevelHigh
	}
	return ""
}

// Diversification is the user's preference for how many pools capital is spread across.
type Diversification string

const (
	DiversificationFocused     Diversification = "focused"
	DiversificationBalanced    Diversification = "balanced"
	DiversificationDiversified Diversification = "diversified"
)

// Valid reports whether the preference is known.
func (d Diversification) Valid() bool {
	switch d {
	case DiversificationFocused, DiversificationBalanced, DiversificationDiversified:
		return true
	}
	return false
}

// Allocation is one line of a portfolio. Apy and RiskScore are frozen at optimization time.
type Allocation struct {
	PoolID            string  `json:"poolId"`
	Protocol          string  `json:"protocol,omitempty"`
	Symbol            string  `json:"symbol,omitempty"`
	Chain             string  `json:"chain,omitempty"`
	AllocationPercent int     `json:"allocationPercent"`
	AllocationUsd     float64 `json:"allocationUsd"`
	Apy               float64 `json:"apy"`
	RiskScore         int     `json:"riskScore"`
	Rationale         string  `json:"rationale"`
}

// PortfolioSummary aggregates a set of allocations.
type PortfolioSummary struct {
	TotalAllocation      float64 `json:"totalAllocation"`
	WeightedApy          float64 `json:"weightedApy"`
	CombinedRiskScore    float64 `json:"combinedRiskScore"`
	DiversificationScore float64 `json:"diversificationScore"`
	ExpectedAnnualYield  float64 `json:"expectedAnnualYield"`
	PoolCount            int     `json:"poolCount"`
}

// PortfolioResult is the optimizer output.
type PortfolioResult struct {
	Allocations     []Allocation     `json:"allocations"`
	Summary         PortfolioSummary `json:"summary"`
	RiskWarnings    []string         `json:"riskWarnings"`
	RiskTolerance   RiskTolerance    `json:"riskTolerance"`
	Diversification Diversification  `json:"diversification"`
	GeneratedAt     time.Time        `json:"generatedAt"`
}

// PoolIDs returns the pool IDs of the allocations in order.
func (r PortfolioResult) PoolIDs() []string {
	ids := make([]string, 0, len(r.Allocations))
	for _, a := range r.Allocations {
		ids = append(ids, a.PoolID)
	}
	return ids
}

// OptimizeRequest is the caller input to the optimizer.
type OptimizeRequest struct {
	TotalAllocation float64         `json:"totalAllocation"`
	RiskTolerance   RiskTolerance   `json:"riskTolerance"`
	Diversification Diversification `json:"diversification"`
}

// PortfolioSnapshot is a stored PortfolioResult, the baseline for later rebalance checks.
type PortfolioSnapshot struct {
	SnapshotID      int64           `json:"snapshotId"`
	Label           string          `json:"label,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	TotalAllocation float64         `json:"totalAllocation"`
	RiskTolerance   RiskTolerance   `json:"riskTolerance"`
	Diversification Diversification `json:"diversification"`
	Result          PortfolioResult `json:"result"`
	ParamsID        int64           `json:"paramsId,omitempty"` // engine_parameters row in effect when optimized, 0 for defaults
}
