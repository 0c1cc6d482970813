/*

This file contains the types for scoring pools, and every other tunable threshold the engine uses
for allocation and rebalance alerts. Nothing in the engine hard-codes these values.

*/

package types

import (
	"fmt"
	"math"
)

// RiskWeights are the weights of the five sub-scores. They must sum to 1.
type RiskWeights struct {
	Tvl               float64 `json:"tvl" mapstructure:"tvl"`                              // Weight of TVL (liquidity depth) risk.
	ApySustainability float64 `json:"apySustainability" mapstructure:"apy_sustainability"` // Weight of unsustainable-yield risk.
	AssetVolatility   float64 `json:"assetVolatility" mapstructure:"asset_volatility"`     // Weight of underlying asset volatility.
	ImpermanentLoss   float64 `json:"impermanentLoss" mapstructure:"impermanent_loss"`     // Weight of IL exposure.
	ProtocolTrust     float64 `json:"protocolTrust" mapstructure:"protocol_trust"`         // Weight of protocol counterparty risk.
}

// Sum returns the total of all weights.
func (w RiskWeights) Sum() float64 {
	return w.Tvl + w.ApySustainability + w.AssetVolatility + w.ImpermanentLoss + w.ProtocolTrust
}

// LevelThresholds are the inclusive upper bounds of each risk level. Anything above HighMax is very_high.
type LevelThresholds struct {
	LowMax    int `json:"lowMax" mapstructure:"low_max"`
	MediumMax int `json:"mediumMax" mapstructure:"medium_max"`
	HighMax   int `json:"highMax" mapstructure:"high_max"`
}

// Level maps a score to its level.
func (t LevelThresholds) Level(score int) RiskLevel {
	switch {
	case score <= t.LowMax:
		return RiskLevelLow
	case score <= t.MediumMax:
		return RiskLevelMedium
	case score <= t.HighMax:
		return RiskLevelHigh
	default:
		return RiskLevelVeryHigh
	}
}

// ILScores maps each impermanent-loss class to its sub-score.
type ILScores struct {
	None   float64 `json:"none" mapstructure:"none"`
	Low    float64 `json:"low" mapstructure:"low"`
	Medium float64 `json:"medium" mapstructure:"medium"`
	High   float64 `json:"high" mapstructure:"high"`
}

// Score returns the sub-score for an IL class.
func (s ILScores) Score(r ILRisk) (float64, error) {
	switch r {
	case ILRiskNone:
		return s.None, nil
	case ILRiskLow:
		return s.Low, nil
	case ILRiskMedium:
		return s.Medium, nil
	case ILRiskHigh:
		return s.High, nil
	}
	return 0, fmt.Errorf("unknown ilRisk %q", r)
}

// UpgradeAuthorityPoints maps each governance model to trust points.
type UpgradeAuthorityPoints struct {
	Immutable float64 `json:"immutable" mapstructure:"immutable"`
	Timelock  float64 `json:"timelock" mapstructure:"timelock"`
	Multisig  float64 `json:"multisig" mapstructure:"multisig"`
	EOA       float64 `json:"eoa" mapstructure:"eoa"`
	Unknown   float64 `json:"unknown" mapstructure:"unknown"`
}

// Points returns the trust points for an upgrade authority.
func (p UpgradeAuthorityPoints) Points(a UpgradeAuthority) float64 {
	switch a {
	case UpgradeAuthorityImmutable:
		return p.Immutable
	case UpgradeAuthorityTimelock:
		return p.Timelock
	case UpgradeAuthorityMultisig:
		return p.Multisig
	case UpgradeAuthorityEOA:
		return p.EOA
	}
	return p.Unknown
}

// ToleranceCeilings is the maximum acceptable risk score per tolerance tier.
type ToleranceCeilings struct {
	Conservative int `json:"conservative" mapstructure:"conservative"`
	Moderate     int `json:"moderate" mapstructure:"moderate"`
	Aggressive   int `json:"aggressive" mapstructure:"aggressive"`
}

// Ceiling returns the ceiling for a tier.
func (c ToleranceCeilings) Ceiling(t RiskTolerance) (int, error) {
	switch t {
	case RiskToleranceConservative:
		return c.Conservative, nil
	case RiskToleranceModerate:
		return c.Moderate, nil
	case RiskToleranceAggressive:
		return c.Aggressive, nil
	}
	return 0, fmt.Errorf("unknown riskTolerance %q", t)
}

// DiversificationTargets is the number of pools each diversification preference aims for.
type DiversificationTargets struct {
	Focused     int `json:"focused" mapstructure:"focused"`
	Balanced    int `json:"balanced" mapstructure:"balanced"`
	Diversified int `json:"diversified" mapstructure:"diversified"`
}

// Target returns the pool count target for a preference.
func (d DiversificationTargets) Target(p Diversification) (int, error) {
	switch p {
	case DiversificationFocused:
		return d.Focused, nil
	case DiversificationBalanced:
		return d.Balanced, nil
	case DiversificationDiversified:
		return d.Diversified, nil
	}
	return 0, fmt.Errorf("unknown diversification %q", p)
}

// AlertThresholds are the trigger points of the rebalance checks.
type AlertThresholds struct {
	ApyDropCriticalPercent   float64 `json:"apyDropCriticalPercent" mapstructure:"apy_drop_critical_percent"`     // Relative APY drop that is critical.
	ApyDropWarningPercent    float64 `json:"apyDropWarningPercent" mapstructure:"apy_drop_warning_percent"`       // Relative APY drop that warrants a warning.
	RiskIncreaseCritical     int     `json:"riskIncreaseCritical" mapstructure:"risk_increase_critical"`          // Risk score points of drift that is critical.
	RiskIncreaseWarning      int     `json:"riskIncreaseWarning" mapstructure:"risk_increase_warning"`            // Risk score points of drift that warrants a warning.
	AlternativeRiskMargin    int     `json:"alternativeRiskMargin" mapstructure:"alternative_risk_margin"`        // Extra risk points an alternative may carry over the stored score.
	AlternativeApyMargin     float64 `json:"alternativeApyMargin" mapstructure:"alternative_apy_margin"`          // APY points an alternative must beat the current pool by.
	TvlOutflowWarningPercent float64 `json:"tvlOutflowWarningPercent" mapstructure:"tvl_outflow_warning_percent"` // 24h TVL change (negative) that signals an outflow.
}

// EngineParameters holds all tunable weights, coefficients, and thresholds used by the
// risk scorer, the allocation optimizer and the rebalance detector.
type EngineParameters struct {
	// --- Risk Score Weights and Levels ---
	Weights         RiskWeights     `json:"weights" mapstructure:"weights"`
	LevelThresholds LevelThresholds `json:"levelThresholds" mapstructure:"level_thresholds"`

	// --- TVL Sub-score ---
	TvlFloorUsd float64 `json:"tvlFloorUsd" mapstructure:"tvl_floor_usd"` // TVL at or below which the sub-score is 100.
	TvlSafeUsd  float64 `json:"tvlSafeUsd" mapstructure:"tvl_safe_usd"`   // TVL at or above which the sub-score is 0.

	// --- APY Sustainability Sub-score ---
	Market               MarketDistribution `json:"market" mapstructure:"market"`                                // Reference APY distribution, refreshed from the catalog.
	ApyOutlierZCeiling   float64            `json:"apyOutlierZCeiling" mapstructure:"apy_outlier_z_ceiling"`     // Z-score at which the outlier component saturates.
	ApySpikeCeiling      float64            `json:"apySpikeCeiling" mapstructure:"apy_spike_ceiling"`            // Relative jump over the 30d mean at which the spike component saturates.
	ApyOutlierWeight     float64            `json:"apyOutlierWeight" mapstructure:"apy_outlier_weight"`          // Share of the outlier component.
	ApyRewardShareWeight float64            `json:"apyRewardShareWeight" mapstructure:"apy_reward_share_weight"` // Share of the incentive-dependency component.
	ApySpikeWeight       float64            `json:"apySpikeWeight" mapstructure:"apy_spike_weight"`              // Share of the spike component.

	// --- Asset Volatility Sub-score ---
	StablecoinVolatilityScore     float64 `json:"stablecoinVolatilityScore" mapstructure:"stablecoin_volatility_score"`
	SingleExposureVolatilityScore float64 `json:"singleExposureVolatilityScore" mapstructure:"single_exposure_volatility_score"`
	MultiExposureVolatilityScore  float64 `json:"multiExposureVolatilityScore" mapstructure:"multi_exposure_volatility_score"`
	VolatilityCeiling             float64 `json:"volatilityCeiling" mapstructure:"volatility_ceiling"`    // Annualized sigma at which the sub-score is 100.
	VolatileFloorScore            float64 `json:"volatileFloorScore" mapstructure:"volatile_floor_score"` // Minimum sub-score for any non-stable asset.

	// --- Impermanent Loss Sub-score ---
	ILScores ILScores `json:"ilScores" mapstructure:"il_scores"`

	// --- Protocol Trust Summary ---
	TrustAuditPoints       float64                `json:"trustAuditPoints" mapstructure:"trust_audit_points"` // Points per audit.
	TrustMaxAudits         int                    `json:"trustMaxAudits" mapstructure:"trust_max_audits"`     // Audits beyond this earn nothing.
	TrustAgeFullDays       int                    `json:"trustAgeFullDays" mapstructure:"trust_age_full_days"`
	TrustAgeMaxPoints      float64                `json:"trustAgeMaxPoints" mapstructure:"trust_age_max_points"`
	UpgradeAuthorityPoints UpgradeAuthorityPoints `json:"upgradeAuthorityPoints" mapstructure:"upgrade_authority_points"`
	DefaultProtocolTrust   float64                `json:"defaultProtocolTrust" mapstructure:"default_protocol_trust"` // Used when no profile is known.

	// --- Allocation ---
	ToleranceCeilings             ToleranceCeilings      `json:"toleranceCeilings" mapstructure:"tolerance_ceilings"`
	DiversificationTargets        DiversificationTargets `json:"diversificationTargets" mapstructure:"diversification_targets"`
	InverseRiskOffset             float64                `json:"inverseRiskOffset" mapstructure:"inverse_risk_offset"`                         // weight = 1 / (riskScore + offset)
	ConcentrationWarningPercent   float64                `json:"concentrationWarningPercent" mapstructure:"concentration_warning_percent"`     // Single-pool share that triggers a warning.
	DiversificationCountWeight    float64                `json:"diversificationCountWeight" mapstructure:"diversification_count_weight"`       // Share of pool count in the diversification score.
	DiversificationEvennessWeight float64                `json:"diversificationEvennessWeight" mapstructure:"diversification_evenness_weight"` // Share of weight evenness in the diversification score.
	MaxDiversificationPools       int                    `json:"maxDiversificationPools" mapstructure:"max_diversification_pools"`             // Pool count that earns the full count component.

	// --- Rebalance Alerts ---
	Alerts AlertThresholds `json:"alerts" mapstructure:"alerts"`
}

// Validate checks the parameters for values that would make scoring meaningless.
func (p EngineParameters) Validate() error {
	finite := []struct {
		name  string
		value float64
	}{
		{"weights.tvl", p.Weights.Tvl},
		{"weights.apySustainability", p.Weights.ApySustainability},
		{"weights.assetVolatility", p.Weights.AssetVolatility},
		{"weights.impermanentLoss", p.Weights.ImpermanentLoss},
		{"weights.protocolTrust", p.Weights.ProtocolTrust},
		{"tvlFloorUsd", p.TvlFloorUsd},
		{"tvlSafeUsd", p.TvlSafeUsd},
		{"market.meanApy", p.Market.MeanApy},
		{"market.stdDevApy", p.Market.StdDevApy},
		{"apyOutlierZCeiling", p.ApyOutlierZCeiling},
		{"apySpikeCeiling", p.ApySpikeCeiling},
		{"apyOutlierWeight", p.ApyOutlierWeight},
		{"apyRewardShareWeight", p.ApyRewardShareWeight},
		{"apySpikeWeight", p.ApySpikeWeight},
		{"stablecoinVolatilityScore", p.StablecoinVolatilityScore},
		{"singleExposureVolatilityScore", p.SingleExposureVolatilityScore},
		{"multiExposureVolatilityScore", p.MultiExposureVolatilityScore},
		{"volatilityCeiling", p.VolatilityCeiling},
		{"volatileFloorScore", p.VolatileFloorScore},
		{"ilScores.none", p.ILScores.None},
		{"ilScores.low", p.ILScores.Low},
		{"ilScores.medium", p.ILScores.Medium},
		{"ilScores.high", p.ILScores.High},
		{"trustAuditPoints", p.TrustAuditPoints},
		{"trustAgeMaxPoints", p.TrustAgeMaxPoints},
		{"defaultProtocolTrust", p.DefaultProtocolTrust},
		{"diversificationCountWeight", p.DiversificationCountWeight},
		{"diversificationEvennessWeight", p.DiversificationEvennessWeight},
		{"inverseRiskOffset", p.InverseRiskOffset},
		{"concentrationWarningPercent", p.ConcentrationWarningPercent},
		{"alerts.apyDropCriticalPercent", p.Alerts.ApyDropCriticalPercent},
		{"alerts.apyDropWarningPercent", p.Alerts.ApyDropWarningPercent},
		{"alerts.alternativeApyMargin", p.Alerts.AlternativeApyMargin},
		{"alerts.tvlOutflowWarningPercent", p.Alerts.TvlOutflowWarningPercent},
	}
	for _, f := range finite {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fmt.Errorf("%s is not finite", f.name)
		}
	}

	if math.Abs(p.Weights.Sum()-1.0) > 1e-6 {
		return fmt.Errorf("risk weights must sum to 1, got %.6f", p.Weights.Sum())
	}
	if p.Weights.Tvl < 0 || p.Weights.ApySustainability < 0 || p.Weights.AssetVolatility < 0 ||
		p.Weights.ImpermanentLoss < 0 || p.Weights.ProtocolTrust < 0 {
		return fmt.Errorf("risk weights cannot be negative")
	}
	if !(p.LevelThresholds.LowMax < p.LevelThresholds.MediumMax && p.LevelThresholds.MediumMax < p.LevelThresholds.HighMax) {
		return fmt.Errorf("level thresholds must be strictly increasing")
	}
	if p.TvlFloorUsd <= 0 || p.TvlSafeUsd <= p.TvlFloorUsd {
		return fmt.Errorf("tvlSafeUsd (%.0f) must exceed tvlFloorUsd (%.0f) and both must be positive", p.TvlSafeUsd, p.TvlFloorUsd)
	}
	if p.Market.StdDevApy <= 0 {
		return fmt.Errorf("market.stdDevApy must be positive")
	}
	if p.ApyOutlierWeight < 0 || p.ApyRewardShareWeight < 0 || p.ApySpikeWeight < 0 ||
		p.ApyOutlierWeight+p.ApyRewardShareWeight+p.ApySpikeWeight <= 0 {
		return fmt.Errorf("apy sustainability component weights must be non-negative with a positive sum")
	}
	if p.DiversificationCountWeight < 0 || p.DiversificationEvennessWeight < 0 ||
		math.Abs(p.DiversificationCountWeight+p.DiversificationEvennessWeight-1.0) > 1e-6 {
		return fmt.Errorf("diversification score weights must be non-negative and sum to 1")
	}
	if p.ApyOutlierZCeiling <= 0 || p.ApySpikeCeiling <= 0 || p.VolatilityCeiling <= 0 {
		return fmt.Errorf("saturation ceilings must be positive")
	}
	if p.InverseRiskOffset <= 0 {
		return fmt.Errorf("inverseRiskOffset must be positive")
	}
	if p.DiversificationTargets.Focused <= 0 || p.DiversificationTargets.Balanced <= 0 || p.DiversificationTargets.Diversified <= 0 {
		return fmt.Errorf("diversification targets must be positive")
	}
	if p.MaxDiversificationPools <= 0 {
		return fmt.Errorf("maxDiversificationPools must be positive")
	}
	if p.Alerts.ApyDropWarningPercent > p.Alerts.ApyDropCriticalPercent {
		return fmt.Errorf("apy drop warning threshold cannot exceed the critical threshold")
	}
	if p.Alerts.RiskIncreaseWarning > p.Alerts.RiskIncreaseCritical {
		return fmt.Errorf("risk increase warning threshold cannot exceed the critical threshold")
	}
	return nil
}

// WithMarket returns a copy of the parameters using a refreshed market distribution.
func (p EngineParameters) WithMarket(m MarketDistribution) EngineParameters {
	p.Market = m
	return p
}
