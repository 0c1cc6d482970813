/*

This file contains the default parameters for the curate engine.

Every threshold the risk scorer, the portfolio optimizer and the rebalance detector use lives here,
so that they can be audited in one place and overridden from the parameters file or the database.

*/

package config

import (
	"github.com/elys-network/curate/internal/types"
)

// DefaultEngineParameters provides the baseline parameters for the engine.
// These values are used if no active parameters are found in the database and no override file is set.
var DefaultEngineParameters = types.EngineParameters{
	// --- Risk Score Weights ---
	Weights: types.RiskWeights{
		Tvl:               0.30, // Liquidity depth is the first line of defense against exits and exploits.
		ApySustainability: 0.25, // Yields far above the market are usually paid for with hidden risk.
		AssetVolatility:   0.20,
		ImpermanentLoss:   0.15,
		ProtocolTrust:     0.10,
	},

	LevelThresholds: types.LevelThresholds{
		LowMax:    20,
		MediumMax: 40,
		HighMax:   60,
	},

	// --- TVL Sub-score ---
	TvlFloorUsd: 1_000_000, // Pools under $1M are treated as maximally risky.
	// Rationale: A pool this small can be drained or moved by a single depositor.

	TvlSafeUsd: 1_000_000_000, // Pools above $1B carry no TVL risk.

	// --- APY Sustainability Sub-score ---
	Market: types.MarketDistribution{
		MeanApy:   6.0, // Refreshed from the live catalog every cycle, this is only the fallback.
		StdDevApy: 8.0,
	},

	ApyOutlierZCeiling: 3.0, // Three standard deviations above the market is fully unsustainable.

	ApySpikeCeiling: 1.0, // APY at double its own 30 day mean saturates the spike component.

	ApyOutlierWeight:     0.60,
	ApyRewardShareWeight: 0.25, // Yield paid in emissions disappears when incentives end.
	ApySpikeWeight:       0.15,

	// --- Asset Volatility Sub-score ---
	StablecoinVolatilityScore:     10,
	SingleExposureVolatilityScore: 50,
	MultiExposureVolatilityScore:  75,  // Pairs of uncorrelated volatile assets.
	VolatilityCeiling:             1.2, // 120% annualized sigma.
	VolatileFloorScore:            40,
	// Rationale: A measured low volatility on a non-stable asset should never score like a stablecoin.

	// --- Impermanent Loss Sub-score ---
	ILScores: types.ILScores{
		None:   0,
		Low:    25,
		Medium: 55,
		High:   85,
	},

	// --- Protocol Trust Summary ---
	TrustAuditPoints:  15,
	TrustMaxAudits:    3,
	TrustAgeFullDays:  730, // Two years without incident earns full age credit.
	TrustAgeMaxPoints: 35,
	UpgradeAuthorityPoints: types.UpgradeAuthorityPoints{
		Immutable: 20,
		Timelock:  15,
		Multisig:  10,
		EOA:       0, // A single key can rug.
		Unknown:   5,
	},
	DefaultProtocolTrust: 50,

	// --- Allocation ---
	ToleranceCeilings: types.ToleranceCeilings{
		Conservative: 25,
		Moderate:     45,
		Aggressive:   70,
	},

	DiversificationTargets: types.DiversificationTargets{
		Focused:     3,
		Balanced:    4,
		Diversified: 5,
	},

	InverseRiskOffset: 10, // Keeps a zero risk pool from taking an unbounded share.

	ConcentrationWarningPercent: 40,

	DiversificationCountWeight:    0.5,
	DiversificationEvennessWeight: 0.5,
	MaxDiversificationPools:       5,

	// --- Rebalance Alerts ---
	Alerts: types.AlertThresholds{
		ApyDropCriticalPercent:   40,
		ApyDropWarningPercent:    20,
		RiskIncreaseCritical:     10,
		RiskIncreaseWarning:      5,
		AlternativeRiskMargin:    5,
		AlternativeApyMargin:     2,   // Switching costs gas and slippage, small gains are not worth it.
		TvlOutflowWarningPercent: -15, // Capital fleeing a pool in a day usually precedes bad news.
	},
}
