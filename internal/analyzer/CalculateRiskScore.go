/*

This file contains the main function for calculating the risk score of a pool.

The score is the weighted sum of five sub-scores, each normalized to 0-100 where higher is riskier:
TVL depth, APY sustainability, asset volatility, impermanent loss and protocol trust.

*/

package analyzer

import (
	"errors"
	"fmt"
	"math"

	"github.com/elys-network/curate/internal/logger"
	"github.com/elys-network/curate/internal/types"
	"github.com/elys-network/curate/internal/utils"
)

var scoreLogger = logger.GetForComponent("risk_scorer")

// ScorePool calculates the risk score for a pool by orchestrating calls
// to the sub-score functions and summing their weighted results.
// Inputs:
//   - pool: The pool snapshot to score. It is not modified.
//   - params: The engine parameters defining weights and thresholds.
//
// Output:
//   - A RiskResult containing the score, its level and the sub-score breakdown.
//   - An error if validation fails or any intermediate value is not finite.
func ScorePool(pool types.PoolSnapshot, params types.EngineParameters) (types.RiskResult, error) {
	if err := params.Validate(); err != nil {
		scoreLogger.Error().
			Str("poolID", pool.ID).
			Err(err).
			Msg("Engine parameters validation failed")
		return types.RiskResult{}, errors.Join(ErrInvalidEngineParameters, err)
	}
	return scorePool(pool, params)
}

// scorePool assumes params were validated by the caller.
func scorePool(pool types.PoolSnapshot, params types.EngineParameters) (types.RiskResult, error) {
	// Validate input data before performing calculations
	if err := ValidatePoolData(pool); err != nil {
		scoreLogger.Error().
			Str("poolID", pool.ID).
			Err(err).
			Msg("Pool data validation failed")
		return types.RiskResult{}, err
	}

	tvlRisk, err := CalculateTvlRisk(pool.TvlUsd, params)
	if err != nil {
		return types.RiskResult{}, errors.Join(ErrInvalidPoolData, errors.New("tvl risk calculation failed"), err)
	}

	apyRisk, err := CalculateApySustainabilityRisk(pool, params)
	if err != nil {
		return types.RiskResult{}, errors.Join(ErrInvalidPoolData, errors.New("apy sustainability calculation failed"), err)
	}

	volatilityRisk, err := CalculateAssetVolatilityRisk(pool, params)
	if err != nil {
		return types.RiskResult{}, errors.Join(ErrInvalidPoolData, errors.New("asset volatility calculation failed"), err)
	}

	ilRisk, err := params.ILScores.Score(pool.ILRisk)
	if err != nil {
		return types.RiskResult{}, errors.Join(ErrInvalidInput, err)
	}

	trustRisk := 100 - pool.ProtocolTrustScore

	breakdown := types.RiskBreakdown{
		Tvl:               tvlRisk,
		ApySustainability: apyRisk,
		AssetVolatility:   volatilityRisk,
		ImpermanentLoss:   ilRisk,
		ProtocolTrust:     trustRisk,
	}

	// Ensure all components are finite before weighting
	components := []struct {
		value float64
		name  string
	}{
		{breakdown.Tvl, "tvl"},
		{breakdown.ApySustainability, "apy sustainability"},
		{breakdown.AssetVolatility, "asset volatility"},
		{breakdown.ImpermanentLoss, "impermanent loss"},
		{breakdown.ProtocolTrust, "protocol trust"},
	}
	for _, comp := range components {
		if !utils.IsFinite(comp.value) {
			scoreLogger.Error().
				Str("poolID", pool.ID).
				Float64("componentValue", comp.value).
				Str("componentName", comp.name).
				Msg("Risk sub-score calculation resulted in invalid value")
			return types.RiskResult{}, fmt.Errorf("%w: %s sub-score is NaN or Inf", ErrInvalidPoolData, comp.name)
		}
	}

	weighted := params.Weights.Tvl*breakdown.Tvl +
		params.Weights.ApySustainability*breakdown.ApySustainability +
		params.Weights.AssetVolatility*breakdown.AssetVolatility +
		params.Weights.ImpermanentLoss*breakdown.ImpermanentLoss +
		params.Weights.ProtocolTrust*breakdown.ProtocolTrust

	if !utils.IsFinite(weighted) {
		return types.RiskResult{}, fmt.Errorf("%w: weighted risk score is NaN or Inf", ErrInvalidPoolData)
	}

	riskScore := int(utils.Clamp(math.Round(weighted), 0, 100))
	result := types.RiskResult{
		RiskScore:     riskScore,
		RiskLevel:     params.LevelThresholds.Level(riskScore),
		RiskBreakdown: breakdown,
	}

	scoreLogger.Debug().
		Str("poolID", pool.ID).
		Str("symbol", pool.Symbol).
		Str("protocol", pool.Protocol).
		Float64("tvlRisk", breakdown.Tvl).
		Float64("apySustainabilityRisk", breakdown.ApySustainability).
		Float64("assetVolatilityRisk", breakdown.AssetVolatility).
		Float64("impermanentLossRisk", breakdown.ImpermanentLoss).
		Float64("protocolTrustRisk", breakdown.ProtocolTrust).
		Float64("weightedScore", weighted).
		Int("riskScore", result.RiskScore).
		Str("riskLevel", string(result.RiskLevel)).
		Msg("Pool risk score calculated")

	return result, nil
}

// CalculateTvlRisk maps TVL to a 0-100 sub-score on a log10 scale.
// At or below TvlFloorUsd the sub-score is 100, at or above TvlSafeUsd it is 0.
func CalculateTvlRisk(tvlUsd float64, params types.EngineParameters) (float64, error) {
	if !utils.IsFinite(tvlUsd) {
		return 0, errors.New("pool TVL is not finite")
	}

	// An empty pool carries maximal liquidity risk
	if tvlUsd <= 0 {
		return 100, nil
	}

	logSafe := math.Log10(params.TvlSafeUsd)
	logFloor := math.Log10(params.TvlFloorUsd)
	span := logSafe - logFloor
	if span <= 0 || !utils.IsFinite(span) {
		return 0, errors.New("tvl interpolation span must be positive")
	}

	risk := 100 * (logSafe - math.Log10(tvlUsd)) / span
	if !utils.IsFinite(risk) {
		return 0, errors.New("tvl risk calculation resulted in non-finite value")
	}

	return utils.Clamp(risk, 0, 100), nil
}

// CalculateApySustainabilityRisk penalizes yields that look unsustainable. It mixes three components:
// how far the APY sits above the market distribution, how much of it is paid in incentives,
// and how far it has spiked above the pool's own history. The spike is the larger of the jump over
// the 30 day mean and the jump over the APY of 7 days ago (Apy - ApyPct7d).
// A non-positive APY carries no sustainability risk.
func CalculateApySustainabilityRisk(pool types.PoolSnapshot, params types.EngineParameters) (float64, error) {
	if !utils.IsFinite(pool.Apy) || !utils.IsFinite(pool.ApyReward) || !utils.IsFinite(pool.ApyMean30d) || !utils.IsFinite(pool.ApyPct7d) {
		return 0, errors.New("apy inputs are not finite")
	}
	if pool.Apy <= 0 {
		return 0, nil
	}

	// Market outlier component, only yields above the mean are penalized
	z := (pool.Apy - params.Market.MeanApy) / params.Market.StdDevApy
	outlier := 100 * utils.Clamp(z/params.ApyOutlierZCeiling, 0, 1)

	// Incentive dependency component
	rewardShare := 100 * utils.Clamp(pool.ApyReward/pool.Apy, 0, 1)

	// Spike component, 0 without history
	spike := apySpike(pool.Apy, pool.ApyMean30d, params.ApySpikeCeiling)
	if pool.ApyPct7d != 0 {
		spike = math.Max(spike, apySpike(pool.Apy, pool.Apy-pool.ApyPct7d, params.ApySpikeCeiling))
	}

	totalWeight := params.ApyOutlierWeight + params.ApyRewardShareWeight + params.ApySpikeWeight
	risk := (params.ApyOutlierWeight*outlier + params.ApyRewardShareWeight*rewardShare + params.ApySpikeWeight*spike) / totalWeight
	if !utils.IsFinite(risk) {
		return 0, errors.New("apy sustainability calculation resulted in non-finite value")
	}

	scoreLogger.Debug().
		Str("poolID", pool.ID).
		Float64("apy", pool.Apy).
		Float64("marketMeanApy", params.Market.MeanApy).
		Float64("marketStdDevApy", params.Market.StdDevApy).
		Float64("zScore", z).
		Float64("outlierComponent", outlier).
		Float64("rewardShareComponent", rewardShare).
		Float64("apyPct7d", pool.ApyPct7d).
		Float64("spikeComponent", spike).
		Float64("apySustainabilityRisk", risk).
		Msg("APY sustainability risk calculated with components")

	return utils.Clamp(risk, 0, 100), nil
}

// apySpike scores the relative jump of apy over a reference APY. A non-positive reference scores 0.
func apySpike(apy, reference, ceiling float64) float64 {
	if reference <= 0 {
		return 0
	}
	return 100 * utils.Clamp((apy/reference-1)/ceiling, 0, 1)
}

// CalculateAssetVolatilityRisk scores the underlying assets. Stablecoin pools get a fixed low score.
// A measured annualized volatility is scaled against VolatilityCeiling, otherwise the exposure table is used.
func CalculateAssetVolatilityRisk(pool types.PoolSnapshot, params types.EngineParameters) (float64, error) {
	if pool.Stablecoin {
		return params.StablecoinVolatilityScore, nil
	}

	if !utils.IsFinite(pool.AssetVolatility) || pool.AssetVolatility < 0 {
		return 0, errors.New("asset volatility must be finite and non-negative")
	}

	if pool.AssetVolatility > 0 {
		scaled := 100 * pool.AssetVolatility / params.VolatilityCeiling
		return utils.Clamp(math.Max(params.VolatileFloorScore, scaled), 0, 100), nil
	}

	switch pool.Exposure {
	case types.ExposureMulti:
		return params.MultiExposureVolatilityScore, nil
	case types.ExposureSingle:
		return params.SingleExposureVolatilityScore, nil
	}

	// Without an exposure flag, a pool with IL exposure holds more than one asset
	if pool.ILRisk != types.ILRiskNone {
		return params.MultiExposureVolatilityScore, nil
	}
	return params.SingleExposureVolatilityScore, nil
}

// ValidatePoolData checks the fields the scorer reads. Unknown enum values are ErrInvalidInput,
// anything else malformed is ErrInvalidPoolData.
func ValidatePoolData(pool types.PoolSnapshot) error {
	if pool.ID == "" {
		return fmt.Errorf("%w: pool ID cannot be empty", ErrInvalidPoolData)
	}

	if !pool.ILRisk.Valid() {
		return fmt.Errorf("%w: pool %s has unknown ilRisk %q", ErrInvalidInput, pool.ID, pool.ILRisk)
	}
	if pool.Exposure != "" && pool.Exposure != types.ExposureSingle && pool.Exposure != types.ExposureMulti {
		return fmt.Errorf("%w: pool %s has unknown exposure %q", ErrInvalidInput, pool.ID, pool.Exposure)
	}

	finite := []struct {
		value float64
		name  string
	}{
		{pool.TvlUsd, "tvlUsd"},
		{pool.Apy, "apy"},
		{pool.ApyBase, "apyBase"},
		{pool.ApyReward, "apyReward"},
		{pool.TvlChange24hPercent, "tvlChange24hPercent"},
		{pool.ApyMean30d, "apyMean30d"},
		{pool.ApyPct7d, "apyPct7d"},
		{pool.AssetVolatility, "assetVolatility"},
		{pool.ProtocolTrustScore, "protocolTrustScore"},
	}
	for _, f := range finite {
		if !utils.IsFinite(f.value) {
			return fmt.Errorf("%w: pool %s %s must be finite", ErrInvalidPoolData, pool.ID, f.name)
		}
	}

	if pool.TvlUsd < 0 {
		return fmt.Errorf("%w: pool %s TVL cannot be negative", ErrInvalidPoolData, pool.ID)
	}
	if pool.ApyMean30d < 0 {
		return fmt.Errorf("%w: pool %s apyMean30d cannot be negative", ErrInvalidPoolData, pool.ID)
	}
	if pool.AssetVolatility < 0 {
		return fmt.Errorf("%w: pool %s asset volatility cannot be negative", ErrInvalidPoolData, pool.ID)
	}
	if pool.ProtocolTrustScore < 0 || pool.ProtocolTrustScore > 100 {
		return fmt.Errorf("%w: pool %s protocolTrustScore must be between 0 and 100", ErrInvalidPoolData, pool.ID)
	}

	return nil
}

// ScoreCatalog scores every pool in the catalog and returns annotated copies, leaving the input untouched.
// Pools that fail validation are dropped from the result and reported in the error slice.
// Inputs:
//   - pools: The catalog snapshot.
//   - params: The engine parameters, validated once for the whole batch.
//
// Output:
//   - The scored pools in input order.
//   - One error per dropped pool, or a single error if the parameters are invalid.
func ScoreCatalog(pools []types.PoolSnapshot, params types.EngineParameters) ([]types.PoolSnapshot, []error) {
	// Validate engine parameters once for all pools
	if err := params.Validate(); err != nil {
		scoreLogger.Error().
			Err(err).
			Msg("Engine parameters validation failed")
		return nil, []error{errors.Join(ErrInvalidEngineParameters, err)}
	}

	scoreLogger.Info().
		Int("poolCount", len(pools)).
		Msg("Starting catalog risk scoring")

	scored := make([]types.PoolSnapshot, 0, len(pools))
	var errs []error

	for i, pool := range pools {
		result, err := scorePool(pool, params)
		if err != nil {
			scoreLogger.Warn().
				Err(err).
				Int("poolIndex", i).
				Str("poolID", pool.ID).
				Msg("Pool scoring failed, dropping pool from catalog")
			errs = append(errs, fmt.Errorf("pool %s scoring failed: %w", pool.ID, err))
			continue
		}
		scored = append(scored, pool.WithRisk(result))
	}

	scoreLogger.Info().
		Int("poolCount", len(pools)).
		Int("successfullyScored", len(scored)).
		Int("dropped", len(errs)).
		Msg("Catalog risk scoring completed")

	return scored, errs
}
