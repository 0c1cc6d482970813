/*

This file contains the function for building a portfolio from the scored catalog.

Pools under the tolerance's risk ceiling are ranked by risk-adjusted yield, the top N are selected
and capital is split inversely to each pool's risk score.

*/

package analyzer

import (
	"errors"
	"fmt"
	"math"
	"sort"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/curate/internal/logger"
	"github.com/elys-network/curate/internal/types"
	"github.com/elys-network/curate/internal/utils"
	"gonum.org/v1/gonum/stat"
)

var optimizerLogger = logger.GetForComponent("portfolio_optimizer")

// candidate is a pool eligible for allocation along with its ranking metric.
type candidate struct {
	pool   types.PoolSnapshot
	metric float64
}

// RiskAdjustedYield is the ranking metric: apy / (1 + riskScore/100).
func RiskAdjustedYield(apy float64, riskScore int) float64 {
	return apy / (1 + float64(riskScore)/100)
}

// OptimizePortfolio selects pools from the catalog and assigns whole-percent weights.
// Unscored pools in the catalog are scored on a copy. The catalog is not modified.
// Returns *InsufficientCandidatesError when no pool qualifies, ErrInvalidInput for a malformed request.
func OptimizePortfolio(catalog []types.PoolSnapshot, req types.OptimizeRequest, params types.EngineParameters) (types.PortfolioResult, error) {
	// --- 1. Validate Request ---
	if err := ValidateOptimizeRequest(req); err != nil {
		optimizerLogger.Error().Err(err).Msg("Optimize request validation failed")
		return types.PortfolioResult{}, err
	}
	if err := params.Validate(); err != nil {
		return types.PortfolioResult{}, errors.Join(ErrInvalidEngineParameters, err)
	}

	ceiling, err := params.ToleranceCeilings.Ceiling(req.RiskTolerance)
	if err != nil {
		return types.PortfolioResult{}, errors.Join(ErrInvalidInput, err)
	}
	target, err := params.DiversificationTargets.Target(req.Diversification)
	if err != nil {
		return types.PortfolioResult{}, errors.Join(ErrInvalidInput, err)
	}

	// --- 2. Filter Candidates ---
	candidates := make([]candidate, 0, len(catalog))
	for _, pool := range catalog {
		if pool.Status != types.PoolStatusActive {
			continue
		}
		if !pool.IsScored() {
			result, err := scorePool(pool, params)
			if err != nil {
				optimizerLogger.Warn().
					Err(err).
					Str("poolID", pool.ID).
					Msg("Skipping pool that could not be scored")
				continue
			}
			pool = pool.WithRisk(result)
		}
		if pool.RiskScore > ceiling || !utils.IsFinite(pool.Apy) {
			continue
		}
		candidates = append(candidates, candidate{pool: pool, metric: RiskAdjustedYield(pool.Apy, pool.RiskScore)})
	}

	if len(candidates) == 0 {
		optimizerLogger.Warn().
			Str("riskTolerance", string(req.RiskTolerance)).
			Int("ceiling", ceiling).
			Int("target", target).
			Msg("No pools satisfy the risk ceiling")
		return types.PortfolioResult{}, &InsufficientCandidatesError{
			RiskTolerance:   req.RiskTolerance,
			Diversification: req.Diversification,
			Ceiling:         ceiling,
			Target:          target,
			Available:       0,
		}
	}

	// --- 3. Rank Candidates ---
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.metric != b.metric {
			return a.metric > b.metric
		}
		if a.pool.RiskScore != b.pool.RiskScore {
			return a.pool.RiskScore < b.pool.RiskScore
		}
		if a.pool.TvlUsd != b.pool.TvlUsd {
			return a.pool.TvlUsd > b.pool.TvlUsd
		}
		return a.pool.ID < b.pool.ID
	})

	numberOfPoolsToSelect := target
	if numberOfPoolsToSelect > len(candidates) {
		numberOfPoolsToSelect = len(candidates)
	}
	selected := candidates[:numberOfPoolsToSelect]

	optimizerLogger.Info().
		Int("candidates", len(candidates)).
		Int("selected", numberOfPoolsToSelect).
		Int("target", target).
		Int("ceiling", ceiling).
		Msg("Selecting top pools by risk-adjusted yield")

	// --- 4. Inverse-Risk Weights ---
	percents, err := determineAllocationPercents(selected, params.InverseRiskOffset)
	if err != nil {
		return types.PortfolioResult{}, err
	}

	// --- 5. Build Allocations and Summary ---
	lowestRiskIdx := 0
	for i, c := range selected {
		if c.pool.RiskScore < selected[lowestRiskIdx].pool.RiskScore {
			lowestRiskIdx = i
		}
	}

	allocations := make([]types.Allocation, 0, len(selected))
	expectedYield := sdkmath.LegacyZeroDec()
	var weightedApy, combinedRisk float64

	for i, c := range selected {
		usd, err := utils.UsdPercentOf(req.TotalAllocation, float64(percents[i]))
		if err != nil {
			return types.PortfolioResult{}, fmt.Errorf("allocation usd for pool %s: %w", c.pool.ID, err)
		}
		// Yield follows the reported cent amounts and is never rounded
		poolYield, err := utils.PercentOf(usd, c.pool.Apy)
		if err != nil {
			return types.PortfolioResult{}, fmt.Errorf("expected yield for pool %s: %w", c.pool.ID, err)
		}
		expectedYield = expectedYield.Add(poolYield)
		weightedApy += float64(percents[i]) * c.pool.Apy / 100
		combinedRisk += float64(percents[i]) / 100 * float64(c.pool.RiskScore)

		allocations = append(allocations, types.Allocation{
			PoolID:            c.pool.ID,
			Protocol:          c.pool.Protocol,
			Symbol:            c.pool.Symbol,
			Chain:             c.pool.Chain,
			AllocationPercent: percents[i],
			AllocationUsd:     usd,
			Apy:               c.pool.Apy,
			RiskScore:         c.pool.RiskScore,
			Rationale:         allocationRationale(i, i == lowestRiskIdx, c.pool),
		})

		optimizerLogger.Debug().
			Int("rank", i+1).
			Str("poolID", c.pool.ID).
			Float64("riskAdjustedYield", c.metric).
			Int("riskScore", c.pool.RiskScore).
			Int("allocationPercent", percents[i]).
			Float64("allocationUsd", usd).
			Msg("Selected pool")
	}

	expectedAnnualYield, err := expectedYield.Float64()
	if err != nil || !utils.IsFinite(expectedAnnualYield) {
		return types.PortfolioResult{}, fmt.Errorf("expected annual yield: %w", errors.Join(utils.ErrConversionFailed, err))
	}

	diversificationScore := DiversificationScore(percents, params)

	result := types.PortfolioResult{
		Allocations: allocations,
		Summary: types.PortfolioSummary{
			TotalAllocation:      req.TotalAllocation,
			WeightedApy:          weightedApy,
			CombinedRiskScore:    utils.Round(combinedRisk, 2),
			DiversificationScore: utils.Round(diversificationScore, 2),
			ExpectedAnnualYield:  expectedAnnualYield,
			PoolCount:            len(allocations),
		},
		RiskWarnings:    portfolioWarnings(selected, percents, req, ceiling, target, len(candidates), params),
		RiskTolerance:   req.RiskTolerance,
		Diversification: req.Diversification,
	}

	optimizerLogger.Info().
		Int("poolCount", result.Summary.PoolCount).
		Float64("weightedApy", result.Summary.WeightedApy).
		Float64("combinedRiskScore", result.Summary.CombinedRiskScore).
		Float64("diversificationScore", result.Summary.DiversificationScore).
		Int("warnings", len(result.RiskWarnings)).
		Msg("Portfolio optimized")

	return result, nil
}

// ValidateOptimizeRequest rejects negative or non-finite totals and unknown enum values.
func ValidateOptimizeRequest(req types.OptimizeRequest) error {
	if !utils.IsFinite(req.TotalAllocation) {
		return fmt.Errorf("%w: totalAllocation must be finite", ErrInvalidInput)
	}
	if req.TotalAllocation < 0 {
		return fmt.Errorf("%w: totalAllocation cannot be negative", ErrInvalidInput)
	}
	if !req.RiskTolerance.Valid() {
		return fmt.Errorf("%w: unknown riskTolerance %q", ErrInvalidInput, req.RiskTolerance)
	}
	if !req.Diversification.Valid() {
		return fmt.Errorf("%w: unknown diversification %q", ErrInvalidInput, req.Diversification)
	}
	return nil
}

// determineAllocationPercents splits 100% across the selected pools proportionally to
// 1 / (riskScore + offset), rounded to whole percents. The rounding residual goes to the largest allocation.
func determineAllocationPercents(selected []candidate, offset float64) ([]int, error) {
	if len(selected) == 0 {
		return nil, nil
	}

	weights := make([]float64, len(selected))
	var totalWeight float64
	for i, c := range selected {
		denominator := float64(c.pool.RiskScore) + offset
		if denominator <= 0 {
			return nil, fmt.Errorf("pool %s has non-positive weight denominator %.4f", c.pool.ID, denominator)
		}
		weights[i] = 1 / denominator
		totalWeight += weights[i]
	}
	if totalWeight <= 0 || !utils.IsFinite(totalWeight) {
		return nil, errors.New("total inverse-risk weight is not positive")
	}

	percents := make([]int, len(selected))
	largest := 0
	sum := 0
	for i, w := range weights {
		percents[i] = int(math.Round(100 * w / totalWeight))
		sum += percents[i]
		if w > weights[largest] {
			largest = i
		}
	}
	percents[largest] += 100 - sum

	return percents, nil
}

// DiversificationScore rates the spread of a portfolio from 0 to 100. It blends the pool count
// relative to MaxDiversificationPools with the normalized Shannon entropy of the weights.
// A single pool has zero evenness.
func DiversificationScore(percents []int, params types.EngineParameters) float64 {
	n := len(percents)
	if n == 0 {
		return 0
	}

	countComponent := math.Min(float64(n)/float64(params.MaxDiversificationPools), 1)

	var evenness float64
	if n > 1 {
		shares := make([]float64, n)
		for i, p := range percents {
			shares[i] = float64(p) / 100
		}
		evenness = stat.Entropy(shares) / math.Log(float64(n))
	}

	return 100 * utils.Clamp(params.DiversificationCountWeight*countComponent+params.DiversificationEvennessWeight*evenness, 0, 1)
}

func allocationRationale(rank int, lowestRisk bool, pool types.PoolSnapshot) string {
	switch {
	case rank == 0:
		return fmt.Sprintf("Top risk-adjusted yield: %.2f%% APY at risk score %d", pool.Apy, pool.RiskScore)
	case lowestRisk:
		return fmt.Sprintf("Lowest risk in the selection (score %d), anchors the allocation", pool.RiskScore)
	case pool.Stablecoin:
		return fmt.Sprintf("Stablecoin exposure at %.2f%% APY limits drawdown", pool.Apy)
	default:
		return fmt.Sprintf("Ranked #%d by risk-adjusted yield (%.2f%% APY, risk score %d)", rank+1, pool.Apy, pool.RiskScore)
	}
}

func portfolioWarnings(selected []candidate, percents []int, req types.OptimizeRequest, ceiling, target, available int, params types.EngineParameters) []string {
	warnings := []string{}

	for i, c := range selected {
		if float64(percents[i]) > params.ConcentrationWarningPercent {
			warnings = append(warnings, fmt.Sprintf("%d%% of capital is concentrated in %s (%s), above the %.0f%% single-pool threshold",
				percents[i], c.pool.Symbol, c.pool.ID, params.ConcentrationWarningPercent))
		}
	}

	nominal := req.RiskTolerance.NominalLevel()
	for _, c := range selected {
		if c.pool.RiskLevel.Rank() > nominal.Rank() {
			warnings = append(warnings, fmt.Sprintf("%s (%s) is rated %s risk, above the %s level expected for %s tolerance",
				c.pool.Symbol, c.pool.ID, c.pool.RiskLevel, nominal, req.RiskTolerance))
		}
	}

	if available < target {
		warnings = append(warnings, fmt.Sprintf("Only %d pools qualify at %s tolerance (risk ceiling %d), below the %s target of %d",
			available, req.RiskTolerance, ceiling, req.Diversification, target))
	}

	return warnings
}
