package analyzer

import (
	"math"
	"sort"

	"github.com/elys-network/curate/internal/types"
	"github.com/elys-network/curate/internal/utils"
	"gonum.org/v1/gonum/stat"
)

// marketWinsorQuantile caps sample APYs before the moments are computed, so a handful of
// thousand-percent farms cannot inflate the standard deviation.
const marketWinsorQuantile = 0.99

// MarketApyDistribution calculates the TVL-weighted mean and standard deviation of positive APYs
// across the catalog. It needs at least two usable pools and a non-zero spread.
func MarketApyDistribution(pools []types.PoolSnapshot) (types.MarketDistribution, error) {
	type sample struct {
		apy    float64
		weight float64
	}

	// --- Input Validation ---
	samples := make([]sample, 0, len(pools))
	for _, p := range pools {
		if !utils.IsFinite(p.Apy) || !utils.IsFinite(p.TvlUsd) {
			continue
		}
		if p.Apy <= 0 || p.TvlUsd <= 0 {
			continue
		}
		samples = append(samples, sample{apy: p.Apy, weight: p.TvlUsd})
	}
	if len(samples) < 2 {
		return types.MarketDistribution{}, ErrInsufficientData
	}

	// stat.Quantile requires sorted input
	sort.Slice(samples, func(i, j int) bool {
		return samples[i].apy < samples[j].apy
	})

	apys := make([]float64, len(samples))
	weights := make([]float64, len(samples))
	for i, s := range samples {
		apys[i] = s.apy
		weights[i] = s.weight
	}

	// --- Winsorize the upper tail ---
	ceiling := stat.Quantile(marketWinsorQuantile, stat.Empirical, apys, weights)
	for i := range apys {
		apys[i] = math.Min(apys[i], ceiling)
	}

	// --- Weighted moments ---
	mean, stdDev := stat.MeanStdDev(apys, weights)
	if !utils.IsFinite(mean) || !utils.IsFinite(stdDev) || stdDev <= 0 {
		return types.MarketDistribution{}, ErrInsufficientData
	}

	scoreLogger.Debug().
		Int("samples", len(samples)).
		Float64("winsorCeiling", ceiling).
		Float64("meanApy", mean).
		Float64("stdDevApy", stdDev).
		Msg("Market APY distribution calculated")

	return types.MarketDistribution{
		MeanApy:   mean,
		StdDevApy: stdDev,
		Samples:   len(samples),
	}, nil
}
