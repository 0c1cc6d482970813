package analyzer

import (
	"errors"
	"math"
	"sort"

	"github.com/elys-network/curate/internal/types"
	"github.com/elys-network/curate/internal/utils"
	"gonum.org/v1/gonum/stat"
)

// HOURLY_ANNUALIZATION_FACTOR is the number of hourly periods in a year.
const HOURLY_ANNUALIZATION_FACTOR = 24 * 365

// ErrInsufficientPriceData indicates that not enough data points were provided
// to calculate volatility (need at least 2 returns for a sample deviation).
var ErrInsufficientPriceData = errors.New("insufficient data points to calculate volatility")

// CalculateVolatility calculates the annualized historical volatility from a series of price data.
// It sorts a copy of the prices chronologically and uses the sample standard deviation of log returns.
// The annualizationFactor should match the frequency of the data (e.g., 8760 for hourly, 365 for daily).
func CalculateVolatility(prices []types.PriceData, annualizationFactor float64) (float64, error) {
	if annualizationFactor <= 0 || !utils.IsFinite(annualizationFactor) {
		return 0, errors.New("annualization factor must be positive")
	}
	if len(prices) < 3 {
		return 0, ErrInsufficientPriceData
	}

	sorted := make([]types.PriceData, len(prices))
	copy(sorted, prices)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	// --- Logarithmic Returns ---
	logReturns := make([]float64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		current, previous := sorted[i].Price, sorted[i-1].Price
		// Pairs that would break math.Log are skipped
		if previous <= 0 || current <= 0 || !utils.IsFinite(previous) || !utils.IsFinite(current) {
			continue
		}
		logReturns = append(logReturns, math.Log(current/previous))
	}
	if len(logReturns) < 2 {
		return 0, ErrInsufficientPriceData
	}

	// --- Annualize ---
	volatility := stat.StdDev(logReturns, nil) * math.Sqrt(annualizationFactor)
	if !utils.IsFinite(volatility) {
		return 0, errors.New("volatility calculation resulted in non-finite value")
	}
	return volatility, nil
}
