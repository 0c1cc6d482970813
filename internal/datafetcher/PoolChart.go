/*
This file fetches the daily history of a pool from the yields API chart endpoint.

Charts are only pulled for pools held in stored portfolios. They provide the 24h TVL change used by the
outflow alert, and the 30-day mean APY when the pool list omits it.
*/

package datafetcher

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/elys-network/curate/internal/logger"
	"github.com/elys-network/curate/internal/types"
	"github.com/elys-network/curate/internal/utils"
	"gonum.org/v1/gonum/stat"
)

var chartLogger = logger.GetForComponent("chart_retriever")

var ErrInsufficientChartData = errors.New("insufficient chart data")

const (
	CHART_ROUTE       = "/chart/"
	MIN_CHART_POINTS  = 2
	TVL_CHANGE_WINDOW = 20 * time.Hour // a daily series has its previous point roughly 24h back
	APY_MEAN_WINDOW   = 30 * 24 * time.Hour
	MAX_EXPECTED_GAP  = 48 * time.Hour
)

type chartResponse struct {
	Status string       `json:"status"`
	Data   []chartPoint `json:"data"`
}

type chartPoint struct {
	Timestamp time.Time `json:"timestamp"`
	TvlUsd    float64   `json:"tvlUsd"`
	Apy       *float64  `json:"apy"`
}

// PoolChart pulls pool histories.
type PoolChart struct {
	client  *apiClient
	baseURL string
	cache   *Cache
}

func NewPoolChart(baseURL string, httpClient *http.Client, retryDelay time.Duration, cache *Cache) *PoolChart {
	return &PoolChart{
		client:  newAPIClient(httpClient, retryDelay, chartLogger),
		baseURL: strings.TrimRight(baseURL, "/"),
		cache:   cache,
	}
}

// FetchChart returns the validated, chronologically ordered history of a pool.
func (c *PoolChart) FetchChart(ctx context.Context, poolID string) ([]types.ApyPoint, error) {
	if strings.TrimSpace(poolID) == "" {
		return nil, errors.New("pool ID cannot be empty")
	}
	if cached, ok := c.cache.Chart(poolID); ok {
		return cached, nil
	}

	var resp chartResponse
	if err := c.client.getJSON(ctx, c.baseURL+CHART_ROUTE+url.PathEscape(poolID), &resp); err != nil {
		return nil, fmt.Errorf("chart fetch failed for %s: %w", poolID, err)
	}
	if resp.Status != "" && resp.Status != "success" {
		return nil, fmt.Errorf("%w: chart status %q for %s", ErrAPIResponseInvalid, resp.Status, poolID)
	}

	points := make([]types.ApyPoint, 0, len(resp.Data))
	for i, p := range resp.Data {
		if p.Timestamp.IsZero() {
			return nil, fmt.Errorf("%w: chart point %d for %s has no timestamp", ErrAPIResponseInvalid, i, poolID)
		}
		apy := value(p.Apy)
		if !utils.IsFinite(apy) || !utils.IsFinite(p.TvlUsd) || p.TvlUsd < 0 {
			chartLogger.Warn().
				Str("poolID", poolID).
				Int("index", i).
				Msg("Skipping invalid chart point")
			continue
		}
		points = append(points, types.ApyPoint{Timestamp: p.Timestamp.UTC(), Apy: apy, TvlUsd: p.TvlUsd})
	}

	if len(points) < MIN_CHART_POINTS {
		return nil, fmt.Errorf("%w: %d valid points for %s, need %d", ErrInsufficientChartData, len(points), poolID, MIN_CHART_POINTS)
	}
	if err := validateTimeSequence(points, poolID); err != nil {
		return nil, err
	}

	chartLogger.Debug().
		Str("poolID", poolID).
		Int("dataPoints", len(points)).
		Time("oldestData", points[0].Timestamp).
		Time("newestData", points[len(points)-1].Timestamp).
		Msg("Chart retrieved")

	c.cache.SetChart(poolID, points)
	return points, nil
}

// validateTimeSequence ensures the history is in chronological order
func validateTimeSequence(points []types.ApyPoint, poolID string) error {
	for i := 1; i < len(points); i++ {
		if !points[i].Timestamp.After(points[i-1].Timestamp) {
			return fmt.Errorf("%w: chart points not in chronological order for %s at index %d", ErrAPIResponseInvalid, poolID, i)
		}

		// Gaps are tolerated
		if gap := points[i].Timestamp.Sub(points[i-1].Timestamp); gap > MAX_EXPECTED_GAP {
			chartLogger.Warn().
				Str("poolID", poolID).
				Int("index", i).
				Dur("gap", gap).
				Msg("Unusual time gap between chart points")
		}
	}
	return nil
}

// ApplyChart returns a copy of pool with TvlChange24hPercent derived from the history, and ApyMean30d
// filled in when the pool list did not report it. A chart reaching 24h back clears TvlChangeUnknown.
func ApplyChart(pool types.PoolSnapshot, points []types.ApyPoint) types.PoolSnapshot {
	if len(points) < MIN_CHART_POINTS {
		return pool
	}
	last := points[len(points)-1]

	for i := len(points) - 2; i >= 0; i-- {
		if last.Timestamp.Sub(points[i].Timestamp) < TVL_CHANGE_WINDOW {
			continue
		}
		if prev := points[i].TvlUsd; prev > 0 {
			pool.TvlChange24hPercent = utils.Round((last.TvlUsd-prev)/prev*100, 4)
			pool.TvlChangeUnknown = false
		}
		break
	}

	if pool.ApyMean30d == 0 {
		cutoff := last.Timestamp.Add(-APY_MEAN_WINDOW)
		var apys []float64
		for _, p := range points {
			if !p.Timestamp.Before(cutoff) {
				apys = append(apys, p.Apy)
			}
		}
		if len(apys) > 0 {
			pool.ApyMean30d = math.Max(0, stat.Mean(apys, nil))
		}
	}
	return pool
}
