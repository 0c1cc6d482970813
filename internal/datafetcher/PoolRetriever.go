package datafetcher

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/elys-network/curate/internal/config"
	"github.com/elys-network/curate/internal/logger"
	"github.com/elys-network/curate/internal/types"
	"github.com/elys-network/curate/internal/utils"
)

var poolLogger = logger.GetForComponent("pool_retriever")
var ErrInvalidPoolData = errors.New("invalid pool data")
var ErrNoPools = errors.New("no pools available after filtering")

const POOLS_ROUTE = "/pools"

type yieldsResponse struct {
	Status string       `json:"status"`
	Data   []yieldsPool `json:"data"`
}

// yieldsPool is one entry of the yields API. Nullable numbers are pointers.
type yieldsPool struct {
	Pool       string   `json:"pool"`
	Chain      string   `json:"chain"`
	Project    string   `json:"project"`
	Symbol     string   `json:"symbol"`
	TvlUsd     float64  `json:"tvlUsd"`
	Apy        *float64 `json:"apy"`
	ApyBase    *float64 `json:"apyBase"`
	ApyReward  *float64 `json:"apyReward"`
	ApyPct7D   *float64 `json:"apyPct7D"`
	ApyMean30d *float64 `json:"apyMean30d"`
	Stablecoin bool     `json:"stablecoin"`
	IlRisk     string   `json:"ilRisk"`
	Exposure   string   `json:"exposure"`
}

// CatalogFilter restricts which pools enter the catalog.
type CatalogFilter struct {
	MinTvlUsd float64
	Chains    []string // empty means every chain
}

func (f CatalogFilter) allowsChain(chain string) bool {
	if len(f.Chains) == 0 {
		return true
	}
	for _, c := range f.Chains {
		if strings.EqualFold(c, chain) {
			return true
		}
	}
	return false
}

// PoolRetriever pulls the pool list from the yields API.
type PoolRetriever struct {
	client  *apiClient
	baseURL string
	now     func() time.Time
}

func NewPoolRetriever(baseURL string, httpClient *http.Client, retryDelay time.Duration) *PoolRetriever {
	return &PoolRetriever{
		client:  newAPIClient(httpClient, retryDelay, poolLogger),
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// FetchPools fetches every pool, maps it to a snapshot and applies the filter.
// Malformed entries are skipped with a warning. An empty result is an error.
func (r *PoolRetriever) FetchPools(ctx context.Context, filter CatalogFilter) ([]types.PoolSnapshot, error) {
	poolLogger.Info().
		Float64("minTvlUsd", filter.MinTvlUsd).
		Strs("chains", filter.Chains).
		Msg("Starting pool retrieval")

	var resp yieldsResponse
	if err := r.client.getJSON(ctx, r.baseURL+POOLS_ROUTE, &resp); err != nil {
		return nil, fmt.Errorf("pool fetch failed: %w", err)
	}
	if resp.Status != "" && resp.Status != "success" {
		return nil, fmt.Errorf("%w: yields API status %q", ErrAPIResponseInvalid, resp.Status)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: yields API returned no pools", ErrAPIResponseInvalid)
	}

	now := r.now()
	seen := make(map[string]bool, len(resp.Data))
	pools := make([]types.PoolSnapshot, 0, len(resp.Data))
	var invalid, filtered, duplicates int

	for _, raw := range resp.Data {
		pool, err := mapPool(raw, now)
		if err != nil {
			invalid++
			poolLogger.Warn().
				Err(err).
				Str("poolID", raw.Pool).
				Str("project", raw.Project).
				Msg("Skipping malformed pool")
			continue
		}

		if pool.TvlUsd < filter.MinTvlUsd || !filter.allowsChain(pool.Chain) {
			filtered++
			continue
		}
		if seen[pool.ID] {
			duplicates++
			poolLogger.Warn().Str("poolID", pool.ID).Msg("Skipping duplicate pool entry")
			continue
		}
		seen[pool.ID] = true
		pools = append(pools, pool)
	}

	poolLogger.Info().
		Int("received", len(resp.Data)).
		Int("kept", len(pools)).
		Int("invalid", invalid).
		Int("filtered", filtered).
		Int("duplicates", duplicates).
		Msg("Pool retrieval complete")

	if len(pools) == 0 {
		return nil, ErrNoPools
	}
	return pools, nil
}

// mapPool converts a yields API entry into a snapshot with status active.
func mapPool(raw yieldsPool, now time.Time) (types.PoolSnapshot, error) {
	if strings.TrimSpace(raw.Pool) == "" {
		return types.PoolSnapshot{}, fmt.Errorf("%w: empty pool id", ErrInvalidPoolData)
	}

	base, reward := value(raw.ApyBase), value(raw.ApyReward)
	var apy float64
	switch {
	case raw.Apy != nil:
		apy = *raw.Apy
		if raw.ApyBase == nil {
			base = math.Max(0, apy-reward)
		}
	default:
		apy = base + reward
	}

	numbers := []struct {
		value float64
		name  string
	}{
		{raw.TvlUsd, "tvlUsd"},
		{apy, "apy"},
		{base, "apyBase"},
		{reward, "apyReward"},
		{value(raw.ApyPct7D), "apyPct7D"},
		{value(raw.ApyMean30d), "apyMean30d"},
	}
	for _, n := range numbers {
		if !utils.IsFinite(n.value) {
			return types.PoolSnapshot{}, fmt.Errorf("%w: %s is not finite", ErrInvalidPoolData, n.name)
		}
	}
	if raw.TvlUsd < 0 {
		return types.PoolSnapshot{}, fmt.Errorf("%w: negative TVL %f", ErrInvalidPoolData, raw.TvlUsd)
	}

	exposure := types.Exposure(strings.ToLower(raw.Exposure))
	if exposure != types.ExposureSingle && exposure != types.ExposureMulti {
		exposure = ""
	}
	stable := raw.Stablecoin || config.IsStablecoinSymbol(raw.Symbol)

	return types.PoolSnapshot{
		ID:         raw.Pool,
		Protocol:   raw.Project,
		Chain:      raw.Chain,
		Symbol:     raw.Symbol,
		TvlUsd:     raw.TvlUsd,
		Apy:        apy,
		ApyBase:    base,
		ApyReward:  reward,
		ApyMean30d: math.Max(0, value(raw.ApyMean30d)),
		ApyPct7d:   value(raw.ApyPct7D),
		Stablecoin: stable,
		ILRisk:     mapILRisk(raw.IlRisk, exposure, stable, raw.Symbol),
		Exposure:   exposure,
		Status:     types.PoolStatusActive,
		UpdatedAt:  now,
	}, nil
}

// mapILRisk grades the yields API's yes/no impermanent-loss flag using the pool's assets.
func mapILRisk(flag string, exposure types.Exposure, stable bool, symbol string) types.ILRisk {
	switch strings.ToLower(flag) {
	case "no":
		return types.ILRiskNone
	case "yes":
		switch {
		case stable, exposure == types.ExposureSingle:
			return types.ILRiskLow
		case config.HasStablecoinAsset(symbol):
			return types.ILRiskMedium
		default:
			return types.ILRiskHigh
		}
	}

	// Unknown flag
	switch {
	case exposure == types.ExposureSingle:
		return types.ILRiskNone
	case stable:
		return types.ILRiskLow
	default:
		return types.ILRiskMedium
	}
}

func value(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
