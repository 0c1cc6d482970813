/*
This file assembles the catalog for one monitoring cycle.

Steps:
 1. Pull the pool list (required, the cycle fails without it).
 2. Pull protocol profiles and attach a trust score to every pool. On failure every pool gets the default trust.
 3. Apply protocol status overrides from the parameters file.
 4. Pull charts for held pools only, to derive the 24h TVL change. Every pool without a usable chart
    keeps its TVL change flagged as unknown.
 5. Pull hourly prices for the volatile assets of held pools and attach the annualized volatility.
    A pool is measured only when every non-stable asset has a feed. Otherwise the scorer uses the exposure table.
*/

package datafetcher

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/elys-network/curate/internal/analyzer"
	"github.com/elys-network/curate/internal/config"
	"github.com/elys-network/curate/internal/logger"
	"github.com/elys-network/curate/internal/types"
)

var collectorLogger = logger.GetForComponent("catalog_collector")

// CollectorOptions configures a Collector.
type CollectorOptions struct {
	YieldsAPI        string
	ProtocolsAPI     string
	PricesAPI        string // optional, empty disables volatility measurement
	Filter           CatalogFilter
	StatusOverrides  map[string]config.ProtocolStatusOverride // keyed by protocol slug
	UpgradeAuthority map[string]types.UpgradeAuthority        // keyed by protocol slug
	HTTPClient       *http.Client
	RetryDelay       time.Duration
	Cache            *Cache
}

// Collector builds catalog snapshots from the yields and protocols APIs.
type Collector struct {
	pools     *PoolRetriever
	protocols *ProtocolRetriever
	charts    *PoolChart
	prices    *PriceRetriever
	filter    CatalogFilter
	overrides map[string]config.ProtocolStatusOverride
	now       func() time.Time
}

func NewCollector(opts CollectorOptions) *Collector {
	overrides := make(map[string]config.ProtocolStatusOverride, len(opts.StatusOverrides))
	for slug, o := range opts.StatusOverrides {
		overrides[strings.ToLower(slug)] = o
	}
	var prices *PriceRetriever
	if opts.PricesAPI != "" {
		prices = NewPriceRetriever(opts.PricesAPI, opts.HTTPClient, opts.RetryDelay, opts.Cache)
	}
	return &Collector{
		prices:    prices,
		pools:     NewPoolRetriever(opts.YieldsAPI, opts.HTTPClient, opts.RetryDelay),
		protocols: NewProtocolRetriever(opts.ProtocolsAPI, opts.HTTPClient, opts.RetryDelay, opts.Cache, opts.UpgradeAuthority),
		charts:    NewPoolChart(opts.YieldsAPI, opts.HTTPClient, opts.RetryDelay, opts.Cache),
		filter:    opts.Filter,
		overrides: overrides,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// FetchCatalog returns a fresh, unscored catalog. held lists the pool IDs that need chart
// and volatility enrichment.
func (c *Collector) FetchCatalog(ctx context.Context, params types.EngineParameters, held []string) ([]types.PoolSnapshot, error) {
	start := time.Now()

	// --- 1. Pool list ---
	pools, err := c.pools.FetchPools(ctx, c.filter)
	if err != nil {
		return nil, err
	}

	// --- 2. Protocol trust ---
	profiles, err := c.protocols.FetchProtocols(ctx)
	if err != nil {
		collectorLogger.Warn().Err(err).Msg("Protocol profiles unavailable, using default trust for every pool")
		profiles = nil
	}

	now := c.now()
	trustBySlug := make(map[string]float64)
	var unprofiled int
	for i := range pools {
		slug := strings.ToLower(pools[i].Protocol)
		trust, ok := trustBySlug[slug]
		if !ok {
			var profile *types.ProtocolProfile
			if p, found := profiles[slug]; found {
				profile = &p
			}
			trust = analyzer.ProtocolTrustScore(profile, params, now)
			trustBySlug[slug] = trust
		}
		if _, found := profiles[slug]; !found {
			unprofiled++
		}
		pools[i].ProtocolTrustScore = trust
		pools[i].TvlChangeUnknown = true

		// --- 3. Status overrides ---
		if o, found := c.overrides[slug]; found {
			pools[i].Status = o.Status
			pools[i].ProtocolAlert = o.Message
		}
	}

	// --- 4. Charts for held pools ---
	wanted := make(map[string]bool, len(held))
	for _, id := range held {
		wanted[id] = true
	}
	var enriched, measured int
	sigmas := make(map[string]float64)
	for i := range pools {
		if !wanted[pools[i].ID] {
			continue
		}
		points, err := c.charts.FetchChart(ctx, pools[i].ID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			collectorLogger.Warn().Err(err).Str("poolID", pools[i].ID).Msg("Chart unavailable, keeping listed values")
		} else {
			pools[i] = ApplyChart(pools[i], points)
			enriched++
		}

		// --- 5. Asset volatility for held pools ---
		sigma, err := c.poolVolatility(ctx, pools[i], sigmas)
		if err != nil {
			return nil, err
		}
		if sigma > 0 {
			pools[i].AssetVolatility = sigma
			measured++
		}
	}

	collectorLogger.Info().
		Int("poolCount", len(pools)).
		Int("protocolProfiles", len(profiles)).
		Int("poolsWithoutProfile", unprofiled).
		Int("chartsApplied", enriched).
		Int("volatilityMeasured", measured).
		Dur("duration", time.Since(start)).
		Msgf("Catalog collected from %d protocols", len(trustBySlug))

	return pools, nil
}

// poolVolatility returns the highest annualized volatility across the pool's non-stable assets, or 0
// when the pool is a stablecoin pool, prices are disabled, or any volatile asset cannot be measured.
// sigmas memoizes results per feed for the current cycle, with -1 marking a failed feed.
func (c *Collector) poolVolatility(ctx context.Context, pool types.PoolSnapshot, sigmas map[string]float64) (float64, error) {
	if c.prices == nil || pool.Stablecoin {
		return 0, nil
	}

	var highest float64
	for _, asset := range config.SymbolAssets(pool.Symbol) {
		if config.StablecoinSymbols[asset] {
			continue
		}
		feed, ok := config.PriceFeedFor(asset)
		if !ok {
			collectorLogger.Debug().Str("poolID", pool.ID).Str("asset", asset).Msg("No price feed for asset, using exposure table")
			return 0, nil
		}

		sigma, seen := sigmas[feed]
		if !seen {
			sigma = c.feedVolatility(ctx, feed)
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			sigmas[feed] = sigma
		}
		if sigma < 0 {
			return 0, nil
		}
		highest = math.Max(highest, sigma)
	}
	return highest, nil
}

func (c *Collector) feedVolatility(ctx context.Context, feed string) float64 {
	prices, err := c.prices.FetchHourlyPrices(ctx, feed)
	if err != nil {
		collectorLogger.Warn().Err(err).Str("feed", feed).Msg("Price history unavailable, using exposure table")
		return -1
	}
	sigma, err := analyzer.CalculateVolatility(prices, analyzer.HOURLY_ANNUALIZATION_FACTOR)
	if err != nil {
		collectorLogger.Warn().Err(err).Str("feed", feed).Msg("Volatility calculation failed, using exposure table")
		return -1
	}
	collectorLogger.Debug().Str("feed", feed).Float64("annualizedVolatility", sigma).Msg("Asset volatility measured")
	return sigma
}
