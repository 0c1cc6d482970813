package datafetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/elys-network/curate/internal/analyzer"
	"github.com/elys-network/curate/internal/config"
	"github.com/elys-network/curate/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const poolsBody = `{
  "status": "success",
  "data": [
    {"pool": "a", "project": "aave-v3", "chain": "Ethereum", "symbol": "USDC", "tvlUsd": 5000000,
     "apy": 4.5, "apyBase": 4.0, "apyReward": 0.5, "apyMean30d": 4.2, "stablecoin": true, "ilRisk": "no", "exposure": "single"},
    {"pool": "b", "project": "uniswap-v3", "chain": "ethereum", "symbol": "WETH-USDC", "tvlUsd": 2000000,
     "apy": null, "apyBase": 10, "apyReward": null, "stablecoin": false, "ilRisk": "yes", "exposure": "multi"},
    {"pool": "c", "project": "gmx", "chain": "Arbitrum", "symbol": "GLP", "tvlUsd": 9000000, "apy": 12, "ilRisk": "no"},
    {"pool": "d", "project": "aave-v3", "chain": "Ethereum", "symbol": "DAI", "tvlUsd": 50000, "apy": 3, "ilRisk": "no"},
    {"pool": "", "project": "broken", "chain": "Ethereum", "symbol": "X", "tvlUsd": 1000000, "apy": 3},
    {"pool": "e", "project": "broken", "chain": "Ethereum", "symbol": "X", "tvlUsd": -5, "apy": 3},
    {"pool": "a", "project": "aave-v3", "chain": "Ethereum", "symbol": "USDC", "tvlUsd": 5000000, "apy": 9}
  ]
}`

const protocolsBody = `[
  {"name": "Aave V3", "slug": "aave-v3", "audits": "2", "listedAt": 1577836800},
  {"name": "GMX", "slug": "gmx", "audits": 1, "listedAt": null},
  {"name": "Nameless", "slug": "", "audits": "3"}
]`

const chartBody = `{
  "status": "success",
  "data": [
    {"timestamp": "2026-03-01T00:00:00.000Z", "tvlUsd": 2500000, "apy": 8},
    {"timestamp": "2026-03-02T00:00:00.000Z", "tvlUsd": 2500000, "apy": 12},
    {"timestamp": "2026-03-03T00:00:00.000Z", "tvlUsd": 2000000, "apy": 10}
  ]
}`

type fakeAPI struct {
	server        *httptest.Server
	poolHits      atomic.Int32
	protocolHits  atomic.Int32
	chartHits     atomic.Int32
	priceHits     atomic.Int32
	failPoolsOnce atomic.Bool
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	api := &fakeAPI{}
	mux := http.NewServeMux()
	mux.HandleFunc("/pools", func(w http.ResponseWriter, r *http.Request) {
		api.poolHits.Add(1)
		if api.failPoolsOnce.CompareAndSwap(true, false) {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(poolsBody))
	})
	mux.HandleFunc("/protocols", func(w http.ResponseWriter, r *http.Request) {
		api.protocolHits.Add(1)
		_, _ = w.Write([]byte(protocolsBody))
	})
	mux.HandleFunc("/chart/b", func(w http.ResponseWriter, r *http.Request) {
		api.chartHits.Add(1)
		_, _ = w.Write([]byte(chartBody))
	})
	mux.HandleFunc("/coins/chart/", func(w http.ResponseWriter, r *http.Request) {
		api.priceHits.Add(1)
		feed := strings.TrimPrefix(r.URL.Path, "/coins/chart/")
		if feed != "coingecko:ethereum" || r.URL.Query().Get("period") != "1h" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(priceChart(feed, 200))
	})
	api.server = httptest.NewServer(mux)
	t.Cleanup(api.server.Close)
	return api
}

// priceChart builds an hourly series alternating between 100 and 101.
func priceChart(feed string, n int) map[string]any {
	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	prices := make([]map[string]any, n)
	for i := range prices {
		price := 100.0
		if i%2 == 1 {
			price = 101
		}
		prices[i] = map[string]any{"timestamp": start.Add(time.Duration(i) * time.Hour).Unix(), "price": price}
	}
	return map[string]any{"coins": map[string]any{feed: map[string]any{"symbol": "ETH", "prices": prices}}}
}

func TestFetchPools_MapsAndFilters(t *testing.T) {
	api := newFakeAPI(t)
	retriever := NewPoolRetriever(api.server.URL, nil, time.Millisecond)

	pools, err := retriever.FetchPools(context.Background(), CatalogFilter{MinTvlUsd: 100_000, Chains: []string{"Ethereum"}})
	require.NoError(t, err)
	require.Len(t, pools, 2)

	a := pools[0]
	assert.Equal(t, "a", a.ID)
	assert.Equal(t, "aave-v3", a.Protocol)
	assert.Equal(t, 4.5, a.Apy)
	assert.Equal(t, 0.5, a.ApyReward)
	assert.Equal(t, 4.2, a.ApyMean30d)
	assert.True(t, a.Stablecoin)
	assert.Equal(t, types.ILRiskNone, a.ILRisk)
	assert.Equal(t, types.ExposureSingle, a.Exposure)
	assert.Equal(t, types.PoolStatusActive, a.Status)
	assert.False(t, a.IsScored())

	b := pools[1]
	assert.Equal(t, "b", b.ID)
	assert.Equal(t, 10.0, b.Apy, "apy is filled from base + reward")
	assert.Equal(t, types.ILRiskMedium, b.ILRisk, "one stable leg")
	assert.False(t, b.Stablecoin)
}

func TestFetchPools_RetriesTransientFailures(t *testing.T) {
	api := newFakeAPI(t)
	api.failPoolsOnce.Store(true)
	retriever := NewPoolRetriever(api.server.URL, nil, time.Millisecond)

	pools, err := retriever.FetchPools(context.Background(), CatalogFilter{})
	require.NoError(t, err)
	assert.Len(t, pools, 4)
	assert.Equal(t, int32(2), api.poolHits.Load())
}

func TestFetchPools_ClientErrorsAreNotRetried(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewPoolRetriever(server.URL, nil, time.Millisecond).FetchPools(context.Background(), CatalogFilter{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAPIResponseInvalid)
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetchPools_ServerErrorsExhaustRetries(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewPoolRetriever(server.URL, nil, time.Millisecond).FetchPools(context.Background(), CatalogFilter{})
	assert.ErrorIs(t, err, ErrAPIResponseInvalid)
	assert.Equal(t, int32(MAX_RETRIES), hits.Load())
}

func TestFetchPools_RejectsErrorStatusAndEmptyResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status": "error", "data": []}`))
	}))
	defer server.Close()

	_, err := NewPoolRetriever(server.URL, nil, time.Millisecond).FetchPools(context.Background(), CatalogFilter{})
	assert.ErrorIs(t, err, ErrAPIResponseInvalid)

	api := newFakeAPI(t)
	_, err = NewPoolRetriever(api.server.URL, nil, time.Millisecond).FetchPools(context.Background(), CatalogFilter{MinTvlUsd: 1e12})
	assert.ErrorIs(t, err, ErrNoPools)
}

func TestMapILRisk(t *testing.T) {
	tests := []struct {
		flag     string
		exposure types.Exposure
		stable   bool
		symbol   string
		want     types.ILRisk
	}{
		{"no", types.ExposureMulti, false, "WETH-WBTC", types.ILRiskNone},
		{"yes", types.ExposureMulti, true, "USDC-DAI", types.ILRiskLow},
		{"yes", types.ExposureSingle, false, "WETH", types.ILRiskLow},
		{"yes", types.ExposureMulti, false, "WETH-USDC", types.ILRiskMedium},
		{"yes", types.ExposureMulti, false, "WETH-WBTC", types.ILRiskHigh},
		{"", types.ExposureSingle, false, "WETH", types.ILRiskNone},
		{"", "", true, "USDC-USDT", types.ILRiskLow},
		{"", "", false, "WETH-WBTC", types.ILRiskMedium},
	}
	for _, tt := range tests {
		t.Run(tt.flag+"/"+string(tt.exposure)+"/"+tt.symbol, func(t *testing.T) {
			assert.Equal(t, tt.want, mapILRisk(tt.flag, tt.exposure, tt.stable, tt.symbol))
		})
	}
}

func TestFetchProtocols_ParsesAndCaches(t *testing.T) {
	api := newFakeAPI(t)
	cache, err := NewCache(time.Hour)
	require.NoError(t, err)
	defer cache.Close()

	retriever := NewProtocolRetriever(api.server.URL, nil, time.Millisecond, cache,
		map[string]types.UpgradeAuthority{"aave-v3": types.UpgradeAuthorityTimelock})

	profiles, err := retriever.FetchProtocols(context.Background())
	require.NoError(t, err)
	require.Len(t, profiles, 2)

	aave := profiles["aave-v3"]
	assert.Equal(t, 2, aave.AuditCount)
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), aave.ListedAt)
	assert.Equal(t, types.UpgradeAuthorityTimelock, aave.UpgradeAuthority)

	gmx := profiles["gmx"]
	assert.Equal(t, 1, gmx.AuditCount)
	assert.True(t, gmx.ListedAt.IsZero())
	assert.Equal(t, types.UpgradeAuthorityUnknown, gmx.UpgradeAuthority)

	_, err = retriever.FetchProtocols(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), api.protocolHits.Load(), "second call is served from cache")
}

func TestFetchChart_ValidatesOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status": "success", "data": [
			{"timestamp": "2026-03-02T00:00:00Z", "tvlUsd": 1, "apy": 1},
			{"timestamp": "2026-03-01T00:00:00Z", "tvlUsd": 1, "apy": 1}]}`))
	}))
	defer server.Close()

	_, err := NewPoolChart(server.URL, nil, time.Millisecond, nil).FetchChart(context.Background(), "x")
	assert.ErrorIs(t, err, ErrAPIResponseInvalid)
}

func TestFetchChart_RequiresTwoPoints(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status": "success", "data": [{"timestamp": "2026-03-02T00:00:00Z", "tvlUsd": 1, "apy": 1}]}`))
	}))
	defer server.Close()

	_, err := NewPoolChart(server.URL, nil, time.Millisecond, nil).FetchChart(context.Background(), "x")
	assert.ErrorIs(t, err, ErrInsufficientChartData)
}

func TestApplyChart(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC) }
	points := []types.ApyPoint{
		{Timestamp: day(1), TvlUsd: 2_500_000, Apy: 8},
		{Timestamp: day(2), TvlUsd: 2_500_000, Apy: 12},
		{Timestamp: day(3), TvlUsd: 2_000_000, Apy: 10},
	}

	pool := ApplyChart(types.PoolSnapshot{ID: "b", TvlChangeUnknown: true}, points)
	assert.Equal(t, -20.0, pool.TvlChange24hPercent)
	assert.False(t, pool.TvlChangeUnknown)
	assert.InDelta(t, 10.0, pool.ApyMean30d, 1e-9)

	reported := ApplyChart(types.PoolSnapshot{ID: "b", ApyMean30d: 7}, points)
	assert.Equal(t, 7.0, reported.ApyMean30d, "a reported mean is kept")

	single := ApplyChart(types.PoolSnapshot{ID: "b", TvlChangeUnknown: true}, points[:1])
	assert.Zero(t, single.TvlChange24hPercent)
	assert.True(t, single.TvlChangeUnknown)
}

func TestCollector_FetchCatalog(t *testing.T) {
	api := newFakeAPI(t)
	cache, err := NewCache(time.Hour)
	require.NoError(t, err)
	defer cache.Close()

	collector := NewCollector(CollectorOptions{
		YieldsAPI:    api.server.URL,
		ProtocolsAPI: api.server.URL,
		Filter:       CatalogFilter{MinTvlUsd: 100_000},
		StatusOverrides: map[string]config.ProtocolStatusOverride{
			"GMX": {Status: types.PoolStatusWarning, Message: "Oracle incident under investigation"},
		},
		UpgradeAuthority: map[string]types.UpgradeAuthority{"aave-v3": types.UpgradeAuthorityTimelock},
		RetryDelay:       time.Millisecond,
		Cache:            cache,
	})

	params := config.DefaultEngineParameters
	pools, err := collector.FetchCatalog(context.Background(), params, []string{"b", "missing"})
	require.NoError(t, err)
	require.Len(t, pools, 3)

	byID := map[string]types.PoolSnapshot{}
	for _, p := range pools {
		byID[p.ID] = p
	}

	// 2 audits, full age credit and a timelock
	assert.InDelta(t, 80.0, byID["a"].ProtocolTrustScore, 1e-9)
	assert.Equal(t, params.DefaultProtocolTrust, byID["b"].ProtocolTrustScore, "no profile for uniswap-v3")

	assert.Equal(t, types.PoolStatusWarning, byID["c"].Status)
	assert.Equal(t, "Oracle incident under investigation", byID["c"].ProtocolAlert)

	assert.Equal(t, -20.0, byID["b"].TvlChange24hPercent)
	assert.Zero(t, byID["a"].TvlChange24hPercent, "charts are only pulled for held pools")
	assert.Equal(t, int32(1), api.chartHits.Load())
}

func TestCollector_ProtocolOutageFallsBackToDefaultTrust(t *testing.T) {
	var poolHits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/pools" {
			poolHits.Add(1)
			_, _ = w.Write([]byte(poolsBody))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	collector := NewCollector(CollectorOptions{YieldsAPI: server.URL, ProtocolsAPI: server.URL, RetryDelay: time.Millisecond})
	pools, err := collector.FetchCatalog(context.Background(), config.DefaultEngineParameters, nil)
	require.NoError(t, err)
	for _, p := range pools {
		assert.Equal(t, config.DefaultEngineParameters.DefaultProtocolTrust, p.ProtocolTrustScore)
	}
	assert.Equal(t, int32(1), poolHits.Load())
}

func TestFetchHourlyPrices_ParsesAndCaches(t *testing.T) {
	api := newFakeAPI(t)
	cache, err := NewCache(time.Hour)
	require.NoError(t, err)
	defer cache.Close()

	retriever := NewPriceRetriever(api.server.URL+"/coins", nil, time.Millisecond, cache)
	prices, err := retriever.FetchHourlyPrices(context.Background(), "coingecko:ethereum")
	require.NoError(t, err)
	require.Len(t, prices, 200)
	assert.Equal(t, 100.0, prices[0].Price)
	assert.Equal(t, time.Hour, prices[1].Timestamp.Sub(prices[0].Timestamp))

	_, err = retriever.FetchHourlyPrices(context.Background(), "coingecko:ethereum")
	require.NoError(t, err)
	assert.Equal(t, int32(1), api.priceHits.Load(), "second call is served from cache")
}

func TestFetchHourlyPrices_RejectsShortSeries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(priceChart("coingecko:ethereum", MIN_PRICE_POINTS-1))
	}))
	defer server.Close()

	_, err := NewPriceRetriever(server.URL, nil, time.Millisecond, nil).FetchHourlyPrices(context.Background(), "coingecko:ethereum")
	assert.ErrorIs(t, err, ErrInsufficientPriceHistory)
}

func TestFetchHourlyPrices_MissingFeedInResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(priceChart("coingecko:bitcoin", MIN_PRICE_POINTS))
	}))
	defer server.Close()

	_, err := NewPriceRetriever(server.URL, nil, time.Millisecond, nil).FetchHourlyPrices(context.Background(), "coingecko:ethereum")
	assert.ErrorIs(t, err, ErrAPIResponseInvalid)
}

func TestCollector_AttachesMeasuredVolatilityToHeldPools(t *testing.T) {
	api := newFakeAPI(t)
	cache, err := NewCache(time.Hour)
	require.NoError(t, err)
	defer cache.Close()

	collector := NewCollector(CollectorOptions{
		YieldsAPI:    api.server.URL,
		ProtocolsAPI: api.server.URL,
		PricesAPI:    api.server.URL + "/coins",
		Filter:       CatalogFilter{MinTvlUsd: 100_000},
		RetryDelay:   time.Millisecond,
		Cache:        cache,
	})

	params := config.DefaultEngineParameters
	pools, err := collector.FetchCatalog(context.Background(), params, []string{"a", "b", "c"})
	require.NoError(t, err)

	byID := map[string]types.PoolSnapshot{}
	for _, p := range pools {
		byID[p.ID] = p
	}

	// WETH-USDC: only the WETH leg is measured, 199 returns of +/-ln(1.01)
	b := byID["b"]
	assert.InDelta(t, 0.934, b.AssetVolatility, 0.01)
	measured, err := analyzer.CalculateAssetVolatilityRisk(b, params)
	require.NoError(t, err)
	assert.NotEqual(t, params.MultiExposureVolatilityScore, measured)
	assert.InDelta(t, 100*b.AssetVolatility/params.VolatilityCeiling, measured, 1e-9)

	b.AssetVolatility = 0
	fallback, err := analyzer.CalculateAssetVolatilityRisk(b, params)
	require.NoError(t, err)
	assert.Equal(t, params.MultiExposureVolatilityScore, fallback)

	assert.Zero(t, byID["a"].AssetVolatility, "stablecoin pools are not measured")
	assert.Zero(t, byID["c"].AssetVolatility, "GLP has no price feed")
	assert.Equal(t, int32(1), api.priceHits.Load())

	_, err = collector.FetchCatalog(context.Background(), params, []string{"b"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), api.priceHits.Load(), "prices are served from cache on the next cycle")
}

func TestCollector_FlagsPoolsWithoutTvlHistory(t *testing.T) {
	api := newFakeAPI(t)
	collector := NewCollector(CollectorOptions{
		YieldsAPI:    api.server.URL,
		ProtocolsAPI: api.server.URL,
		Filter:       CatalogFilter{MinTvlUsd: 100_000},
		RetryDelay:   time.Millisecond,
	})

	pools, err := collector.FetchCatalog(context.Background(), config.DefaultEngineParameters, []string{"b", "c"})
	require.NoError(t, err)

	byID := map[string]types.PoolSnapshot{}
	for _, p := range pools {
		byID[p.ID] = p
	}
	assert.False(t, byID["b"].TvlChangeUnknown, "chart applied")
	assert.True(t, byID["c"].TvlChangeUnknown, "no chart for c")
	assert.True(t, byID["a"].TvlChangeUnknown, "pools outside portfolios are never charted")
}
