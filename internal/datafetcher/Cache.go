package datafetcher

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/elys-network/curate/internal/types"
)

const (
	protocolsCacheKey = "protocols"
	chartKeyPrefix    = "chart:"
	pricesKeyPrefix   = "prices:"
)

// Cache keeps protocol profiles, pool charts and price histories between monitoring cycles.
// They change slowly compared to pool APYs, which are always fetched fresh.
// A nil *Cache disables caching.
type Cache struct {
	store *ristretto.Cache
	ttl   time.Duration
}

// NewCache creates a cache whose entries expire after ttl.
func NewCache(ttl time.Duration) (*Cache, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("cache TTL must be positive, got %s", ttl)
	}
	store, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100_000,
		MaxCost:     10_000_000, // cost is counted in records
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	return &Cache{store: store, ttl: ttl}, nil
}

func (c *Cache) Protocols() (map[string]types.ProtocolProfile, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.store.Get(protocolsCacheKey)
	if !ok {
		return nil, false
	}
	profiles, ok := v.(map[string]types.ProtocolProfile)
	return profiles, ok
}

func (c *Cache) SetProtocols(profiles map[string]types.ProtocolProfile) {
	if c == nil {
		return
	}
	c.store.SetWithTTL(protocolsCacheKey, profiles, int64(len(profiles))+1, c.ttl)
	c.store.Wait()
}

func (c *Cache) Chart(poolID string) ([]types.ApyPoint, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.store.Get(chartKeyPrefix + poolID)
	if !ok {
		return nil, false
	}
	points, ok := v.([]types.ApyPoint)
	return points, ok
}

func (c *Cache) SetChart(poolID string, points []types.ApyPoint) {
	if c == nil {
		return
	}
	c.store.SetWithTTL(chartKeyPrefix+poolID, points, int64(len(points))+1, c.ttl)
	c.store.Wait()
}

func (c *Cache) Prices(feedID string) ([]types.PriceData, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.store.Get(pricesKeyPrefix + feedID)
	if !ok {
		return nil, false
	}
	prices, ok := v.([]types.PriceData)
	return prices, ok
}

func (c *Cache) SetPrices(feedID string, prices []types.PriceData) {
	if c == nil {
		return
	}
	c.store.SetWithTTL(pricesKeyPrefix+feedID, prices, int64(len(prices))+1, c.ttl)
	c.store.Wait()
}

// Close stops the cache's background goroutines.
func (c *Cache) Close() {
	if c == nil {
		return
	}
	c.store.Close()
}
