package analyzer

import (
	"testing"
	"time"

	"github.com/elys-network/curate/internal/config"
	"github.com/elys-network/curate/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarketApyDistribution(t *testing.T) {
	pools := []types.PoolSnapshot{
		{ID: "a", Apy: 4, TvlUsd: 1_000_000},
		{ID: "b", Apy: 8, TvlUsd: 1_000_000},
		{ID: "ignored-zero-apy", Apy: 0, TvlUsd: 5_000_000},
		{ID: "ignored-empty", Apy: 50, TvlUsd: 0},
	}
	dist, err := MarketApyDistribution(pools)
	require.NoError(t, err)
	assert.Equal(t, 2, dist.Samples)
	assert.InDelta(t, 6.0, dist.MeanApy, 1e-9)
	assert.InDelta(t, 2.0, dist.StdDevApy, 1e-3)
}

func TestMarketApyDistribution_InsufficientData(t *testing.T) {
	_, err := MarketApyDistribution(nil)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = MarketApyDistribution([]types.PoolSnapshot{{ID: "a", Apy: 5, TvlUsd: 1e6}})
	assert.ErrorIs(t, err, ErrInsufficientData)

	// No spread
	_, err = MarketApyDistribution([]types.PoolSnapshot{
		{ID: "a", Apy: 5, TvlUsd: 1e6},
		{ID: "b", Apy: 5, TvlUsd: 2e6},
	})
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestMarketApyDistribution_CapsOutliers(t *testing.T) {
	var pools []types.PoolSnapshot
	for i := 0; i < 100; i++ {
		apy := 4.0
		if i%2 == 1 {
			apy = 6.0
		}
		pools = append(pools, types.PoolSnapshot{ID: "bulk", Apy: apy, TvlUsd: 100_000_000})
	}
	pools = append(pools, types.PoolSnapshot{ID: "farm", Apy: 25_000, TvlUsd: 1_000_000})

	dist, err := MarketApyDistribution(pools)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, dist.MeanApy, 0.1)
	assert.Less(t, dist.StdDevApy, 2.0)
}

func TestProtocolTrustScore(t *testing.T) {
	params := config.DefaultEngineParameters
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, params.DefaultProtocolTrust, ProtocolTrustScore(nil, params, now))

	mid := &types.ProtocolProfile{
		Slug:             "mid",
		AuditCount:       2,
		ListedAt:         now.AddDate(0, 0, -365),
		UpgradeAuthority: types.UpgradeAuthorityMultisig,
	}
	// 2*15 + 365/730*35 + 10
	assert.InDelta(t, 57.5, ProtocolTrustScore(mid, params, now), 1e-9)

	veteran := &types.ProtocolProfile{
		Slug:             "veteran",
		AuditCount:       7,
		ListedAt:         now.AddDate(-4, 0, 0),
		UpgradeAuthority: types.UpgradeAuthorityImmutable,
	}
	assert.Equal(t, 100.0, ProtocolTrustScore(veteran, params, now))

	fresh := &types.ProtocolProfile{
		Slug:             "fresh",
		ListedAt:         now.Add(24 * time.Hour),
		UpgradeAuthority: types.UpgradeAuthorityEOA,
	}
	assert.Equal(t, 0.0, ProtocolTrustScore(fresh, params, now))

	unknown := &types.ProtocolProfile{Slug: "unknown", AuditCount: 1}
	assert.Equal(t, 20.0, ProtocolTrustScore(unknown, params, now))
}
