package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("YIELDS_API", "https://yields.llama.fi/")
	t.Setenv("PROTOCOLS_API", "https://api.llama.fi")
	t.Setenv("CURATOR_INTERVAL", "")
	t.Setenv("WEB_PORT", "")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("CATALOG_CHAINS", "Ethereum, Arbitrum,,")

	require.NoError(t, LoadConfig())
	assert.Equal(t, "https://yields.llama.fi", YieldsAPI)
	assert.Equal(t, defaultWebPort, WebPort)
	assert.Equal(t, defaultCuratorInterval, CuratorInterval)
	assert.Equal(t, []string{"Ethereum", "Arbitrum"}, CatalogChains)
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Run("interval below one minute", func(t *testing.T) {
		t.Setenv("YIELDS_API", "https://yields.llama.fi")
		t.Setenv("PROTOCOLS_API", "https://api.llama.fi")
		t.Setenv("CURATOR_INTERVAL", "30s")
		err := LoadConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "CURATOR_INTERVAL")
	})

	t.Run("telegram token without chat", func(t *testing.T) {
		t.Setenv("YIELDS_API", "https://yields.llama.fi")
		t.Setenv("PROTOCOLS_API", "https://api.llama.fi")
		t.Setenv("CURATOR_INTERVAL", "5m")
		t.Setenv("TELEGRAM_BOT_TOKEN", "token")
		t.Setenv("TELEGRAM_CHAT_ID", "not-a-number")
		err := LoadConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "TELEGRAM_CHAT_ID")
	})

	t.Run("valid interval", func(t *testing.T) {
		t.Setenv("YIELDS_API", "https://yields.llama.fi")
		t.Setenv("PROTOCOLS_API", "https://api.llama.fi")
		t.Setenv("CURATOR_INTERVAL", "5m")
		t.Setenv("TELEGRAM_BOT_TOKEN", "")
		require.NoError(t, LoadConfig())
		assert.Equal(t, 5*time.Minute, CuratorInterval)
	})
}

func TestLoadConfig_PricesAPI(t *testing.T) {
	t.Setenv("YIELDS_API", "https://yields.llama.fi")
	t.Setenv("PROTOCOLS_API", "https://api.llama.fi")
	t.Setenv("CURATOR_INTERVAL", "")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")

	t.Setenv("PRICES_API", "https://coins.llama.fi/")
	require.NoError(t, LoadConfig())
	assert.Equal(t, "https://coins.llama.fi", PricesAPI)

	t.Setenv("PRICES_API", "")
	require.NoError(t, LoadConfig())
	assert.Empty(t, PricesAPI, "an empty value disables volatility measurement")
}

func TestPriceFeedFor(t *testing.T) {
	feed, ok := PriceFeedFor(" weth ")
	require.True(t, ok)
	assert.Equal(t, "coingecko:ethereum", feed)

	feed, ok = PriceFeedFor("WBTC")
	require.True(t, ok)
	assert.Equal(t, "coingecko:wrapped-bitcoin", feed)

	_, ok = PriceFeedFor("GLP")
	assert.False(t, ok)

	for symbol := range SymbolToPriceFeed {
		assert.False(t, StablecoinSymbols[symbol], "%s is a stablecoin and needs no feed", symbol)
	}
}
