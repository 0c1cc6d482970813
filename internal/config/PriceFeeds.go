/*
The coins API is used for 30d hourly price data.

This file contains the mapping of pool asset symbols to their price feed ID on the coins API.
Wrapped and bridged variants share the feed of the underlying asset.

A symbol without an entry here gets no measured volatility, and the scorer falls back to the exposure table.
Keep this up to date when volatile assets gain meaningful TVL.

*/

package config

import "strings"

var (
	SymbolToPriceFeed = map[string]string{
		"ETH":     "coingecko:ethereum",
		"WETH":    "coingecko:ethereum",
		"STETH":   "coingecko:staked-ether",
		"WSTETH":  "coingecko:wrapped-steth",
		"RETH":    "coingecko:rocket-pool-eth",
		"WEETH":   "coingecko:wrapped-eeth",
		"BTC":     "coingecko:bitcoin",
		"WBTC":    "coingecko:wrapped-bitcoin",
		"CBBTC":   "coingecko:coinbase-wrapped-btc",
		"TBTC":    "coingecko:tbtc",
		"SOL":     "coingecko:solana",
		"JITOSOL": "coingecko:jito-staked-sol",
		"MSOL":    "coingecko:msol",
		"BNB":     "coingecko:binancecoin",
		"WBNB":    "coingecko:wbnb",
		"AVAX":    "coingecko:avalanche-2",
		"WAVAX":   "coingecko:wrapped-avax",
		"MATIC":   "coingecko:matic-network",
		"POL":     "coingecko:polygon-ecosystem-token",
		"ARB":     "coingecko:arbitrum",
		"OP":      "coingecko:optimism",
		"LINK":    "coingecko:chainlink",
		"UNI":     "coingecko:uniswap",
		"AAVE":    "coingecko:aave",
		"CRV":     "coingecko:curve-dao-token",
		"CVX":     "coingecko:convex-finance",
		"LDO":     "coingecko:lido-dao",
		"MKR":     "coingecko:maker",
		"GMX":     "coingecko:gmx",
		"PENDLE":  "coingecko:pendle",
		"ATOM":    "coingecko:cosmos",
		"OSMO":    "coingecko:osmosis",
		"TIA":     "coingecko:celestia",
		"PAXG":    "coingecko:pax-gold",

		"WRAPPED BITCOIN":  "coingecko:wrapped-bitcoin", // Some sources spell the asset out
		"WRAPPED ETHEREUM": "coingecko:ethereum",
	}
)

// PriceFeedFor returns the price feed ID of an asset symbol.
func PriceFeedFor(symbol string) (string, bool) {
	feed, ok := SymbolToPriceFeed[strings.ToUpper(strings.TrimSpace(symbol))]
	return feed, ok
}
