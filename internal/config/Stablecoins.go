/*
The yields API flags stablecoin pools, but not every source does.

This file contains the symbols treated as USD stablecoins when the source omits the flag.
A pool is a stablecoin pool only when every asset in its symbol is listed here.

Keep this up to date when new stables gain meaningful TVL. It can be extended from the parameters file.

*/

package config

import "strings"

var (
	StablecoinSymbols = map[string]bool{
		"USDC":   true,
		"USDT":   true,
		"DAI":    true,
		"USDS":   true,
		"FRAX":   true,
		"LUSD":   true,
		"GHO":    true,
		"PYUSD":  true,
		"USDE":   true,
		"SUSDE":  true,
		"CRVUSD": true,
		"TUSD":   true,
		"USDC.E": true,
		"USDBC":  true,
		"USD0":   true,
		"FDUSD":  true,

		"USDC.AXL": true, // Bridged variants still count
	}
)

// SymbolAssets splits a pool symbol such as "USDC-WETH" into its upper-cased assets.
func SymbolAssets(symbol string) []string {
	return strings.FieldsFunc(strings.ToUpper(symbol), func(r rune) bool {
		return r == '-' || r == '/' || r == '+' || r == ' '
	})
}

// IsStablecoinSymbol reports whether every asset of a pool symbol such as "USDC-DAI" is a known stablecoin.
func IsStablecoinSymbol(symbol string) bool {
	parts := SymbolAssets(symbol)
	if len(parts) == 0 {
		return false
	}
	for _, p := range parts {
		if !StablecoinSymbols[p] {
			return false
		}
	}
	return true
}

// HasStablecoinAsset reports whether at least one asset of the symbol is a known stablecoin.
func HasStablecoinAsset(symbol string) bool {
	for _, p := range SymbolAssets(symbol) {
		if StablecoinSymbols[p] {
			return true
		}
	}
	return false
}
