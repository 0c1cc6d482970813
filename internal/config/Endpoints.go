package config

import (
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

// Endpoint configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// YieldsAPI is the base URL of the yields API serving /pools and /chart/{pool}.
	YieldsAPI string
	// ProtocolsAPI is the base URL of the API serving /protocols.
	ProtocolsAPI string
	// PricesAPI is the base URL of the coins API serving /chart/{feed}. Empty disables volatility measurement.
	PricesAPI string
)

const defaultPricesAPI = "https://coins.llama.fi"

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	var err error

	YieldsAPI, err = getEnv("YIELDS_API")
	if err != nil {
		return err
	}
	YieldsAPI = strings.TrimRight(YieldsAPI, "/")

	ProtocolsAPI, err = getEnv("PROTOCOLS_API")
	if err != nil {
		return err
	}
	ProtocolsAPI = strings.TrimRight(ProtocolsAPI, "/")

	// An explicitly empty PRICES_API turns measurement off
	PricesAPI = defaultPricesAPI
	if value, exists := os.LookupEnv("PRICES_API"); exists {
		PricesAPI = strings.TrimRight(strings.TrimSpace(value), "/")
	}

	log.Debug().
		Str("YieldsAPI", YieldsAPI).
		Str("ProtocolsAPI", ProtocolsAPI).
		Str("PricesAPI", PricesAPI).
		Msg("Endpoint configuration loaded successfully.")

	return nil
}
