package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// LogLevel is the zerolog level name (debug, info, warn, error).
	LogLevel string

	// WebPort is the port the HTTP API listens on.
	WebPort string

	// CuratorInterval is the time between monitoring cycles.
	CuratorInterval time.Duration

	// CatalogMinTvlUsd drops pools below this TVL from the catalog.
	CatalogMinTvlUsd float64
	// CatalogChains restricts the catalog to these chains. Empty means all chains.
	CatalogChains []string

	// TelegramBotToken enables notifications when set.
	TelegramBotToken string
	// TelegramChatID is the chat notifications are sent to.
	TelegramChatID int64

	// EngineParametersFile is an optional YAML file overriding the default engine parameters.
	EngineParametersFile string
)

const (
	defaultWebPort          = "8080"
	defaultCuratorInterval  = 15 * time.Minute
	defaultCatalogMinTvlUsd = 100_000
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// Endpoint variables are required, everything else falls back to a default.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	WebPort = getEnvOrDefault("WEB_PORT", defaultWebPort)

	CuratorInterval, err = getEnvAsDuration("CURATOR_INTERVAL", defaultCuratorInterval)
	if err != nil {
		return err
	}
	if CuratorInterval < time.Minute {
		return errors.New("environment variable CURATOR_INTERVAL must be at least 1m")
	}

	CatalogMinTvlUsd, err = getEnvAsFloat64OrDefault("CATALOG_MIN_TVL_USD", defaultCatalogMinTvlUsd)
	if err != nil {
		return err
	}
	if CatalogMinTvlUsd < 0 {
		return errors.New("environment variable CATALOG_MIN_TVL_USD cannot be negative")
	}

	CatalogChains = splitList(getEnvOrDefault("CATALOG_CHAINS", ""))

	TelegramBotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", "")
	if TelegramBotToken != "" {
		TelegramChatID, err = getEnvAsInt64("TELEGRAM_CHAT_ID")
		if err != nil {
			return err
		}
	}

	EngineParametersFile = getEnvOrDefault("ENGINE_PARAMETERS_FILE", "")

	// Load endpoint configuration
	if err := loadEndpointConfig(); err != nil {
		return err
	}

	log.Debug().
		Str("WebPort", WebPort).
		Dur("CuratorInterval", CuratorInterval).
		Float64("CatalogMinTvlUsd", CatalogMinTvlUsd).
		Strs("CatalogChains", CatalogChains).
		Bool("TelegramEnabled", TelegramBotToken != "").
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvOrDefault retrieves a string environment variable, or the fallback when unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

// getEnvAsInt64 retrieves an environment variable as an int64. Returns error if not set or invalid.
func getEnvAsInt64(key string) (int64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid int64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsFloat64OrDefault retrieves an environment variable as a float64. Returns error if set but invalid.
func getEnvAsFloat64OrDefault(key string, fallback float64) (float64, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid float64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsDuration retrieves an environment variable as a time.Duration. Returns error if set but invalid.
func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid duration, got: " + valueStr)
	}
	return value, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
