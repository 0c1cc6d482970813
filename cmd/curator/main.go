package main

import (
	"context"
	"os"
	"os/signal"
	"reflect"
	"strconv"
	"syscall"
	"time"

	"github.com/elys-network/curate/internal/config"
	"github.com/elys-network/curate/internal/curator"
	"github.com/elys-network/curate/internal/datafetcher"
	"github.com/elys-network/curate/internal/logger"
	"github.com/elys-network/curate/internal/notifier"
	"github.com/elys-network/curate/internal/state"
	"github.com/elys-network/curate/internal/types"
	"github.com/elys-network/curate/internal/web"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	CACHE_TTL              = time.Hour
	NOTIFY_MAX_RETRIES     = 3
	NOTIFY_RETRY_DELAY     = 2 * time.Second
	STARTUP_PARAMS_TIMEOUT = 30 * time.Second
)

// main is the entry point for the curator service.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(config.LogLevel)
	log.Info().Msg("Curator Risk Engine Starting...")

	engineFile, err := config.LoadEngineFile(config.EngineParametersFile)
	if err != nil {
		log.Fatal().Err(err).Str("path", config.EngineParametersFile).Msg("Failed to load engine parameters file")
	}
	engineFile.RegisterStablecoins()

	// Initialize Database Connection
	dbCfg := state.DBConfig{
		Host: os.Getenv("DB_HOST"), Port: mustAtoi(os.Getenv("DB_PORT"), 5432),
		User: os.Getenv("DB_USER"), Password: os.Getenv("DB_PASSWORD"),
		DBName: os.Getenv("DB_NAME"), SSLMode: os.Getenv("DB_SSLMODE"),
	}
	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer state.CloseDB()
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	// --- 2. Engine Parameters ---
	params, paramsID := loadEngineParameters(engineFile)
	log.Info().Int64("paramsID", paramsID).Msg("Engine parameters loaded successfully.")

	// --- 3. Catalog Collector ---
	cache, err := datafetcher.NewCache(CACHE_TTL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create catalog cache")
	}
	defer cache.Close()

	collector := datafetcher.NewCollector(datafetcher.CollectorOptions{
		YieldsAPI:    config.YieldsAPI,
		ProtocolsAPI: config.ProtocolsAPI,
		PricesAPI:    config.PricesAPI,
		Filter: datafetcher.CatalogFilter{
			MinTvlUsd: config.CatalogMinTvlUsd,
			Chains:    config.CatalogChains,
		},
		StatusOverrides:  engineFile.ProtocolStatus,
		UpgradeAuthority: engineFile.UpgradeAuthority,
		Cache:            cache,
	})

	// --- 4. Notifier (optional) ---
	var alerts curator.Notifier
	if config.TelegramBotToken != "" {
		tg, err := notifier.NewTelegram(config.TelegramBotToken, config.TelegramChatID, NOTIFY_MAX_RETRIES, NOTIFY_RETRY_DELAY)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Telegram notifier")
		}
		alerts = tg
		log.Info().Int64("chatID", config.TelegramChatID).Msg("Telegram notifications enabled")
	} else {
		log.Warn().Msg("TELEGRAM_BOT_TOKEN not set, notifications disabled")
	}

	// --- 5. Create Curator Instance with Dependency Injection ---
	curatorInstance, err := curator.NewCurator(curator.Config{
		Source:   collector,
		Store:    state.Store{},
		Notifier: alerts,
		Params:   params,
		ParamsID: paramsID,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create curator instance")
	}

	// --- Start Web Server ---
	webServer := web.NewWebServer(config.WebPort, curatorInstance, state.TestDBConnection)
	go func() {
		log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting curator HTTP API")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 6. Start Curator Main Loop ---
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	curatorInstance.RunLoop(ctx, config.CuratorInterval)
	log.Info().Msg("Curator stopped")
}

// loadEngineParameters returns the active parameters row. A parameters file that differs from the
// active row is saved as a new active version, and an empty table is seeded with the defaults.
func loadEngineParameters(file *config.EngineFile) (types.EngineParameters, int64) {
	ctx, cancel := context.WithTimeout(context.Background(), STARTUP_PARAMS_TIMEOUT)
	defer cancel()

	active, activeID, err := state.LoadActiveEngineParameters(ctx, curator.DEFAULT_PARAMETERS_CONFIG_NAME)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load active engine parameters, saving the configured ones.")
	}

	fileSet := config.EngineParametersFile != ""
	if err == nil && (!fileSet || reflect.DeepEqual(*active, file.Parameters)) {
		return *active, activeID
	}

	id, err := state.SaveEngineParameters(ctx, file.Parameters, curator.DEFAULT_PARAMETERS_CONFIG_NAME, true)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to save engine parameters.")
	}
	return file.Parameters, id
}

// Helper to convert string to int with a default value
func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}
