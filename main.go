package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up

	"github.com/jravi291980-star/ravinderalgo/config"
	"github.com/jravi291980-star/ravinderalgo/internal/adapters/dhan"
	"github.com/jravi291980-star/ravinderalgo/internal/adapters/logger"
	"github.com/jravi291980-star/ravinderalgo/internal/adapters/redisstore"
	"github.com/jravi291980-star/ravinderalgo/internal/adapters/sqlite"
	"github.com/jravi291980-star/ravinderalgo/internal/engine"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath:   cfg.DBPath,
		Logger:   appLogger,
		Timezone: cfg.Timezone,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err) // Also log to stderr
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()
	appLogger.Info(context.Background(), "Database repository initialized")

	// 4. Initialize Redis Store (counters, reference data, event streams)
	store, err := redisstore.New(context.Background(), redisstore.Config{
		URL:           cfg.RedisURL,
		Logger:        appLogger,
		ConsumerGroup: cfg.ConsumerGroup,
		ConsumerName:  cfg.ConsumerName,
		StreamTicks:   cfg.StreamTicks,
		StreamCandles: cfg.StreamCandles,
		StreamOrders:  cfg.StreamOrders,
		StreamControl: cfg.StreamControl,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Redis store")
		log.Fatalf("FATAL: Failed to initialize Redis store: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing Redis store")
		}
	}()
	appLogger.Info(context.Background(), "Redis store initialized")

	// 5. Initialize Broker Client (Dhan Adapter)
	// The session token rotates daily; prefer the one the dashboard published.
	token := cfg.DhanAccessToken
	if stored, terr := store.AccessToken(context.Background()); terr == nil && stored != "" {
		token = stored
	}
	brokerClient, err := dhan.New(dhan.Config{
		BaseURL:     cfg.DhanBaseURL,
		ClientID:    cfg.DhanClientID,
		AccessToken: token,
		Logger:      appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Dhan client")
		log.Fatalf("FATAL: Failed to initialize Dhan client: %v", err)
	}
	appLogger.Info(context.Background(), "Dhan client initialized")

	// 6. Initialize Engine
	eng, err := engine.New(engine.Config{
		Logger:          appLogger,
		Feed:            store,
		Repo:            repo,
		ParamsRepo:      repo,
		Broker:          brokerClient,
		Counters:        store,
		RefData:         store,
		Status:          store,
		Symbols:         cfg.Watchlist,
		Timezone:        cfg.Timezone,
		PollBlock:       cfg.PollBlock,
		PollBatch:       cfg.PollBatch,
		MonitorInterval: cfg.MonitorInterval,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize engine")
		log.Fatalf("FATAL: Failed to initialize engine: %v", err)
	}
	appLogger.Info(context.Background(), "Engine initialized")

	// 7. Start the Engine
	// Use context.Background() as the base context for the application run
	if err := eng.Start(context.Background()); err != nil {
		appLogger.Error(context.Background(), err, "Engine exited with error")
		log.Fatalf("FATAL: Engine exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
