package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"market-data-service/src/config"
	"market-data-service/src/logger"
	"market-data-service/src/pages"
	"market-data-service/src/server"
	"market-data-service/src/storage"
	"market-data-service/src/streaming"

	"github.com/joho/godotenv"
)

// -----------------------------------------------------------------------------

func main() {

	// Parse command line flags
	configPath := flag.String("config", "../../config/default.yaml", "path to config file")
	flag.Parse()

	// Optional .env for local overrides (DB credentials etc.)
	_ = godotenv.Load()

	// Load config from YAML file
	config, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	appLogger := logger.NewLogger(config.LogLevel, config.Name)

	// 2. Setup Storage
	var backend *storage.SQLBackend

	switch config.Storage.DBType {
	case "postgres":
		backend, err = storage.NewPostgresBackend(config.MConfig, appLogger)
	default:
		// Default to SQLite
		backend, err = storage.NewSQLiteBackend(config.MConfig, appLogger)
	}

	if err != nil {
		appLogger.Critical("Failed to init storage: %v", err)
	}
	if err := backend.Initialize(); err != nil {
		appLogger.Critical("Failed to migrate storage: %v", err)
	}
	defer backend.Close()

	// 3. Per-type stores. Upstream fetchers and the live bridge are wired
	// by the embedding deployment; without them the service serves and
	// streams whatever storage already covers.
	fundingStore := &storage.FundingStore{Backend: backend, Logger: appLogger}
	oiStore := &storage.OpenInterestStore{Backend: backend, Logger: appLogger}
	premiumStore := &storage.PremiumStore{Backend: backend, Logger: appLogger}
	aggStore := &storage.AggTradeStore{Backend: backend, Logger: appLogger}
	appLogger.Warning("no exchange clients configured, serving from local storage only")

	// 4. Page manager + streaming coordinator
	manager := pages.NewManager(config, appLogger, pages.Deps{
		Backend:      backend,
		FundingStore: fundingStore,
		OIStore:      oiStore,
		PremiumStore: premiumStore,
		AggStore:     aggStore,
	})
	manager.Start()
	defer manager.Stop()

	streams := streaming.NewCoordinator(config, appLogger, backend, aggStore)
	defer streams.Stop()

	// 5. WebSocket server
	srv := server.NewServer(config, appLogger, manager, streams)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		appLogger.Critical("Server failed: %v", err)
	case <-quit:
		appLogger.Info("Shutting down...")
		srv.Stop()
	}
}
