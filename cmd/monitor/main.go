// Package main provides the wallet monitor entry point: the monitoring
// engine plus the HTTP API in one process.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wallet-monitor/internal/adapter"
	"github.com/wallet-monitor/internal/alert"
	"github.com/wallet-monitor/internal/api"
	"github.com/wallet-monitor/internal/config"
	"github.com/wallet-monitor/internal/logging"
	"github.com/wallet-monitor/internal/monitor"
	"github.com/wallet-monitor/internal/service"
	"github.com/wallet-monitor/internal/storage"
	"github.com/wallet-monitor/internal/types"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	// Balance provider
	fetcher, err := adapter.NewEtherscanClient(adapter.EtherscanClientConfig{
		APIKey:            cfg.Etherscan.APIKey,
		BaseURL:           cfg.Etherscan.BaseURL,
		RequestsPerSecond: cfg.Etherscan.RequestsPerSecond,
		RequestTimeout:    cfg.Etherscan.RequestTimeout,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create Etherscan client")
	}

	// Observation history: ClickHouse when configured, in-memory otherwise.
	var history monitor.HistoryStore = storage.NewMemoryHistoryStore()
	if cfg.Database.ClickHouse.Host != "" {
		clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to ClickHouse")
		}
		defer clickhouse.Close()

		observations := storage.NewObservationRepository(clickhouse)
		if err := observations.EnsureSchema(context.Background()); err != nil {
			logger.WithError(err).Fatal("Failed to ensure ClickHouse schema")
		}
		history = observations
		logger.Info("ClickHouse observation history enabled")
	} else {
		logger.Warn("CLICKHOUSE_HOST not set, observation history is in-memory only")
	}

	// Redis cache in front of the history store.
	if cfg.Database.Redis.Host != "" {
		redis, err := storage.NewRedisCache(&cfg.Database.Redis)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer redis.Close()

		history = storage.NewCachedHistoryStore(history, redis, logger)
		logger.Info("Redis last-observation cache enabled")
	}

	// Wallet persistence: Postgres when configured.
	var walletRepo *storage.WalletRepository
	if cfg.Database.Postgres.Host != "" {
		postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Postgres")
		}
		defer postgres.Close()

		walletRepo = storage.NewWalletRepository(postgres)
		logger.Info("Postgres wallet persistence enabled")
	} else {
		logger.Warn("POSTGRES_HOST not set, wallet configs will not survive a restart")
	}

	// Alert sink: Telegram when configured, structured log otherwise.
	var sink monitor.AlertSink
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		telegram, err := alert.NewTelegramSink(alert.TelegramConfig{
			BotToken: cfg.Telegram.BotToken,
			ChatID:   cfg.Telegram.ChatID,
		}, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create Telegram sink")
		}
		if err := telegram.TestConnection(context.Background()); err != nil {
			logger.WithError(err).Warn("Telegram connectivity check failed, alerts may not deliver")
		}
		sink = telegram
		logger.Info("Telegram alerts enabled")
	} else {
		sink = alert.NewLogSink(logger)
		logger.Info("No Telegram credentials, alerts go to the log")
	}

	defaultThreshold, err := types.EtherToWei(cfg.Monitor.DefaultThresholdEth)
	if err != nil {
		logger.WithError(err).Fatal("Invalid MONITOR_DEFAULT_THRESHOLD_ETH")
	}

	// Monitoring engine
	scheduler := monitor.NewWalletScheduler(nil)
	engine := monitor.NewEngine(scheduler, fetcher, history, sink, nil, nil, logger, monitor.EngineConfig{
		PollLoopPeriod:      cfg.Monitor.PollLoopPeriod,
		MaxConcurrentChecks: cfg.Monitor.MaxConcurrentChecks,
		DrainTimeout:        cfg.Monitor.DrainTimeout,
	})

	var monitorSvc *service.MonitorService
	var walletStore api.WalletStore
	if walletRepo != nil {
		walletStore = walletRepo
		monitorSvc = service.NewMonitorService(engine, walletRepo, logger)
		if _, err := monitorSvc.LoadWallets(context.Background()); err != nil {
			logger.WithError(err).Fatal("Failed to load persisted wallets")
		}
		monitorSvc.Start(context.Background())
	}

	engine.Start(context.Background())
	logger.Info("Monitor engine started")

	// HTTP API
	serverConfig := &api.ServerConfig{
		Host:                 cfg.Server.Host,
		Port:                 cfg.Server.Port,
		ReadTimeout:          15 * time.Second,
		WriteTimeout:         15 * time.Second,
		IdleTimeout:          60 * time.Second,
		ShutdownTimeout:      10 * time.Second,
		RequestsPerSecond:    cfg.Server.RequestsPerSecond,
		DefaultThresholdWei:  defaultThreshold,
		DefaultCheckInterval: cfg.Monitor.DefaultCheckInterval,
	}

	server := api.NewServer(serverConfig, engine, history, walletStore, logger)

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	// Stop the engine after the API so in-flight handler calls can drain,
	// then detach the persistence consumer once no more events can arrive.
	engine.Stop()
	if monitorSvc != nil {
		monitorSvc.Stop()
	}

	logger.Info("Monitor exited")
}
