package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/reflex-leaderboard/internal/config"
	"github.com/reflex-leaderboard/internal/handler"
	"github.com/reflex-leaderboard/internal/kafka"
	"github.com/reflex-leaderboard/internal/ledger"
	"github.com/reflex-leaderboard/internal/postgres"
	"github.com/reflex-leaderboard/internal/redis"
	"github.com/reflex-leaderboard/internal/service"
	"github.com/reflex-leaderboard/internal/websocket"
	"github.com/reflex-leaderboard/internal/worker"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize PostgreSQL. The server keeps running without it and
	// serves in degraded mode: submissions are accepted but not stored.
	var scoreStore service.ScoreStore
	var achievementStore service.AchievementStore
	var auditStore service.AuditStore
	logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	postgresRepo, err := postgres.NewRepository(&cfg.Postgres, logger)
	if err != nil {
		logger.Warn("PostgreSQL unavailable, running in degraded mode", "error", err)
	} else {
		defer postgresRepo.Close()
		if err := postgresRepo.RunMigrations(ctx); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		scoreStore = postgresRepo
		achievementStore = postgresRepo
		auditStore = postgresRepo
		logger.Info("connected to PostgreSQL")
	}

	// Initialize Redis cache. Reads fall through to Postgres without it.
	var boardCache service.BoardCache
	logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
	redisCache, err := redis.NewCache(&cfg.Redis, cfg.Leaderboard.CacheTTL, logger)
	if err != nil {
		logger.Warn("Redis unavailable, running without leaderboard cache", "error", err)
	} else {
		defer redisCache.Close()
		boardCache = redisCache
		logger.Info("connected to Redis")
	}

	// Initialize ledger client
	ledgerClient, err := ledger.NewClient(cfg.Ledger, logger)
	if err != nil {
		logger.Error("failed to initialize ledger client", "error", err)
		os.Exit(1)
	}
	logger.Info("ledger client initialized",
		"network", cfg.Ledger.Network,
		"gateway", cfg.Ledger.GatewayURL,
		"signing_configured", ledgerClient.Configured(),
	)

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(logger)
	go wsHub.Run()
	logger.Info("WebSocket hub initialized")

	// Initialize services
	gameService := service.NewGameService(
		scoreStore,
		achievementStore,
		auditStore,
		boardCache,
		ledgerClient,
		&cfg.Leaderboard,
		&cfg.Ledger,
		logger,
	)

	// Set the WebSocket hub on the service for broadcasting
	gameService.SetHub(wsHub)

	// Initialize cache refresher
	var refresher *worker.Refresher
	if postgresRepo != nil && redisCache != nil {
		refresher = worker.NewRefresher(postgresRepo, redisCache, &cfg.Leaderboard, logger)

		// Warm the cache before serving
		refresher.RunOnce(ctx)

		if err := refresher.Start(ctx); err != nil {
			logger.Error("failed to start cache refresher", "error", err)
			os.Exit(1)
		}
	}

	// Initialize Kafka consumer for high-load score ingestion
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		var err error
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, gameService, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else {
			if err := kafkaConsumer.Start(); err != nil {
				logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
				kafkaConsumer = nil
			} else {
				logger.Info("Kafka consumer started successfully")
			}
		}
	}

	// Initialize HTTP handler with WebSocket hub
	httpHandler := handler.NewHandler(gameService, wsHub, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		logger.Info("WebSocket endpoint available at /ws")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop WebSocket hub
	wsHub.Stop()

	// Stop Kafka consumer
	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	// Stop cache refresher
	if refresher != nil {
		if err := refresher.Stop(); err != nil {
			logger.Error("failed to stop cache refresher", "error", err)
		}
	}

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	logger.Info("server stopped")
}
