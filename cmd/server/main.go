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

	"github.com/mafia-engine/internal/config"
	"github.com/mafia-engine/internal/game"
	"github.com/mafia-engine/internal/handler"
	"github.com/mafia-engine/internal/kafka"
	"github.com/mafia-engine/internal/matchmaking"
	"github.com/mafia-engine/internal/postgres"
	"github.com/mafia-engine/internal/redis"
	"github.com/mafia-engine/internal/registry"
	"github.com/mafia-engine/internal/service"
	"github.com/mafia-engine/internal/websocket"
	"github.com/mafia-engine/internal/worker"
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

	// Initialize Redis
	logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
	cache, err := redis.NewCache(&cfg.Redis, logger)
	if err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer cache.Close()
	logger.Info("connected to Redis")

	// Initialize PostgreSQL
	logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	repo, err := postgres.NewRepository(&cfg.Postgres, logger)
	if err != nil {
		logger.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to PostgreSQL")

	// Run database migrations
	if err := repo.RunMigrations(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(logger)
	go wsHub.Run()
	logger.Info("WebSocket hub initialized")

	// Initialize Kafka producer for the session event stream
	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer, err = kafka.NewProducer(&cfg.Kafka, logger)
		if err != nil {
			logger.Warn("failed to create Kafka producer, continuing without event stream", "error", err)
			producer = nil
		}
	}

	// Event fan-out feeds connected clients, the event stream, and the
	// persistent event log
	fanout := service.NewEventFanout(wsHub, producer, repo, cache, logger)

	// Initialize the session engine
	engine := game.NewEngine(
		cfg.Game.SessionSettings(),
		fanout,
		logger,
		game.WithTickInterval(cfg.Game.TickInterval),
	)

	// Initialize the player registry and orchestration service
	playerRegistry := registry.NewRegistry(repo, cache, logger)
	gameService := service.NewGameService(playerRegistry, engine, repo, cache, logger)

	// Initialize the matchmaking queue with the service as its session
	// creator, then wire it back onto the service
	queue := matchmaking.NewQueue(playerRegistry, gameService, &cfg.Matchmaking, logger)
	gameService.SetQueue(queue)

	// New session subscribers get the current snapshot pushed on subscribe
	wsHub.SetSnapshotProvider(gameService)

	// Start the phase timer and matchmaking loops
	if err := engine.Start(ctx); err != nil {
		logger.Error("failed to start session engine", "error", err)
		os.Exit(1)
	}
	if err := queue.Start(ctx); err != nil {
		logger.Error("failed to start matchmaking queue", "error", err)
		os.Exit(1)
	}

	// Initialize snapshot worker
	snapshotWorker := worker.NewSnapshotWorker(engine, queue, repo, cache, &cfg.Snapshot, logger)
	if cfg.Snapshot.Enabled {
		if err := snapshotWorker.Start(ctx); err != nil {
			logger.Error("failed to start snapshot worker", "error", err)
			os.Exit(1)
		}
	}

	// Initialize Kafka consumer for high-load action ingestion
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.ActionsTopic,
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

	// Stop matchmaking and phase timers
	if err := queue.Stop(); err != nil {
		logger.Error("failed to stop matchmaking queue", "error", err)
	}
	if err := engine.Stop(); err != nil {
		logger.Error("failed to stop session engine", "error", err)
	}

	// Stop snapshot worker
	if err := snapshotWorker.Stop(); err != nil {
		logger.Error("failed to stop snapshot worker", "error", err)
	}

	// Flush the event stream
	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Error("failed to close Kafka producer", "error", err)
		}
	}

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	logger.Info("server stopped")
}
