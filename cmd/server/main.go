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

	"github.com/gamescore-backend/internal/auth"
	"github.com/gamescore-backend/internal/config"
	"github.com/gamescore-backend/internal/handler"
	"github.com/gamescore-backend/internal/kafka"
	"github.com/gamescore-backend/internal/postgres"
	"github.com/gamescore-backend/internal/ratelimit"
	"github.com/gamescore-backend/internal/redis"
	"github.com/gamescore-backend/internal/service"
	"github.com/gamescore-backend/internal/websocket"
	"github.com/gamescore-backend/internal/worker"
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

	// Initialize the auth rate limiter
	var limiter ratelimit.Limiter
	var redisLimiter *redis.RateLimiter
	if cfg.RateLimit.Backend == "redis" {
		logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
		redisLimiter, err = redis.NewRateLimiter(&cfg.Redis, cfg.RateLimit.Window, cfg.RateLimit.Max, logger)
		if err != nil {
			logger.Warn("failed to connect to Redis, falling back to in-memory rate limiting", "error", err)
		} else {
			defer redisLimiter.Close()
			limiter = redisLimiter
			logger.Info("connected to Redis")
		}
	}
	if limiter == nil {
		memLimiter := ratelimit.NewMemoryLimiter(cfg.RateLimit.Window, cfg.RateLimit.Max)
		go func() {
			ticker := time.NewTicker(cfg.RateLimit.Window)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					memLimiter.Cleanup()
				}
			}
		}()
		limiter = memLimiter
	}

	// Initialize WebSocket hub for the live score feed
	wsHub := websocket.NewHub(logger)
	go wsHub.Run()
	logger.Info("WebSocket hub initialized")

	// Initialize services
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	authService := service.NewAuthService(repo, tokens, &cfg.Auth, logger)
	scoreService := service.NewScoreService(repo, logger)
	scoreService.SetHub(wsHub)
	leaderboardService := service.NewLeaderboardService(repo, &cfg.Leaderboard, logger)
	analyticsService := service.NewAnalyticsService(repo, logger)

	// Initialize retention worker for the analytics sink
	retentionWorker := worker.NewRetentionWorker(repo, &cfg.Retention, logger)
	if cfg.Retention.Enabled {
		if err := retentionWorker.Start(ctx); err != nil {
			logger.Error("failed to start retention worker", "error", err)
			os.Exit(1)
		}
	}

	// Initialize Kafka consumer for high-volume analytics ingestion
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, analyticsService, logger)
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

	// Initialize HTTP handler
	httpHandler := handler.NewHandler(
		authService,
		scoreService,
		leaderboardService,
		analyticsService,
		tokens,
		limiter,
		wsHub,
		logger,
	)

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

	// Stop retention worker
	if cfg.Retention.Enabled {
		if err := retentionWorker.Stop(); err != nil {
			logger.Error("failed to stop retention worker", "error", err)
		}
	}

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	logger.Info("server stopped")
}
