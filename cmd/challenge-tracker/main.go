package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/terra-clan/challenge-tracker/internal/api"
	"github.com/terra-clan/challenge-tracker/internal/auth"
	"github.com/terra-clan/challenge-tracker/internal/catalog"
	"github.com/terra-clan/challenge-tracker/internal/completion"
	"github.com/terra-clan/challenge-tracker/internal/config"
	"github.com/terra-clan/challenge-tracker/internal/events"
	"github.com/terra-clan/challenge-tracker/internal/health"
	"github.com/terra-clan/challenge-tracker/internal/leaderboard"
	"github.com/terra-clan/challenge-tracker/internal/metrics"
	"github.com/terra-clan/challenge-tracker/internal/points"
	"github.com/terra-clan/challenge-tracker/internal/storage"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "challenge-tracker").Logger()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load config")
	}

	logger = setupLogger(logger, cfg.Log)
	logger.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("driver", cfg.Database.Driver).
		Msg("Starting challenge-tracker")

	// Create context for initialization
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	repo, err := openRepository(initCtx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer repo.Close()
	logger.Info().Str("driver", cfg.Database.Driver).Msg("Storage connected")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	checks := health.NewRegistry(3 * time.Second)
	checks.Register("database", repo)

	// Redis backs the leaderboard and event dedup when configured
	var (
		redisClient *redis.Client
		board       *leaderboard.RedisBoard
	)
	if cfg.Redis.Enabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(initCtx).Err(); err != nil {
			logger.Warn().Err(err).Str("addr", cfg.Redis.Address).Msg("Redis not reachable yet")
		}
		checks.Register("redis", health.CheckerFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}))
		board = leaderboard.NewRedisBoard(redisClient, m)
	}

	accruerOpts := []points.Option{points.WithMetrics(m)}
	if board != nil {
		accruerOpts = append(accruerOpts, points.WithBoard(board), points.WithDedup(redisClient))
	}
	accruer := points.NewAccruer(repo, logger, accruerOpts...)

	// Completion events go through Kafka when brokers are set, in-process otherwise
	var (
		publisher events.Publisher
		consumer  *events.KafkaConsumer
	)
	if cfg.Kafka.Enabled() {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		consumer = events.NewKafkaConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.Topic, accruer.Handle, logger)
		logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Kafka event transport enabled")
	} else {
		publisher = events.NewInProcessPublisher(accruer.Handle)
	}
	defer publisher.Close()

	// Load challenge catalog
	catalogLoader := catalog.NewLoader(logger)
	if err := catalogLoader.LoadFromDir(cfg.Catalog.Dir); err != nil {
		logger.Warn().Err(err).Str("dir", cfg.Catalog.Dir).Msg("Failed to load catalog from dir")
	}

	service := completion.NewService(repo, logger,
		completion.WithPublisher(publisher),
		completion.WithMetrics(m),
	)

	deps := api.Deps{
		Completions: service,
		Users:       repo,
		Catalog:     catalogLoader,
		Tokens:      auth.NewValidator(cfg.Auth.JWTSecret),
		Health:      checks,
		Metrics:     m,
		Logger:      logger,
	}
	if board != nil {
		deps.Leaderboard = board
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start background workers
	if consumer != nil {
		consumer.Start()
	}
	if board != nil {
		resyncer := leaderboard.NewResyncer(repo, board, cfg.Leaderboard.Size, cfg.Leaderboard.ResyncInterval, m, logger)
		resyncer.Start(ctx)
	}

	// Setup HTTP server
	server := api.NewServer(cfg.Server, cfg.CSRF, deps)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("HTTP server starting")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down gracefully...")

	// Cancel context to stop background workers
	cancel()

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	if consumer != nil {
		if err := consumer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Kafka consumer stop error")
		}
	}

	logger.Info().Msg("challenge-tracker stopped")
}

func setupLogger(logger zerolog.Logger, cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if cfg.Pretty {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return logger.Level(level)
}

func openRepository(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (storage.Repository, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		repo, err := storage.NewPostgresRepository(ctx, storage.PostgresConfig{
			DSN:          cfg.Database.DSN,
			MaxOpenConns: int32(cfg.Database.MaxOpenConns),
			MaxIdleConns: int32(cfg.Database.MaxIdleConns),
		})
		if err != nil {
			return nil, err
		}
		logger.Info().Str("dir", cfg.Database.MigrationsDir).Msg("Running database migrations")
		if err := repo.Migrate(ctx, cfg.Database.MigrationsDir, logger); err != nil {
			repo.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return repo, nil
	case config.DriverMongo:
		repo, err := storage.NewMongoRepository(ctx, storage.MongoConfig{
			URI:      cfg.Mongo.URI,
			Database: cfg.Mongo.Database,
		})
		if err != nil {
			return nil, err
		}
		return repo, nil
	case config.DriverMemory:
		logger.Warn().Msg("Using in-memory storage, data is lost on restart")
		return storage.NewMemoryRepository(), nil
	default:
		return nil, fmt.Errorf("unknown database driver: %q", cfg.Database.Driver)
	}
}
