package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/feral-file/ff-storefront-indexer/internal/adapter"
	"github.com/feral-file/ff-storefront-indexer/internal/classification"
	"github.com/feral-file/ff-storefront-indexer/internal/config"
	"github.com/feral-file/ff-storefront-indexer/internal/domain"
	"github.com/feral-file/ff-storefront-indexer/internal/health"
	"github.com/feral-file/ff-storefront-indexer/internal/logger"
	"github.com/feral-file/ff-storefront-indexer/internal/metrics"
	"github.com/feral-file/ff-storefront-indexer/internal/orchestrator"
	"github.com/feral-file/ff-storefront-indexer/internal/probe"
	"github.com/feral-file/ff-storefront-indexer/internal/ratelimit"
	"github.com/feral-file/ff-storefront-indexer/internal/registry"
	"github.com/feral-file/ff-storefront-indexer/internal/retry"
	"github.com/feral-file/ff-storefront-indexer/internal/store"
	"github.com/feral-file/ff-storefront-indexer/internal/sweeper"
	"github.com/feral-file/ff-storefront-indexer/internal/verification"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
	once       = flag.Bool("once", false, "Run one sweep of every enabled phase and exit")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadSweeperConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "sweeper",
		},
		File: logger.FileConfig{
			Path:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
			Compress:   cfg.Log.Compress,
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting Sweeper")

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err), zap.String("host", cfg.Database.Host))
	}

	// Configure connection pool
	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Connected to database",
		zap.Int("max_open_conns", cfg.Database.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.Database.MaxIdleConns),
	)

	dataStore := store.NewPGStore(db)
	clock := adapter.NewClock()

	// Load registries
	platform, err := registry.LoadPlatform(cfg.Registry.PlatformFile)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to load platform registry", zap.Error(err), zap.String("path", cfg.Registry.PlatformFile))
	}
	taxonomy, err := registry.LoadTaxonomy(cfg.Registry.TaxonomyFile)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to load taxonomy", zap.Error(err), zap.String("path", cfg.Registry.TaxonomyFile))
	}
	logger.InfoCtx(ctx, "Loaded registries",
		zap.String("platform_file", cfg.Registry.PlatformFile),
		zap.String("taxonomy_file", cfg.Registry.TaxonomyFile),
	)

	// Initialize probe rate limiter, distributed through Redis when configured
	var redisClient adapter.RedisClient
	if cfg.Probe.RateLimiter.RedisAddr != "" {
		redisClient = adapter.NewRedisClient(
			cfg.Probe.RateLimiter.RedisAddr,
			cfg.Probe.RateLimiter.RedisPassword,
			cfg.Probe.RateLimiter.RedisDB,
		)
	}
	limiter, err := ratelimit.NewLimiter(cfg.Probe.RateLimiter, redisClient, clock)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to create probe rate limiter", zap.Error(err))
	}
	defer func() {
		if err := limiter.Close(); err != nil {
			logger.Error(err, zap.String("component", "rate_limiter"))
		}
	}()

	// Initialize storefront fetcher
	httpClient := adapter.NewHTTPClient(adapter.HTTPClientConfig{
		Timeout:      cfg.Probe.Timeout,
		UserAgent:    cfg.Probe.UserAgent,
		MaxBodyBytes: cfg.Probe.MaxBodyBytes,
	})
	fetcher := probe.NewFetcher(httpClient, limiter)

	// Initialize phase engines and sweepers
	engines := map[domain.Phase]func(sweeper.Config) sweeper.Sweeper{
		domain.PhaseVerification: func(c sweeper.Config) sweeper.Sweeper {
			return sweeper.NewVerificationSweeper(c, dataStore, verification.NewEngine(fetcher, platform, clock), clock)
		},
		domain.PhaseHealth: func(c sweeper.Config) sweeper.Sweeper {
			engine := health.NewEngine(health.Config{MaxCatalogPages: cfg.Probe.MaxCatalogPages}, fetcher, platform)
			return sweeper.NewHealthSweeper(c, dataStore, engine, clock)
		},
		domain.PhaseClassification: func(c sweeper.Config) sweeper.Sweeper {
			return sweeper.NewClassificationSweeper(c, dataStore, classification.NewEngine(fetcher, taxonomy), clock)
		},
	}

	var schedules []orchestrator.Schedule
	for _, phase := range domain.AllPhases {
		phaseCfg := cfg.Phase(phase)
		if !phaseCfg.Enabled {
			logger.InfoCtx(ctx, "Phase disabled", zap.String("phase", phase.String()))
			continue
		}

		s := engines[phase](sweeper.Config{
			WorkerPoolSize:     phaseCfg.WorkerPoolSize,
			BatchSize:          phaseCfg.BatchSize,
			SweepBudget:        phaseCfg.SweepBudget,
			RecheckAfter:       phaseCfg.RecheckAfter,
			MaxAttempts:        phaseCfg.MaxAttempts,
			Retry:              retry.Policy{Base: phaseCfg.RetryBase, Cap: phaseCfg.RetryCap},
			BreakerMaxFailures: cfg.Breaker.MaxFailures,
			BreakerOpenTimeout: cfg.Breaker.OpenTimeout,
		})
		schedules = append(schedules, orchestrator.Schedule{Sweeper: s, Spec: phaseCfg.Schedule})

		logger.InfoCtx(ctx, "Initialized phase sweeper",
			zap.String("phase", phase.String()),
			zap.String("schedule", phaseCfg.Schedule),
			zap.Int("worker_pool_size", phaseCfg.WorkerPoolSize),
			zap.Int("batch_size", phaseCfg.BatchSize),
			zap.Duration("sweep_budget", phaseCfg.SweepBudget),
		)
	}

	orch, err := orchestrator.New(schedules)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to create orchestrator", zap.Error(err))
	}

	if *once {
		if err := orch.RunOnce(ctx); err != nil {
			logger.ErrorCtx(ctx, err, zap.String("component", "orchestrator"))
			logger.Flush(2 * time.Second)
			os.Exit(1)
		}
		logger.InfoCtx(ctx, "Sweep completed")
		return
	}

	errChan := make(chan error, 2)

	// Start the orchestrator in a goroutine
	go func() {
		if err := orch.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Address)
		go func() {
			logger.InfoCtx(ctx, "Starting metrics server", zap.String("address", cfg.Metrics.Address))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	// Wait for interrupt signal or error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errChan:
		logger.ErrorCtx(ctx, err)
	}

	// Give running sweeps time to finish their records
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := orch.Stop(shutdownCtx); err != nil {
		logger.ErrorCtx(shutdownCtx, err, zap.String("component", "orchestrator"))
	}
	cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.ErrorCtx(shutdownCtx, err, zap.String("component", "metrics"))
		}
	}

	logger.InfoCtx(shutdownCtx, "Sweeper stopped")
}
