// Package main is the entry point of the LearnHub background worker.
//
// The worker runs periodic maintenance:
//   - sweep_stale_streaks zeroes streaks of users who missed a day
//   - warm_catalog_cache keeps the achievement catalog in Redis
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/learnhub/learnhub/config"
	"github.com/learnhub/learnhub/internal/infrastructure/metrics"
	"github.com/learnhub/learnhub/internal/infrastructure/persistence"
	"github.com/learnhub/learnhub/internal/infrastructure/persistence/redis"
	"github.com/learnhub/learnhub/internal/infrastructure/scheduler"
	"github.com/learnhub/learnhub/internal/infrastructure/scheduler/jobs"
	"github.com/learnhub/learnhub/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to read .env: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.ForService(cfg.App.Name+"-worker", string(cfg.App.Environment), cfg.Observability.LogLevel)
	if !cfg.Scheduler.Enabled {
		log.Info("scheduler disabled, exiting")
		return nil
	}
	log.Info("starting LearnHub worker", logger.String("timezone", cfg.App.Timezone))

	// ─────────────────────────────────────────────────────────────────────────
	// 2. STORAGE
	// ─────────────────────────────────────────────────────────────────────────
	repos, err := persistence.Open(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer repos.Close()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. SCHEDULER & JOBS
	// ─────────────────────────────────────────────────────────────────────────
	recorder := metrics.New()

	schedConfig := scheduler.DefaultConfig()
	schedConfig.Logger = log
	schedConfig.Location = cfg.App.Location
	schedConfig.JobTimeout = cfg.Scheduler.JobTimeout
	schedConfig.MaxConcurrentJobs = cfg.Scheduler.MaxConcurrentJobs
	schedConfig.OnJobComplete = func(r scheduler.JobResult) {
		recorder.ObserveJob(r.JobName, r.Duration, r.Error)
	}
	sched, err := scheduler.New(schedConfig)
	if err != nil {
		return err
	}

	sweep := jobs.NewSweepStreaksJob(repos.Streaks, log)
	if err := sched.AddCron(sweep, cfg.Scheduler.StreakSweepCron); err != nil {
		return err
	}

	if !cfg.Redis.Disabled {
		cache, err := redis.NewCache(redis.ConfigFrom(cfg.Redis))
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer cache.Close()

		catalog := redis.NewCatalogCache(repos.Catalog, cache, cfg.Gamification.CatalogCacheTTL, log)
		if err := sched.AddInterval(jobs.NewWarmCatalogJob(catalog, log), cfg.Scheduler.CatalogWarmEvery); err != nil {
			return err
		}
	} else {
		log.Warn("redis disabled, catalog warm-up not scheduled")
	}

	sched.Start()
	defer func() {
		if err := sched.Stop(); err != nil {
			log.Error("scheduler did not stop cleanly", logger.Err(err))
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. METRICS ENDPOINT
	// ─────────────────────────────────────────────────────────────────────────
	var metricsServer *http.Server
	errCh := make(chan error, 1)
	if cfg.Observability.MetricsEnabled && cfg.Scheduler.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle(cfg.Observability.MetricsPath, recorder.Handler())
		metricsServer = &http.Server{
			Addr:              cfg.Scheduler.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("metrics listening", logger.String("address", metricsServer.Addr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("LearnHub worker is running", logger.Any("jobs", sched.Jobs()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("metrics server error", logger.Err(err))
		return err
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("metrics server shutdown", logger.Err(err))
		}
	}

	log.Info("shutdown completed")
	return nil
}
