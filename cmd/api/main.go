// Package main is the entry point of the LearnHub progression API.
//
// The API records learning activity and turns it into experience, levels,
// streaks, achievements and goal progress. It also proxies sandboxed code runs.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/learnhub/learnhub/config"
	"github.com/learnhub/learnhub/internal/application/command"
	"github.com/learnhub/learnhub/internal/application/query"
	"github.com/learnhub/learnhub/internal/infrastructure/external/piston"
	"github.com/learnhub/learnhub/internal/infrastructure/messaging"
	"github.com/learnhub/learnhub/internal/infrastructure/metrics"
	"github.com/learnhub/learnhub/internal/infrastructure/persistence"
	"github.com/learnhub/learnhub/internal/infrastructure/persistence/redis"
	httpserver "github.com/learnhub/learnhub/internal/interface/http"
	"github.com/learnhub/learnhub/internal/interface/http/handlers"
	"github.com/learnhub/learnhub/pkg/circuitbreaker"
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

	log := logger.ForService(cfg.App.Name+"-api", string(cfg.App.Environment), cfg.Observability.LogLevel)
	log.Info("starting LearnHub API",
		logger.String("version", cfg.App.Version),
		logger.Bool("debug", cfg.App.Debug),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. STORAGE
	// ─────────────────────────────────────────────────────────────────────────
	repos, err := persistence.Open(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database connection")
		repos.Close()
	}()
	log.Info("storage ready", logger.String("backend", repos.Backend()))

	if cfg.Database.AutoMigrate {
		if migrator, err := repos.Migrator(); err == nil {
			applied, err := migrator.Migrate(ctx)
			if err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info("migrations applied", logger.Int("count", applied))
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. REDIS (catalog cache, shared rate limiter)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		catalog     query.CatalogSource = repos.Catalog
		rateLimiter httpserver.RateLimiter
		cache       *redis.Cache
	)
	if !cfg.Redis.Disabled {
		cache, err = redis.NewCache(redis.ConfigFrom(cfg.Redis))
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer cache.Close()

		catalogCache := redis.NewCatalogCache(repos.Catalog, cache, cfg.Gamification.CatalogCacheTTL, log)
		if n, err := catalogCache.Warm(ctx); err != nil {
			log.Warn("achievement catalog not cached", logger.Err(err))
		} else {
			log.Info("achievement catalog cached", logger.Int("entries", n))
		}
		catalog = catalogCache
		rateLimiter = redis.NewRateLimiter(cache)
	} else {
		log.Warn("redis disabled, rate limits are per instance")
		local := httpserver.NewLocalRateLimiter()
		go sweepLocalLimiter(ctx, local)
		rateLimiter = local
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. METRICS & EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	recorder := metrics.New()

	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.Logger = log
	busConfig.Observer = recorder.ObserveHandler
	bus := messaging.NewInMemoryEventBus(busConfig)
	defer func() {
		log.Info("closing event bus")
		_ = bus.Close()
	}()

	if err := recorder.Subscribe(bus); err != nil {
		return fmt.Errorf("failed to subscribe metrics: %w", err)
	}
	if err := bus.SubscribeAll(messaging.LogEvents(log)); err != nil {
		return fmt.Errorf("failed to subscribe event log: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	deps := command.Deps{
		Publisher: bus,
		Logger:    log,
		Features:  cfg.Features,
	}

	awardExperience := command.NewAwardExperienceHandler(repos.Levels, repos.Metrics, deps)
	recordActivity := command.NewRecordActivityHandler(
		repos.Activities, repos.Goals, repos.Streaks, awardExperience, cfg.Gamification.XPRewards, deps,
	)
	checkAchievements := command.NewCheckAchievementsHandler(catalog, repos.Earned, repos.Stats, deps)
	createGoal := command.NewCreateGoalHandler(repos.Goals, deps)

	getProgress := query.NewGetProgressHandler(repos.Levels, repos.Streaks, repos.Earned, catalog, repos.Goals)
	listAchievements := query.NewListAchievementsHandler(catalog)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. EXTERNAL CLIENTS
	// ─────────────────────────────────────────────────────────────────────────
	executorConfig := piston.DefaultClientConfig(cfg.Executor.BaseURL)
	executorConfig.Timeout = cfg.Executor.RequestTimeout
	executorConfig.RateLimit = cfg.Executor.RateLimit
	executorConfig.RateLimitBurst = cfg.Executor.RateLimitBurst
	executorConfig.MaxRetries = cfg.Executor.MaxRetries
	executorConfig.RetryBaseDelay = cfg.Executor.RetryBaseDelay
	executorConfig.MaxSourceBytes = cfg.Executor.MaxSourceBytes
	executorConfig.Logger = log
	executorConfig.OnStateChange = func(name string, from, to circuitbreaker.State) {
		recorder.SetBreakerState(name, int(to))
		log.Warn("circuit breaker state changed",
			logger.String("breaker", name),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	}
	executor := piston.NewClient(executorConfig)

	var verifier httpserver.TokenVerifier
	if cfg.Auth.ClerkSecretKey != "" {
		verifier = httpserver.NewClerkVerifier(cfg.Auth.ClerkSecretKey)
	} else {
		log.Warn("CLERK_SECRET_KEY not set, user routes will reject every request")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. HEALTH CHECKS
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck(repos.Backend(), handlers.NewDatabaseCheck(repos))
	if cache != nil {
		health.AddCheck("redis", handlers.NewCacheCheck(cache))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	httpConfig := httpserver.DefaultConfig()
	httpConfig.Host = cfg.HTTP.Host
	httpConfig.Port = cfg.HTTP.Port
	httpConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	httpConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	httpConfig.IdleTimeout = cfg.HTTP.IdleTimeout
	httpConfig.AllowedOrigins = cfg.HTTP.CORSAllowedOrigins
	httpConfig.RateLimitPerMinute = perMinute(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
	httpConfig.ExecutePerMinute = perMinute(cfg.HTTP.ExecuteRateLimit, cfg.HTTP.ExecuteRateLimitWindow)
	httpConfig.APIKeys = cfg.Auth.ServiceAPIKeys
	httpConfig.Version = cfg.App.Version

	httpDeps := httpserver.Dependencies{
		AwardExperience:   awardExperience,
		RecordActivity:    recordActivity,
		CheckAchievements: checkAchievements,
		CreateGoal:        createGoal,
		GetProgress:       getProgress,
		ListAchievements:  listAchievements,
		Executor:          executor,
		Features:          cfg.Features,
		Verifier:          verifier,
		RateLimiter:       rateLimiter,
		HealthChecker:     health,
		MetricsObserver:   recorder,
		Logger:            log,
	}
	if cfg.Observability.MetricsEnabled {
		httpDeps.Metrics = recorder.Handler()
	}

	server := httpserver.NewServer(httpConfig, httpDeps)

	// ─────────────────────────────────────────────────────────────────────────
	// 9. RUN & GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	errCh := server.StartAsync()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			log.Error("service error", logger.Err(err))
		}
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	uptime := server.Uptime()
	log.Info("stopping HTTP server", logger.Duration("timeout", cfg.App.ShutdownTimeout))
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", logger.Err(err))
		return err
	}

	log.Info("shutdown completed", logger.Duration("uptime", uptime))
	return nil
}


// perMinute scales a limit expressed over window to the per-minute budget
// the server enforces.
func perMinute(limit int, window time.Duration) int {
	if limit <= 0 || window <= 0 {
		return limit
	}
	n := int(float64(limit) * float64(time.Minute) / float64(window))
	if n < 1 {
		return 1
	}
	return n
}

func sweepLocalLimiter(ctx context.Context, l *httpserver.LocalRateLimiter) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Cleanup(10 * time.Minute)
		}
	}
}
