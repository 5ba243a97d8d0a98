// Package persistence opens the storage backend selected by configuration
// and exposes it as the domain repository interfaces.
package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/learnhub/learnhub/config"
	"github.com/learnhub/learnhub/internal/domain/activity"
	"github.com/learnhub/learnhub/internal/domain/progression"
	"github.com/learnhub/learnhub/internal/infrastructure/persistence/memory"
	"github.com/learnhub/learnhub/internal/infrastructure/persistence/postgres"
	"github.com/learnhub/learnhub/pkg/logger"
	"github.com/learnhub/learnhub/pkg/retry"
)

// ErrNoDatabase is returned when a Postgres-only operation runs on the
// in-memory backend.
var ErrNoDatabase = errors.New("persistence: DATABASE_URL is not configured")

// Repositories groups every repository the application layer needs.
type Repositories struct {
	Levels     progression.LevelRepository
	Streaks    progression.StreakRepository
	Catalog    progression.AchievementRepository
	Earned     progression.UserAchievementRepository
	Stats      progression.StatsReader
	Metrics    progression.MetricRepository
	Activities activity.Repository
	Goals      activity.GoalRepository

	// DB is nil on the in-memory backend.
	DB *postgres.Connection
}

// Backend names the storage in use.
func (r *Repositories) Backend() string {
	if r.DB != nil {
		return "postgres"
	}
	return "memory"
}

// Ping checks the backing store. The in-memory store is always up.
func (r *Repositories) Ping(ctx context.Context) error {
	if r.DB == nil {
		return nil
	}
	return r.DB.Ping(ctx)
}

// Close releases the connection pool.
func (r *Repositories) Close() {
	if r.DB != nil {
		r.DB.Close()
	}
}

// Migrator returns the schema migrator, or ErrNoDatabase.
func (r *Repositories) Migrator() (*postgres.Migrator, error) {
	if r.DB == nil {
		return nil, ErrNoDatabase
	}
	return postgres.NewMigrator(r.DB), nil
}

// Open connects to Postgres when cfg.URL is set, retrying while the database
// comes up. Without a URL it returns process-local repositories, which are
// only meant for development and tests.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*Repositories, error) {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.URL == "" {
		log.Warn("DATABASE_URL not set, using in-memory storage")
		return InMemory(memory.NewStore()), nil
	}

	pgCfg := postgres.DefaultConfig()
	pgCfg.URL = cfg.URL
	pgCfg.MaxConns = int32(cfg.MaxConns)
	pgCfg.MinConns = int32(cfg.MinConns)
	pgCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	pgCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime

	var conn *postgres.Connection
	err := retry.DatabaseRetrier().Do(ctx, func(ctx context.Context) error {
		c, err := postgres.NewConnection(ctx, pgCfg)
		if err != nil {
			log.Warn("database not reachable yet", logger.Err(err))
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("persistence: connect: %w", err)
	}

	achievements := postgres.NewAchievementRepository(conn)
	return &Repositories{
		Levels:     postgres.NewLevelRepository(conn),
		Streaks:    postgres.NewStreakRepository(conn),
		Catalog:    achievements,
		Earned:     achievements,
		Stats:      achievements,
		Metrics:    postgres.NewMetricRepository(conn),
		Activities: postgres.NewActivityRepository(conn),
		Goals:      postgres.NewGoalRepository(conn),
		DB:         conn,
	}, nil
}

// InMemory wires repositories over an in-memory store.
func InMemory(store *memory.Store) *Repositories {
	achievements := memory.NewAchievementRepository(store)
	return &Repositories{
		Levels:     memory.NewLevelRepository(store),
		Streaks:    memory.NewStreakRepository(store),
		Catalog:    achievements,
		Earned:     achievements,
		Stats:      achievements,
		Metrics:    memory.NewMetricRepository(store),
		Activities: memory.NewActivityRepository(store),
		Goals:      memory.NewGoalRepository(store),
	}
}
