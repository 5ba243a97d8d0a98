package progression

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implementations live in infrastructure/persistence. Per-user serialization
// is the repositories' job: level and streak updates are conditional on
// Version, achievement awards on a (user, achievement) uniqueness constraint.
// ══════════════════════════════════════════════════════════════════════════════

// LevelRepository stores UserLevel records.
type LevelRepository interface {
	// Get returns the level record of a user.
	// Returns shared.ErrUserLevelNotFound if the user was never awarded.
	Get(ctx context.Context, userID string) (*UserLevel, error)

	// GetOrCreate returns the existing record or inserts the default one.
	// Concurrent callers for the same user all observe the same row.
	GetOrCreate(ctx context.Context, userID string) (*UserLevel, error)

	// Update writes the record if its stored version still equals level.Version
	// and increments level.Version on success.
	// Returns shared.ErrConcurrentModification if another writer got there first.
	Update(ctx context.Context, level *UserLevel) error
}

// StreakRepository stores UserStreak records.
type StreakRepository interface {
	// Get returns the streak of a user.
	// Returns shared.ErrStreakNotFound if the user has no streak yet.
	Get(ctx context.Context, userID string) (*UserStreak, error)

	// GetOrCreate returns the existing record or inserts an empty one.
	GetOrCreate(ctx context.Context, userID string) (*UserStreak, error)

	// Update writes the record under the same optimistic rule as LevelRepository.Update.
	Update(ctx context.Context, streak *UserStreak) error

	// ResetStale zeroes current streaks whose last active day is before the given day.
	// Returns the number of streaks reset.
	ResetStale(ctx context.Context, before time.Time) (int64, error)
}

// AchievementRepository is the read side of the catalog plus the import path.
type AchievementRepository interface {
	// ListCatalog returns every catalog entry with criteria already validated.
	ListCatalog(ctx context.Context) ([]Achievement, error)

	// UpsertCatalog inserts or updates entries by code. Returns the number written.
	UpsertCatalog(ctx context.Context, items []Achievement) (int, error)
}

// UserAchievementRepository stores earned achievements.
type UserAchievementRepository interface {
	// EarnedIDs returns the achievement ids a user already holds.
	EarnedIDs(ctx context.Context, userID string) ([]string, error)

	// ListEarned returns the user's earned achievements, newest first.
	ListEarned(ctx context.Context, userID string) ([]UserAchievement, error)

	// AwardBatch inserts all (user, id) pairs atomically, skipping pairs that
	// already exist. Returns only the ids that were newly inserted.
	AwardBatch(ctx context.Context, userID string, achievementIDs []string, earnedAt time.Time) ([]string, error)
}

// StatsReader computes aggregate counters for achievement evaluation.
type StatsReader interface {
	// Stats returns the counters for a user as of today. Unknown users get
	// zero stats; a lapsed streak counts as 0.
	Stats(ctx context.Context, userID string, today time.Time) (UserStats, error)
}

// MetricRepository is the append-only progress log.
type MetricRepository interface {
	// Append stores one metric row.
	Append(ctx context.Context, metric *ProgressMetric) error

	// ListByUser returns the latest metrics of a user, newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]*ProgressMetric, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS METRIC
// ══════════════════════════════════════════════════════════════════════════════

// MetricExperience is the metric_type of experience awards.
const MetricExperience = "experience"

// ProgressMetric is an append-only analytics row. Never mutated.
type ProgressMetric struct {
	ID          string
	UserID      string
	MetricType  string
	MetricValue int
	MetricData  map[string]any
	RecordedAt  time.Time
}
