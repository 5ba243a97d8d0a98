package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/learnhub/learnhub/internal/domain/activity"
	"github.com/learnhub/learnhub/internal/domain/progression"
	"github.com/learnhub/learnhub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// AchievementRepository implements progression.AchievementRepository,
// progression.UserAchievementRepository and progression.StatsReader.
type AchievementRepository struct {
	conn *Connection
}

// NewAchievementRepository creates a new AchievementRepository.
func NewAchievementRepository(conn *Connection) *AchievementRepository {
	return &AchievementRepository{conn: conn}
}

// ListCatalog loads every achievement and validates its criteria.
// A row with invalid criteria fails the whole load: the catalog is reference
// data and a bad row is an operator error to surface, not to skip.
func (r *AchievementRepository) ListCatalog(ctx context.Context) ([]progression.Achievement, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id::text, code, name, description, criteria, icon, created_at
		FROM achievements
		ORDER BY created_at, code
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list achievements: %w", err)
	}
	defer rows.Close()

	var items []progression.Achievement
	for rows.Next() {
		var (
			a   progression.Achievement
			raw []byte
		)
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Description, &raw, &a.Icon, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan achievement: %w", err)
		}
		a.Criteria, err = progression.ParseCriteria(raw)
		if err != nil {
			return nil, fmt.Errorf("postgres: achievement %q: %w", a.Code, err)
		}
		items = append(items, a)
	}

	return items, rows.Err()
}

// UpsertCatalog inserts or updates entries by code in one transaction.
// Entries without an id get a fresh UUID; existing rows keep theirs.
func (r *AchievementRepository) UpsertCatalog(ctx context.Context, items []progression.Achievement) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, a := range items {
		if _, err := progression.NewCriteria(a.Criteria.Kind, a.Criteria.Threshold); err != nil {
			return 0, fmt.Errorf("achievement %q: %w", a.Code, err)
		}
		criteria, err := json.Marshal(a.Criteria)
		if err != nil {
			return 0, fmt.Errorf("achievement %q: marshal criteria: %w", a.Code, err)
		}
		id := uuid.New()
		if a.ID != "" {
			if id, err = uuid.Parse(a.ID); err != nil {
				return 0, fmt.Errorf("achievement %q: invalid id: %w", a.Code, err)
			}
		}
		batch.Queue(`
			INSERT INTO achievements (id, code, name, description, criteria, icon)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (code) DO UPDATE
			SET name = EXCLUDED.name, description = EXCLUDED.description,
			    criteria = EXCLUDED.criteria, icon = EXCLUDED.icon
		`, id, a.Code, a.Name, a.Description, criteria, a.Icon)
	}

	written := 0
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		results := tx.SendBatch(ctx, batch)
		for range items {
			tag, err := results.Exec()
			if err != nil {
				results.Close()
				return err
			}
			written += int(tag.RowsAffected())
		}
		return results.Close()
	})
	if err != nil {
		return 0, fmt.Errorf("postgres: upsert achievements: %w", err)
	}

	return written, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// USER ACHIEVEMENTS
// ══════════════════════════════════════════════════════════════════════════════

// EarnedIDs returns the achievement ids a user already holds.
func (r *AchievementRepository) EarnedIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.conn.Query(ctx, `SELECT achievement_id::text FROM user_achievements WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: earned achievements: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: scan earned achievements: %w", err)
	}
	return ids, nil
}

// ListEarned returns earned achievements, newest first.
func (r *AchievementRepository) ListEarned(ctx context.Context, userID string) ([]progression.UserAchievement, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT user_id, achievement_id::text, earned_at
		FROM user_achievements
		WHERE user_id = $1
		ORDER BY earned_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list earned achievements: %w", err)
	}
	defer rows.Close()

	var out []progression.UserAchievement
	for rows.Next() {
		var ua progression.UserAchievement
		if err := rows.Scan(&ua.UserID, &ua.AchievementID, &ua.EarnedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan earned achievement: %w", err)
		}
		out = append(out, ua)
	}
	return out, rows.Err()
}

// AwardBatch inserts all pairs in one statement. Pairs that already exist are
// skipped by the primary key, so retries and concurrent checks are no-ops.
func (r *AchievementRepository) AwardBatch(ctx context.Context, userID string, achievementIDs []string, earnedAt time.Time) ([]string, error) {
	if len(achievementIDs) == 0 {
		return nil, nil
	}

	rows, err := r.conn.Query(ctx, `
		INSERT INTO user_achievements (user_id, achievement_id, earned_at)
		SELECT $1, id::uuid, $3 FROM unnest($2::text[]) AS id
		ON CONFLICT (user_id, achievement_id) DO NOTHING
		RETURNING achievement_id::text
	`, userID, achievementIDs, earnedAt.UTC())
	if err != nil {
		return nil, fmt.Errorf("postgres: award achievements: %w", err)
	}
	inserted, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: award achievements: %w", err)
	}
	return inserted, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STATS
// ══════════════════════════════════════════════════════════════════════════════

// Stats aggregates the counters achievements are evaluated against.
func (r *AchievementRepository) Stats(ctx context.Context, userID string, today time.Time) (progression.UserStats, error) {
	yesterday := timeutil.StartOfDay(today).AddDate(0, 0, -1)
	var s progression.UserStats
	err := r.conn.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM activities WHERE user_id = $1 AND activity_type = 'lesson_completed'),
			(SELECT count(*) FROM user_topic_progress WHERE user_id = $1 AND completed),
			(SELECT count(*) FROM activities WHERE user_id = $1 AND activity_type = 'assessment_completed'),
			(SELECT count(*) FROM activities WHERE user_id = $1 AND activity_type = 'assessment_completed' AND score >= $2),
			COALESCE((SELECT current_streak FROM user_streaks WHERE user_id = $1 AND last_active >= $3), 0)
	`, userID, activity.HighScorePercent, yesterday).Scan(
		&s.LessonsCompleted,
		&s.TopicsCompleted,
		&s.AssessmentsCompleted,
		&s.HighScoreAssessments,
		&s.CurrentStreak,
	)
	if err != nil {
		return progression.UserStats{}, fmt.Errorf("postgres: user stats: %w", err)
	}
	return s, nil
}
