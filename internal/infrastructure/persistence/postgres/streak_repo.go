package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/learnhub/learnhub/internal/domain/progression"
	"github.com/learnhub/learnhub/internal/domain/shared"
	"github.com/learnhub/learnhub/pkg/timeutil"
)

// StreakRepository implements progression.StreakRepository.
type StreakRepository struct {
	conn *Connection
}

// NewStreakRepository creates a new StreakRepository.
func NewStreakRepository(conn *Connection) *StreakRepository {
	return &StreakRepository{conn: conn}
}

// Get returns the streak of a user.
func (r *StreakRepository) Get(ctx context.Context, userID string) (*progression.UserStreak, error) {
	var (
		s          progression.UserStreak
		lastActive *time.Time
	)
	err := r.conn.QueryRow(ctx, `
		SELECT user_id, current_streak, longest_streak, last_active, version, updated_at
		FROM user_streaks WHERE user_id = $1
	`, userID).Scan(&s.UserID, &s.CurrentStreak, &s.LongestStreak, &lastActive, &s.Version, &s.UpdatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrStreakNotFound
		}
		return nil, fmt.Errorf("postgres: get user streak: %w", err)
	}
	if lastActive != nil {
		day := timeutil.StartOfDay(*lastActive)
		s.LastActive = &day
	}
	return &s, nil
}

// GetOrCreate inserts an empty streak if absent, then reads the row.
func (r *StreakRepository) GetOrCreate(ctx context.Context, userID string) (*progression.UserStreak, error) {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO user_streaks (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: create user streak: %w", err)
	}
	return r.Get(ctx, userID)
}

// Update writes the streak only if the stored version matches.
func (r *StreakRepository) Update(ctx context.Context, s *progression.UserStreak) error {
	var lastActive any
	if s.LastActive != nil {
		lastActive = timeutil.FormatDate(*s.LastActive)
	}

	now := time.Now().UTC()
	tag, err := r.conn.Exec(ctx, `
		UPDATE user_streaks
		SET current_streak = $3, longest_streak = $4, last_active = $5::date,
		    version = version + 1, updated_at = $6
		WHERE user_id = $1 AND version = $2
	`, s.UserID, s.Version, s.CurrentStreak, s.LongestStreak, lastActive, now)
	if err != nil {
		return fmt.Errorf("postgres: update user streak: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.WrapError("progression", "UpdateStreak", shared.ErrConcurrentModification,
			"streak record changed concurrently", nil)
	}

	s.Version++
	s.UpdatedAt = now
	return nil
}

// ResetStale zeroes streaks whose last active day is before the given day.
// The version bump makes any in-flight read-modify-write on those rows retry.
func (r *StreakRepository) ResetStale(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.conn.Exec(ctx, `
		UPDATE user_streaks
		SET current_streak = 0, version = version + 1, updated_at = NOW()
		WHERE current_streak > 0 AND last_active < $1::date
	`, timeutil.FormatDate(before))
	if err != nil {
		return 0, fmt.Errorf("postgres: reset stale streaks: %w", err)
	}
	return tag.RowsAffected(), nil
}
