package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/learnhub/learnhub/internal/domain/progression"
	"github.com/learnhub/learnhub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEVEL REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// LevelRepository implements progression.LevelRepository.
type LevelRepository struct {
	conn *Connection
}

// NewLevelRepository creates a new LevelRepository.
func NewLevelRepository(conn *Connection) *LevelRepository {
	return &LevelRepository{conn: conn}
}

const levelColumns = `user_id, current_level, experience, next_level_exp, version, created_at, updated_at`

func scanLevel(row interface{ Scan(dest ...any) error }) (*progression.UserLevel, error) {
	var l progression.UserLevel
	if err := row.Scan(&l.UserID, &l.CurrentLevel, &l.Experience, &l.NextLevelExp, &l.Version, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	return &l, nil
}

// Get returns the level record of a user.
func (r *LevelRepository) Get(ctx context.Context, userID string) (*progression.UserLevel, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+levelColumns+` FROM user_levels WHERE user_id = $1`, userID)
	level, err := scanLevel(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrUserLevelNotFound
		}
		return nil, fmt.Errorf("postgres: get user level: %w", err)
	}
	return level, nil
}

// GetOrCreate inserts the default record if absent, then reads the row.
func (r *LevelRepository) GetOrCreate(ctx context.Context, userID string) (*progression.UserLevel, error) {
	def := progression.NewUserLevel(userID)
	_, err := r.conn.Exec(ctx, `
		INSERT INTO user_levels (user_id, current_level, experience, next_level_exp, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, $5)
		ON CONFLICT (user_id) DO NOTHING
	`, def.UserID, def.CurrentLevel, def.Experience, def.NextLevelExp, def.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("postgres: create user level: %w", err)
	}
	return r.Get(ctx, userID)
}

// Update writes the record only if the stored version matches.
func (r *LevelRepository) Update(ctx context.Context, level *progression.UserLevel) error {
	now := time.Now().UTC()
	tag, err := r.conn.Exec(ctx, `
		UPDATE user_levels
		SET current_level = $3, experience = $4, next_level_exp = $5,
		    version = version + 1, updated_at = $6
		WHERE user_id = $1 AND version = $2
	`, level.UserID, level.Version, level.CurrentLevel, level.Experience, level.NextLevelExp, now)
	if err != nil {
		if IsCheckViolation(err) {
			return shared.WrapError("progression", "UpdateLevel", shared.ErrValueOutOfRange, "level record violates invariants", err)
		}
		return fmt.Errorf("postgres: update user level: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.WrapError("progression", "UpdateLevel", shared.ErrConcurrentModification,
			"level record changed concurrently", nil)
	}

	level.Version++
	level.UpdatedAt = now
	return nil
}
