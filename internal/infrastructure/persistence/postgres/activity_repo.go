package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/learnhub/learnhub/internal/domain/activity"
	"github.com/learnhub/learnhub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// ActivityRepository implements activity.Repository using PostgreSQL.
type ActivityRepository struct {
	conn *Connection
}

// NewActivityRepository creates a new ActivityRepository.
func NewActivityRepository(conn *Connection) *ActivityRepository {
	return &ActivityRepository{conn: conn}
}

// Create appends an activity to the log.
func (r *ActivityRepository) Create(ctx context.Context, a *activity.Activity) error {
	id, err := uuid.Parse(a.ID)
	if err != nil {
		return fmt.Errorf("postgres: invalid activity id: %w", err)
	}
	meta, err := json.Marshal(a.Metadata)
	if err != nil {
		return fmt.Errorf("postgres: marshal activity metadata: %w", err)
	}

	var topicID *string
	if a.TopicID != "" {
		topicID = &a.TopicID
	}

	_, err = r.conn.Exec(ctx, `
		INSERT INTO activities (id, user_id, activity_type, topic_id, score, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, a.UserID, string(a.Type), topicID, a.Score, meta, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert activity: %w", err)
	}
	return nil
}

// ListByUser returns the latest activities of a user.
func (r *ActivityRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*activity.Activity, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.conn.Query(ctx, `
		SELECT id::text, user_id, activity_type, COALESCE(topic_id, ''), score, metadata, created_at
		FROM activities
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list activities: %w", err)
	}
	defer rows.Close()

	var out []*activity.Activity
	for rows.Next() {
		var (
			a    activity.Activity
			kind string
			raw  []byte
		)
		if err := rows.Scan(&a.ID, &a.UserID, &kind, &a.TopicID, &a.Score, &raw, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan activity: %w", err)
		}
		a.Type = activity.Type(kind)
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &a.Metadata); err != nil {
				return nil, fmt.Errorf("postgres: decode activity metadata: %w", err)
			}
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// UpsertTopicProgress creates or advances the (user, topic) row in one statement.
func (r *ActivityRepository) UpsertTopicProgress(ctx context.Context, userID, topicID string, kind activity.Type, at time.Time) (*activity.TopicProgress, error) {
	lessons := 0
	if kind == activity.TypeLessonCompleted {
		lessons = 1
	}
	completed := kind == activity.TypeTopicCompleted

	var p activity.TopicProgress
	err := r.conn.QueryRow(ctx, `
		INSERT INTO user_topic_progress (user_id, topic_id, lessons_completed, completed, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, topic_id) DO UPDATE
		SET lessons_completed = user_topic_progress.lessons_completed + EXCLUDED.lessons_completed,
		    completed = user_topic_progress.completed OR EXCLUDED.completed,
		    updated_at = EXCLUDED.updated_at
		RETURNING user_id, topic_id, lessons_completed, completed, updated_at
	`, userID, topicID, lessons, completed, at.UTC()).Scan(&p.UserID, &p.TopicID, &p.LessonsCompleted, &p.Completed, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("postgres: upsert topic progress: %w", err)
	}
	return &p, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GOAL REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// GoalRepository implements activity.GoalRepository.
type GoalRepository struct {
	conn *Connection
}

// NewGoalRepository creates a new GoalRepository.
func NewGoalRepository(conn *Connection) *GoalRepository {
	return &GoalRepository{conn: conn}
}

const goalColumns = `id::text, user_id, activity_type, target, progress, deadline, completed_at, created_at`

func scanGoals(rows pgx.Rows) ([]*activity.Goal, error) {
	defer rows.Close()

	var out []*activity.Goal
	for rows.Next() {
		var (
			g    activity.Goal
			kind string
		)
		if err := rows.Scan(&g.ID, &g.UserID, &kind, &g.Target, &g.Progress, &g.Deadline, &g.CompletedAt, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan goal: %w", err)
		}
		g.ActivityType = activity.Type(kind)
		out = append(out, &g)
	}
	return out, rows.Err()
}

// Create stores a new goal.
func (r *GoalRepository) Create(ctx context.Context, g *activity.Goal) error {
	id, err := uuid.Parse(g.ID)
	if err != nil {
		return fmt.Errorf("postgres: invalid goal id: %w", err)
	}
	_, err = r.conn.Exec(ctx, `
		INSERT INTO learning_goals (id, user_id, activity_type, target, progress, deadline, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, g.UserID, string(g.ActivityType), g.Target, g.Progress, g.Deadline, g.CreatedAt)
	return insertGoalError(err)
}

func insertGoalError(err error) error {
	if err == nil {
		return nil
	}
	if IsUniqueViolation(err) {
		return shared.WrapError("activity", "CreateGoal", shared.ErrAlreadyExists, "goal already exists", err)
	}
	return fmt.Errorf("postgres: insert goal: %w", err)
}

// ListByUser returns all goals of a user.
func (r *GoalRepository) ListByUser(ctx context.Context, userID string) ([]*activity.Goal, error) {
	rows, err := r.conn.Query(ctx, `SELECT `+goalColumns+` FROM learning_goals WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list goals: %w", err)
	}
	return scanGoals(rows)
}

// AdvanceActive increments every matching active goal in a single UPDATE.
// Rows whose increment reaches the target get completed_at in the same write.
func (r *GoalRepository) AdvanceActive(ctx context.Context, userID string, kind activity.Type, at time.Time) ([]*activity.Goal, error) {
	rows, err := r.conn.Query(ctx, `
		UPDATE learning_goals
		SET progress = progress + 1,
		    completed_at = CASE WHEN progress + 1 >= target THEN $3 ELSE NULL END
		WHERE user_id = $1
		  AND activity_type = $2
		  AND completed_at IS NULL
		  AND (deadline IS NULL OR deadline >= $3)
		RETURNING `+goalColumns, userID, string(kind), at.UTC())
	if err != nil {
		return nil, fmt.Errorf("postgres: advance goals: %w", err)
	}
	return scanGoals(rows)
}
