package activity

import (
	"context"
	"time"
)

// Repository defines the interface for activity data persistence.
// This interface is implemented by the infrastructure layer.
type Repository interface {
	// Create appends an activity to the log.
	Create(ctx context.Context, activity *Activity) error

	// ListByUser returns the latest activities of a user, newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]*Activity, error)

	// UpsertTopicProgress applies an activity to the (user, topic) progress row,
	// creating the row if needed, in a single atomic statement.
	UpsertTopicProgress(ctx context.Context, userID, topicID string, kind Type, at time.Time) (*TopicProgress, error)
}

// GoalRepository stores learning goals.
type GoalRepository interface {
	// Create stores a new goal.
	Create(ctx context.Context, goal *Goal) error

	// ListByUser returns all goals of a user, newest first.
	ListByUser(ctx context.Context, userID string) ([]*Goal, error)

	// AdvanceActive increments progress of every active goal of the user that
	// tracks the given activity type, completing goals that reach their target.
	// Each increment is a single conditional update. Returns the advanced goals.
	AdvanceActive(ctx context.Context, userID string, kind Type, at time.Time) ([]*Goal, error)
}
