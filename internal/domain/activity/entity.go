// Package activity contains the learner activity log, topic progress and
// learning goals. Activities drive streaks and goal progress; topic progress
// feeds the aggregate stats used for achievements.
// This is a pure domain layer with zero external dependencies.
package activity

import (
	"strings"
	"time"

	"github.com/learnhub/learnhub/internal/domain/shared"
)

// Type is the kind of a recorded activity.
type Type string

const (
	TypeLessonStarted       Type = "lesson_started"
	TypeLessonCompleted     Type = "lesson_completed"
	TypeTopicCompleted      Type = "topic_completed"
	TypeAssessmentCompleted Type = "assessment_completed"
	TypeCodeExecuted        Type = "code_executed"
	TypeLogin               Type = "login"
)

// Types lists every known activity type.
func Types() []Type {
	return []Type{
		TypeLessonStarted,
		TypeLessonCompleted,
		TypeTopicCompleted,
		TypeAssessmentCompleted,
		TypeCodeExecuted,
		TypeLogin,
	}
}

// ParseType normalizes and validates an activity type.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Types() {
		if t == known {
			return t, nil
		}
	}
	return "", shared.ErrUnknownActivityType
}

// String returns the string representation of Type.
func (t Type) String() string {
	return string(t)
}

// TouchesTopic reports whether activities of this type advance topic progress.
func (t Type) TouchesTopic() bool {
	return t == TypeLessonCompleted || t == TypeTopicCompleted
}

// HighScorePercent is the assessment score (0..100) that counts as a high score.
const HighScorePercent = 80

// Activity is one row of the append-only activity log.
type Activity struct {
	ID        string
	UserID    string
	Type      Type
	TopicID   string // empty when the activity is not tied to a topic
	Score     *int   // assessment score percent, only for assessment_completed
	Metadata  map[string]any
	CreatedAt time.Time
}

// NewActivity validates input and builds an Activity.
func NewActivity(id, userID string, kind Type, topicID string, createdAt time.Time) (*Activity, error) {
	if strings.TrimSpace(id) == "" {
		return nil, shared.ValidationError("activity", "New", "activity id is required")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, shared.ErrEmptyUserID
	}
	if _, err := ParseType(string(kind)); err != nil {
		return nil, err
	}
	return &Activity{
		ID:        id,
		UserID:    userID,
		Type:      kind,
		TopicID:   strings.TrimSpace(topicID),
		Metadata:  map[string]any{},
		CreatedAt: createdAt.UTC(),
	}, nil
}

// WithScore attaches an assessment score. Scores outside 0..100 are rejected.
func (a *Activity) WithScore(score int) error {
	if a.Type != TypeAssessmentCompleted {
		return shared.ValidationError("activity", "WithScore", "score is only valid for assessment_completed")
	}
	if score < 0 || score > 100 {
		return shared.NewDomainError("activity", "WithScore", shared.ErrValueOutOfRange, "score must be between 0 and 100")
	}
	a.Score = &score
	return nil
}

// IsHighScore reports whether the activity is an assessment passed with a high score.
func (a *Activity) IsHighScore() bool {
	return a.Type == TypeAssessmentCompleted && a.Score != nil && *a.Score >= HighScorePercent
}

// ══════════════════════════════════════════════════════════════════════════════
// TOPIC PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// TopicProgress is keyed by (UserID, TopicID).
type TopicProgress struct {
	UserID           string
	TopicID          string
	LessonsCompleted int
	Completed        bool
	UpdatedAt        time.Time
}

// Apply advances the progress for an activity of the given type.
func (p *TopicProgress) Apply(kind Type, at time.Time) {
	switch kind {
	case TypeLessonCompleted:
		p.LessonsCompleted++
	case TypeTopicCompleted:
		p.Completed = true
	}
	p.UpdatedAt = at.UTC()
}

// ══════════════════════════════════════════════════════════════════════════════
// LEARNING GOALS
// ══════════════════════════════════════════════════════════════════════════════

// Goal is a user-defined target: "complete Target activities of Type".
type Goal struct {
	ID           string
	UserID       string
	ActivityType Type
	Target       int
	Progress     int
	Deadline     *time.Time
	CompletedAt  *time.Time
	CreatedAt    time.Time
}

// NewGoal validates and builds a Goal.
func NewGoal(id, userID string, kind Type, target int, deadline *time.Time, now time.Time) (*Goal, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, shared.ErrEmptyUserID
	}
	if _, err := ParseType(string(kind)); err != nil {
		return nil, err
	}
	if target < 1 {
		return nil, shared.NewDomainError("activity", "NewGoal", shared.ErrValueOutOfRange, "goal target must be at least 1")
	}
	if deadline != nil && !deadline.After(now) {
		return nil, shared.NewDomainError("activity", "NewGoal", shared.ErrValueOutOfRange, "goal deadline must be in the future")
	}
	return &Goal{
		ID:           id,
		UserID:       userID,
		ActivityType: kind,
		Target:       target,
		Deadline:     deadline,
		CreatedAt:    now.UTC(),
	}, nil
}

// IsCompleted reports whether the goal was reached.
func (g *Goal) IsCompleted() bool {
	return g.CompletedAt != nil
}

// IsActive reports whether the goal still accepts progress at the given time.
func (g *Goal) IsActive(at time.Time) bool {
	if g.IsCompleted() {
		return false
	}
	return g.Deadline == nil || !at.After(*g.Deadline)
}

// Advance adds one unit of progress. Returns true when this call completed the goal.
func (g *Goal) Advance(at time.Time) bool {
	if !g.IsActive(at) {
		return false
	}
	g.Progress++
	if g.Progress >= g.Target {
		completed := at.UTC()
		g.CompletedAt = &completed
		return true
	}
	return false
}

// Remaining returns how many activities are left to reach the target.
func (g *Goal) Remaining() int {
	if g.Progress >= g.Target {
		return 0
	}
	return g.Target - g.Progress
}
