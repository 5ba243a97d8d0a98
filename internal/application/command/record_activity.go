package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/learnhub/learnhub/internal/domain/activity"
	"github.com/learnhub/learnhub/internal/domain/progression"
	"github.com/learnhub/learnhub/internal/domain/shared"
	"github.com/learnhub/learnhub/pkg/logger"
	"github.com/learnhub/learnhub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD ACTIVITY COMMAND
// Appends a learning activity and applies its side effects: the daily streak,
// matching learning goals, topic progress and the configured experience reward.
// ══════════════════════════════════════════════════════════════════════════════

// RecordActivityCommand contains the data to record an activity.
type RecordActivityCommand struct {
	UserID       string
	ActivityType string

	// TopicID ties lesson_completed and topic_completed to a topic row.
	TopicID string

	// Score is the assessment percentage, only for assessment_completed.
	Score *int

	Metadata map[string]any

	CorrelationID string
}

// Validate validates the command.
func (c RecordActivityCommand) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return shared.ErrEmptyUserID
	}
	kind, err := activity.ParseType(c.ActivityType)
	if err != nil {
		return err
	}
	if c.Score != nil && kind != activity.TypeAssessmentCompleted {
		return shared.ValidationError("activity", "Validate", "score is only valid for assessment_completed")
	}
	return nil
}

// RecordActivityResult contains the result of recording an activity.
type RecordActivityResult struct {
	Activity *activity.Activity

	StreakAction  progression.StreakAction
	CurrentStreak int
	LongestStreak int

	AdvancedGoals  []*activity.Goal
	CompletedGoals []*activity.Goal

	TopicProgress *activity.TopicProgress

	// Experience is nil when the activity type carries no reward.
	Experience *AwardExperienceResult
}

// ExperienceAwarder grants experience. AwardExperienceHandler implements it.
type ExperienceAwarder interface {
	Handle(ctx context.Context, cmd AwardExperienceCommand) (*AwardExperienceResult, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RecordActivityHandler handles the RecordActivityCommand.
type RecordActivityHandler struct {
	activities activity.Repository
	goals      activity.GoalRepository
	streaks    progression.StreakRepository
	awarder    ExperienceAwarder
	rewards    map[activity.Type]int
	retrier    *retry.Retrier
	deps       Deps
}

// NewRecordActivityHandler creates a new RecordActivityHandler.
// rewards maps activity type names to experience; unknown names are ignored.
func NewRecordActivityHandler(
	activities activity.Repository,
	goals activity.GoalRepository,
	streaks progression.StreakRepository,
	awarder ExperienceAwarder,
	rewards map[string]int,
	deps Deps,
) *RecordActivityHandler {
	table := make(map[activity.Type]int, len(rewards))
	for name, amount := range rewards {
		kind, err := activity.ParseType(name)
		if err != nil || amount <= 0 {
			continue
		}
		table[kind] = amount
	}

	return &RecordActivityHandler{
		activities: activities,
		goals:      goals,
		streaks:    streaks,
		awarder:    awarder,
		rewards:    table,
		retrier:    conflictRetrier(),
		deps:       deps.withDefaults(),
	}
}

// Handle executes the record activity command.
// The activity row is written first; later steps that fail return an error
// but do not remove it.
func (h *RecordActivityHandler) Handle(ctx context.Context, cmd RecordActivityCommand) (*RecordActivityResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("record_activity: %w", err)
	}
	kind, _ := activity.ParseType(cmd.ActivityType)
	now := h.deps.Now()

	act, err := activity.NewActivity(h.deps.NewID(), cmd.UserID, kind, cmd.TopicID, now)
	if err != nil {
		return nil, fmt.Errorf("record_activity: %w", err)
	}
	if cmd.Score != nil {
		if err := act.WithScore(*cmd.Score); err != nil {
			return nil, fmt.Errorf("record_activity: %w", err)
		}
	}
	if cmd.Metadata != nil {
		act.Metadata = cmd.Metadata
	}

	if err := h.activities.Create(ctx, act); err != nil {
		return nil, fmt.Errorf("record_activity: failed to save activity: %w", err)
	}

	log := h.deps.Logger.With(
		logger.UserID(cmd.UserID),
		logger.ActivityType(string(kind)),
		logger.Operation("record_activity"),
	)
	result := &RecordActivityResult{Activity: act, StreakAction: progression.StreakUnchanged}
	events := []shared.Event{h.recordedEvent(cmd, act)}

	if h.deps.Features.Enabled(FeatureStreaks, cmd.UserID) {
		streak, action, err := h.updateStreak(ctx, cmd.UserID, now)
		if err != nil {
			return nil, fmt.Errorf("record_activity: failed to update streak: %w", err)
		}
		result.StreakAction = action
		result.CurrentStreak = streak.CurrentStreak
		result.LongestStreak = streak.LongestStreak
		if action.Changed() {
			events = append(events, shared.NewStreakUpdatedEvent(cmd.UserID, action.String(), streak.CurrentStreak, streak.LongestStreak))
		}
	}

	if h.deps.Features.Enabled(FeatureGoals, cmd.UserID) {
		advanced, err := h.goals.AdvanceActive(ctx, cmd.UserID, kind, now)
		if err != nil {
			return nil, fmt.Errorf("record_activity: failed to advance goals: %w", err)
		}
		result.AdvancedGoals = advanced
		for _, g := range advanced {
			if g.IsCompleted() {
				result.CompletedGoals = append(result.CompletedGoals, g)
				events = append(events, shared.NewGoalCompletedEvent(cmd.UserID, g.ID, g.Target))
			}
		}
	}

	if cmd.TopicID != "" && kind.TouchesTopic() {
		progress, err := h.activities.UpsertTopicProgress(ctx, cmd.UserID, cmd.TopicID, kind, now)
		if err != nil {
			return nil, fmt.Errorf("record_activity: failed to update topic progress: %w", err)
		}
		result.TopicProgress = progress
	}

	if amount, ok := h.rewards[kind]; ok && h.awarder != nil && h.deps.Features.Enabled(FeatureActivityXP, cmd.UserID) {
		award, err := h.awarder.Handle(ctx, AwardExperienceCommand{
			UserID:        cmd.UserID,
			Amount:        amount,
			Source:        "activity:" + string(kind),
			CorrelationID: cmd.CorrelationID,
		})
		if err != nil {
			return nil, fmt.Errorf("record_activity: failed to award experience: %w", err)
		}
		result.Experience = award
	}

	publishAll(h.deps.Publisher, log, events)
	log.Debug("activity recorded",
		logger.String("streak_action", result.StreakAction.String()),
		logger.Int("goals_advanced", len(result.AdvancedGoals)),
	)

	return result, nil
}

// updateStreak runs the streak read-modify-write under the conflict retrier.
// Unchanged streaks are not written.
func (h *RecordActivityHandler) updateStreak(ctx context.Context, userID string, today time.Time) (*progression.UserStreak, progression.StreakAction, error) {
	var (
		streak *progression.UserStreak
		action progression.StreakAction
	)
	err := h.retrier.Do(ctx, func(ctx context.Context) error {
		s, err := h.streaks.GetOrCreate(ctx, userID)
		if err != nil {
			return err
		}
		a := s.Record(today)
		if a.Changed() {
			if err := h.streaks.Update(ctx, s); err != nil {
				return err
			}
		}
		streak, action = s, a
		return nil
	})
	return streak, action, err
}

func (h *RecordActivityHandler) recordedEvent(cmd RecordActivityCommand, act *activity.Activity) shared.Event {
	e := shared.NewActivityRecordedEvent(cmd.UserID, act.ID, string(act.Type), act.TopicID)
	if cmd.CorrelationID != "" {
		e.BaseEvent = e.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	return e
}
