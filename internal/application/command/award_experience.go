package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/learnhub/learnhub/internal/domain/progression"
	"github.com/learnhub/learnhub/internal/domain/shared"
	"github.com/learnhub/learnhub/pkg/logger"
	"github.com/learnhub/learnhub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// AWARD EXPERIENCE COMMAND
// Grants experience to a user, rolls overflow into level-ups and records the
// award in the append-only progress log.
// ══════════════════════════════════════════════════════════════════════════════

// AwardExperienceCommand contains the data to grant experience.
type AwardExperienceCommand struct {
	UserID string
	Amount int

	// Source describes where the experience came from, e.g. "activity:lesson_completed".
	Source string

	CorrelationID string
}

// Validate validates the command.
func (c AwardExperienceCommand) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return shared.ErrEmptyUserID
	}
	if c.Amount <= 0 {
		return shared.ErrInvalidAmount
	}
	return nil
}

// AwardExperienceResult contains the outcome of an award.
type AwardExperienceResult struct {
	Level         *progression.UserLevel
	PreviousLevel int
	LeveledUp     bool
	LevelsGained  int
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// AwardExperienceHandler handles the AwardExperienceCommand.
type AwardExperienceHandler struct {
	levels  progression.LevelRepository
	metrics progression.MetricRepository
	retrier *retry.Retrier
	deps    Deps
}

// NewAwardExperienceHandler creates a new AwardExperienceHandler.
func NewAwardExperienceHandler(
	levels progression.LevelRepository,
	metrics progression.MetricRepository,
	deps Deps,
) *AwardExperienceHandler {
	return &AwardExperienceHandler{
		levels:  levels,
		metrics: metrics,
		retrier: conflictRetrier(),
		deps:    deps.withDefaults(),
	}
}

// Handle executes the award. The level write is the only step that can fail
// the command; the metric row and the events are best-effort.
func (h *AwardExperienceHandler) Handle(ctx context.Context, cmd AwardExperienceCommand) (*AwardExperienceResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("award_experience: %w", err)
	}

	var result *AwardExperienceResult
	err := h.retrier.Do(ctx, func(ctx context.Context) error {
		level, err := h.levels.GetOrCreate(ctx, cmd.UserID)
		if err != nil {
			return err
		}

		previous := level.CurrentLevel
		applied, err := level.Award(cmd.Amount)
		if err != nil {
			return err
		}
		if err := h.levels.Update(ctx, level); err != nil {
			return err
		}

		result = &AwardExperienceResult{
			Level:         level,
			PreviousLevel: previous,
			LeveledUp:     applied.LeveledUp,
			LevelsGained:  applied.LevelsGained,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("award_experience: %w", err)
	}

	log := h.deps.Logger.With(logger.UserID(cmd.UserID), logger.Operation("award_experience"), logger.Source(cmd.Source))

	if err := h.appendMetric(ctx, cmd, result); err != nil {
		log.Warn("progress metric not recorded", logger.Err(err), logger.Amount(cmd.Amount))
	}

	events := []shared.Event{h.awardedEvent(cmd, result)}
	if result.LeveledUp {
		e := shared.NewLevelUpEvent(cmd.UserID, result.PreviousLevel, result.Level.CurrentLevel)
		if cmd.CorrelationID != "" {
			e.BaseEvent = e.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		}
		events = append(events, e)
		log.Info("user leveled up",
			logger.UserLevel(result.Level.CurrentLevel),
			logger.Int("levels_gained", result.LevelsGained),
		)
	}
	publishAll(h.deps.Publisher, log, events)

	return result, nil
}

// appendMetric writes the progress row. Failures come back as telemetry errors.
func (h *AwardExperienceHandler) appendMetric(ctx context.Context, cmd AwardExperienceCommand, result *AwardExperienceResult) error {
	metric := &progression.ProgressMetric{
		ID:          h.deps.NewID(),
		UserID:      cmd.UserID,
		MetricType:  progression.MetricExperience,
		MetricValue: cmd.Amount,
		MetricData: map[string]any{
			"source":        cmd.Source,
			"new_level":     result.Level.CurrentLevel,
			"leveled_up":    result.LeveledUp,
			"levels_gained": result.LevelsGained,
		},
		RecordedAt: h.deps.Now(),
	}
	if err := h.metrics.Append(ctx, metric); err != nil {
		return shared.WrapError("progression", "AppendMetric", shared.ErrTelemetry, "progress metric append failed", err)
	}
	return nil
}

func (h *AwardExperienceHandler) awardedEvent(cmd AwardExperienceCommand, result *AwardExperienceResult) shared.Event {
	e := shared.NewExperienceAwardedEvent(cmd.UserID, cmd.Amount, cmd.Source, result.Level.CurrentLevel, result.LevelsGained)
	if cmd.CorrelationID != "" {
		e.BaseEvent = e.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	return e
}
