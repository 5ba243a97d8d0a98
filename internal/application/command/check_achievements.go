package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/learnhub/learnhub/internal/domain/progression"
	"github.com/learnhub/learnhub/internal/domain/shared"
	"github.com/learnhub/learnhub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHECK ACHIEVEMENTS COMMAND
// Evaluates the catalog against the user's aggregate stats and awards every
// newly qualifying achievement in one insert-if-absent batch.
// ══════════════════════════════════════════════════════════════════════════════

// CheckAchievementsCommand contains the user to evaluate.
type CheckAchievementsCommand struct {
	UserID        string
	CorrelationID string
}

// Validate validates the command.
func (c CheckAchievementsCommand) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return shared.ErrEmptyUserID
	}
	return nil
}

// CheckAchievementsResult lists what this call awarded.
// Achievements that a concurrent call awarded first are not included.
type CheckAchievementsResult struct {
	NewlyAwarded []progression.Achievement
	Count        int
}

// CatalogSource provides the achievement catalog. The Redis catalog cache and
// the Postgres repository both implement it.
type CatalogSource interface {
	ListCatalog(ctx context.Context) ([]progression.Achievement, error)
}

// CheckAchievementsHandler handles the CheckAchievementsCommand.
type CheckAchievementsHandler struct {
	catalog CatalogSource
	earned  progression.UserAchievementRepository
	stats   progression.StatsReader
	deps    Deps
}

// NewCheckAchievementsHandler creates a new CheckAchievementsHandler.
func NewCheckAchievementsHandler(
	catalog CatalogSource,
	earned progression.UserAchievementRepository,
	stats progression.StatsReader,
	deps Deps,
) *CheckAchievementsHandler {
	return &CheckAchievementsHandler{
		catalog: catalog,
		earned:  earned,
		stats:   stats,
		deps:    deps.withDefaults(),
	}
}

// Handle executes the check.
func (h *CheckAchievementsHandler) Handle(ctx context.Context, cmd CheckAchievementsCommand) (*CheckAchievementsResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("check_achievements: %w", err)
	}

	result := &CheckAchievementsResult{NewlyAwarded: []progression.Achievement{}}
	if !h.deps.Features.Enabled(FeatureAchievements, cmd.UserID) {
		return result, nil
	}

	items, err := h.catalog.ListCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("check_achievements: failed to load catalog: %w", err)
	}
	catalog, err := progression.NewCatalog(items)
	if err != nil {
		return nil, fmt.Errorf("check_achievements: %w", err)
	}

	stats, err := h.stats.Stats(ctx, cmd.UserID, h.deps.Now())
	if err != nil {
		return nil, fmt.Errorf("check_achievements: failed to load stats: %w", err)
	}
	earnedIDs, err := h.earned.EarnedIDs(ctx, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("check_achievements: failed to load earned achievements: %w", err)
	}

	qualifying := progression.Evaluate(stats, catalog.All(), progression.EarnedSet(earnedIDs))
	if len(qualifying) == 0 {
		return result, nil
	}

	inserted, err := h.earned.AwardBatch(ctx, cmd.UserID, qualifying, h.deps.Now())
	if err != nil {
		return nil, fmt.Errorf("check_achievements: failed to award: %w", err)
	}

	log := h.deps.Logger.With(logger.UserID(cmd.UserID), logger.Operation("check_achievements"))
	events := make([]shared.Event, 0, len(inserted))
	for _, id := range inserted {
		a, ok := catalog.Get(id)
		if !ok {
			continue
		}
		result.NewlyAwarded = append(result.NewlyAwarded, a)

		e := shared.NewAchievementUnlockedEvent(cmd.UserID, a.ID, a.Code, a.Name)
		if cmd.CorrelationID != "" {
			e.BaseEvent = e.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		}
		events = append(events, e)
		log.Info("achievement unlocked", logger.AchievementID(a.ID), logger.String("code", a.Code))
	}
	result.Count = len(result.NewlyAwarded)

	publishAll(h.deps.Publisher, log, events)
	return result, nil
}
