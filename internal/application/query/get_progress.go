// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/learnhub/learnhub/internal/domain/activity"
	"github.com/learnhub/learnhub/internal/domain/progression"
	"github.com/learnhub/learnhub/internal/domain/shared"
	"github.com/learnhub/learnhub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROGRESS QUERY
// Everything the "my progress" screen shows: level, streak, earned
// achievements and goals. Users with no records read as defaults.
// ══════════════════════════════════════════════════════════════════════════════

// GetProgressQuery contains the parameters of the progress query.
type GetProgressQuery struct {
	UserID string

	// IncludeCompletedGoals also returns goals that were already reached.
	IncludeCompletedGoals bool
}

// Validate checks the query parameters.
func (q GetProgressQuery) Validate() error {
	if strings.TrimSpace(q.UserID) == "" {
		return shared.ErrEmptyUserID
	}
	return nil
}

// ProgressDTO is the progress view of one user.
type ProgressDTO struct {
	UserID string `json:"user_id"`

	// ─────────────────────────────────────────────────────────────────────────
	// Level
	// ─────────────────────────────────────────────────────────────────────────

	Level           int     `json:"level"`
	Experience      int     `json:"experience"`
	NextLevelExp    int     `json:"next_level_exp"`
	ProgressPercent float64 `json:"progress_percent"`
	TotalExperience int     `json:"total_experience"`

	// ─────────────────────────────────────────────────────────────────────────
	// Streak
	// ─────────────────────────────────────────────────────────────────────────

	CurrentStreak int     `json:"current_streak"`
	LongestStreak int     `json:"longest_streak"`
	LastActive    *string `json:"last_active,omitempty"` // YYYY-MM-DD, UTC
	ActiveToday   bool    `json:"active_today"`

	// StreakAtRisk is true when the user was active yesterday but not yet today.
	StreakAtRisk bool `json:"streak_at_risk"`

	Achievements []EarnedAchievementDTO `json:"achievements"`
	Goals        []GoalDTO              `json:"goals"`
}

// EarnedAchievementDTO is an earned achievement with its catalog details.
type EarnedAchievementDTO struct {
	ID       string    `json:"id"`
	Code     string    `json:"code"`
	Name     string    `json:"name"`
	Icon     string    `json:"icon,omitempty"`
	EarnedAt time.Time `json:"earned_at"`
}

// GoalDTO is a learning goal view.
type GoalDTO struct {
	ID           string     `json:"id"`
	ActivityType string     `json:"activity_type"`
	Target       int        `json:"target"`
	Progress     int        `json:"progress"`
	Remaining    int        `json:"remaining"`
	Deadline     *time.Time `json:"deadline,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// CatalogSource provides the achievement catalog.
type CatalogSource interface {
	ListCatalog(ctx context.Context) ([]progression.Achievement, error)
}

// GetProgressHandler handles GetProgressQuery.
type GetProgressHandler struct {
	levels  progression.LevelRepository
	streaks progression.StreakRepository
	earned  progression.UserAchievementRepository
	catalog CatalogSource
	goals   activity.GoalRepository
	now     func() time.Time
}

// NewGetProgressHandler creates a new GetProgressHandler.
func NewGetProgressHandler(
	levels progression.LevelRepository,
	streaks progression.StreakRepository,
	earned progression.UserAchievementRepository,
	catalog CatalogSource,
	goals activity.GoalRepository,
) *GetProgressHandler {
	return &GetProgressHandler{
		levels:  levels,
		streaks: streaks,
		earned:  earned,
		catalog: catalog,
		goals:   goals,
		now:     timeutil.Now,
	}
}

// Handle executes the query.
func (h *GetProgressHandler) Handle(ctx context.Context, q GetProgressQuery) (*ProgressDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_progress: %w", err)
	}
	today := h.now()

	level, err := h.levels.Get(ctx, q.UserID)
	if shared.IsNotFound(err) {
		level, err = progression.NewUserLevel(q.UserID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get_progress: failed to load level: %w", err)
	}

	streak, err := h.streaks.Get(ctx, q.UserID)
	if shared.IsNotFound(err) {
		streak, err = progression.NewUserStreak(q.UserID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get_progress: failed to load streak: %w", err)
	}

	dto := &ProgressDTO{
		UserID:          q.UserID,
		Level:           level.CurrentLevel,
		Experience:      level.Experience,
		NextLevelExp:    level.NextLevelExp,
		ProgressPercent: level.ProgressPercent(),
		TotalExperience: level.TotalExperience(),
		CurrentStreak:   streak.CurrentOn(today),
		LongestStreak:   streak.LongestStreak,
		ActiveToday:     streak.ActiveToday(today),
	}
	if streak.LastActive != nil {
		d := timeutil.FormatDate(*streak.LastActive)
		dto.LastActive = &d
		dto.StreakAtRisk = dto.CurrentStreak > 0 && timeutil.DaysBetween(*streak.LastActive, today) == 1
	}

	if dto.Achievements, err = h.achievements(ctx, q.UserID); err != nil {
		return nil, fmt.Errorf("get_progress: %w", err)
	}
	if dto.Goals, err = h.goalViews(ctx, q, today); err != nil {
		return nil, fmt.Errorf("get_progress: %w", err)
	}

	return dto, nil
}

func (h *GetProgressHandler) achievements(ctx context.Context, userID string) ([]EarnedAchievementDTO, error) {
	earned, err := h.earned.ListEarned(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load earned achievements: %w", err)
	}
	out := make([]EarnedAchievementDTO, 0, len(earned))
	if len(earned) == 0 {
		return out, nil
	}

	items, err := h.catalog.ListCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	byID := make(map[string]progression.Achievement, len(items))
	for _, a := range items {
		byID[a.ID] = a
	}

	for _, ua := range earned {
		a := byID[ua.AchievementID]
		out = append(out, EarnedAchievementDTO{
			ID:       ua.AchievementID,
			Code:     a.Code,
			Name:     a.Name,
			Icon:     a.Icon,
			EarnedAt: ua.EarnedAt,
		})
	}
	return out, nil
}

func (h *GetProgressHandler) goalViews(ctx context.Context, q GetProgressQuery, now time.Time) ([]GoalDTO, error) {
	goals, err := h.goals.ListByUser(ctx, q.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load goals: %w", err)
	}
	out := make([]GoalDTO, 0, len(goals))
	for _, g := range goals {
		if !q.IncludeCompletedGoals && !g.IsActive(now) {
			continue
		}
		out = append(out, GoalDTO{
			ID:           g.ID,
			ActivityType: string(g.ActivityType),
			Target:       g.Target,
			Progress:     g.Progress,
			Remaining:    g.Remaining(),
			Deadline:     g.Deadline,
			CompletedAt:  g.CompletedAt,
		})
	}
	return out, nil
}
