package http

import (
	"net/http"
	"time"

	"github.com/learnhub/learnhub/internal/application/command"
	"github.com/learnhub/learnhub/internal/application/query"
	"github.com/learnhub/learnhub/internal/domain/activity"
	"github.com/learnhub/learnhub/internal/domain/progression"
	"github.com/learnhub/learnhub/internal/domain/shared"
	"github.com/learnhub/learnhub/internal/infrastructure/external/piston"
	"github.com/learnhub/learnhub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Healthy {
		s.writeJSON(w, r, http.StatusServiceUnavailable, status)
		return
	}
	s.writeJSON(w, r, http.StatusOK, status)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Ready {
		s.writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"reason": status.Message,
		})
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive", "uptime": s.Uptime().String()})
}

// ══════════════════════════════════════════════════════════════════════════════
// EXPERIENCE
// ══════════════════════════════════════════════════════════════════════════════

type awardExperienceRequest struct {
	UserID        string `json:"user_id" validate:"notblank,max=128"`
	Amount        int    `json:"amount" validate:"gt=0,lte=100000"`
	Source        string `json:"source" validate:"omitempty,max=64"`
	CorrelationID string `json:"correlation_id" validate:"omitempty,max=128"`
}

// LevelDTO is the level view returned after an award.
type LevelDTO struct {
	UserID          string  `json:"user_id"`
	Level           int     `json:"level"`
	Experience      int     `json:"experience"`
	NextLevelExp    int     `json:"next_level_exp"`
	ProgressPercent float64 `json:"progress_percent"`
	LeveledUp       bool    `json:"leveled_up"`
	LevelsGained    int     `json:"levels_gained"`
}

func levelDTO(res *command.AwardExperienceResult) *LevelDTO {
	if res == nil {
		return nil
	}
	return &LevelDTO{
		UserID:          res.Level.UserID,
		Level:           res.Level.CurrentLevel,
		Experience:      res.Level.Experience,
		NextLevelExp:    res.Level.NextLevelExp,
		ProgressPercent: res.Level.ProgressPercent(),
		LeveledUp:       res.LeveledUp,
		LevelsGained:    res.LevelsGained,
	}
}

func (s *Server) handleAwardExperience(w http.ResponseWriter, r *http.Request) {
	var req awardExperienceRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	source := req.Source
	if source == "" {
		source = "api"
	}

	res, err := s.deps.AwardExperience.Handle(r.Context(), command.AwardExperienceCommand{
		UserID:        req.UserID,
		Amount:        req.Amount,
		Source:        source,
		CorrelationID: req.CorrelationID,
	})
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, levelDTO(res))
}

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITIES
// ══════════════════════════════════════════════════════════════════════════════

type recordActivityRequest struct {
	ActivityType string         `json:"activity_type" validate:"required,activity_type"`
	TopicID      string         `json:"topic_id" validate:"omitempty,max=128"`
	Score        *int           `json:"score" validate:"omitempty,gte=0,lte=100"`
	Metadata     map[string]any `json:"metadata"`
}

// ActivityResultDTO is the response of recording an activity.
type ActivityResultDTO struct {
	ActivityID     string    `json:"activity_id"`
	ActivityType   string    `json:"activity_type"`
	StreakAction   string    `json:"streak_action"`
	CurrentStreak  int       `json:"current_streak"`
	LongestStreak  int       `json:"longest_streak"`
	CompletedGoals []string  `json:"completed_goals"`
	Topic          *TopicDTO `json:"topic,omitempty"`
	Level          *LevelDTO `json:"level,omitempty"`
}

// TopicDTO is a topic progress view.
type TopicDTO struct {
	TopicID          string `json:"topic_id"`
	LessonsCompleted int    `json:"lessons_completed"`
	Completed        bool   `json:"completed"`
}

func activityResultDTO(res *command.RecordActivityResult) ActivityResultDTO {
	dto := ActivityResultDTO{
		ActivityID:     res.Activity.ID,
		ActivityType:   string(res.Activity.Type),
		StreakAction:   res.StreakAction.String(),
		CurrentStreak:  res.CurrentStreak,
		LongestStreak:  res.LongestStreak,
		CompletedGoals: make([]string, 0, len(res.CompletedGoals)),
		Level:          levelDTO(res.Experience),
	}
	for _, g := range res.CompletedGoals {
		dto.CompletedGoals = append(dto.CompletedGoals, g.ID)
	}
	if p := res.TopicProgress; p != nil {
		dto.Topic = &TopicDTO{TopicID: p.TopicID, LessonsCompleted: p.LessonsCompleted, Completed: p.Completed}
	}
	return dto
}

func (s *Server) handleRecordActivity(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	var req recordActivityRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	res, err := s.deps.RecordActivity.Handle(r.Context(), command.RecordActivityCommand{
		UserID:        userID,
		ActivityType:  req.ActivityType,
		TopicID:       req.TopicID,
		Score:         req.Score,
		Metadata:      req.Metadata,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusCreated, activityResultDTO(res))
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENTS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleListAchievements(w http.ResponseWriter, r *http.Request) {
	items, err := s.deps.ListAchievements.Handle(r.Context())
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, items)
}

func (s *Server) handleCheckAchievements(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	res, err := s.deps.CheckAchievements.Handle(r.Context(), command.CheckAchievementsCommand{
		UserID:        userID,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	awarded := make([]query.AchievementDTO, 0, len(res.NewlyAwarded))
	for _, a := range res.NewlyAwarded {
		awarded = append(awarded, achievementDTO(a))
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"newly_awarded": awarded,
		"count":         res.Count,
	})
}

func achievementDTO(a progression.Achievement) query.AchievementDTO {
	return query.AchievementDTO{
		ID:          a.ID,
		Code:        a.Code,
		Name:        a.Name,
		Description: a.Description,
		Icon:        a.Icon,
		Criteria:    a.Criteria.String(),
		Kind:        string(a.Criteria.Kind),
		Threshold:   a.Criteria.Threshold,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS & GOALS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	dto, err := s.deps.GetProgress.Handle(r.Context(), query.GetProgressQuery{
		UserID:                userID,
		IncludeCompletedGoals: getQueryParamBool(r, "include_completed"),
	})
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, dto)
}

type createGoalRequest struct {
	ActivityType string     `json:"activity_type" validate:"required,activity_type"`
	Target       int        `json:"target" validate:"gt=0,lte=10000"`
	Deadline     *time.Time `json:"deadline"`
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	var req createGoalRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	goal, err := s.deps.CreateGoal.Handle(r.Context(), command.CreateGoalCommand{
		UserID:       userID,
		ActivityType: req.ActivityType,
		Target:       req.Target,
		Deadline:     req.Deadline,
	})
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusCreated, goalDTO(goal))
}

func goalDTO(g *activity.Goal) query.GoalDTO {
	return query.GoalDTO{
		ID:           g.ID,
		ActivityType: string(g.ActivityType),
		Target:       g.Target,
		Progress:     g.Progress,
		Remaining:    g.Remaining(),
		Deadline:     g.Deadline,
		CompletedAt:  g.CompletedAt,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CODE EXECUTION
// ══════════════════════════════════════════════════════════════════════════════

type executeRequest struct {
	Language string   `json:"language" validate:"notblank,max=32"`
	Version  string   `json:"version" validate:"omitempty,max=32"`
	Source   string   `json:"source" validate:"notblank"`
	Stdin    string   `json:"stdin" validate:"max=65536"`
	Args     []string `json:"args" validate:"max=16,dive,max=256"`
	TopicID  string   `json:"topic_id" validate:"omitempty,max=128"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	if s.deps.Executor == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, "unavailable", "Code execution is not configured", nil)
		return
	}
	if s.deps.Features != nil && !s.deps.Features.Enabled(command.FeatureCodeExecution, userID) {
		s.handleError(w, r, shared.NewDomainError("executor", "Execute", shared.ErrForbidden, "code execution is disabled"))
		return
	}

	var req executeRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	res, err := s.deps.Executor.Execute(r.Context(), piston.ExecuteRequest{
		Language: req.Language,
		Version:  req.Version,
		Source:   req.Source,
		Stdin:    req.Stdin,
		Args:     req.Args,
	})
	if s.deps.MetricsObserver != nil {
		s.deps.MetricsObserver.ObserveExecution(req.Language, err)
	}
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	if s.deps.RecordActivity != nil {
		_, recErr := s.deps.RecordActivity.Handle(r.Context(), command.RecordActivityCommand{
			UserID:       userID,
			ActivityType: string(activity.TypeCodeExecuted),
			TopicID:      req.TopicID,
			Metadata: map[string]any{
				"language":  res.Language,
				"version":   res.Version,
				"succeeded": res.Succeeded(),
			},
			CorrelationID: getRequestID(r.Context()),
		})
		if recErr != nil {
			logger.FromContext(r.Context()).Warn("code run not recorded as activity", logger.Err(recErr))
		}
	}

	s.writeJSON(w, r, http.StatusOK, res)
}

func (s *Server) handleListRuntimes(w http.ResponseWriter, r *http.Request) {
	if s.deps.Executor == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, "unavailable", "Code execution is not configured", nil)
		return
	}
	runtimes, err := s.deps.Executor.Runtimes(r.Context())
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, runtimes)
}
