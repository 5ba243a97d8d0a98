package command

import (
	"context"
	"fmt"
	"time"

	"github.com/learnhub/learnhub/internal/domain/activity"
	"github.com/learnhub/learnhub/internal/domain/shared"
)

// CreateGoalCommand sets a learning goal: "do Target activities of ActivityType".
type CreateGoalCommand struct {
	UserID       string
	ActivityType string
	Target       int
	Deadline     *time.Time
}

// CreateGoalHandler handles the CreateGoalCommand.
type CreateGoalHandler struct {
	goals activity.GoalRepository
	deps  Deps
}

// NewCreateGoalHandler creates a new CreateGoalHandler.
func NewCreateGoalHandler(goals activity.GoalRepository, deps Deps) *CreateGoalHandler {
	return &CreateGoalHandler{goals: goals, deps: deps.withDefaults()}
}

// Handle validates and stores the goal.
func (h *CreateGoalHandler) Handle(ctx context.Context, cmd CreateGoalCommand) (*activity.Goal, error) {
	if !h.deps.Features.Enabled(FeatureGoals, cmd.UserID) {
		return nil, fmt.Errorf("create_goal: %w", shared.NewDomainError("activity", "CreateGoal", shared.ErrForbidden, "learning goals are disabled"))
	}

	kind, err := activity.ParseType(cmd.ActivityType)
	if err != nil {
		return nil, fmt.Errorf("create_goal: %w", err)
	}
	goal, err := activity.NewGoal(h.deps.NewID(), cmd.UserID, kind, cmd.Target, cmd.Deadline, h.deps.Now())
	if err != nil {
		return nil, fmt.Errorf("create_goal: %w", err)
	}
	if err := h.goals.Create(ctx, goal); err != nil {
		return nil, fmt.Errorf("create_goal: failed to save goal: %w", err)
	}
	return goal, nil
}
