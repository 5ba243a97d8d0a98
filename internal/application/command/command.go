// Package command contains write operations (CQRS - Commands).
package command

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/learnhub/learnhub/internal/domain/shared"
	"github.com/learnhub/learnhub/pkg/logger"
	"github.com/learnhub/learnhub/pkg/retry"
)

// FeatureGate reports whether a feature is on for a user.
// config.FeatureFlags satisfies it.
type FeatureGate interface {
	Enabled(feature, userID string) bool
}

// Feature names checked by handlers. They match the config flag names.
const (
	FeatureStreaks      = "gamification.streaks"
	FeatureAchievements = "gamification.achievements"
	FeatureGoals        = "gamification.goals"
	FeatureActivityXP   = "gamification.activity_xp"

	FeatureCodeExecution = "platform.code_execution"
)

type allFeatures struct{}

func (allFeatures) Enabled(string, string) bool { return true }

// AllFeatures is a FeatureGate with every feature on.
var AllFeatures FeatureGate = allFeatures{}

// Deps are the cross-cutting collaborators every handler takes.
// Zero fields get defaults in withDefaults.
type Deps struct {
	Publisher shared.EventPublisher
	Logger    *logger.Logger
	Features  FeatureGate
	Now       func() time.Time
	NewID     func() string
}

func (d Deps) withDefaults() Deps {
	if d.Publisher == nil {
		d.Publisher = discardPublisher{}
	}
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	if d.Features == nil {
		d.Features = AllFeatures
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	if d.NewID == nil {
		d.NewID = func() string { return uuid.NewString() }
	}
	return d
}

type discardPublisher struct{}

func (discardPublisher) Publish(shared.Event) error { return nil }

// conflictRetrier re-runs a read-modify-write once after losing a version race.
func conflictRetrier() *retry.Retrier {
	return retry.ConflictRetrier(func(err error) bool {
		return errors.Is(err, shared.ErrConcurrentModification)
	})
}

// publishAll sends events in order. Publishing is fire-and-forget: a failing
// subscriber never fails the command that already committed.
func publishAll(p shared.EventPublisher, log *logger.Logger, events []shared.Event) {
	for _, e := range events {
		if err := p.Publish(e); err != nil {
			log.Warn("event publish failed",
				logger.String("event_type", string(e.EventType())),
				logger.Err(err),
			)
		}
	}
}
