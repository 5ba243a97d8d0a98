package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Each event represents something significant that
// happened to a learner's progression.
const (
	// Progression events
	EventExperienceAwarded EventType = "progression.experience_awarded"
	EventLevelUp           EventType = "progression.level_up"
	EventStreakUpdated     EventType = "progression.streak_updated"
	EventStreakReset       EventType = "progression.streak_reset"

	// Achievement events
	EventAchievementUnlocked EventType = "achievement.unlocked"

	// Activity events
	EventActivityRecorded EventType = "activity.recorded"
	EventGoalCompleted    EventType = "activity.goal_completed"
	EventCodeExecuted     EventType = "activity.code_executed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Progression Events
// ═══════════════════════════════════════════════════════════════════════════

// ExperienceAwardedEvent is emitted after an experience award is persisted.
type ExperienceAwardedEvent struct {
	BaseEvent
	UserID       string `json:"user_id"`
	Amount       int    `json:"amount"`
	Source       string `json:"source"`
	NewLevel     int    `json:"new_level"`
	LevelsGained int    `json:"levels_gained"`
}

// Payload implements Event interface.
func (e ExperienceAwardedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":       e.UserID,
		"amount":        e.Amount,
		"source":        e.Source,
		"new_level":     e.NewLevel,
		"levels_gained": e.LevelsGained,
	}
}

// NewExperienceAwardedEvent creates a new ExperienceAwardedEvent.
func NewExperienceAwardedEvent(userID string, amount int, source string, newLevel, levelsGained int) ExperienceAwardedEvent {
	return ExperienceAwardedEvent{
		BaseEvent:    NewBaseEvent(EventExperienceAwarded, userID),
		UserID:       userID,
		Amount:       amount,
		Source:       source,
		NewLevel:     newLevel,
		LevelsGained: levelsGained,
	}
}

// LevelUpEvent is emitted when an award crosses one or more level thresholds.
type LevelUpEvent struct {
	BaseEvent
	UserID   string `json:"user_id"`
	OldLevel int    `json:"old_level"`
	NewLevel int    `json:"new_level"`
}

// Payload implements Event interface.
func (e LevelUpEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":   e.UserID,
		"old_level": e.OldLevel,
		"new_level": e.NewLevel,
	}
}

// NewLevelUpEvent creates a new LevelUpEvent.
func NewLevelUpEvent(userID string, oldLevel, newLevel int) LevelUpEvent {
	return LevelUpEvent{
		BaseEvent: NewBaseEvent(EventLevelUp, userID),
		UserID:    userID,
		OldLevel:  oldLevel,
		NewLevel:  newLevel,
	}
}

// StreakUpdatedEvent is emitted when a daily streak starts, continues or resets.
type StreakUpdatedEvent struct {
	BaseEvent
	UserID        string `json:"user_id"`
	Action        string `json:"action"`
	CurrentStreak int    `json:"current_streak"`
	LongestStreak int    `json:"longest_streak"`
}

// Payload implements Event interface.
func (e StreakUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":        e.UserID,
		"action":         e.Action,
		"current_streak": e.CurrentStreak,
		"longest_streak": e.LongestStreak,
	}
}

// NewStreakUpdatedEvent creates a new StreakUpdatedEvent. Resets get their own event type.
func NewStreakUpdatedEvent(userID, action string, current, longest int) StreakUpdatedEvent {
	eventType := EventStreakUpdated
	if action == "reset" {
		eventType = EventStreakReset
	}
	return StreakUpdatedEvent{
		BaseEvent:     NewBaseEvent(eventType, userID),
		UserID:        userID,
		Action:        action,
		CurrentStreak: current,
		LongestStreak: longest,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Achievement Events
// ═══════════════════════════════════════════════════════════════════════════

// AchievementUnlockedEvent is emitted once per newly awarded achievement.
type AchievementUnlockedEvent struct {
	BaseEvent
	UserID          string `json:"user_id"`
	AchievementID   string `json:"achievement_id"`
	AchievementCode string `json:"achievement_code"`
	Name            string `json:"name"`
}

// Payload implements Event interface.
func (e AchievementUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":          e.UserID,
		"achievement_id":   e.AchievementID,
		"achievement_code": e.AchievementCode,
		"name":             e.Name,
	}
}

// NewAchievementUnlockedEvent creates a new AchievementUnlockedEvent.
func NewAchievementUnlockedEvent(userID, achievementID, code, name string) AchievementUnlockedEvent {
	return AchievementUnlockedEvent{
		BaseEvent:       NewBaseEvent(EventAchievementUnlocked, userID),
		UserID:          userID,
		AchievementID:   achievementID,
		AchievementCode: code,
		Name:            name,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Activity Events
// ═══════════════════════════════════════════════════════════════════════════

// ActivityRecordedEvent is emitted after an activity row is stored.
type ActivityRecordedEvent struct {
	BaseEvent
	UserID       string `json:"user_id"`
	ActivityID   string `json:"activity_id"`
	ActivityType string `json:"activity_type"`
	TopicID      string `json:"topic_id,omitempty"`
}

// Payload implements Event interface.
func (e ActivityRecordedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":       e.UserID,
		"activity_id":   e.ActivityID,
		"activity_type": e.ActivityType,
		"topic_id":      e.TopicID,
	}
}

// NewActivityRecordedEvent creates a new ActivityRecordedEvent.
func NewActivityRecordedEvent(userID, activityID, activityType, topicID string) ActivityRecordedEvent {
	eventType := EventActivityRecorded
	if activityType == "code_executed" {
		eventType = EventCodeExecuted
	}
	return ActivityRecordedEvent{
		BaseEvent:    NewBaseEvent(eventType, userID),
		UserID:       userID,
		ActivityID:   activityID,
		ActivityType: activityType,
		TopicID:      topicID,
	}
}

// GoalCompletedEvent is emitted when a learning goal reaches its target.
type GoalCompletedEvent struct {
	BaseEvent
	UserID string `json:"user_id"`
	GoalID string `json:"goal_id"`
	Target int    `json:"target"`
}

// Payload implements Event interface.
func (e GoalCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id": e.UserID,
		"goal_id": e.GoalID,
		"target":  e.Target,
	}
}

// NewGoalCompletedEvent creates a new GoalCompletedEvent.
func NewGoalCompletedEvent(userID, goalID string, target int) GoalCompletedEvent {
	return GoalCompletedEvent{
		BaseEvent: NewBaseEvent(EventGoalCompleted, userID),
		UserID:    userID,
		GoalID:    goalID,
		Target:    target,
	}
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
