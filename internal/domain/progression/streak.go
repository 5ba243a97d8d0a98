package progression

import (
	"time"

	"github.com/learnhub/learnhub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK TRACKER
// ══════════════════════════════════════════════════════════════════════════════

// StreakAction describes what an activity did to a streak.
type StreakAction string

const (
	// StreakStarted - first qualifying activity ever.
	StreakStarted StreakAction = "started"
	// StreakContinued - previous active day was yesterday.
	StreakContinued StreakAction = "continued"
	// StreakReset - one or more days were missed.
	StreakReset StreakAction = "reset"
	// StreakUnchanged - already counted today.
	StreakUnchanged StreakAction = "unchanged"
)

// String implements fmt.Stringer.
func (a StreakAction) String() string {
	return string(a)
}

// Changed reports whether the action requires a write.
func (a StreakAction) Changed() bool {
	return a != StreakUnchanged
}

// UpdateStreak decides the next streak value for an activity happening on today.
// lastActive is nil when the user has no recorded activity.
// Both dates are reduced to UTC calendar days before comparison.
func UpdateStreak(lastActive *time.Time, currentStreak int, today time.Time) (int, StreakAction) {
	if lastActive == nil || lastActive.IsZero() {
		return 1, StreakStarted
	}

	switch days := timeutil.DaysBetween(*lastActive, today); {
	case days == 0:
		return currentStreak, StreakUnchanged
	case days < 0:
		// Another node with a faster clock already recorded a later day.
		return currentStreak, StreakUnchanged
	case days == 1:
		return currentStreak + 1, StreakContinued
	default:
		return 1, StreakReset
	}
}

// UserStreak is the per-user streak record.
type UserStreak struct {
	UserID        string
	CurrentStreak int
	LongestStreak int
	LastActive    *time.Time
	Version       int64
	UpdatedAt     time.Time
}

// NewUserStreak returns an empty streak for a user.
func NewUserStreak(userID string) *UserStreak {
	return &UserStreak{UserID: userID}
}

// Record applies an activity on the given day and returns the action taken.
// LongestStreak is kept at max(LongestStreak, CurrentStreak).
func (s *UserStreak) Record(today time.Time) StreakAction {
	next, action := UpdateStreak(s.LastActive, s.CurrentStreak, today)
	if !action.Changed() {
		return action
	}

	day := timeutil.StartOfDay(today)
	s.CurrentStreak = next
	s.LastActive = &day
	if s.CurrentStreak > s.LongestStreak {
		s.LongestStreak = s.CurrentStreak
	}
	s.UpdatedAt = time.Now().UTC()
	return action
}

// IsBroken reports whether the streak can no longer be continued on today.
func (s *UserStreak) IsBroken(today time.Time) bool {
	if s.LastActive == nil {
		return false
	}
	return timeutil.DaysBetween(*s.LastActive, today) > 1
}

// CurrentOn is the streak as observed on today: a lapsed streak reads as 0
// even before anything has written the reset.
func (s *UserStreak) CurrentOn(today time.Time) int {
	if s.IsBroken(today) {
		return 0
	}
	return s.CurrentStreak
}

// ActiveToday reports whether the user has already been counted on today.
func (s *UserStreak) ActiveToday(today time.Time) bool {
	return s.LastActive != nil && timeutil.IsSameDay(*s.LastActive, today)
}
