package progression

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/learnhub/learnhub/pkg/timeutil"
)

func day(y, m, d int) *time.Time {
	t := timeutil.Date(y, m, d)
	return &t
}

func TestUpdateStreak(t *testing.T) {
	today := time.Date(2025, 3, 10, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		name       string
		lastActive *time.Time
		current    int
		wantStreak int
		wantAction StreakAction
	}{
		{"no prior record", nil, 0, 1, StreakStarted},
		{"same day", day(2025, 3, 10), 4, 4, StreakUnchanged},
		{"yesterday", day(2025, 3, 9), 4, 5, StreakContinued},
		{"three days ago", day(2025, 3, 7), 4, 1, StreakReset},
		{"two days ago", day(2025, 3, 8), 9, 1, StreakReset},
		{"future date from clock skew", day(2025, 3, 11), 2, 2, StreakUnchanged},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			streak, action := UpdateStreak(tt.lastActive, tt.current, today)
			assert.Equal(t, tt.wantStreak, streak)
			assert.Equal(t, tt.wantAction, action)
		})
	}
}

func TestUpdateStreak_UsesUTCCalendarDays(t *testing.T) {
	almaty := time.FixedZone("Asia/Almaty", 5*60*60)
	// 23:30 UTC on the 9th and 04:00 Almaty on the 10th are both the 9th in UTC.
	last := time.Date(2025, 3, 9, 23, 30, 0, 0, time.UTC)
	now := time.Date(2025, 3, 10, 4, 0, 0, 0, almaty)

	streak, action := UpdateStreak(&last, 3, now)
	assert.Equal(t, StreakUnchanged, action)
	assert.Equal(t, 3, streak)
}

func TestUserStreak_Record(t *testing.T) {
	s := NewUserStreak("u-1")

	assert.Equal(t, StreakStarted, s.Record(timeutil.Date(2025, 1, 1)))
	assert.Equal(t, StreakContinued, s.Record(timeutil.Date(2025, 1, 2)))
	assert.Equal(t, StreakUnchanged, s.Record(timeutil.Date(2025, 1, 2).Add(20*time.Hour)))
	assert.Equal(t, StreakContinued, s.Record(timeutil.Date(2025, 1, 3)))
	assert.Equal(t, 3, s.CurrentStreak)
	assert.Equal(t, 3, s.LongestStreak)

	assert.Equal(t, StreakReset, s.Record(timeutil.Date(2025, 1, 10)))
	assert.Equal(t, 1, s.CurrentStreak)
	assert.Equal(t, 3, s.LongestStreak, "longest streak survives a reset")
	assert.Equal(t, timeutil.Date(2025, 1, 10), *s.LastActive)
}

func TestUserStreak_IsBroken(t *testing.T) {
	s := &UserStreak{CurrentStreak: 5, LastActive: day(2025, 5, 1)}

	assert.False(t, s.IsBroken(timeutil.Date(2025, 5, 2)))
	assert.True(t, s.IsBroken(timeutil.Date(2025, 5, 3)))
	assert.True(t, s.ActiveToday(timeutil.Date(2025, 5, 1).Add(time.Hour)))
	assert.False(t, NewUserStreak("x").IsBroken(timeutil.Date(2025, 5, 3)))
}

func TestUserStreak_CurrentOn(t *testing.T) {
	s := &UserStreak{CurrentStreak: 3, LongestStreak: 3, LastActive: day(2025, 5, 3)}

	assert.Equal(t, 3, s.CurrentOn(timeutil.Date(2025, 5, 3)))
	assert.Equal(t, 3, s.CurrentOn(timeutil.Date(2025, 5, 4)))
	assert.Equal(t, 0, s.CurrentOn(timeutil.Date(2025, 5, 10)))
	assert.Equal(t, 3, s.CurrentStreak, "reading does not mutate")
}
