package progression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/learnhub/internal/domain/shared"
)

func TestThreshold_KnownValues(t *testing.T) {
	assert.Equal(t, 100, Threshold(1))
	assert.Equal(t, 283, Threshold(2))
	assert.Equal(t, 520, Threshold(3))
	assert.Equal(t, 800, Threshold(4))
	assert.Equal(t, 100, Threshold(0), "levels below 1 clamp to level 1")
}

func TestThreshold_StrictlyIncreasing(t *testing.T) {
	prev := Threshold(1)
	for level := 2; level <= 500; level++ {
		next := Threshold(level)
		require.Greater(t, next, prev, "level %d", level)
		prev = next
	}
}

func TestApply(t *testing.T) {
	tests := []struct {
		name   string
		level  int
		exp    int
		next   int
		gained int
		want   LevelResult
	}{
		{
			name: "no level up", level: 1, exp: 0, next: 100, gained: 40,
			want: LevelResult{Level: 1, Experience: 40, NextLevelExp: 100},
		},
		{
			name: "exact threshold", level: 1, exp: 60, next: 100, gained: 40,
			want: LevelResult{Level: 2, Experience: 0, NextLevelExp: 283, LeveledUp: true, LevelsGained: 1},
		},
		{
			name: "250 from fresh record", level: 1, exp: 0, next: 100, gained: 250,
			want: LevelResult{Level: 2, Experience: 150, NextLevelExp: 283, LeveledUp: true, LevelsGained: 1},
		},
		{
			name: "multi level jump", level: 1, exp: 0, next: 100, gained: 400,
			want: LevelResult{Level: 3, Experience: 17, NextLevelExp: 520, LeveledUp: true, LevelsGained: 2},
		},
		{
			name: "missing stored threshold is recomputed", level: 2, exp: 10, next: 0, gained: 5,
			want: LevelResult{Level: 2, Experience: 15, NextLevelExp: 283},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply(tt.level, tt.exp, tt.next, tt.gained)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Less(t, got.Experience, got.NextLevelExp)
			assert.GreaterOrEqual(t, got.Experience, 0)
		})
	}
}

func TestApply_RejectsNonPositiveAmount(t *testing.T) {
	for _, amount := range []int{0, -1, -500} {
		_, err := Apply(1, 0, 100, amount)
		require.Error(t, err)
		assert.True(t, shared.IsValidation(err))
		assert.ErrorIs(t, err, shared.ErrInvalidAmount)
	}
}

func TestApply_RejectsInvalidLevel(t *testing.T) {
	_, err := Apply(0, 0, 100, 10)
	assert.ErrorIs(t, err, shared.ErrInvalidLevel)
}

func TestApply_SplitAwardsMatchSingleAward(t *testing.T) {
	awards := []int{7, 93, 120, 1, 300, 44, 999, 5, 250}

	split := NewUserLevel("u-1")
	total := 0
	for _, a := range awards {
		_, err := split.Award(a)
		require.NoError(t, err)
		total += a
	}

	single, err := Apply(StartingLevel, 0, Threshold(StartingLevel), total)
	require.NoError(t, err)

	assert.Equal(t, single.Level, split.CurrentLevel)
	assert.Equal(t, single.Experience, split.Experience)
	assert.Equal(t, single.NextLevelExp, split.NextLevelExp)
	assert.Equal(t, total, split.TotalExperience())
}

func TestUserLevel_AwardLeavesRecordUnchangedOnError(t *testing.T) {
	lvl := NewUserLevel("u-1")
	_, err := lvl.Award(30)
	require.NoError(t, err)

	_, err = lvl.Award(0)
	require.Error(t, err)

	assert.Equal(t, 1, lvl.CurrentLevel)
	assert.Equal(t, 30, lvl.Experience)
	assert.Equal(t, 100, lvl.NextLevelExp)
}

func TestUserLevel_ProgressPercent(t *testing.T) {
	lvl := &UserLevel{CurrentLevel: 2, Experience: 150, NextLevelExp: 283}
	assert.InDelta(t, 53.0, lvl.ProgressPercent(), 0.01)
}
