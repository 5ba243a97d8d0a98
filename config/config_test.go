package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "learnhub", cfg.App.Name)
	assert.Equal(t, time.UTC, cfg.App.Location)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, DefaultXPRewards(), cfg.Gamification.XPRewards)
	assert.True(t, cfg.Features.Enabled(FeatureStreaks, "u-1"))
}

func TestLoad_XPRewardsOverride(t *testing.T) {
	t.Setenv("XP_REWARDS", "lesson_completed=5, login=1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"lesson_completed": 5, "login": 1}, cfg.Gamification.XPRewards)
}

func TestLoad_XPRewardsRejectsNonPositive(t *testing.T) {
	t.Setenv("XP_REWARDS", "lesson_completed=0")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RejectsUnknownTimezone(t *testing.T) {
	t.Setenv("APP_TIMEZONE", "Mars/Olympus_Mons")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APP_TIMEZONE")
}

func TestValidate_ProductionRequiresSecrets(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_HOST", "")
	t.Setenv("CLERK_SECRET_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "CLERK_SECRET_KEY")
}

func TestFeatureFlags_EnvOverride(t *testing.T) {
	t.Setenv("FEATURE_GAMIFICATION_GOALS", "false")

	ff := LoadFeatureFlags()
	assert.False(t, ff.Enabled(FeatureGoals, "u-1"))
	assert.True(t, ff.Enabled(FeatureAchievements, "u-1"))
}

func TestFeatureFlags_RolloutIsStable(t *testing.T) {
	ff := NewFeatureFlags()
	require.NoError(t, ff.SetRolloutPercent(FeatureCodeExecution, 30))

	first := ff.Enabled(FeatureCodeExecution, "user-42")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ff.Enabled(FeatureCodeExecution, "user-42"))
	}

	ff.SetUserOverride("user-42", FeatureCodeExecution, !first)
	assert.Equal(t, !first, ff.Enabled(FeatureCodeExecution, "user-42"))

	assert.ErrorIs(t, ff.SetRolloutPercent(FeatureCodeExecution, 101), ErrInvalidRolloutPercent)
	assert.ErrorIs(t, ff.SetRolloutPercent("nope", 10), ErrFeatureNotFound)
}
