package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/learnhub/internal/domain/activity"
	"github.com/learnhub/learnhub/internal/domain/progression"
	"github.com/learnhub/learnhub/internal/domain/shared"
	"github.com/learnhub/learnhub/pkg/timeutil"
)

func TestLevelRepository_OptimisticUpdate(t *testing.T) {
	ctx := context.Background()
	repo := NewLevelRepository(NewStore())

	_, err := repo.Get(ctx, "u-1")
	assert.True(t, shared.IsNotFound(err))

	first, err := repo.GetOrCreate(ctx, "u-1")
	require.NoError(t, err)
	second, err := repo.GetOrCreate(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, first.Version, second.Version)

	_, err = first.Award(50)
	require.NoError(t, err)
	require.NoError(t, repo.Update(ctx, first))
	assert.Equal(t, int64(1), first.Version)

	_, err = second.Award(50)
	require.NoError(t, err)
	err = repo.Update(ctx, second)
	assert.ErrorIs(t, err, shared.ErrConcurrentModification)
	assert.True(t, shared.IsConflict(err))

	stored, err := repo.Get(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, 50, stored.Experience)
}

func TestStreakRepository_ResetStale(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := NewStreakRepository(store)

	old, err := repo.GetOrCreate(ctx, "old")
	require.NoError(t, err)
	old.Record(timeutil.Date(2025, 1, 1))
	require.NoError(t, repo.Update(ctx, old))

	fresh, err := repo.GetOrCreate(ctx, "fresh")
	require.NoError(t, err)
	fresh.Record(timeutil.Date(2025, 1, 9))
	require.NoError(t, repo.Update(ctx, fresh))

	n, err := repo.ResetStale(ctx, timeutil.Date(2025, 1, 9))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := repo.Get(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, 0, got.CurrentStreak)
	assert.Equal(t, 1, got.LongestStreak)

	// The sweep bumped the version, so a stale copy loses.
	assert.ErrorIs(t, repo.Update(ctx, old), shared.ErrConcurrentModification)
}

func TestAchievementRepository_AwardBatchIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewAchievementRepository(NewStore())

	_, err := repo.UpsertCatalog(ctx, []progression.Achievement{
		{ID: "a-1", Code: "one", Name: "One", Criteria: progression.Criteria{Kind: progression.CriteriaLessonCompletion, Threshold: 1}},
		{ID: "a-2", Code: "two", Name: "Two", Criteria: progression.Criteria{Kind: progression.CriteriaStreakDays, Threshold: 2}},
	})
	require.NoError(t, err)

	now := time.Now()
	inserted, err := repo.AwardBatch(ctx, "u-1", []string{"a-1", "a-2"}, now)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a-1", "a-2"}, inserted)

	inserted, err = repo.AwardBatch(ctx, "u-1", []string{"a-1", "a-2"}, now)
	require.NoError(t, err)
	assert.Empty(t, inserted)

	ids, err := repo.EarnedIDs(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a-1", "a-2"}, ids)

	_, err = repo.AwardBatch(ctx, "u-1", []string{"missing"}, now)
	assert.True(t, shared.IsNotFound(err))
}

func TestAchievementRepository_UpsertByCodeKeepsID(t *testing.T) {
	ctx := context.Background()
	repo := NewAchievementRepository(NewStore())

	_, err := repo.UpsertCatalog(ctx, []progression.Achievement{
		{ID: "a-1", Code: "streak", Name: "Streak", Criteria: progression.Criteria{Kind: progression.CriteriaStreakDays, Threshold: 3}},
	})
	require.NoError(t, err)
	_, err = repo.UpsertCatalog(ctx, []progression.Achievement{
		{Code: "streak", Name: "Streak Master", Criteria: progression.Criteria{Kind: progression.CriteriaStreakDays, Threshold: 5}},
	})
	require.NoError(t, err)

	items, err := repo.ListCatalog(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "a-1", items[0].ID)
	assert.Equal(t, "Streak Master", items[0].Name)
	assert.Equal(t, 5, items[0].Criteria.Threshold)

	_, err = repo.UpsertCatalog(ctx, []progression.Achievement{
		{Code: "bad", Name: "Bad", Criteria: progression.Criteria{Kind: "bogus", Threshold: 1}},
	})
	assert.True(t, shared.IsValidation(err))
}

func TestAchievementRepository_Stats(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	acts := NewActivityRepository(store)
	stats := NewAchievementRepository(store)

	now := time.Now()
	for i, kind := range []activity.Type{activity.TypeLessonCompleted, activity.TypeLessonCompleted, activity.TypeAssessmentCompleted, activity.TypeAssessmentCompleted} {
		a, err := activity.NewActivity(string(rune('a'+i)), "u-1", kind, "", now)
		require.NoError(t, err)
		if kind == activity.TypeAssessmentCompleted {
			require.NoError(t, a.WithScore(50+i*10))
		}
		require.NoError(t, acts.Create(ctx, a))
	}
	_, err := acts.UpsertTopicProgress(ctx, "u-1", "t-1", activity.TypeTopicCompleted, now)
	require.NoError(t, err)

	got, err := stats.Stats(ctx, "u-1", now)
	require.NoError(t, err)
	assert.Equal(t, progression.UserStats{
		LessonsCompleted:     2,
		TopicsCompleted:      1,
		AssessmentsCompleted: 2,
		HighScoreAssessments: 1,
	}, got)
}

func TestAchievementRepository_StatsIgnoresLapsedStreak(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	streaks := NewStreakRepository(store)
	stats := NewAchievementRepository(store)

	st, err := streaks.GetOrCreate(ctx, "u-1")
	require.NoError(t, err)
	st.Record(timeutil.Date(2025, 5, 1))
	st.Record(timeutil.Date(2025, 5, 2))
	require.NoError(t, streaks.Update(ctx, st))

	got, err := stats.Stats(ctx, "u-1", timeutil.Date(2025, 5, 3))
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentStreak)

	got, err = stats.Stats(ctx, "u-1", timeutil.Date(2025, 5, 4))
	require.NoError(t, err)
	assert.Zero(t, got.CurrentStreak)
}

func TestGoalRepository_AdvanceActive(t *testing.T) {
	ctx := context.Background()
	repo := NewGoalRepository(NewStore())
	now := time.Now()

	g, err := activity.NewGoal("g-1", "u-1", activity.TypeLessonCompleted, 1, nil, now)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, g))

	other, err := activity.NewGoal("g-2", "u-1", activity.TypeLogin, 5, nil, now)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, other))

	advanced, err := repo.AdvanceActive(ctx, "u-1", activity.TypeLessonCompleted, now)
	require.NoError(t, err)
	require.Len(t, advanced, 1)
	assert.True(t, advanced[0].IsCompleted())

	advanced, err = repo.AdvanceActive(ctx, "u-1", activity.TypeLessonCompleted, now)
	require.NoError(t, err)
	assert.Empty(t, advanced, "completed goals are not advanced again")
}
