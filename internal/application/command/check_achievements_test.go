package command

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/learnhub/internal/domain/progression"
	"github.com/learnhub/learnhub/internal/domain/shared"
)

func seedCatalog(t *testing.T, f *fixture) {
	t.Helper()
	_, err := f.achs.UpsertCatalog(context.Background(), []progression.Achievement{
		{ID: "a-first-lesson", Code: "first_lesson", Name: "First Steps", Criteria: progression.Criteria{Kind: progression.CriteriaLessonCompletion, Threshold: 1}},
		{ID: "a-three-lessons", Code: "three_lessons", Name: "Getting Going", Criteria: progression.Criteria{Kind: progression.CriteriaLessonCompletion, Threshold: 3}},
		{ID: "a-streak-2", Code: "streak_2", Name: "Two Days", Criteria: progression.Criteria{Kind: progression.CriteriaStreakDays, Threshold: 2}},
		{ID: "a-ace", Code: "ace", Name: "Ace", Criteria: progression.Criteria{Kind: progression.CriteriaAssessmentScore, Threshold: 1}},
	})
	require.NoError(t, err)
}

func TestCheckAchievements_AwardsQualifyingOnce(t *testing.T) {
	f := newFixture()
	seedCatalog(t, f)
	ctx := context.Background()

	rec := f.recordHandler(nil)
	_, err := rec.Handle(ctx, RecordActivityCommand{UserID: "u-1", ActivityType: "lesson_completed"})
	require.NoError(t, err)
	f.clock.AddDays(1)
	_, err = rec.Handle(ctx, RecordActivityCommand{UserID: "u-1", ActivityType: "lesson_completed"})
	require.NoError(t, err)

	h := f.checkHandler()
	res, err := h.Handle(ctx, CheckAchievementsCommand{UserID: "u-1"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count)
	codes := []string{res.NewlyAwarded[0].Code, res.NewlyAwarded[1].Code}
	assert.ElementsMatch(t, []string{"first_lesson", "streak_2"}, codes)

	res, err = h.Handle(ctx, CheckAchievementsCommand{UserID: "u-1"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Count)
	assert.Empty(t, res.NewlyAwarded)

	var unlocked int
	for _, typ := range f.publisher.Types() {
		if typ == shared.EventAchievementUnlocked {
			unlocked++
		}
	}
	assert.Equal(t, 2, unlocked)
}

func TestCheckAchievements_ConcurrentChecksAwardOnce(t *testing.T) {
	f := newFixture()
	seedCatalog(t, f)
	ctx := context.Background()

	_, err := f.recordHandler(nil).Handle(ctx, RecordActivityCommand{UserID: "u-1", ActivityType: "lesson_completed"})
	require.NoError(t, err)

	h := f.checkHandler()
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.Handle(ctx, CheckAchievementsCommand{UserID: "u-1"})
			assert.NoError(t, err)
			if res != nil {
				mu.Lock()
				total += res.Count
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, total)
	earned, err := f.achs.EarnedIDs(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a-first-lesson"}, earned)
}

type brokenCatalog struct{}

func (brokenCatalog) ListCatalog(context.Context) ([]progression.Achievement, error) {
	return []progression.Achievement{
		{ID: "x", Code: "x", Name: "X", Criteria: progression.Criteria{Kind: "karma", Threshold: 1}},
	}, nil
}

func TestCheckAchievements_RejectsInvalidCatalog(t *testing.T) {
	f := newFixture()
	h := NewCheckAchievementsHandler(brokenCatalog{}, f.achs, f.achs, f.deps)

	_, err := h.Handle(context.Background(), CheckAchievementsCommand{UserID: "u-1"})
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}

func TestCheckAchievements_DisabledFeature(t *testing.T) {
	f := newFixture()
	seedCatalog(t, f)
	f.deps.Features = staticGate{FeatureAchievements: false}

	_, err := f.recordHandler(nil).Handle(context.Background(), RecordActivityCommand{UserID: "u-1", ActivityType: "lesson_completed"})
	require.NoError(t, err)

	res, err := f.checkHandler().Handle(context.Background(), CheckAchievementsCommand{UserID: "u-1"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Count)
}

func TestCreateGoal_Validation(t *testing.T) {
	f := newFixture()
	h := NewCreateGoalHandler(f.goals, f.deps)

	_, err := h.Handle(context.Background(), CreateGoalCommand{UserID: "u-1", ActivityType: "lesson_completed", Target: 0})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(context.Background(), CreateGoalCommand{UserID: "u-1", ActivityType: "nap", Target: 3})
	assert.True(t, shared.IsValidation(err))

	past := f.clock.Now().AddDate(0, 0, -1)
	_, err = h.Handle(context.Background(), CreateGoalCommand{UserID: "u-1", ActivityType: "login", Target: 3, Deadline: &past})
	assert.True(t, shared.IsValidation(err))
}
