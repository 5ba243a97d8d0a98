package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/learnhub/internal/domain/progression"
	"github.com/learnhub/learnhub/internal/infrastructure/persistence/memory"
	"github.com/learnhub/learnhub/pkg/timeutil"
)

func TestSweepStreaksJob_ResetsUsersWhoMissedYesterday(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	repo := memory.NewStreakRepository(store)

	seed := func(userID string, lastActive time.Time) {
		s, err := repo.GetOrCreate(ctx, userID)
		require.NoError(t, err)
		s.Record(lastActive)
		require.NoError(t, repo.Update(ctx, s))
	}
	seed("active-today", timeutil.Date(2025, 6, 10))
	seed("active-yesterday", timeutil.Date(2025, 6, 9))
	seed("lapsed", timeutil.Date(2025, 6, 7))

	job := NewSweepStreaksJob(repo, nil)
	job.now = func() time.Time { return time.Date(2025, 6, 10, 0, 5, 0, 0, time.UTC) }

	require.NoError(t, job.Run(ctx))
	require.NotNil(t, job.LastRun())
	assert.EqualValues(t, 1, job.LastRun().Reset)
	assert.Equal(t, timeutil.Date(2025, 6, 9), job.LastRun().Before)

	lapsed, err := repo.Get(ctx, "lapsed")
	require.NoError(t, err)
	assert.Equal(t, 0, lapsed.CurrentStreak)
	assert.Equal(t, 1, lapsed.LongestStreak)

	kept, err := repo.Get(ctx, "active-yesterday")
	require.NoError(t, err)
	assert.Equal(t, 1, kept.CurrentStreak)

	assert.Equal(t, progression.StreakReset, lapsed.Record(timeutil.Date(2025, 6, 10)))
}

type fakeWarmer struct {
	n   int
	err error
}

func (f fakeWarmer) Warm(context.Context) (int, error) { return f.n, f.err }

func TestWarmCatalogJob(t *testing.T) {
	assert.NoError(t, NewWarmCatalogJob(fakeWarmer{n: 4}, nil).Run(context.Background()))

	err := NewWarmCatalogJob(fakeWarmer{err: errors.New("redis down")}, nil).Run(context.Background())
	assert.ErrorContains(t, err, "redis down")
}
