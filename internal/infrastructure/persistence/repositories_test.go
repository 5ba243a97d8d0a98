package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/learnhub/config"
)

func TestOpen_WithoutURLUsesMemory(t *testing.T) {
	ctx := context.Background()
	repos, err := Open(ctx, config.DatabaseConfig{}, nil)
	require.NoError(t, err)
	defer repos.Close()

	assert.Equal(t, "memory", repos.Backend())
	assert.NoError(t, repos.Ping(ctx))

	_, err = repos.Migrator()
	assert.ErrorIs(t, err, ErrNoDatabase)

	level, err := repos.Levels.GetOrCreate(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, 1, level.CurrentLevel)

	stats, err := repos.Stats.Stats(ctx, "u-1", time.Now())
	require.NoError(t, err)
	assert.Zero(t, stats.LessonsCompleted)
}
