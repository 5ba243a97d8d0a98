package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/learnhub/config"
	"github.com/learnhub/learnhub/internal/domain/progression"
)

type fakeJSON struct {
	data   map[string][]byte
	getErr error
}

func newFakeJSON() *fakeJSON { return &fakeJSON{data: map[string][]byte{}} }

func (f *fakeJSON) Get(_ context.Context, key string, dest any) error {
	if f.getErr != nil {
		return f.getErr
	}
	raw, ok := f.data[key]
	if !ok {
		return ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (f *fakeJSON) Set(_ context.Context, key string, value any, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.data[key] = raw
	return nil
}

func (f *fakeJSON) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

type countingStore struct {
	items []progression.Achievement
	lists int
}

func (s *countingStore) ListCatalog(context.Context) ([]progression.Achievement, error) {
	s.lists++
	return s.items, nil
}

func (s *countingStore) UpsertCatalog(_ context.Context, items []progression.Achievement) (int, error) {
	s.items = items
	return len(items), nil
}

func sampleCatalog() []progression.Achievement {
	return []progression.Achievement{{
		ID: "a-1", Code: "first_lesson", Name: "First Steps",
		Criteria: progression.Criteria{Kind: progression.CriteriaLessonCompletion, Threshold: 1},
	}}
}

func TestCatalogCache_ReadThrough(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{items: sampleCatalog()}
	c := newCatalogCache(store, newFakeJSON(), time.Minute, nil)

	first, err := c.ListCatalog(ctx)
	require.NoError(t, err)
	second, err := c.ListCatalog(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.lists)
}

func TestCatalogCache_UpsertInvalidates(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{items: sampleCatalog()}
	c := newCatalogCache(store, newFakeJSON(), time.Minute, nil)

	_, err := c.ListCatalog(ctx)
	require.NoError(t, err)

	updated := append(sampleCatalog(), progression.Achievement{
		ID: "a-2", Code: "week", Name: "Week Warrior",
		Criteria: progression.Criteria{Kind: progression.CriteriaStreakDays, Threshold: 7},
	})
	n, err := c.UpsertCatalog(ctx, updated)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	items, err := c.ListCatalog(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, 2, store.lists)
}

func TestCatalogCache_FallsBackOnRedisError(t *testing.T) {
	store := &countingStore{items: sampleCatalog()}
	cache := newFakeJSON()
	cache.getErr = errors.New("connection refused")
	c := newCatalogCache(store, cache, time.Minute, nil)

	items, err := c.ListCatalog(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestCatalogCache_Warm(t *testing.T) {
	store := &countingStore{items: sampleCatalog()}
	cache := newFakeJSON()
	c := newCatalogCache(store, cache, time.Minute, nil)

	n, err := c.Warm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, cache.data, CatalogKey())
}

type fakeCounter struct{ counts map[string]int64 }

func (f *fakeCounter) IncrWindow(_ context.Context, key string, _ time.Duration) (int64, error) {
	f.counts[key]++
	return f.counts[key], nil
}

func TestRateLimiter_FixedWindow(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 30, 15, 0, time.UTC)
	l := &RateLimiter{counter: &fakeCounter{counts: map[string]int64{}}, now: func() time.Time { return now }}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := l.Allow(ctx, "u-1", "execute", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 2-i, d.Remaining)
	}

	d, err := l.Allow(ctx, "u-1", "execute", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 45*time.Second, d.RetryAfter)

	d, err = l.Allow(ctx, "u-2", "execute", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	now = now.Add(time.Minute)
	d, err = l.Allow(ctx, "u-1", "execute", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestConfig_URLTakesPrecedence(t *testing.T) {
	opts, err := Config{URL: "redis://:secret@cache:6380/2", Host: "ignored", Port: 1}.options()
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, "secret", opts.Password)
}

func TestConfigFrom_KeepsDefaultsForUnsetFields(t *testing.T) {
	rc := ConfigFrom(config.RedisConfig{URL: "redis://cache:6380/2", PoolSize: 32})

	assert.Equal(t, "redis://cache:6380/2", rc.URL)
	assert.Equal(t, 32, rc.PoolSize)
	assert.Equal(t, "localhost:6379", rc.Addr())
	assert.Equal(t, 3*time.Second, rc.ReadTimeout)
	assert.Equal(t, 3, rc.MaxRetries)
}
