package command

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/learnhub/learnhub/internal/domain/progression"
	"github.com/learnhub/learnhub/internal/domain/shared"
	"github.com/learnhub/learnhub/internal/infrastructure/persistence/memory"
	"github.com/learnhub/learnhub/pkg/logger"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) AddDays(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.AddDate(0, 0, n)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Types() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

type failingMetrics struct{}

func (failingMetrics) Append(context.Context, *progression.ProgressMetric) error {
	return errors.New("connection reset by peer")
}

func (failingMetrics) ListByUser(context.Context, string, int) ([]*progression.ProgressMetric, error) {
	return nil, nil
}

// alwaysConflicting loses every version race.
type alwaysConflicting struct {
	progression.LevelRepository
	mu      sync.Mutex
	updates int
}

func (r *alwaysConflicting) Update(context.Context, *progression.UserLevel) error {
	r.mu.Lock()
	r.updates++
	r.mu.Unlock()
	return shared.ErrConcurrentModification
}

type staticGate map[string]bool

func (g staticGate) Enabled(feature, _ string) bool {
	on, ok := g[feature]
	return !ok || on
}

type fixture struct {
	store     *memory.Store
	clock     *testClock
	publisher *recordingPublisher
	logs      *bytes.Buffer
	deps      Deps

	levels  *memory.LevelRepository
	streaks *memory.StreakRepository
	metrics *memory.MetricRepository
	acts    *memory.ActivityRepository
	goals   *memory.GoalRepository
	achs    *memory.AchievementRepository
}

func newFixture() *fixture {
	store := memory.NewStore()
	clock := newTestClock()
	pub := &recordingPublisher{}
	logs := &bytes.Buffer{}

	return &fixture{
		store:     store,
		clock:     clock,
		publisher: pub,
		logs:      logs,
		deps: Deps{
			Publisher: pub,
			Logger:    logger.New(logger.Options{Output: &syncWriter{w: logs}, Level: logger.LevelDebug}),
			Now:       clock.Now,
		},
		levels:  memory.NewLevelRepository(store),
		streaks: memory.NewStreakRepository(store),
		metrics: memory.NewMetricRepository(store),
		acts:    memory.NewActivityRepository(store),
		goals:   memory.NewGoalRepository(store),
		achs:    memory.NewAchievementRepository(store),
	}
}

func (f *fixture) awardHandler() *AwardExperienceHandler {
	return NewAwardExperienceHandler(f.levels, f.metrics, f.deps)
}

func (f *fixture) recordHandler(rewards map[string]int) *RecordActivityHandler {
	return NewRecordActivityHandler(f.acts, f.goals, f.streaks, f.awardHandler(), rewards, f.deps)
}

func (f *fixture) checkHandler() *CheckAchievementsHandler {
	return NewCheckAchievementsHandler(f.achs, f.achs, f.achs, f.deps)
}

type syncWriter struct {
	mu sync.Mutex
	w  *bytes.Buffer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
