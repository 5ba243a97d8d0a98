// Package memory provides in-process implementations of the repositories.
// They follow the same contracts as the PostgreSQL ones, including the
// version check on updates and insert-if-absent for achievements, and back
// the API when DATABASE_URL is empty and the handler tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/learnhub/learnhub/internal/domain/activity"
	"github.com/learnhub/learnhub/internal/domain/progression"
	"github.com/learnhub/learnhub/internal/domain/shared"
	"github.com/learnhub/learnhub/pkg/timeutil"
)

// Store holds every table. One mutex guards all of them, standing in for the
// row-level atomicity a database gives each single statement.
type Store struct {
	mu sync.RWMutex

	levels       map[string]progression.UserLevel
	streaks      map[string]progression.UserStreak
	achievements map[string]progression.Achievement // by id
	earned       map[string]map[string]time.Time    // user -> achievement -> earned_at
	metrics      []progression.ProgressMetric
	activities   []activity.Activity
	topics       map[[2]string]activity.TopicProgress
	goals        map[string]activity.Goal
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		levels:       make(map[string]progression.UserLevel),
		streaks:      make(map[string]progression.UserStreak),
		achievements: make(map[string]progression.Achievement),
		earned:       make(map[string]map[string]time.Time),
		topics:       make(map[[2]string]activity.TopicProgress),
		goals:        make(map[string]activity.Goal),
	}
}

// Ping implements the readiness check.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// ══════════════════════════════════════════════════════════════════════════════
// LEVELS
// ══════════════════════════════════════════════════════════════════════════════

// LevelRepository implements progression.LevelRepository.
type LevelRepository struct{ s *Store }

// NewLevelRepository creates a LevelRepository over the store.
func NewLevelRepository(s *Store) *LevelRepository { return &LevelRepository{s: s} }

// Get returns a copy of the user's level record.
func (r *LevelRepository) Get(_ context.Context, userID string) (*progression.UserLevel, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	l, ok := r.s.levels[userID]
	if !ok {
		return nil, shared.ErrUserLevelNotFound
	}
	return &l, nil
}

// GetOrCreate returns the record, inserting the default if absent.
func (r *LevelRepository) GetOrCreate(_ context.Context, userID string) (*progression.UserLevel, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	l, ok := r.s.levels[userID]
	if !ok {
		l = *progression.NewUserLevel(userID)
		r.s.levels[userID] = l
	}
	return &l, nil
}

// Update stores the record if the version matches.
func (r *LevelRepository) Update(_ context.Context, level *progression.UserLevel) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.levels[level.UserID]
	if !ok || current.Version != level.Version {
		return shared.WrapError("progression", "UpdateLevel", shared.ErrConcurrentModification,
			"level record changed concurrently", nil)
	}

	level.Version++
	level.UpdatedAt = time.Now().UTC()
	r.s.levels[level.UserID] = *level
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STREAKS
// ══════════════════════════════════════════════════════════════════════════════

// StreakRepository implements progression.StreakRepository.
type StreakRepository struct{ s *Store }

// NewStreakRepository creates a StreakRepository over the store.
func NewStreakRepository(s *Store) *StreakRepository { return &StreakRepository{s: s} }

func copyStreak(st progression.UserStreak) *progression.UserStreak {
	if st.LastActive != nil {
		day := *st.LastActive
		st.LastActive = &day
	}
	return &st
}

// Get returns a copy of the user's streak.
func (r *StreakRepository) Get(_ context.Context, userID string) (*progression.UserStreak, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	st, ok := r.s.streaks[userID]
	if !ok {
		return nil, shared.ErrStreakNotFound
	}
	return copyStreak(st), nil
}

// GetOrCreate returns the streak, inserting an empty one if absent.
func (r *StreakRepository) GetOrCreate(_ context.Context, userID string) (*progression.UserStreak, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	st, ok := r.s.streaks[userID]
	if !ok {
		st = *progression.NewUserStreak(userID)
		r.s.streaks[userID] = st
	}
	return copyStreak(st), nil
}

// Update stores the streak if the version matches.
func (r *StreakRepository) Update(_ context.Context, streak *progression.UserStreak) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.streaks[streak.UserID]
	if !ok || current.Version != streak.Version {
		return shared.WrapError("progression", "UpdateStreak", shared.ErrConcurrentModification,
			"streak record changed concurrently", nil)
	}

	streak.Version++
	streak.UpdatedAt = time.Now().UTC()
	r.s.streaks[streak.UserID] = *copyStreak(*streak)
	return nil
}

// ResetStale zeroes streaks last active before the given day.
func (r *StreakRepository) ResetStale(_ context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cutoff := timeutil.StartOfDay(before)
	var n int64
	for id, st := range r.s.streaks {
		if st.CurrentStreak > 0 && st.LastActive != nil && st.LastActive.Before(cutoff) {
			st.CurrentStreak = 0
			st.Version++
			st.UpdatedAt = time.Now().UTC()
			r.s.streaks[id] = st
			n++
		}
	}
	return n, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENTS
// ══════════════════════════════════════════════════════════════════════════════

// AchievementRepository implements the catalog, user achievement and stats interfaces.
type AchievementRepository struct{ s *Store }

// NewAchievementRepository creates an AchievementRepository over the store.
func NewAchievementRepository(s *Store) *AchievementRepository {
	return &AchievementRepository{s: s}
}

// ListCatalog returns the catalog ordered by creation time, then code.
func (r *AchievementRepository) ListCatalog(_ context.Context) ([]progression.Achievement, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	items := make([]progression.Achievement, 0, len(r.s.achievements))
	for _, a := range r.s.achievements {
		items = append(items, a)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].Code < items[j].Code
	})
	return items, nil
}

// UpsertCatalog inserts or updates entries by code.
func (r *AchievementRepository) UpsertCatalog(_ context.Context, items []progression.Achievement) (int, error) {
	for _, a := range items {
		if _, err := progression.NewCriteria(a.Criteria.Kind, a.Criteria.Threshold); err != nil {
			return 0, err
		}
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	byCode := make(map[string]string, len(r.s.achievements))
	for id, a := range r.s.achievements {
		byCode[a.Code] = id
	}

	for _, a := range items {
		if existing, ok := byCode[a.Code]; ok {
			prev := r.s.achievements[existing]
			a.ID = existing
			a.CreatedAt = prev.CreatedAt
		} else {
			if a.ID == "" {
				a.ID = uuid.NewString()
			}
			if a.CreatedAt.IsZero() {
				a.CreatedAt = time.Now().UTC()
			}
			byCode[a.Code] = a.ID
		}
		r.s.achievements[a.ID] = a
	}
	return len(items), nil
}

// EarnedIDs returns the ids a user holds.
func (r *AchievementRepository) EarnedIDs(_ context.Context, userID string) ([]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	ids := make([]string, 0, len(r.s.earned[userID]))
	for id := range r.s.earned[userID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// ListEarned returns earned achievements, newest first.
func (r *AchievementRepository) ListEarned(_ context.Context, userID string) ([]progression.UserAchievement, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]progression.UserAchievement, 0, len(r.s.earned[userID]))
	for id, at := range r.s.earned[userID] {
		out = append(out, progression.UserAchievement{UserID: userID, AchievementID: id, EarnedAt: at})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EarnedAt.Equal(out[j].EarnedAt) {
			return out[i].EarnedAt.After(out[j].EarnedAt)
		}
		return out[i].AchievementID < out[j].AchievementID
	})
	return out, nil
}

// AwardBatch inserts the pairs that do not exist yet and returns them.
func (r *AchievementRepository) AwardBatch(_ context.Context, userID string, ids []string, earnedAt time.Time) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, id := range ids {
		if _, ok := r.s.achievements[id]; !ok {
			return nil, shared.ErrAchievementNotFound
		}
	}

	held, ok := r.s.earned[userID]
	if !ok {
		held = make(map[string]time.Time)
		r.s.earned[userID] = held
	}

	var inserted []string
	for _, id := range ids {
		if _, dup := held[id]; dup {
			continue
		}
		held[id] = earnedAt.UTC()
		inserted = append(inserted, id)
	}
	return inserted, nil
}

// Stats aggregates the counters for a user.
func (r *AchievementRepository) Stats(_ context.Context, userID string, today time.Time) (progression.UserStats, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var st progression.UserStats
	for i := range r.s.activities {
		a := &r.s.activities[i]
		if a.UserID != userID {
			continue
		}
		switch a.Type {
		case activity.TypeLessonCompleted:
			st.LessonsCompleted++
		case activity.TypeAssessmentCompleted:
			st.AssessmentsCompleted++
			if a.IsHighScore() {
				st.HighScoreAssessments++
			}
		}
	}
	for key, p := range r.s.topics {
		if key[0] == userID && p.Completed {
			st.TopicsCompleted++
		}
	}
	if streak, ok := r.s.streaks[userID]; ok {
		st.CurrentStreak = streak.CurrentOn(today)
	}
	return st, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// MetricRepository implements progression.MetricRepository.
type MetricRepository struct{ s *Store }

// NewMetricRepository creates a MetricRepository over the store.
func NewMetricRepository(s *Store) *MetricRepository { return &MetricRepository{s: s} }

// Append stores one metric row.
func (r *MetricRepository) Append(_ context.Context, m *progression.ProgressMetric) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	r.s.metrics = append(r.s.metrics, *m)
	return nil
}

// ListByUser returns the latest metrics of a user.
func (r *MetricRepository) ListByUser(_ context.Context, userID string, limit int) ([]*progression.ProgressMetric, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*progression.ProgressMetric
	for i := len(r.s.metrics) - 1; i >= 0; i-- {
		if r.s.metrics[i].UserID != userID {
			continue
		}
		m := r.s.metrics[i]
		out = append(out, &m)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITIES & GOALS
// ══════════════════════════════════════════════════════════════════════════════

// ActivityRepository implements activity.Repository.
type ActivityRepository struct{ s *Store }

// NewActivityRepository creates an ActivityRepository over the store.
func NewActivityRepository(s *Store) *ActivityRepository { return &ActivityRepository{s: s} }

// Create appends an activity.
func (r *ActivityRepository) Create(_ context.Context, a *activity.Activity) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.activities = append(r.s.activities, *a)
	return nil
}

// ListByUser returns the latest activities of a user.
func (r *ActivityRepository) ListByUser(_ context.Context, userID string, limit int) ([]*activity.Activity, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*activity.Activity
	for i := len(r.s.activities) - 1; i >= 0; i-- {
		if r.s.activities[i].UserID != userID {
			continue
		}
		a := r.s.activities[i]
		out = append(out, &a)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// UpsertTopicProgress creates or advances the (user, topic) row.
func (r *ActivityRepository) UpsertTopicProgress(_ context.Context, userID, topicID string, kind activity.Type, at time.Time) (*activity.TopicProgress, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := [2]string{userID, topicID}
	p, ok := r.s.topics[key]
	if !ok {
		p = activity.TopicProgress{UserID: userID, TopicID: topicID}
	}
	p.Apply(kind, at)
	r.s.topics[key] = p
	return &p, nil
}

// GoalRepository implements activity.GoalRepository.
type GoalRepository struct{ s *Store }

// NewGoalRepository creates a GoalRepository over the store.
func NewGoalRepository(s *Store) *GoalRepository { return &GoalRepository{s: s} }

// Create stores a goal.
func (r *GoalRepository) Create(_ context.Context, g *activity.Goal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.goals[g.ID]; ok {
		return shared.NewDomainError("activity", "CreateGoal", shared.ErrAlreadyExists, "goal already exists")
	}
	r.s.goals[g.ID] = *g
	return nil
}

// ListByUser returns all goals of a user, newest first.
func (r *GoalRepository) ListByUser(_ context.Context, userID string) ([]*activity.Goal, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*activity.Goal
	for _, g := range r.s.goals {
		if g.UserID == userID {
			g := g
			out = append(out, &g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// AdvanceActive increments all matching active goals.
func (r *GoalRepository) AdvanceActive(_ context.Context, userID string, kind activity.Type, at time.Time) ([]*activity.Goal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*activity.Goal
	for id, g := range r.s.goals {
		if g.UserID != userID || g.ActivityType != kind || !g.IsActive(at) {
			continue
		}
		g.Advance(at)
		r.s.goals[id] = g
		g := g
		out = append(out, &g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
