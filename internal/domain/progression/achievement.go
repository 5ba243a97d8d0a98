package progression

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/learnhub/learnhub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CRITERIA
// ══════════════════════════════════════════════════════════════════════════════

// CriteriaKind is the closed set of achievement predicates.
type CriteriaKind string

const (
	// CriteriaLessonCompletion compares completed lessons.
	CriteriaLessonCompletion CriteriaKind = "lesson_completion"
	// CriteriaTopicCompletion compares completed topics.
	CriteriaTopicCompletion CriteriaKind = "topic_completion"
	// CriteriaStreakDays compares the current streak.
	CriteriaStreakDays CriteriaKind = "streak_days"
	// CriteriaAssessmentCompletion compares completed assessments.
	CriteriaAssessmentCompletion CriteriaKind = "assessment_completion"
	// CriteriaAssessmentScore compares assessments passed with a high score.
	CriteriaAssessmentScore CriteriaKind = "assessment_score"
)

// CriteriaKinds lists every supported kind.
func CriteriaKinds() []CriteriaKind {
	return []CriteriaKind{
		CriteriaLessonCompletion,
		CriteriaTopicCompletion,
		CriteriaStreakDays,
		CriteriaAssessmentCompletion,
		CriteriaAssessmentScore,
	}
}

// IsValid reports whether k is a known kind.
func (k CriteriaKind) IsValid() bool {
	for _, known := range CriteriaKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// Criteria is a typed achievement predicate: the stat selected by Kind must
// reach Threshold. Values are only built through NewCriteria or ParseCriteria,
// so evaluation never sees an unknown kind.
type Criteria struct {
	Kind      CriteriaKind `json:"type"`
	Threshold int          `json:"threshold"`
}

// NewCriteria validates and builds a Criteria.
func NewCriteria(kind CriteriaKind, threshold int) (Criteria, error) {
	kind = CriteriaKind(strings.ToLower(strings.TrimSpace(string(kind))))
	if !kind.IsValid() {
		return Criteria{}, fmt.Errorf("%w: %q", shared.ErrUnknownCriteria, kind)
	}
	if threshold < 1 {
		return Criteria{}, fmt.Errorf("%w: got %d", shared.ErrInvalidThreshold, threshold)
	}
	return Criteria{Kind: kind, Threshold: threshold}, nil
}

// ParseCriteria decodes the stored JSON form {"type": "...", "threshold": N}.
func ParseCriteria(raw []byte) (Criteria, error) {
	var c Criteria
	if err := json.Unmarshal(raw, &c); err != nil {
		return Criteria{}, shared.WrapError("achievement", "ParseCriteria", shared.ErrInvalidFormat,
			"criteria is not valid JSON", err)
	}
	return NewCriteria(c.Kind, c.Threshold)
}

// Stat returns the value of stats this criteria compares against.
func (c Criteria) Stat(stats UserStats) int {
	switch c.Kind {
	case CriteriaLessonCompletion:
		return stats.LessonsCompleted
	case CriteriaTopicCompletion:
		return stats.TopicsCompleted
	case CriteriaStreakDays:
		return stats.CurrentStreak
	case CriteriaAssessmentCompletion:
		return stats.AssessmentsCompleted
	case CriteriaAssessmentScore:
		return stats.HighScoreAssessments
	default:
		return 0
	}
}

// Satisfied reports whether stats meet the threshold.
func (c Criteria) Satisfied(stats UserStats) bool {
	return c.Stat(stats) >= c.Threshold
}

// String implements fmt.Stringer.
func (c Criteria) String() string {
	return fmt.Sprintf("%s>=%d", c.Kind, c.Threshold)
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENTS
// ══════════════════════════════════════════════════════════════════════════════

// Achievement is an immutable catalog entry.
type Achievement struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Criteria    Criteria  `json:"criteria"`
	Icon        string    `json:"icon,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Validate checks the catalog entry invariants.
func (a Achievement) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return shared.ValidationError("achievement", "Validate", "achievement id is required")
	}
	if strings.TrimSpace(a.Name) == "" {
		return shared.ValidationError("achievement", "Validate", "achievement name is required")
	}
	if _, err := NewCriteria(a.Criteria.Kind, a.Criteria.Threshold); err != nil {
		return err
	}
	return nil
}

// UserAchievement records that a user earned an achievement.
type UserAchievement struct {
	UserID        string    `json:"user_id"`
	AchievementID string    `json:"achievement_id"`
	EarnedAt      time.Time `json:"earned_at"`
}

// UserStats are the aggregate counters achievements are evaluated against.
type UserStats struct {
	LessonsCompleted     int `json:"lessons_completed"`
	TopicsCompleted      int `json:"topics_completed"`
	AssessmentsCompleted int `json:"assessments_completed"`
	HighScoreAssessments int `json:"high_score_assessments"`
	CurrentStreak        int `json:"current_streak"`
}

// Catalog is a validated set of achievements indexed by id.
type Catalog struct {
	items []Achievement
	byID  map[string]Achievement
}

// NewCatalog validates every entry and rejects duplicate ids or codes.
func NewCatalog(items []Achievement) (*Catalog, error) {
	c := &Catalog{
		items: make([]Achievement, 0, len(items)),
		byID:  make(map[string]Achievement, len(items)),
	}
	codes := make(map[string]struct{}, len(items))

	for _, a := range items {
		if err := a.Validate(); err != nil {
			return nil, fmt.Errorf("catalog entry %q: %w", a.Code, err)
		}
		if _, dup := c.byID[a.ID]; dup {
			return nil, shared.WrapError("achievement", "NewCatalog", shared.ErrAlreadyExists,
				"duplicate achievement id", fmt.Errorf("id %q", a.ID))
		}
		if a.Code != "" {
			if _, dup := codes[a.Code]; dup {
				return nil, shared.WrapError("achievement", "NewCatalog", shared.ErrAlreadyExists,
					"duplicate achievement code", fmt.Errorf("code %q", a.Code))
			}
			codes[a.Code] = struct{}{}
		}
		c.items = append(c.items, a)
		c.byID[a.ID] = a
	}

	return c, nil
}

// All returns the catalog entries in load order.
func (c *Catalog) All() []Achievement {
	out := make([]Achievement, len(c.items))
	copy(out, c.items)
	return out
}

// Get returns the entry with the given id.
func (c *Catalog) Get(id string) (Achievement, bool) {
	a, ok := c.byID[id]
	return a, ok
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	return len(c.items)
}

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATOR
// ══════════════════════════════════════════════════════════════════════════════

// Evaluate returns the ids of catalog achievements the user qualifies for and
// does not already hold. The result is sorted so repeated calls compare equal.
func Evaluate(stats UserStats, catalog []Achievement, earned map[string]struct{}) []string {
	var qualifying []string
	for _, a := range catalog {
		if _, ok := earned[a.ID]; ok {
			continue
		}
		if a.Criteria.Satisfied(stats) {
			qualifying = append(qualifying, a.ID)
		}
	}
	sort.Strings(qualifying)
	return qualifying
}

// EarnedSet builds the set form Evaluate expects.
func EarnedSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
