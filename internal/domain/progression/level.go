package progression

import (
	"math"
	"time"

	"github.com/learnhub/learnhub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEVEL CALCULATOR
// ══════════════════════════════════════════════════════════════════════════════

const (
	// StartingLevel is the level of a freshly created record.
	StartingLevel = 1

	// levelBase and levelExponent define the threshold curve.
	levelBase     = 100.0
	levelExponent = 1.5
)

// Threshold returns the experience required to advance from level to level+1.
// Levels below 1 are treated as 1.
func Threshold(level int) int {
	if level < StartingLevel {
		level = StartingLevel
	}
	return int(math.Round(levelBase * math.Pow(float64(level), levelExponent)))
}

// LevelResult is the outcome of applying an experience award.
type LevelResult struct {
	Level        int
	Experience   int
	NextLevelExp int
	LeveledUp    bool
	LevelsGained int
}

// Apply adds gained experience to the given state and rolls any overflow into
// level-ups. gained must be positive; experience never decreases here.
func Apply(currentLevel, currentExperience, nextLevelExp, gained int) (LevelResult, error) {
	if gained <= 0 {
		return LevelResult{}, shared.ErrInvalidAmount
	}
	if currentLevel < StartingLevel {
		return LevelResult{}, shared.ErrInvalidLevel
	}
	if currentExperience < 0 {
		return LevelResult{}, shared.WrapError("progression", "Apply", shared.ErrNegativeValue, "stored experience is negative", nil)
	}
	if nextLevelExp <= 0 {
		nextLevelExp = Threshold(currentLevel)
	}

	result := LevelResult{
		Level:        currentLevel,
		Experience:   currentExperience + gained,
		NextLevelExp: nextLevelExp,
	}

	for result.Experience >= result.NextLevelExp {
		result.Experience -= result.NextLevelExp
		result.Level++
		result.LevelsGained++
		result.NextLevelExp = Threshold(result.Level)
	}
	result.LeveledUp = result.LevelsGained > 0

	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// USER LEVEL
// ══════════════════════════════════════════════════════════════════════════════

// UserLevel is the per-user level record. Version is bumped on every write and
// used by repositories for optimistic concurrency.
type UserLevel struct {
	UserID       string
	CurrentLevel int
	Experience   int
	NextLevelExp int
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewUserLevel returns the default record for a user that has never been awarded.
func NewUserLevel(userID string) *UserLevel {
	now := time.Now().UTC()
	return &UserLevel{
		UserID:       userID,
		CurrentLevel: StartingLevel,
		Experience:   0,
		NextLevelExp: Threshold(StartingLevel),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Award applies gained experience to the record in place.
func (u *UserLevel) Award(gained int) (LevelResult, error) {
	result, err := Apply(u.CurrentLevel, u.Experience, u.NextLevelExp, gained)
	if err != nil {
		return LevelResult{}, err
	}
	u.CurrentLevel = result.Level
	u.Experience = result.Experience
	u.NextLevelExp = result.NextLevelExp
	u.UpdatedAt = time.Now().UTC()
	return result, nil
}

// ProgressPercent returns how far the user is toward the next level, 0..100.
func (u *UserLevel) ProgressPercent() float64 {
	if u.NextLevelExp <= 0 {
		return 0
	}
	return math.Round(float64(u.Experience)/float64(u.NextLevelExp)*1000) / 10
}

// TotalExperience returns the lifetime experience implied by the record.
func (u *UserLevel) TotalExperience() int {
	total := u.Experience
	for l := StartingLevel; l < u.CurrentLevel; l++ {
		total += Threshold(l)
	}
	return total
}
