package activity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/learnhub/internal/domain/shared"
)

func TestParseType(t *testing.T) {
	got, err := ParseType(" Lesson_Completed ")
	require.NoError(t, err)
	assert.Equal(t, TypeLessonCompleted, got)

	_, err = ParseType("watched_video")
	assert.True(t, shared.IsValidation(err))
}

func TestNewActivity_Validation(t *testing.T) {
	now := time.Now()

	_, err := NewActivity("id", "", TypeLogin, "", now)
	assert.ErrorIs(t, err, shared.ErrEmptyUserID)

	_, err = NewActivity("id", "u-1", Type("nope"), "", now)
	assert.ErrorIs(t, err, shared.ErrUnknownActivityType)

	a, err := NewActivity("id", "u-1", TypeLessonCompleted, " topic-1 ", now)
	require.NoError(t, err)
	assert.Equal(t, "topic-1", a.TopicID)
}

func TestActivity_Score(t *testing.T) {
	a, err := NewActivity("id", "u-1", TypeAssessmentCompleted, "", time.Now())
	require.NoError(t, err)

	assert.Error(t, a.WithScore(101))
	require.NoError(t, a.WithScore(85))
	assert.True(t, a.IsHighScore())

	lesson, _ := NewActivity("id2", "u-1", TypeLessonCompleted, "", time.Now())
	assert.Error(t, lesson.WithScore(90))
	assert.False(t, lesson.IsHighScore())
}

func TestGoal_Advance(t *testing.T) {
	now := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
	g, err := NewGoal("g-1", "u-1", TypeLessonCompleted, 2, nil, now)
	require.NoError(t, err)

	assert.False(t, g.Advance(now))
	assert.Equal(t, 1, g.Remaining())
	assert.True(t, g.Advance(now))
	assert.True(t, g.IsCompleted())
	assert.False(t, g.Advance(now), "completed goals stop advancing")
	assert.Equal(t, 2, g.Progress)
}

func TestGoal_DeadlineValidation(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	_, err := NewGoal("g", "u-1", TypeLogin, 3, &past, now)
	assert.ErrorIs(t, err, shared.ErrValueOutOfRange)

	_, err = NewGoal("g", "u-1", TypeLogin, 0, nil, now)
	assert.ErrorIs(t, err, shared.ErrValueOutOfRange)

	future := now.Add(time.Hour)
	g, err := NewGoal("g", "u-1", TypeLogin, 3, &future, now)
	require.NoError(t, err)
	assert.False(t, g.IsActive(future.Add(time.Second)))
}

func TestTopicProgress_Apply(t *testing.T) {
	p := &TopicProgress{UserID: "u-1", TopicID: "t-1"}
	p.Apply(TypeLessonCompleted, time.Now())
	p.Apply(TypeLessonCompleted, time.Now())
	assert.Equal(t, 2, p.LessonsCompleted)
	assert.False(t, p.Completed)

	p.Apply(TypeTopicCompleted, time.Now())
	assert.True(t, p.Completed)
}
