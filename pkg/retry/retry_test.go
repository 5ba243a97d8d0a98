package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errConflict = errors.New("conflict")

func TestDo_RetriesRetryableErrors(t *testing.T) {
	calls := 0
	r := New(WithMaxAttempts(3), WithInitialDelay(time.Millisecond))
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(errors.New("flaky"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	calls := 0
	base := errors.New("bad request")
	r := New(WithMaxAttempts(5), WithInitialDelay(time.Millisecond), WithRetryIf(func(error) bool { return true }))
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Permanent(base)
	})

	assert.Equal(t, base, err)
	assert.Equal(t, 1, calls)
}

func TestConflictRetrier_RetriesExactlyOnce(t *testing.T) {
	calls := 0
	r := ConflictRetrier(func(err error) bool { return errors.Is(err, errConflict) })

	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errConflict
	})

	assert.ErrorIs(t, err, errConflict)
	assert.Equal(t, 2, calls)
}

func TestConflictRetrier_DoesNotRetryOtherErrors(t *testing.T) {
	calls := 0
	other := errors.New("boom")
	r := ConflictRetrier(func(err error) bool { return errors.Is(err, errConflict) })

	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return other
	})

	assert.ErrorIs(t, err, other)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustedRetryableReturnsCause(t *testing.T) {
	cause := errors.New("still flaky")
	var retries []int
	r := New(WithMaxAttempts(3), WithInitialDelay(time.Millisecond), WithOnRetry(func(attempt int, err error, _ time.Duration) {
		retries = append(retries, attempt)
		assert.Equal(t, cause, err)
	}))

	err := r.Do(context.Background(), func(ctx context.Context) error { return Retryable(cause) })
	assert.Equal(t, cause, err)
	assert.False(t, IsRetryable(err))
	assert.Equal(t, []int{1, 2}, retries)
}

func TestDelay_CappedAtMaxDelay(t *testing.T) {
	r := New(WithInitialDelay(time.Second), WithMaxDelay(3*time.Second), WithJitter(0))
	assert.Equal(t, time.Second, r.delay(1))
	assert.Equal(t, 2*time.Second, r.delay(2))
	assert.Equal(t, 3*time.Second, r.delay(5))
}

func TestDo_RespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New().Do(ctx, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
