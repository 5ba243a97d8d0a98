package messaging

import (
	"bytes"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/learnhub/internal/domain/shared"
	"github.com/learnhub/learnhub/pkg/logger"
)

func TestInMemoryEventBus_SyncDelivery(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{})

	var typed, all []shared.EventType
	require.NoError(t, bus.Subscribe(shared.EventLevelUp, func(e shared.Event) error {
		typed = append(typed, e.EventType())
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		all = append(all, e.EventType())
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewLevelUpEvent("u-1", 1, 2)))
	require.NoError(t, bus.Publish(shared.NewGoalCompletedEvent("u-1", "g-1", 3)))

	assert.Equal(t, []shared.EventType{shared.EventLevelUp}, typed)
	assert.Equal(t, []shared.EventType{shared.EventLevelUp, shared.EventGoalCompleted}, all)
}

func TestInMemoryEventBus_HandlerErrorsAreObserved(t *testing.T) {
	var observed []error
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{
		Observer: func(_ shared.EventType, _ time.Duration, err error) { observed = append(observed, err) },
	})
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { return errors.New("boom") }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { panic("kaboom") }))

	assert.NoError(t, bus.Publish(shared.NewLevelUpEvent("u-1", 1, 2)))
	require.Len(t, observed, 2)
	assert.EqualError(t, observed[0], "boom")
	assert.Contains(t, observed[1].Error(), "kaboom")
}

func TestInMemoryEventBus_AsyncCloseDrains(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 2})

	var delivered atomic.Int32
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		time.Sleep(time.Millisecond)
		delivered.Add(1)
		return nil
	}))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = bus.Publish(shared.NewLevelUpEvent("u-1", 1, 2))
		}()
	}
	wg.Wait()
	require.NoError(t, bus.Close())

	assert.Equal(t, int32(20), delivered.Load())
	assert.ErrorIs(t, bus.Publish(shared.NewLevelUpEvent("u-1", 1, 2)), ErrEventBusClosed)
}

func TestLogEvents(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Options{Level: logger.LevelInfo, Output: &buf})

	require.NoError(t, LogEvents(log)(shared.NewLevelUpEvent("u-7", 2, 3)))
	assert.Contains(t, buf.String(), `"event_type":"progression.level_up"`)
	assert.Contains(t, buf.String(), `"user_id":"u-7"`)
}
