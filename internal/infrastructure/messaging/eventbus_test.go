package messaging

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/wellness-hub/internal/domain/shared"
)

func transitionEvent(id string) shared.TransitionEvent {
	return shared.TransitionEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventInterventionTransitioned, id, time.Now()),
		StudentID: "s1",
		Action:    "start",
		From:      "pending",
		To:        "in-progress",
		Actor:     "Dana Whitfield",
	}
}

func TestInMemoryEventBus_SyncDelivery(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: false})
	defer bus.Close()

	var typed, all []string
	require.NoError(t, bus.Subscribe(shared.EventInterventionTransitioned, func(e shared.Event) error {
		typed = append(typed, e.AggregateID())
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		all = append(all, string(e.EventType()))
		return errors.New("ignored")
	}))

	require.NoError(t, bus.Publish(transitionEvent("iv-1")))

	assert.Equal(t, []string{"iv-1"}, typed)
	assert.Equal(t, []string{string(shared.EventInterventionTransitioned)}, all)
}

func TestInMemoryEventBus_AsyncRecoversPanics(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 2})

	var mu sync.Mutex
	delivered := 0
	require.NoError(t, bus.Subscribe(shared.EventInterventionTransitioned, func(shared.Event) error {
		panic("boom")
	}))
	require.NoError(t, bus.Subscribe(shared.EventInterventionTransitioned, func(shared.Event) error {
		mu.Lock()
		delivered++
		mu.Unlock()
		return nil
	}))

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(transitionEvent("iv-1")))
	}
	defer bus.Close()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return delivered == 5
	}, time.Second, 5*time.Millisecond)
}

func TestInMemoryEventBus_Closed(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{})
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(transitionEvent("iv-1")), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventDataUnavailable, func(shared.Event) error { return nil }), ErrEventBusClosed)
	assert.NoError(t, bus.Close())
}

func TestEnvelope_RoundTrip(t *testing.T) {
	env := envelopeOf("node-a", transitionEvent("iv-9"))
	e := env.event()

	assert.Equal(t, shared.EventInterventionTransitioned, e.EventType())
	assert.Equal(t, "iv-9", e.AggregateID())
	assert.Equal(t, "in-progress", e.Payload()["to"])
}
