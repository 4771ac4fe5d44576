package view

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/wellness-hub/internal/domain/intervention"
	"github.com/alem-hub/wellness-hub/internal/domain/shared"
)

func newTestSessions(max int, idle time.Duration, now *time.Time) *Sessions {
	factory := func(id string, actor intervention.Actor) *Controller {
		return NewController(Config{SessionID: id, Actor: actor}, nil, nil, nil, nil)
	}
	return NewSessions(SessionsConfig{
		IdleTimeout: idle,
		MaxSessions: max,
		Clock:       func() time.Time { return *now },
	}, factory, nil)
}

func TestSessions_OpenGetClose(t *testing.T) {
	now := t0
	s := newTestSessions(10, time.Minute, &now)

	id, ctrl, err := s.Open(counselor)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	got, err := s.Get(id)
	require.NoError(t, err)
	assert.Same(t, ctrl, got)

	info, ok := s.Info(id)
	require.True(t, ok)
	assert.Equal(t, counselor, info.Actor)

	require.NoError(t, s.Close(id))
	_, err = s.Get(id)
	assert.True(t, shared.IsNotFound(err))
	assert.True(t, shared.IsNotFound(s.Close(id)))
}

func TestSessions_OpenRequiresActor(t *testing.T) {
	now := t0
	s := newTestSessions(10, time.Minute, &now)

	_, _, err := s.Open(intervention.Actor{})
	assert.True(t, shared.IsValidation(err))
	assert.Equal(t, 0, s.Len())
}

func TestSessions_SweepClosesIdle(t *testing.T) {
	now := t0
	s := newTestSessions(10, time.Minute, &now)

	idle, _, err := s.Open(counselor)
	require.NoError(t, err)
	active, _, err := s.Open(counselor)
	require.NoError(t, err)

	now = now.Add(50 * time.Second)
	_, err = s.Get(active)
	require.NoError(t, err)

	now = now.Add(30 * time.Second)
	assert.Equal(t, 1, s.Sweep())

	_, err = s.Get(idle)
	assert.True(t, shared.IsNotFound(err))
	_, err = s.Get(active)
	assert.NoError(t, err)
}

func TestSessions_FullRegistryEvictsLeastRecentlyUsed(t *testing.T) {
	now := t0
	s := newTestSessions(2, time.Hour, &now)

	first, _, err := s.Open(counselor)
	require.NoError(t, err)
	now = now.Add(time.Second)
	second, _, err := s.Open(counselor)
	require.NoError(t, err)

	now = now.Add(time.Second)
	_, err = s.Get(first)
	require.NoError(t, err)

	now = now.Add(time.Second)
	_, _, err = s.Open(counselor)
	require.NoError(t, err)

	assert.Equal(t, 2, s.Len())
	_, err = s.Get(second)
	assert.True(t, shared.IsNotFound(err))
	_, err = s.Get(first)
	assert.NoError(t, err)
}

func TestSessions_CloseAll(t *testing.T) {
	now := t0
	s := newTestSessions(10, time.Minute, &now)
	for i := 0; i < 3; i++ {
		_, _, err := s.Open(counselor)
		require.NoError(t, err)
	}

	s.CloseAll()
	assert.Equal(t, 0, s.Len())
}
