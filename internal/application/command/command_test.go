package command

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/wellness-hub/internal/domain/intervention"
	"github.com/alem-hub/wellness-hub/internal/domain/risk"
	"github.com/alem-hub/wellness-hub/internal/domain/shared"
	"github.com/alem-hub/wellness-hub/internal/infrastructure/persistence/memory"
)

var (
	counselor = intervention.Actor{Name: "Dana Whitfield", Role: "counselor"}
	t0        = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
)

type recorder struct {
	mu     sync.Mutex
	events []shared.Event
}

func (r *recorder) Publish(e shared.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) types() []shared.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]shared.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.EventType()
	}
	return out
}

func setup(t *testing.T, due time.Time) (*memory.Store, *recorder) {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.UpsertStudents(ctx, []risk.Student{{ID: "s2", Name: "Jamie Lee", RiskScore: 65}}))
	require.NoError(t, store.Create(ctx, intervention.Intervention{
		ID: "iv-1", StudentID: "s2", Type: "Academic Support", DueDate: due,
		Status: intervention.StatusPending, CreatedAt: t0, UpdatedAt: t0,
	}))
	return store, &recorder{}
}

func clock(at time.Time) func() time.Time { return func() time.Time { return at } }

func TestTransition_OverdueThenComplete(t *testing.T) {
	store, rec := setup(t, t0.Add(time.Hour))
	h := NewTransitionInterventionHandler(store, rec, nil).WithClock(clock(t0.Add(5 * time.Hour)))

	res, err := h.Handle(context.Background(), TransitionInterventionCommand{
		InterventionID: "iv-1", Action: intervention.ActionComplete, Actor: counselor,
	})
	require.NoError(t, err)
	assert.Equal(t, intervention.StatusCompleted, res.To)
	require.Len(t, res.Entries, 2)

	trail, err := store.ListAudit(context.Background(), "iv-1")
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, intervention.StatusOverdue, trail[0].To)
	assert.Equal(t, intervention.SystemActor, trail[0].Actor)
	assert.Equal(t, intervention.StatusCompleted, trail[1].To)
	assert.Equal(t, counselor, trail[1].Actor)
	assert.NotEmpty(t, trail[1].ID)

	assert.Equal(t, []shared.EventType{
		shared.EventInterventionTransitioned,
		shared.EventInterventionTransitioned,
	}, rec.types())
}

func TestTransition_RejectedIsAudited(t *testing.T) {
	store, rec := setup(t, t0.Add(72*time.Hour))
	h := NewTransitionInterventionHandler(store, rec, nil).WithClock(clock(t0))
	ctx := context.Background()

	_, err := h.Handle(ctx, TransitionInterventionCommand{InterventionID: "iv-1", Action: intervention.ActionComplete, Actor: counselor})
	require.NoError(t, err)

	res, err := h.Handle(ctx, TransitionInterventionCommand{InterventionID: "iv-1", Action: intervention.ActionStart, Actor: counselor})
	require.Error(t, err)
	assert.True(t, shared.IsInvalidTransition(err))
	assert.Equal(t, intervention.StatusCompleted, res.Intervention.Status)

	stored, err := store.Get(ctx, "iv-1")
	require.NoError(t, err)
	assert.Equal(t, intervention.StatusCompleted, stored.Status)

	trail, err := store.ListAudit(ctx, "iv-1")
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, intervention.OutcomeFailure, trail[1].Outcome)
	assert.Contains(t, rec.types(), shared.EventInterventionTransitionFailed)
}

func TestTransition_WriteFailureKeepsState(t *testing.T) {
	store, _ := setup(t, t0.Add(72*time.Hour))
	h := NewTransitionInterventionHandler(store, nil, nil).WithClock(clock(t0))
	ctx := context.Background()

	store.FailWrites(errors.New("connection reset"))
	_, err := h.Handle(ctx, TransitionInterventionCommand{InterventionID: "iv-1", Action: intervention.ActionStart, Actor: counselor})
	assert.ErrorIs(t, err, shared.ErrWriteFailed)

	store.FailWrites(nil)
	stored, err := store.Get(ctx, "iv-1")
	require.NoError(t, err)
	assert.Equal(t, intervention.StatusPending, stored.Status)
}

func TestTransition_Validation(t *testing.T) {
	store, _ := setup(t, t0.Add(72*time.Hour))
	h := NewTransitionInterventionHandler(store, nil, nil).WithClock(clock(t0))
	ctx := context.Background()

	_, err := h.Handle(ctx, TransitionInterventionCommand{InterventionID: "iv-1", Action: intervention.ActionStart})
	assert.ErrorIs(t, err, intervention.ErrMissingActor)

	_, err = h.Handle(ctx, TransitionInterventionCommand{InterventionID: "iv-1", Action: "archive", Actor: counselor})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(ctx, TransitionInterventionCommand{InterventionID: "missing", Action: intervention.ActionStart, Actor: counselor})
	assert.True(t, shared.IsNotFound(err))
}

func TestTransition_ConcurrentSameIntervention(t *testing.T) {
	store, _ := setup(t, t0.Add(72*time.Hour))
	h := NewTransitionInterventionHandler(store, nil, nil).WithClock(clock(t0))

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.Handle(context.Background(), TransitionInterventionCommand{
				InterventionID: "iv-1", Action: intervention.ActionStart, Actor: counselor,
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded, "only one start can win")
	assert.Empty(t, h.locks.locks)
}

func TestCreateIntervention(t *testing.T) {
	store, rec := setup(t, t0.Add(72*time.Hour))
	h := NewCreateInterventionHandler(store, store, rec, nil).WithClock(clock(t0))
	ctx := context.Background()

	iv, err := h.Handle(ctx, CreateInterventionCommand{
		StudentID: "s2", Type: "Peer Mentoring", Assignee: "Dana Whitfield",
		DueDate: t0.Add(24 * time.Hour), Actor: counselor,
	})
	require.NoError(t, err)
	assert.Equal(t, intervention.StatusPending, iv.Status)
	assert.NotEmpty(t, iv.ID)
	assert.Equal(t, []shared.EventType{shared.EventInterventionCreated}, rec.types())

	_, err = h.Handle(ctx, CreateInterventionCommand{
		StudentID: "nobody", Type: "Peer Mentoring", DueDate: t0.Add(time.Hour), Actor: counselor,
	})
	assert.True(t, shared.IsNotFound(err))

	_, err = h.Handle(ctx, CreateInterventionCommand{
		StudentID: "s2", Type: "Peer Mentoring", DueDate: t0.Add(-time.Hour), Actor: counselor,
	})
	assert.True(t, shared.IsValidation(err))
}
