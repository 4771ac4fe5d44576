package intervention

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/wellness-hub/internal/domain/shared"
)

var (
	counselor = Actor{Name: "Dana Whitfield", Role: "counselor"}
	t0        = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
)

func newPending(t *testing.T, due time.Time) Intervention {
	t.Helper()
	iv, err := New(NewParams{
		ID:        "iv-1",
		StudentID: "s1",
		Type:      "Academic Support",
		Assignee:  "Dana Whitfield",
		DueDate:   due,
	}, t0)
	require.NoError(t, err)
	return iv
}

func TestNew_Validation(t *testing.T) {
	_, err := New(NewParams{ID: "x", Type: "t", DueDate: t0}, t0)
	assert.ErrorIs(t, err, ErrMissingStudent)

	bad := 120
	_, err = New(NewParams{ID: "x", StudentID: "s", Type: "t", DueDate: t0, Impact: &bad}, t0)
	assert.ErrorIs(t, err, ErrInvalidImpact)

	iv := newPending(t, t0.Add(48*time.Hour))
	assert.Equal(t, StatusPending, iv.Status)
}

func TestEffectiveStatus(t *testing.T) {
	due := t0.Add(time.Hour)
	before := t0
	after := t0.Add(2 * time.Hour)

	assert.Equal(t, StatusPending, EffectiveStatus(StatusPending, due, before))
	assert.Equal(t, StatusOverdue, EffectiveStatus(StatusPending, due, after))
	assert.Equal(t, StatusOverdue, EffectiveStatus(StatusInProgress, due, after))
	assert.Equal(t, StatusCompleted, EffectiveStatus(StatusCompleted, due, after))
	assert.Equal(t, StatusOverdue, EffectiveStatus(StatusOverdue, due, before))

	// idempotent
	once := EffectiveStatus(StatusPending, due, after)
	assert.Equal(t, once, EffectiveStatus(once, due, after))
}

func TestApply_HappyPath(t *testing.T) {
	iv := newPending(t, t0.Add(72*time.Hour))

	started, entries, err := Apply(iv, Request{Action: ActionStart, Actor: counselor, Now: t0.Add(time.Hour)})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, StatusInProgress, started.Status)
	assert.NotNil(t, started.StartedAt)
	assert.Equal(t, StatusPending, iv.Status, "input must not change")
	assert.Equal(t, StatusPending, entries[0].From)
	assert.Equal(t, StatusInProgress, entries[0].To)
	assert.Equal(t, counselor, entries[0].Actor)
	assert.Equal(t, OutcomeSuccess, entries[0].Outcome)

	done, entries, err := Apply(started, Request{Action: ActionComplete, Actor: counselor, Now: t0.Add(2 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.NotNil(t, done.CompletedAt)
}

func TestApply_OverdueThenComplete(t *testing.T) {
	iv := newPending(t, t0.Add(time.Hour))
	now := t0.Add(5 * time.Hour)

	assert.Equal(t, StatusOverdue, iv.Effective(now))

	done, entries, err := Apply(iv, Request{Action: ActionComplete, Actor: counselor, Now: now})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)

	require.Len(t, entries, 2)
	assert.Equal(t, StatusPending, entries[0].From)
	assert.Equal(t, StatusOverdue, entries[0].To)
	assert.Equal(t, SystemActor, entries[0].Actor)
	assert.Equal(t, StatusOverdue, entries[1].From)
	assert.Equal(t, StatusCompleted, entries[1].To)
	assert.Equal(t, counselor, entries[1].Actor)
}

func TestApply_CompletedIsTerminal(t *testing.T) {
	iv := newPending(t, t0.Add(72*time.Hour))
	done, _, err := Apply(iv, Request{Action: ActionComplete, Actor: counselor, Now: t0})
	require.NoError(t, err)

	for _, a := range []Action{ActionStart, ActionComplete, ActionMarkOverdue, ActionReschedule} {
		later := t0.Add(100 * time.Hour)
		got, entries, err := Apply(done, Request{Action: a, Actor: counselor, Now: later, DueDate: later.Add(time.Hour)})

		require.Error(t, err, "action %s", a)
		assert.True(t, errors.Is(err, shared.ErrInvalidTransition))
		te, ok := AsTransitionError(err)
		require.True(t, ok)
		assert.Equal(t, StatusCompleted, te.Current)
		assert.Equal(t, StatusCompleted, got.Status, "status unchanged")
		assert.Equal(t, done, got)
		require.Len(t, entries, 1)
		assert.Equal(t, OutcomeFailure, entries[0].Outcome)
		assert.NotEmpty(t, entries[0].Reason)
	}
}

func TestApply_StartOnOverdueRejected(t *testing.T) {
	iv := newPending(t, t0.Add(time.Hour))

	got, entries, err := Apply(iv, Request{Action: ActionStart, Actor: counselor, Now: t0.Add(3 * time.Hour)})

	te, ok := AsTransitionError(err)
	require.True(t, ok)
	assert.Equal(t, StatusOverdue, te.Current)
	assert.Equal(t, StatusInProgress, te.Attempted)
	assert.Equal(t, iv, got)
	require.Len(t, entries, 1)
	assert.Equal(t, OutcomeFailure, entries[0].Outcome)
}

func TestApply_Reschedule(t *testing.T) {
	iv := newPending(t, t0.Add(72*time.Hour))
	started, _, err := Apply(iv, Request{Action: ActionStart, Actor: counselor, Now: t0})
	require.NoError(t, err)

	now := t0.Add(100 * time.Hour)
	overdue, entry := Reevaluate(started, now)
	require.NotNil(t, entry)
	assert.Equal(t, StatusOverdue, overdue.Status)

	_, _, err = Apply(overdue, Request{Action: ActionReschedule, Actor: counselor, Now: now, DueDate: now.Add(-time.Hour)})
	assert.ErrorIs(t, err, ErrDueDateNotFuture)

	moved, entries, err := Apply(overdue, Request{Action: ActionReschedule, Actor: counselor, Now: now, DueDate: now.Add(48 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, moved.Status, "work had started")
	require.Len(t, entries, 1)
	assert.Equal(t, StatusOverdue, entries[0].From)
}

func TestApply_MarkOverdueBeforeDue(t *testing.T) {
	iv := newPending(t, t0.Add(72*time.Hour))

	_, entries, err := Apply(iv, Request{Action: ActionMarkOverdue, Actor: SystemActor, Now: t0})

	assert.True(t, shared.IsInvalidTransition(err))
	require.Len(t, entries, 1)
	assert.Equal(t, OutcomeFailure, entries[0].Outcome)
}

func TestApply_RequiresActor(t *testing.T) {
	iv := newPending(t, t0.Add(72*time.Hour))

	_, _, err := Apply(iv, Request{Action: ActionStart, Now: t0})
	assert.ErrorIs(t, err, ErrMissingActor)
}

func TestReevaluate_Idempotent(t *testing.T) {
	iv := newPending(t, t0.Add(time.Hour))
	now := t0.Add(2 * time.Hour)

	once, entry := Reevaluate(iv, now)
	require.NotNil(t, entry)
	twice, entry2 := Reevaluate(once, now)
	assert.Nil(t, entry2)
	assert.Equal(t, once, twice)
}

func TestAuditLog_AppendOnly(t *testing.T) {
	var log AuditLog
	a := log.Append(AuditEntry{InterventionID: "iv-1", Action: ActionStart})
	b := a.Append(AuditEntry{InterventionID: "iv-2", Action: ActionComplete})

	assert.Equal(t, 0, log.Len())
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 2, b.Len())
	assert.Len(t, b.For("iv-1"), 1)

	entries := b.For("iv-1")
	entries[0].Action = ActionReschedule
	assert.Equal(t, ActionStart, b.For("iv-1")[0].Action)
	assert.Empty(t, a.For("iv-2"), "appending to a copy leaves the original alone")
}

func TestParseAction(t *testing.T) {
	a, err := ParseAction(" Complete ")
	require.NoError(t, err)
	assert.Equal(t, ActionComplete, a)

	_, err = ParseAction("archive")
	assert.ErrorIs(t, err, ErrUnknownAction)
}
