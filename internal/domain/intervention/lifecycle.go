package intervention

import (
	"errors"
	"fmt"
	"time"

	"github.com/alem-hub/wellness-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATE MACHINE
//
//	pending ──start──▶ in-progress ──complete──▶ completed
//	   │                    │                        ▲
//	   └──── due passed ────┴──▶ overdue ──complete──┘
//	                                │
//	                                └──reschedule──▶ pending | in-progress
// ══════════════════════════════════════════════════════════════════════════════

var transitions = map[Status]map[Action]Status{
	StatusPending: {
		ActionStart:       StatusInProgress,
		ActionComplete:    StatusCompleted,
		ActionMarkOverdue: StatusOverdue,
	},
	StatusInProgress: {
		ActionComplete:    StatusCompleted,
		ActionMarkOverdue: StatusOverdue,
	},
	StatusOverdue: {
		ActionComplete:   StatusCompleted,
		ActionReschedule: StatusPending, // in-progress when work already started
	},
	StatusCompleted: {},
}

// intendedTarget is the state an action aims for, used to report failures.
func intendedTarget(a Action) Status {
	switch a {
	case ActionStart:
		return StatusInProgress
	case ActionComplete:
		return StatusCompleted
	case ActionMarkOverdue:
		return StatusOverdue
	default:
		return StatusPending
	}
}

// CanApply reports whether the action is allowed from the given status.
func CanApply(from Status, a Action) bool {
	_, ok := transitions[from][a]
	return ok
}

// EffectiveStatus is the time-based overdue check. It is pure and idempotent,
// safe to call on every render.
func EffectiveStatus(status Status, due, now time.Time) Status {
	if (status == StatusPending || status == StatusInProgress) && !due.IsZero() && now.After(due) {
		return StatusOverdue
	}
	return status
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// TransitionError is returned when an action violates the state machine.
type TransitionError struct {
	InterventionID string
	Action         Action
	Current        Status
	Attempted      Status
}

// Error implements error.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("intervention %s: cannot %s: %s → %s is not allowed",
		e.InterventionID, e.Action, e.Current, e.Attempted)
}

// Is makes errors.Is(err, shared.ErrInvalidTransition) match.
func (e *TransitionError) Is(target error) bool {
	return target == shared.ErrInvalidTransition
}

// AsTransitionError extracts a *TransitionError from an error chain.
func AsTransitionError(err error) (*TransitionError, bool) {
	var te *TransitionError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSITIONS
// ══════════════════════════════════════════════════════════════════════════════

// Request describes one transition attempt.
type Request struct {
	Action Action
	Actor  Actor
	Now    time.Time

	// DueDate is the new due date for ActionReschedule.
	DueDate time.Time
}

// Reevaluate applies the time-based overdue check. It returns the input and
// nil when nothing changed.
func Reevaluate(iv Intervention, now time.Time) (Intervention, *AuditEntry) {
	eff := iv.Effective(now)
	if eff == iv.Status {
		return iv, nil
	}
	next := iv
	next.Status = eff
	next.UpdatedAt = now
	entry := newEntry(iv, ActionMarkOverdue, SystemActor, iv.Status, eff, now, OutcomeSuccess, "due date passed")
	return next, &entry
}

// Apply runs one transition. The time-based check runs first, so completing a
// past-due pending intervention yields two entries: pending → overdue and
// overdue → completed.
//
// On a rule violation the input is returned unchanged together with a single
// failure entry and a *TransitionError.
func Apply(iv Intervention, req Request) (Intervention, []AuditEntry, error) {
	if req.Actor.IsZero() {
		return iv, nil, shared.WrapError("intervention", "Apply", shared.ErrInvalidInput, "missing actor", ErrMissingActor)
	}

	current := iv
	var entries []AuditEntry
	if req.Action != ActionMarkOverdue {
		if next, entry := Reevaluate(iv, req.Now); entry != nil {
			current = next
			entries = append(entries, *entry)
		}
	}

	target, ok := transitions[current.Status][req.Action]
	if !ok {
		te := &TransitionError{
			InterventionID: iv.ID,
			Action:         req.Action,
			Current:        current.Status,
			Attempted:      intendedTarget(req.Action),
		}
		failed := newEntry(iv, req.Action, req.Actor, current.Status, te.Attempted, req.Now, OutcomeFailure, te.Error())
		return iv, []AuditEntry{failed}, te
	}

	next := current
	switch req.Action {
	case ActionStart:
		started := req.Now
		next.StartedAt = &started
	case ActionComplete:
		done := req.Now
		next.CompletedAt = &done
	case ActionMarkOverdue:
		if EffectiveStatus(current.Status, current.DueDate, req.Now) != StatusOverdue {
			te := &TransitionError{InterventionID: iv.ID, Action: req.Action, Current: current.Status, Attempted: StatusOverdue}
			failed := newEntry(iv, req.Action, req.Actor, current.Status, StatusOverdue, req.Now, OutcomeFailure, "due date has not passed")
			return iv, []AuditEntry{failed}, te
		}
	case ActionReschedule:
		if !req.DueDate.After(req.Now) {
			return iv, nil, shared.WrapError("intervention", "Apply", shared.ErrInvalidInput, "bad due date", ErrDueDateNotFuture)
		}
		next.DueDate = req.DueDate.UTC()
		if current.StartedAt != nil {
			target = StatusInProgress
		}
	}

	next.Status = target
	next.UpdatedAt = req.Now
	entries = append(entries, newEntry(iv, req.Action, req.Actor, current.Status, target, req.Now, OutcomeSuccess, ""))
	return next, entries, nil
}
