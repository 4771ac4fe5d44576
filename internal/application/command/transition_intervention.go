// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/wellness-hub/internal/domain/intervention"
	"github.com/alem-hub/wellness-hub/internal/domain/shared"
	"github.com/alem-hub/wellness-hub/internal/infrastructure/metrics"
	"github.com/alem-hub/wellness-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// TRANSITION INTERVENTION COMMAND
// Applies one lifecycle action, persists the new status together with its
// audit entries and notifies subscribers. Rejected actions are audited too.
// ══════════════════════════════════════════════════════════════════════════════

// TransitionInterventionCommand contains the data to transition an intervention.
type TransitionInterventionCommand struct {
	// InterventionID is the intervention to transition.
	InterventionID string

	// Action is the requested lifecycle action.
	Action intervention.Action

	// Actor is who requested it. Required for every audited change.
	Actor intervention.Actor

	// DueDate is the new due date, only for reschedule.
	DueDate time.Time

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c TransitionInterventionCommand) Validate() error {
	if c.InterventionID == "" {
		return errors.New("transition: intervention_id is required")
	}
	if _, err := intervention.ParseAction(string(c.Action)); err != nil {
		return fmt.Errorf("transition: %w: %q", err, c.Action)
	}
	if c.Actor.IsZero() {
		return fmt.Errorf("transition: %w", intervention.ErrMissingActor)
	}
	if c.Action == intervention.ActionReschedule && c.DueDate.IsZero() {
		return errors.New("transition: due_date is required for reschedule")
	}
	return nil
}

// TransitionResult contains the outcome of a transition attempt.
type TransitionResult struct {
	// Intervention is the stored value after the attempt. On a rejected
	// action it is the unchanged value.
	Intervention intervention.Intervention

	// Entries are the audit entries written by this attempt.
	Entries []intervention.AuditEntry

	From intervention.Status
	To   intervention.Status
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// TransitionInterventionHandler handles the TransitionInterventionCommand.
type TransitionInterventionHandler struct {
	repo      intervention.Repository
	publisher shared.EventPublisher
	locks     *keyedMutex
	log       *logger.Logger
	now       func() time.Time
}

// NewTransitionInterventionHandler creates a new handler. publisher may be nil.
func NewTransitionInterventionHandler(
	repo intervention.Repository,
	publisher shared.EventPublisher,
	log *logger.Logger,
) *TransitionInterventionHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &TransitionInterventionHandler{
		repo:      repo,
		publisher: publisher,
		locks:     newKeyedMutex(),
		log:       log.With(logger.Component("transition_intervention")),
		now:       time.Now,
	}
}

// WithClock overrides the time source.
func (h *TransitionInterventionHandler) WithClock(now func() time.Time) *TransitionInterventionHandler {
	h.now = now
	return h
}

// Handle executes the transition. Transitions of the same intervention are
// serialized; different interventions proceed in parallel.
//
// A rule violation returns the failure entries in the result together with an
// error matching shared.ErrInvalidTransition. A persistence failure returns
// shared.ErrWriteFailed and leaves the stored value unchanged.
func (h *TransitionInterventionHandler) Handle(
	ctx context.Context,
	cmd TransitionInterventionCommand,
) (*TransitionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("command", "Transition", shared.ErrInvalidInput, "validation failed", err)
	}

	unlock := h.locks.Lock(cmd.InterventionID)
	defer unlock()

	iv, err := h.repo.Get(ctx, cmd.InterventionID)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, err
		}
		return nil, shared.DataUnavailable("Get", err)
	}

	log := h.log.With(
		logger.InterventionID(iv.ID),
		logger.StudentID(iv.StudentID),
		logger.ActorName(cmd.Actor.Name),
		logger.String("action", string(cmd.Action)),
	)

	next, entries, applyErr := intervention.Apply(iv, intervention.Request{
		Action:  cmd.Action,
		Actor:   cmd.Actor,
		Now:     h.now(),
		DueDate: cmd.DueDate,
	})
	for i := range entries {
		entries[i].ID = uuid.NewString()
	}

	if applyErr != nil {
		if !shared.IsInvalidTransition(applyErr) {
			return nil, applyErr
		}
		return h.reject(ctx, log, cmd, iv, entries, applyErr)
	}

	if err := h.repo.RecordTransition(ctx, next, iv.Status, entries); err != nil {
		if shared.IsInvalidTransition(err) {
			metrics.RecordTransition(string(cmd.Action), "conflict")
			log.Warn("transition lost a concurrent update", logger.Err(err))
			return nil, err
		}
		metrics.RecordTransition(string(cmd.Action), "write_failed")
		log.Error("transition write failed", logger.Err(err))
		if errors.Is(err, shared.ErrWriteFailed) {
			return nil, err
		}
		return nil, shared.WriteFailed("RecordTransition", err)
	}

	metrics.RecordTransition(string(cmd.Action), string(intervention.OutcomeSuccess))
	log.Info("intervention transitioned",
		logger.String("from", string(iv.Status)),
		logger.String("to", string(next.Status)),
	)
	for _, e := range entries {
		h.publish(shared.EventInterventionTransitioned, e, cmd.CorrelationID)
	}

	return &TransitionResult{
		Intervention: next,
		Entries:      entries,
		From:         iv.Status,
		To:           next.Status,
	}, nil
}

// reject audits a rule violation. The audit write is best effort: the caller
// gets the transition error either way.
func (h *TransitionInterventionHandler) reject(
	ctx context.Context,
	log *logger.Logger,
	cmd TransitionInterventionCommand,
	iv intervention.Intervention,
	entries []intervention.AuditEntry,
	cause error,
) (*TransitionResult, error) {
	metrics.RecordTransition(string(cmd.Action), string(intervention.OutcomeFailure))
	log.Warn("transition rejected", logger.Err(cause))

	if err := h.repo.AppendAudit(ctx, entries...); err != nil {
		log.Error("failed to audit rejected transition", logger.Err(err))
	}
	for _, e := range entries {
		h.publish(shared.EventInterventionTransitionFailed, e, cmd.CorrelationID)
	}

	res := &TransitionResult{Intervention: iv, Entries: entries, From: iv.Status, To: iv.Status}
	return res, cause
}

func (h *TransitionInterventionHandler) publish(t shared.EventType, e intervention.AuditEntry, correlationID string) {
	if h.publisher == nil {
		return
	}
	base := shared.NewBaseEvent(t, e.InterventionID, e.At)
	base.CorrelationID = correlationID
	err := h.publisher.Publish(shared.TransitionEvent{
		BaseEvent: base,
		StudentID: e.StudentID,
		Action:    string(e.Action),
		From:      string(e.From),
		To:        string(e.To),
		Actor:     e.Actor.Name,
		Reason:    e.Reason,
	})
	if err != nil {
		h.log.Warn("failed to publish transition event", logger.Err(err))
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// KEYED MUTEX
// ══════════════════════════════════════════════════════════════════════════════

// keyedMutex hands out one mutex per key and drops it when nobody holds it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock blocks until key is free and returns the unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
