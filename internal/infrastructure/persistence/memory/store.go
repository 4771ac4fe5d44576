// Package memory is an in-process implementation of the data source
// collaborator. It backs tests and the demo mode of the dashboard, and
// supports failure injection so unavailable-source paths can be exercised.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/alem-hub/wellness-hub/internal/domain/intervention"
	"github.com/alem-hub/wellness-hub/internal/domain/risk"
	"github.com/alem-hub/wellness-hub/internal/domain/shared"
)

// Store keeps students, indicators, interventions and their audit trail.
// Students and indicators keep insertion order.
type Store struct {
	mu sync.RWMutex

	students   []risk.Student
	indicators []risk.EarlyWarningIndicator

	interventions map[string]intervention.Intervention
	ivOrder       []string
	audit         intervention.AuditLog

	readErr  error
	writeErr error
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{interventions: make(map[string]intervention.Intervention)}
}

// FailReads makes every read return err until called again with nil.
func (s *Store) FailReads(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readErr = err
}

// FailWrites makes every write return err until called again with nil.
func (s *Store) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

// ══════════════════════════════════════════════════════════════════════════════
// risk.Source / risk.Writer
// ══════════════════════════════════════════════════════════════════════════════

// GetStudents returns a copy of all students.
func (s *Store) GetStudents(ctx context.Context) ([]risk.Student, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.readErr != nil {
		return nil, shared.DataUnavailable("GetStudents", s.readErr)
	}
	return append([]risk.Student(nil), s.students...), nil
}

// GetEarlyWarningIndicators returns a copy of all indicators.
func (s *Store) GetEarlyWarningIndicators(ctx context.Context) ([]risk.EarlyWarningIndicator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.readErr != nil {
		return nil, shared.DataUnavailable("GetEarlyWarningIndicators", s.readErr)
	}
	return append([]risk.EarlyWarningIndicator(nil), s.indicators...), nil
}

// UpsertStudents inserts students or replaces those with a known id.
func (s *Store) UpsertStudents(ctx context.Context, students []risk.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return shared.WriteFailed("UpsertStudents", s.writeErr)
	}

	for _, st := range students {
		replaced := false
		for i := range s.students {
			if s.students[i].ID == st.ID {
				s.students[i] = st
				replaced = true
				break
			}
		}
		if !replaced {
			s.students = append(s.students, st)
		}
	}
	return nil
}

// InsertIndicators appends indicators.
func (s *Store) InsertIndicators(ctx context.Context, indicators []risk.EarlyWarningIndicator) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return shared.WriteFailed("InsertIndicators", s.writeErr)
	}
	s.indicators = append(s.indicators, indicators...)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// intervention.Repository
// ══════════════════════════════════════════════════════════════════════════════

// GetInterventions returns interventions in creation order.
func (s *Store) GetInterventions(ctx context.Context, studentID string) ([]intervention.Intervention, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.readErr != nil {
		return nil, shared.DataUnavailable("GetInterventions", s.readErr)
	}

	out := make([]intervention.Intervention, 0, len(s.ivOrder))
	for _, id := range s.ivOrder {
		iv := s.interventions[id]
		if studentID == "" || iv.StudentID == studentID {
			out = append(out, iv)
		}
	}
	return out, nil
}

// Get returns one intervention.
func (s *Store) Get(ctx context.Context, id string) (intervention.Intervention, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.readErr != nil {
		return intervention.Intervention{}, shared.DataUnavailable("Get", s.readErr)
	}
	iv, ok := s.interventions[id]
	if !ok {
		return intervention.Intervention{}, shared.NewDomainError("memory", "Get", shared.ErrNotFound, "intervention "+id+" not found")
	}
	return iv, nil
}

// Create stores a new intervention. The student must exist.
func (s *Store) Create(ctx context.Context, iv intervention.Intervention) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return shared.WriteFailed("Create", s.writeErr)
	}
	if _, ok := risk.FindStudent(s.students, iv.StudentID); !ok {
		return shared.NewDomainError("memory", "Create", shared.ErrNotFound, "student "+iv.StudentID+" not found")
	}
	if _, ok := s.interventions[iv.ID]; ok {
		return shared.NewDomainError("memory", "Create", shared.ErrAlreadyExists, "intervention "+iv.ID+" exists")
	}
	s.interventions[iv.ID] = iv
	s.ivOrder = append(s.ivOrder, iv.ID)
	return nil
}

// RecordTransition replaces the stored intervention if its status is still
// expected, and appends the audit entries in the same critical section.
func (s *Store) RecordTransition(ctx context.Context, next intervention.Intervention, expected intervention.Status, entries []intervention.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return shared.WriteFailed("RecordTransition", s.writeErr)
	}

	cur, ok := s.interventions[next.ID]
	if !ok {
		return shared.NewDomainError("memory", "RecordTransition", shared.ErrNotFound, "intervention "+next.ID+" not found")
	}
	if cur.Status != expected {
		return shared.NewDomainError("memory", "RecordTransition", shared.ErrInvalidTransition,
			"status changed concurrently: stored "+string(cur.Status)+", expected "+string(expected))
	}

	s.interventions[next.ID] = next
	s.appendAudit(entries)
	return nil
}

// AppendAudit stores entries without touching intervention state.
func (s *Store) AppendAudit(ctx context.Context, entries ...intervention.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return shared.WriteFailed("AppendAudit", s.writeErr)
	}
	s.appendAudit(entries)
	return nil
}

func (s *Store) appendAudit(entries []intervention.AuditEntry) {
	stamped := make([]intervention.AuditEntry, len(entries))
	for i, e := range entries {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		stamped[i] = e
	}
	s.audit = s.audit.Append(stamped...)
}

// ListAudit returns the trail of one intervention, oldest first.
func (s *Store) ListAudit(ctx context.Context, interventionID string) ([]intervention.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.readErr != nil {
		return nil, shared.DataUnavailable("ListAudit", s.readErr)
	}

	out := s.audit.For(interventionID)
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

var (
	_ risk.Source             = (*Store)(nil)
	_ risk.Writer             = (*Store)(nil)
	_ intervention.Repository = (*Store)(nil)
)
