package intervention

import (
	"time"
)

// Outcome of a transition attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// AuditEntry records one state-changing attempt, successful or not.
// ID is assigned by the persistence layer.
type AuditEntry struct {
	ID             string    `json:"id"`
	InterventionID string    `json:"intervention_id"`
	StudentID      string    `json:"student_id"`
	Action         Action    `json:"action"`
	Actor          Actor     `json:"actor"`
	From           Status    `json:"from"`
	To             Status    `json:"to"`
	At             time.Time `json:"at"`
	Outcome        Outcome   `json:"outcome"`
	Reason         string    `json:"reason,omitempty"`
}

func newEntry(iv Intervention, a Action, actor Actor, from, to Status, at time.Time, outcome Outcome, reason string) AuditEntry {
	return AuditEntry{
		InterventionID: iv.ID,
		StudentID:      iv.StudentID,
		Action:         a,
		Actor:          actor,
		From:           from,
		To:             to,
		At:             at,
		Outcome:        outcome,
		Reason:         reason,
	}
}

// AuditLog is an append-only sequence of entries. Append never touches the
// receiver's backing array, so older copies stay valid.
type AuditLog struct {
	entries []AuditEntry
}

// Append returns a new log with the entries added.
func (l AuditLog) Append(entries ...AuditEntry) AuditLog {
	next := make([]AuditEntry, 0, len(l.entries)+len(entries))
	next = append(next, l.entries...)
	next = append(next, entries...)
	return AuditLog{entries: next}
}

// Len returns the number of entries.
func (l AuditLog) Len() int {
	return len(l.entries)
}

// For returns a copy of the entries of one intervention, in append order.
func (l AuditLog) For(interventionID string) []AuditEntry {
	out := make([]AuditEntry, 0)
	for _, e := range l.entries {
		if e.InterventionID == interventionID {
			out = append(out, e)
		}
	}
	return out
}
