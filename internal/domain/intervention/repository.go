package intervention

import (
	"context"
)

// Repository is the intervention side of the data collaborator.
type Repository interface {
	// GetInterventions returns the interventions of one student, or all of
	// them when studentID is empty.
	GetInterventions(ctx context.Context, studentID string) ([]Intervention, error)

	// Get returns one intervention. Returns shared.ErrNotFound if missing.
	Get(ctx context.Context, id string) (Intervention, error)

	// Create stores a new intervention.
	Create(ctx context.Context, iv Intervention) error

	// RecordTransition atomically replaces the stored intervention with next,
	// provided its stored status still equals expected, and appends the entries.
	// A status mismatch is reported as shared.ErrInvalidTransition, any other
	// failure as shared.ErrWriteFailed.
	RecordTransition(ctx context.Context, next Intervention, expected Status, entries []AuditEntry) error

	// AppendAudit stores entries that did not change state (failed attempts).
	AppendAudit(ctx context.Context, entries ...AuditEntry) error

	// ListAudit returns the audit trail of one intervention, oldest first.
	ListAudit(ctx context.Context, interventionID string) ([]AuditEntry, error)
}
