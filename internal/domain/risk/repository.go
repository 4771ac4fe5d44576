package risk

import (
	"context"
)

// Source is the read side of the data collaborator. Implementations return
// errors of kind shared.ErrDataUnavailable when the store cannot be reached.
type Source interface {
	// GetStudents returns the current population in source order.
	GetStudents(ctx context.Context) ([]Student, error)

	// GetEarlyWarningIndicators returns population-level signals.
	GetEarlyWarningIndicators(ctx context.Context) ([]EarlyWarningIndicator, error)
}

// Writer persists normalized student records. Used by ingestion only.
type Writer interface {
	UpsertStudents(ctx context.Context, students []Student) error
	InsertIndicators(ctx context.Context, indicators []EarlyWarningIndicator) error
}
