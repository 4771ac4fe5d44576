package risk

import (
	"fmt"
	"time"

	"github.com/alem-hub/wellness-hub/internal/domain/shared"
)

// Urgency of an early warning indicator.
type Urgency string

const (
	UrgencyHigh   Urgency = "high"
	UrgencyMedium Urgency = "medium"
	UrgencyLow    Urgency = "low"
)

// IsValid checks the urgency value.
func (u Urgency) IsValid() bool {
	return u == UrgencyHigh || u == UrgencyMedium || u == UrgencyLow
}

// EarlyWarningIndicator is a population-level signal of an emerging pattern.
// It is produced by the signal-detection collaborator and read-only here.
type EarlyWarningIndicator struct {
	ID               string    `json:"id"`
	Type             string    `json:"type"`
	Description      string    `json:"description"`
	Urgency          Urgency   `json:"urgency"`
	DetectedAt       time.Time `json:"detected_at"`
	Confidence       Percent   `json:"confidence"`
	AffectedStudents int       `json:"affected_students"`
	Trend            Trend     `json:"trend"`
}

// Validate checks the indicator against the population size at detection time.
func (i EarlyWarningIndicator) Validate(population int) error {
	if i.AffectedStudents < 0 || i.AffectedStudents > population {
		return shared.NewDomainError("risk", "ValidateIndicator", shared.ErrValueOutOfRange,
			fmt.Sprintf("indicator %s: affected students %d outside [0,%d]", i.ID, i.AffectedStudents, population))
	}
	if !i.Urgency.IsValid() {
		return shared.NewDomainError("risk", "ValidateIndicator", shared.ErrInvalidInput,
			fmt.Sprintf("indicator %s: unknown urgency %q", i.ID, i.Urgency))
	}
	if c := i.Confidence.Clamp(); c != i.Confidence {
		return shared.NewDomainError("risk", "ValidateIndicator", shared.ErrValueOutOfRange,
			fmt.Sprintf("indicator %s: confidence %d outside [0,100]", i.ID, i.Confidence))
	}
	return nil
}
