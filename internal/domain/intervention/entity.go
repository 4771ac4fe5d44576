// Package intervention models support actions assigned to students and the
// state machine that governs their status. Every status change produces an
// audit entry; nothing here performs I/O.
package intervention

import (
	"errors"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Status is the lifecycle state of an intervention.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusOverdue    Status = "overdue"
	StatusCompleted  Status = "completed"
)

// IsValid checks the status value.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusOverdue, StatusCompleted:
		return true
	default:
		return false
	}
}

// IsTerminal is true only for completed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted
}

// Action is a transition trigger.
type Action string

const (
	// ActionStart - staff begin working on a pending intervention.
	ActionStart Action = "start"
	// ActionComplete - staff mark the intervention done (late completion included).
	ActionComplete Action = "complete"
	// ActionMarkOverdue - time-based reevaluation, issued by the system actor.
	ActionMarkOverdue Action = "mark-overdue"
	// ActionReschedule - move the due date of an overdue intervention forward.
	ActionReschedule Action = "reschedule"
)

// ParseAction parses an action name.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionStart, ActionComplete, ActionMarkOverdue, ActionReschedule:
		return a, nil
	default:
		return "", ErrUnknownAction
	}
}

// Actor identifies who triggered a transition. It is supplied by the session
// collaborator and only used for audit attribution.
type Actor struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// SystemActor attributes time-based transitions.
var SystemActor = Actor{Name: "system", Role: "system"}

// IsZero reports a missing actor.
func (a Actor) IsZero() bool {
	return strings.TrimSpace(a.Name) == ""
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// Intervention is one support action taken for one student.
type Intervention struct {
	ID          string     `json:"id"`
	StudentID   string     `json:"student_id"`
	Type        string     `json:"type"`
	Description string     `json:"description"`
	Assignee    string     `json:"assignee"`
	DueDate     time.Time  `json:"due_date"`
	Impact      *int       `json:"impact,omitempty"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

var (
	ErrUnknownAction    = errors.New("unknown intervention action")
	ErrMissingID        = errors.New("intervention id is required")
	ErrMissingStudent   = errors.New("intervention must reference a student")
	ErrMissingType      = errors.New("intervention type is required")
	ErrMissingDueDate   = errors.New("intervention due date is required")
	ErrInvalidImpact    = errors.New("intervention impact must be between 0 and 100")
	ErrMissingActor     = errors.New("transition requires an actor")
	ErrDueDateNotFuture = errors.New("rescheduled due date must be in the future")
)

// NewParams contains the fields staff provide when assigning support.
type NewParams struct {
	ID          string
	StudentID   string
	Type        string
	Description string
	Assignee    string
	DueDate     time.Time
	Impact      *int
}

// New creates a pending intervention.
func New(p NewParams, now time.Time) (Intervention, error) {
	switch {
	case p.ID == "":
		return Intervention{}, ErrMissingID
	case p.StudentID == "":
		return Intervention{}, ErrMissingStudent
	case strings.TrimSpace(p.Type) == "":
		return Intervention{}, ErrMissingType
	case p.DueDate.IsZero():
		return Intervention{}, ErrMissingDueDate
	}
	if p.Impact != nil && (*p.Impact < 0 || *p.Impact > 100) {
		return Intervention{}, ErrInvalidImpact
	}

	return Intervention{
		ID:          p.ID,
		StudentID:   p.StudentID,
		Type:        strings.TrimSpace(p.Type),
		Description: p.Description,
		Assignee:    p.Assignee,
		DueDate:     p.DueDate.UTC(),
		Impact:      p.Impact,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Effective returns the status as of now, see EffectiveStatus.
func (iv Intervention) Effective(now time.Time) Status {
	return EffectiveStatus(iv.Status, iv.DueDate, now)
}

// ForStudent returns the interventions that belong to one student, in input order.
func ForStudent(all []Intervention, studentID string) []Intervention {
	out := make([]Intervention, 0)
	for _, iv := range all {
		if iv.StudentID == studentID {
			out = append(out, iv)
		}
	}
	return out
}
