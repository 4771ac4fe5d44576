package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/wellness-hub/internal/domain/intervention"
	"github.com/alem-hub/wellness-hub/internal/domain/risk"
	"github.com/alem-hub/wellness-hub/internal/domain/shared"
	"github.com/alem-hub/wellness-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREATE INTERVENTION COMMAND
// Staff assign a support action to a student. The intervention starts pending.
// ══════════════════════════════════════════════════════════════════════════════

// CreateInterventionCommand contains the data of a new intervention.
type CreateInterventionCommand struct {
	StudentID   string
	Type        string
	Description string
	Assignee    string
	DueDate     time.Time

	// Impact is the expected effect (0-100), optional.
	Impact *int

	Actor         intervention.Actor
	CorrelationID string
}

// Validate validates the command.
func (c CreateInterventionCommand) Validate() error {
	if c.StudentID == "" {
		return errors.New("create_intervention: student_id is required")
	}
	if strings.TrimSpace(c.Type) == "" {
		return errors.New("create_intervention: type is required")
	}
	if c.DueDate.IsZero() {
		return errors.New("create_intervention: due_date is required")
	}
	if c.Actor.IsZero() {
		return fmt.Errorf("create_intervention: %w", intervention.ErrMissingActor)
	}
	return nil
}

// CreateInterventionHandler handles the CreateInterventionCommand.
type CreateInterventionHandler struct {
	source    risk.Source
	repo      intervention.Repository
	publisher shared.EventPublisher
	log       *logger.Logger
	now       func() time.Time
}

// NewCreateInterventionHandler creates a new handler. publisher may be nil.
func NewCreateInterventionHandler(
	source risk.Source,
	repo intervention.Repository,
	publisher shared.EventPublisher,
	log *logger.Logger,
) *CreateInterventionHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &CreateInterventionHandler{
		source:    source,
		repo:      repo,
		publisher: publisher,
		log:       log.With(logger.Component("create_intervention")),
		now:       time.Now,
	}
}

// WithClock overrides the time source.
func (h *CreateInterventionHandler) WithClock(now func() time.Time) *CreateInterventionHandler {
	h.now = now
	return h
}

// Handle creates the intervention. The student must exist and the due date
// must lie in the future.
func (h *CreateInterventionHandler) Handle(
	ctx context.Context,
	cmd CreateInterventionCommand,
) (*intervention.Intervention, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("command", "CreateIntervention", shared.ErrInvalidInput, "validation failed", err)
	}

	now := h.now()
	if !cmd.DueDate.After(now) {
		return nil, shared.NewDomainError("command", "CreateIntervention", shared.ErrInvalidInput, "due date must be in the future")
	}

	students, err := h.source.GetStudents(ctx)
	if err != nil {
		return nil, shared.DataUnavailable("GetStudents", err)
	}
	if _, ok := risk.FindStudent(students, cmd.StudentID); !ok {
		return nil, shared.NewDomainError("command", "CreateIntervention", shared.ErrNotFound, "student "+cmd.StudentID+" not found")
	}

	iv, err := intervention.New(intervention.NewParams{
		ID:          uuid.NewString(),
		StudentID:   cmd.StudentID,
		Type:        cmd.Type,
		Description: cmd.Description,
		Assignee:    cmd.Assignee,
		DueDate:     cmd.DueDate,
		Impact:      cmd.Impact,
	}, now)
	if err != nil {
		return nil, shared.WrapError("command", "CreateIntervention", shared.ErrInvalidInput, "invalid intervention", err)
	}

	if err := h.repo.Create(ctx, iv); err != nil {
		if shared.IsNotFound(err) || errors.Is(err, shared.ErrAlreadyExists) {
			return nil, err
		}
		return nil, shared.WriteFailed("Create", err)
	}

	h.log.Info("intervention created",
		logger.InterventionID(iv.ID),
		logger.StudentID(iv.StudentID),
		logger.ActorName(cmd.Actor.Name),
	)

	if h.publisher != nil {
		base := shared.NewBaseEvent(shared.EventInterventionCreated, iv.ID, now)
		base.CorrelationID = cmd.CorrelationID
		_ = h.publisher.Publish(shared.InterventionCreatedEvent{
			BaseEvent: base,
			StudentID: iv.StudentID,
			Type:      iv.Type,
			Assignee:  iv.Assignee,
		})
	}

	return &iv, nil
}
