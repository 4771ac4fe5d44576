package query

import (
	"context"
	"errors"
	"time"

	"github.com/alem-hub/wellness-hub/internal/domain/intervention"
	"github.com/alem-hub/wellness-hub/internal/domain/risk"
	"github.com/alem-hub/wellness-hub/internal/domain/shared"
	"github.com/alem-hub/wellness-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET STUDENT PROFILE QUERY
// ══════════════════════════════════════════════════════════════════════════════

// GetStudentProfileQuery asks for the detail view of one student.
type GetStudentProfileQuery struct {
	StudentID string
}

// Validate checks the query parameters.
func (q GetStudentProfileQuery) Validate() error {
	if q.StudentID == "" {
		return errors.New("student_id is required")
	}
	return nil
}

// GetStudentProfileHandler handles the profile query.
type GetStudentProfileHandler struct {
	source risk.Source
	repo   intervention.Repository
	log    *logger.Logger
	now    func() time.Time
}

// NewGetStudentProfileHandler creates a new handler.
func NewGetStudentProfileHandler(source risk.Source, repo intervention.Repository, log *logger.Logger) *GetStudentProfileHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &GetStudentProfileHandler{source: source, repo: repo, log: log.With(logger.Component("get_student_profile")), now: time.Now}
}

// Handle executes the query. A missing student is shared.ErrNotFound.
func (h *GetStudentProfileHandler) Handle(ctx context.Context, q GetStudentProfileQuery) (*ProfileDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetStudentProfile", shared.ErrInvalidInput, "invalid query", err)
	}

	students, err := loadStudents(ctx, h.source, h.log)
	if err != nil {
		return nil, err
	}

	s, ok := risk.FindStudent(students, q.StudentID)
	if !ok {
		return nil, shared.NewDomainError("query", "GetStudentProfile", shared.ErrNotFound, "student "+q.StudentID+" not found")
	}

	ivs, err := h.repo.GetInterventions(ctx, s.ID)
	if err != nil {
		return nil, asUnavailable("GetInterventions", err)
	}

	profile := BuildProfile(s, ivs, h.now())
	return &profile, nil
}
