package query

import (
	"context"
	"time"

	"github.com/alem-hub/wellness-hub/internal/domain/intervention"
	"github.com/alem-hub/wellness-hub/internal/domain/shared"
)

// GetAuditTrailQuery asks for the audit trail of one intervention.
type GetAuditTrailQuery struct {
	InterventionID string
}

// AuditTrailDTO is the audit trail, oldest entry first.
type AuditTrailDTO struct {
	Intervention InterventionDTO           `json:"intervention"`
	Entries      []intervention.AuditEntry `json:"entries"`
}

// GetAuditTrailHandler handles the audit trail query.
type GetAuditTrailHandler struct {
	repo intervention.Repository
	now  func() time.Time
}

// NewGetAuditTrailHandler creates a new handler.
func NewGetAuditTrailHandler(repo intervention.Repository) *GetAuditTrailHandler {
	return &GetAuditTrailHandler{repo: repo, now: time.Now}
}

// Handle executes the query. An unknown intervention is shared.ErrNotFound.
func (h *GetAuditTrailHandler) Handle(ctx context.Context, q GetAuditTrailQuery) (*AuditTrailDTO, error) {
	if q.InterventionID == "" {
		return nil, shared.NewDomainError("query", "GetAuditTrail", shared.ErrInvalidInput, "intervention_id is required")
	}

	iv, err := h.repo.Get(ctx, q.InterventionID)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, err
		}
		return nil, asUnavailable("Get", err)
	}

	entries, err := h.repo.ListAudit(ctx, q.InterventionID)
	if err != nil {
		return nil, asUnavailable("ListAudit", err)
	}
	if entries == nil {
		entries = []intervention.AuditEntry{}
	}

	return &AuditTrailDTO{
		Intervention: ToInterventionDTO(iv, h.now()),
		Entries:      entries,
	}, nil
}
