package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/wellness-hub/internal/domain/intervention"
	"github.com/alem-hub/wellness-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// INTERVENTION REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// InterventionRepository implements intervention.Repository for PostgreSQL.
type InterventionRepository struct {
	conn *Connection
}

// NewInterventionRepository creates a new InterventionRepository.
func NewInterventionRepository(conn *Connection) *InterventionRepository {
	return &InterventionRepository{conn: conn}
}

const interventionColumns = `
	id, student_id, type, description, assignee, due_date, impact,
	status, created_at, updated_at, started_at, completed_at
`

// GetInterventions returns interventions in creation order, optionally for one student.
func (r *InterventionRepository) GetInterventions(ctx context.Context, studentID string) ([]intervention.Intervention, error) {
	query := `SELECT ` + interventionColumns + ` FROM interventions`
	args := []any{}
	if studentID != "" {
		query += ` WHERE student_id = $1`
		args = append(args, studentID)
	}
	query += ` ORDER BY seq`

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, readErr("GetInterventions", err)
	}
	defer rows.Close()

	out := make([]intervention.Intervention, 0)
	for rows.Next() {
		iv, err := scanIntervention(rows)
		if err != nil {
			return nil, readErr("GetInterventions", err)
		}
		out = append(out, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, readErr("GetInterventions", err)
	}
	return out, nil
}

// Get returns one intervention.
func (r *InterventionRepository) Get(ctx context.Context, id string) (intervention.Intervention, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+interventionColumns+` FROM interventions WHERE id = $1`, id)
	iv, err := scanIntervention(row)
	if err != nil {
		if IsNoRows(err) {
			return intervention.Intervention{}, shared.NewDomainError("postgres", "Get", shared.ErrNotFound, "intervention "+id+" not found")
		}
		return intervention.Intervention{}, readErr("Get", err)
	}
	return iv, nil
}

// Create inserts a new intervention.
func (r *InterventionRepository) Create(ctx context.Context, iv intervention.Intervention) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO interventions (`+interventionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		iv.ID, iv.StudentID, iv.Type, iv.Description, iv.Assignee, iv.DueDate, iv.Impact,
		string(iv.Status), iv.CreatedAt, iv.UpdatedAt, iv.StartedAt, iv.CompletedAt,
	)
	switch {
	case err == nil:
		return nil
	case IsUniqueViolation(err):
		return shared.NewDomainError("postgres", "Create", shared.ErrAlreadyExists, "intervention "+iv.ID+" exists")
	case IsForeignKeyViolation(err):
		return shared.NewDomainError("postgres", "Create", shared.ErrNotFound, "student "+iv.StudentID+" not found")
	default:
		return writeErr("Create", err)
	}
}

// RecordTransition updates the intervention only if its stored status still
// equals expected, and appends the audit entries in the same transaction.
func (r *InterventionRepository) RecordTransition(ctx context.Context, next intervention.Intervention, expected intervention.Status, entries []intervention.AuditEntry) error {
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE interventions SET
				due_date = $1,
				status = $2,
				updated_at = $3,
				started_at = $4,
				completed_at = $5
			WHERE id = $6 AND status = $7
		`,
			next.DueDate, string(next.Status), next.UpdatedAt, next.StartedAt, next.CompletedAt,
			next.ID, string(expected),
		)
		if err != nil {
			return fmt.Errorf("failed to update intervention: %w", err)
		}

		if tag.RowsAffected() == 0 {
			var current string
			err := tx.QueryRow(ctx, `SELECT status FROM interventions WHERE id = $1`, next.ID).Scan(&current)
			if IsNoRows(err) {
				return shared.NewDomainError("postgres", "RecordTransition", shared.ErrNotFound, "intervention "+next.ID+" not found")
			}
			if err != nil {
				return err
			}
			return shared.NewDomainError("postgres", "RecordTransition", shared.ErrInvalidTransition,
				"status changed concurrently: stored "+current+", expected "+string(expected))
		}

		return insertAudit(ctx, tx, entries)
	})
	if err != nil {
		return writeErr("RecordTransition", err)
	}
	return nil
}

// AppendAudit stores entries without touching intervention state.
func (r *InterventionRepository) AppendAudit(ctx context.Context, entries ...intervention.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		return insertAudit(ctx, tx, entries)
	})
	if err != nil {
		return writeErr("AppendAudit", err)
	}
	return nil
}

// ListAudit returns the trail of one intervention, oldest first.
func (r *InterventionRepository) ListAudit(ctx context.Context, interventionID string) ([]intervention.AuditEntry, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, intervention_id, student_id, action, actor_name, actor_role,
			   from_status, to_status, outcome, reason, at
		FROM intervention_audit
		WHERE intervention_id = $1
		ORDER BY at, seq
	`, interventionID)
	if err != nil {
		return nil, readErr("ListAudit", err)
	}
	defer rows.Close()

	out := make([]intervention.AuditEntry, 0)
	for rows.Next() {
		var (
			e                         intervention.AuditEntry
			id                        uuid.UUID
			action, from, to, outcome string
		)
		if err := rows.Scan(&id, &e.InterventionID, &e.StudentID, &action, &e.Actor.Name, &e.Actor.Role,
			&from, &to, &outcome, &e.Reason, &e.At); err != nil {
			return nil, readErr("ListAudit", fmt.Errorf("scan audit entry: %w", err))
		}
		e.ID = id.String()
		e.Action = intervention.Action(action)
		e.From = intervention.Status(from)
		e.To = intervention.Status(to)
		e.Outcome = intervention.Outcome(outcome)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, readErr("ListAudit", err)
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func insertAudit(ctx context.Context, tx pgx.Tx, entries []intervention.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		id, err := uuid.Parse(e.ID)
		if err != nil {
			id = uuid.New()
		}
		batch.Queue(`
			INSERT INTO intervention_audit
				(id, intervention_id, student_id, action, actor_name, actor_role,
				 from_status, to_status, outcome, reason, at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`,
			id, e.InterventionID, e.StudentID, string(e.Action), e.Actor.Name, e.Actor.Role,
			string(e.From), string(e.To), string(e.Outcome), e.Reason, e.At,
		)
	}

	br := tx.SendBatch(ctx, batch)
	defer br.Close()

	for range entries {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to insert audit entry: %w", err)
		}
	}
	return nil
}

func scanIntervention(row pgx.Row) (intervention.Intervention, error) {
	var (
		iv     intervention.Intervention
		status string
	)
	err := row.Scan(&iv.ID, &iv.StudentID, &iv.Type, &iv.Description, &iv.Assignee, &iv.DueDate, &iv.Impact,
		&status, &iv.CreatedAt, &iv.UpdatedAt, &iv.StartedAt, &iv.CompletedAt)
	if err != nil {
		return intervention.Intervention{}, err
	}
	iv.Status = intervention.Status(status)
	return iv, nil
}
