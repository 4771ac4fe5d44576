package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/wellness-hub/internal/domain/risk"
	"github.com/alem-hub/wellness-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RISK REPOSITORY
// Implements risk.Source and risk.Writer.
// ══════════════════════════════════════════════════════════════════════════════

// RiskRepository reads and writes the student population and indicators.
type RiskRepository struct {
	conn *Connection
}

// NewRiskRepository creates a new RiskRepository.
func NewRiskRepository(conn *Connection) *RiskRepository {
	return &RiskRepository{conn: conn}
}

// ─────────────────────────────────────────────────────────────────────────────
// Students
// ─────────────────────────────────────────────────────────────────────────────

// GetStudents returns the population in source (insertion) order with factors attached.
// Values are returned as stored; normalization is the reader's job.
func (r *RiskRepository) GetStudents(ctx context.Context) ([]risk.Student, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, name, grade, risk_score, trend, risk_factors,
			   predicted_risk, confidence, last_updated
		FROM students
		ORDER BY seq
	`)
	if err != nil {
		return nil, readErr("GetStudents", err)
	}
	defer rows.Close()

	var students []risk.Student
	index := make(map[string]int)
	for rows.Next() {
		var (
			s                            risk.Student
			score, predicted, confidence int
			trend                        string
		)
		if err := rows.Scan(&s.ID, &s.Name, &s.Grade, &score, &trend, &s.RiskFactors,
			&predicted, &confidence, &s.LastUpdated); err != nil {
			return nil, readErr("GetStudents", fmt.Errorf("scan student: %w", err))
		}
		s.RiskScore = risk.Score(score)
		s.PredictedRisk = risk.Score(predicted)
		s.Confidence = risk.Percent(confidence)
		s.Trend = risk.Trend(trend)
		index[s.ID] = len(students)
		students = append(students, s)
	}
	if err := rows.Err(); err != nil {
		return nil, readErr("GetStudents", err)
	}

	if err := r.attachFactors(ctx, students, index); err != nil {
		return nil, err
	}
	if students == nil {
		students = []risk.Student{}
	}
	return students, nil
}

func (r *RiskRepository) attachFactors(ctx context.Context, students []risk.Student, index map[string]int) error {
	if len(students) == 0 {
		return nil
	}

	rows, err := r.conn.Query(ctx, `
		SELECT student_id, name, category, trend, weight
		FROM student_risk_factors
		ORDER BY student_id, position
	`)
	if err != nil {
		return readErr("GetStudents", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			studentID, category, trend string
			f                          risk.RiskFactor
			weight                     int
		)
		if err := rows.Scan(&studentID, &f.Name, &category, &trend, &weight); err != nil {
			return readErr("GetStudents", fmt.Errorf("scan factor: %w", err))
		}
		i, ok := index[studentID]
		if !ok {
			continue
		}
		f.Category = risk.Category(category)
		f.Trend = risk.Trend(trend)
		f.Weight = risk.Percent(weight)
		students[i].Factors = append(students[i].Factors, f)
	}
	if err := rows.Err(); err != nil {
		return readErr("GetStudents", err)
	}
	return nil
}

// UpsertStudents inserts or replaces students and their factors in one
// transaction. Existing students keep their position in source order.
func (r *RiskRepository) UpsertStudents(ctx context.Context, students []risk.Student) error {
	if len(students) == 0 {
		return nil
	}

	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		queued := 0
		for _, s := range students {
			factors := s.RiskFactors
			if factors == nil {
				factors = []string{}
			}
			lastUpdated := s.LastUpdated
			if lastUpdated.IsZero() {
				lastUpdated = time.Now().UTC()
			}

			batch.Queue(`
				INSERT INTO students (id, name, grade, risk_score, trend, risk_factors,
					predicted_risk, confidence, last_updated)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				ON CONFLICT (id) DO UPDATE SET
					name = EXCLUDED.name,
					grade = EXCLUDED.grade,
					risk_score = EXCLUDED.risk_score,
					trend = EXCLUDED.trend,
					risk_factors = EXCLUDED.risk_factors,
					predicted_risk = EXCLUDED.predicted_risk,
					confidence = EXCLUDED.confidence,
					last_updated = EXCLUDED.last_updated
			`,
				s.ID, s.Name, s.Grade, int(s.RiskScore), string(s.Trend), factors,
				int(s.PredictedRisk), int(s.Confidence), lastUpdated,
			)
			batch.Queue(`DELETE FROM student_risk_factors WHERE student_id = $1`, s.ID)
			queued += 2

			for pos, f := range s.Factors {
				batch.Queue(`
					INSERT INTO student_risk_factors (student_id, position, name, category, trend, weight)
					VALUES ($1, $2, $3, $4, $5, $6)
				`, s.ID, pos, f.Name, string(f.Category), string(f.Trend), int(f.Weight))
				queued++
			}
		}

		br := tx.SendBatch(ctx, batch)
		defer br.Close()

		for i := 0; i < queued; i++ {
			if _, err := br.Exec(); err != nil {
				return fmt.Errorf("failed to upsert student: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return writeErr("UpsertStudents", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Early Warning Indicators
// ─────────────────────────────────────────────────────────────────────────────

// GetEarlyWarningIndicators returns indicators in insertion order.
func (r *RiskRepository) GetEarlyWarningIndicators(ctx context.Context) ([]risk.EarlyWarningIndicator, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, type, description, urgency, detected_at, confidence, affected_students, trend
		FROM early_warning_indicators
		ORDER BY seq
	`)
	if err != nil {
		return nil, readErr("GetEarlyWarningIndicators", err)
	}
	defer rows.Close()

	out := make([]risk.EarlyWarningIndicator, 0)
	for rows.Next() {
		var (
			ind            risk.EarlyWarningIndicator
			urgency, trend string
			confidence     int
		)
		if err := rows.Scan(&ind.ID, &ind.Type, &ind.Description, &urgency, &ind.DetectedAt,
			&confidence, &ind.AffectedStudents, &trend); err != nil {
			return nil, readErr("GetEarlyWarningIndicators", fmt.Errorf("scan indicator: %w", err))
		}
		ind.Urgency = risk.Urgency(urgency)
		ind.Trend = risk.Trend(trend)
		ind.Confidence = risk.Percent(confidence)
		out = append(out, ind)
	}
	if err := rows.Err(); err != nil {
		return nil, readErr("GetEarlyWarningIndicators", err)
	}
	return out, nil
}

// InsertIndicators stores indicators, replacing any with the same id.
func (r *RiskRepository) InsertIndicators(ctx context.Context, indicators []risk.EarlyWarningIndicator) error {
	if len(indicators) == 0 {
		return nil
	}

	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, ind := range indicators {
			batch.Queue(`
				INSERT INTO early_warning_indicators
					(id, type, description, urgency, detected_at, confidence, affected_students, trend)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (id) DO UPDATE SET
					type = EXCLUDED.type,
					description = EXCLUDED.description,
					urgency = EXCLUDED.urgency,
					detected_at = EXCLUDED.detected_at,
					confidence = EXCLUDED.confidence,
					affected_students = EXCLUDED.affected_students,
					trend = EXCLUDED.trend
			`,
				ind.ID, ind.Type, ind.Description, string(ind.Urgency), ind.DetectedAt,
				int(ind.Confidence), ind.AffectedStudents, string(ind.Trend),
			)
		}

		br := tx.SendBatch(ctx, batch)
		defer br.Close()

		for range indicators {
			if _, err := br.Exec(); err != nil {
				return fmt.Errorf("failed to insert indicator: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return writeErr("InsertIndicators", err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

func readErr(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return shared.DataUnavailable(op, err)
}

func writeErr(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var de *shared.DomainError
	if errors.As(err, &de) {
		return err
	}
	return shared.WriteFailed(op, err)
}
