package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/wellness-hub/internal/domain/intervention"
	"github.com/alem-hub/wellness-hub/internal/domain/risk"
	"github.com/alem-hub/wellness-hub/internal/domain/shared"
	"github.com/alem-hub/wellness-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// IMPORTER
// ══════════════════════════════════════════════════════════════════════════════

// Store is the population store the importer writes to.
type Store interface {
	risk.Source
	risk.Writer
}

// RecordError describes one rejected record.
type RecordError struct {
	Kind  string `json:"kind"`
	Index int    `json:"index"`
	ID    string `json:"id,omitempty"`
	Err   string `json:"error"`
}

// Report summarizes one import.
type Report struct {
	Students      int                   `json:"students"`
	Indicators    int                   `json:"indicators"`
	Interventions int                   `json:"interventions"`
	Clamped       []risk.InputViolation `json:"clamped,omitempty"`
	Rejected      []RecordError         `json:"rejected,omitempty"`
}

// Importer loads a Batch into the store. Invalid records are skipped and
// reported; a store failure aborts the import.
type Importer struct {
	store Store
	repo  intervention.Repository
	log   *logger.Logger
	now   func() time.Time
	newID func() string
}

// NewImporter creates an importer. repo may be nil when interventions are not imported.
func NewImporter(store Store, repo intervention.Repository, log *logger.Logger) *Importer {
	if log == nil {
		log = logger.Nop()
	}
	return &Importer{
		store: store,
		repo:  repo,
		log:   log.With(logger.Component("ingest")),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// WithClock overrides the time source.
func (i *Importer) WithClock(now func() time.Time) *Importer {
	i.now = now
	return i
}

// Decode reads a JSON batch.
func Decode(r io.Reader) (Batch, error) {
	var b Batch
	if err := json.NewDecoder(r).Decode(&b); err != nil {
		return Batch{}, shared.WrapError("ingest", "Decode", shared.ErrInvalidInput, "malformed batch", err)
	}
	return b, nil
}

// Import writes students first, then indicators validated against the
// resulting population, then interventions for known students.
func (i *Importer) Import(ctx context.Context, b Batch) (*Report, error) {
	report := &Report{}

	students := make([]risk.Student, 0, len(b.Students))
	for idx, rec := range b.Students {
		s, violations, err := ToStudent(rec)
		if err != nil {
			report.reject("student", idx, rec.ID, err)
			continue
		}
		for _, v := range violations {
			i.log.Warn("student record out of range",
				logger.StudentID(v.StudentID),
				logger.String("field", v.Field),
				logger.Int("received", v.Received),
				logger.Int("clamped", v.Clamped),
			)
		}
		report.Clamped = append(report.Clamped, violations...)
		students = append(students, s)
	}
	if len(students) > 0 {
		if err := i.store.UpsertStudents(ctx, students); err != nil {
			return report, fmt.Errorf("ingest: upsert students: %w", err)
		}
	}
	report.Students = len(students)

	if len(b.Indicators) == 0 && len(b.Interventions) == 0 {
		i.logReport(report)
		return report, nil
	}

	all, err := i.store.GetStudents(ctx)
	if err != nil {
		return report, fmt.Errorf("ingest: read population: %w", err)
	}

	indicators := make([]risk.EarlyWarningIndicator, 0, len(b.Indicators))
	for idx, rec := range b.Indicators {
		ind, err := ToIndicator(rec, len(all))
		if err != nil {
			report.reject("indicator", idx, rec.ID, err)
			continue
		}
		indicators = append(indicators, ind)
	}
	if len(indicators) > 0 {
		if err := i.store.InsertIndicators(ctx, indicators); err != nil {
			return report, fmt.Errorf("ingest: insert indicators: %w", err)
		}
	}
	report.Indicators = len(indicators)

	if err := i.importInterventions(ctx, b.Interventions, all, report); err != nil {
		return report, err
	}

	i.logReport(report)
	return report, nil
}

func (i *Importer) importInterventions(ctx context.Context, records []InterventionRecord, population []risk.Student, report *Report) error {
	if len(records) == 0 {
		return nil
	}
	if i.repo == nil {
		return fmt.Errorf("ingest: %d interventions in batch but no intervention repository", len(records))
	}

	for idx, rec := range records {
		iv, err := ToIntervention(rec, i.newID, i.now())
		if err != nil {
			report.reject("intervention", idx, rec.ID, err)
			continue
		}
		if _, ok := risk.FindStudent(population, iv.StudentID); !ok {
			report.reject("intervention", idx, iv.ID,
				shared.NewDomainError("ingest", "Import", shared.ErrNotFound, "student "+iv.StudentID+" not found"))
			continue
		}

		err = i.repo.Create(ctx, iv)
		switch {
		case err == nil:
			report.Interventions++
		case shared.IsValidation(err) || shared.IsNotFound(err) || errors.Is(err, shared.ErrAlreadyExists):
			report.reject("intervention", idx, iv.ID, err)
		default:
			return fmt.Errorf("ingest: create intervention %s: %w", iv.ID, err)
		}
	}
	return nil
}

func (r *Report) reject(kind string, index int, id string, err error) {
	r.Rejected = append(r.Rejected, RecordError{Kind: kind, Index: index, ID: id, Err: err.Error()})
}

func (i *Importer) logReport(r *Report) {
	i.log.Info("import finished",
		logger.Int("students", r.Students),
		logger.Int("indicators", r.Indicators),
		logger.Int("interventions", r.Interventions),
		logger.Int("clamped", len(r.Clamped)),
		logger.Int("rejected", len(r.Rejected)),
	)
}
