package view

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/wellness-hub/internal/application/query"
	"github.com/alem-hub/wellness-hub/internal/domain/intervention"
	"github.com/alem-hub/wellness-hub/internal/domain/risk"
	"github.com/alem-hub/wellness-hub/internal/domain/shared"
	"github.com/alem-hub/wellness-hub/internal/infrastructure/metrics"
	"github.com/alem-hub/wellness-hub/pkg/logger"
	"github.com/alem-hub/wellness-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// Snapshot is an immutable copy of the source collections. Derived results are
// memoized against Version, so a snapshot must never be modified in place:
// changes produce a new snapshot with a higher version.
type Snapshot struct {
	Version       uint64
	Students      []risk.Student
	Interventions []intervention.Intervention
	Indicators    []risk.EarlyWarningIndicator
	LoadedAt      time.Time
}

var versions atomic.Uint64

func nextVersion() uint64 {
	return versions.Add(1)
}

// NewSnapshot builds a snapshot from collections the caller no longer touches.
func NewSnapshot(students []risk.Student, ivs []intervention.Intervention, indicators []risk.EarlyWarningIndicator, at time.Time) *Snapshot {
	return &Snapshot{
		Version:       nextVersion(),
		Students:      students,
		Interventions: ivs,
		Indicators:    indicators,
		LoadedAt:      at,
	}
}

// WithIntervention returns a new snapshot where iv replaces the intervention
// with the same id, or is appended when it is new.
func (s *Snapshot) WithIntervention(iv intervention.Intervention) *Snapshot {
	ivs := make([]intervention.Intervention, 0, len(s.Interventions)+1)
	replaced := false
	for _, cur := range s.Interventions {
		if cur.ID == iv.ID {
			ivs = append(ivs, iv)
			replaced = true
			continue
		}
		ivs = append(ivs, cur)
	}
	if !replaced {
		ivs = append(ivs, iv)
	}

	return &Snapshot{
		Version:       nextVersion(),
		Students:      s.Students,
		Interventions: ivs,
		Indicators:    s.Indicators,
		LoadedAt:      s.LoadedAt,
	}
}

// Student looks up one student.
func (s *Snapshot) Student(id string) (risk.Student, bool) {
	return risk.FindStudent(s.Students, id)
}

// InterventionsOf returns the interventions of one student.
func (s *Snapshot) InterventionsOf(studentID string) []intervention.Intervention {
	return intervention.ForStudent(s.Interventions, studentID)
}

// ══════════════════════════════════════════════════════════════════════════════
// LOADER
// ══════════════════════════════════════════════════════════════════════════════

// Loader reads all collections from the data source concurrently and
// normalizes student records before they reach the classifier.
type Loader struct {
	source    risk.Source
	repo      intervention.Repository
	publisher shared.EventPublisher
	retrier   *retry.Retrier
	log       *logger.Logger
	now       func() time.Time
}

// NewLoader creates a snapshot loader. publisher may be nil.
func NewLoader(source risk.Source, repo intervention.Repository, publisher shared.EventPublisher, log *logger.Logger) *Loader {
	if log == nil {
		log = logger.Nop()
	}
	return &Loader{
		source:    source,
		repo:      repo,
		publisher: publisher,
		retrier:   retry.New(retry.Source()),
		log:       log.With(logger.Component("snapshot_loader")),
		now:       time.Now,
	}
}

// WithRetrier replaces the retry policy. Tests pass a single-attempt retrier.
func (l *Loader) WithRetrier(r *retry.Retrier) *Loader {
	l.retrier = r
	return l
}

// Load fetches a fresh snapshot. Any read failure is returned as
// shared.ErrDataUnavailable.
func (l *Loader) Load(ctx context.Context) (*Snapshot, error) {
	var (
		students   []risk.Student
		ivs        []intervention.Intervention
		indicators []risk.EarlyWarningIndicator
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return l.retrier.Do(gctx, func(ctx context.Context) error {
			var err error
			students, err = l.source.GetStudents(ctx)
			return l.readErr("GetStudents", err)
		})
	})
	g.Go(func() error {
		return l.retrier.Do(gctx, func(ctx context.Context) error {
			var err error
			indicators, err = l.source.GetEarlyWarningIndicators(ctx)
			return l.readErr("GetEarlyWarningIndicators", err)
		})
	})
	g.Go(func() error {
		return l.retrier.Do(gctx, func(ctx context.Context) error {
			var err error
			ivs, err = l.repo.GetInterventions(ctx, "")
			return l.readErr("GetInterventions", err)
		})
	})

	if err := g.Wait(); err != nil {
		if shared.IsDataUnavailable(err) {
			return nil, err
		}
		return nil, shared.DataUnavailable("Load", err)
	}

	return NewSnapshot(l.normalize(students), ivs, indicators, l.now()), nil
}

func (l *Loader) readErr(op string, err error) error {
	if err == nil {
		return nil
	}
	metrics.RecordSourceFailure(op)
	if shared.IsDataUnavailable(err) {
		return err
	}
	return shared.DataUnavailable(op, err)
}

// normalize clamps every record and reports each violation. It never fails:
// bad values are coerced into range so the dashboard keeps rendering.
func (l *Loader) normalize(students []risk.Student) []risk.Student {
	out, violations := risk.NormalizeAll(students)
	for _, v := range violations {
		l.reportClamp(v)
	}
	return out
}

func (l *Loader) reportClamp(v risk.InputViolation) {
	query.ReportClamp(l.log, v)
	if l.publisher == nil {
		return
	}
	_ = l.publisher.Publish(shared.InputClampedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventInputClamped, v.StudentID, l.now()),
		Field:     v.Field,
		Received:  v.Received,
		Clamped:   v.Clamped,
	})
}
