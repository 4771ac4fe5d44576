// Package guard puts a circuit breaker in front of the population source.
package guard

import (
	"context"

	"github.com/alem-hub/wellness-hub/internal/domain/risk"
	"github.com/alem-hub/wellness-hub/internal/domain/shared"
	"github.com/alem-hub/wellness-hub/internal/infrastructure/metrics"
	"github.com/alem-hub/wellness-hub/pkg/circuitbreaker"
	"github.com/alem-hub/wellness-hub/pkg/logger"
	"github.com/alem-hub/wellness-hub/pkg/retry"
)

// SourceWriter is a population source that also accepts writes.
type SourceWriter interface {
	risk.Source
	risk.Writer
}

// Source guards population reads with a circuit breaker. While the breaker is
// open, reads fail at once with shared.ErrDataUnavailable marked permanent so
// the loader does not retry them. Writes pass straight through.
type Source struct {
	next SourceWriter
	cb   *circuitbreaker.CircuitBreaker
}

// NewSource wraps next with cb. A nil cb means DatabaseBreaker.
func NewSource(next SourceWriter, cb *circuitbreaker.CircuitBreaker, log *logger.Logger) *Source {
	if log == nil {
		log = logger.Nop()
	}
	if cb == nil {
		cb = circuitbreaker.DatabaseBreaker(StateLogger(log))
	}
	return &Source{next: next, cb: cb}
}

// StateLogger logs breaker transitions and exports them as a gauge.
func StateLogger(log *logger.Logger) func(name string, from, to circuitbreaker.State) {
	return func(name string, from, to circuitbreaker.State) {
		metrics.SetBreakerState(name, to.String())
		log.Warn("circuit breaker state changed",
			logger.String("breaker", name),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	}
}

// Breaker exposes the breaker for health reporting.
func (s *Source) Breaker() *circuitbreaker.CircuitBreaker { return s.cb }

// GetStudents implements risk.Source.
func (s *Source) GetStudents(ctx context.Context) ([]risk.Student, error) {
	var out []risk.Student
	err := s.execute(ctx, "GetStudents", func(ctx context.Context) error {
		var err error
		out, err = s.next.GetStudents(ctx)
		return err
	})
	return out, err
}

// GetEarlyWarningIndicators implements risk.Source.
func (s *Source) GetEarlyWarningIndicators(ctx context.Context) ([]risk.EarlyWarningIndicator, error) {
	var out []risk.EarlyWarningIndicator
	err := s.execute(ctx, "GetEarlyWarningIndicators", func(ctx context.Context) error {
		var err error
		out, err = s.next.GetEarlyWarningIndicators(ctx)
		return err
	})
	return out, err
}

// UpsertStudents implements risk.Writer.
func (s *Source) UpsertStudents(ctx context.Context, students []risk.Student) error {
	return s.next.UpsertStudents(ctx, students)
}

// InsertIndicators implements risk.Writer.
func (s *Source) InsertIndicators(ctx context.Context, indicators []risk.EarlyWarningIndicator) error {
	return s.next.InsertIndicators(ctx, indicators)
}

func (s *Source) execute(ctx context.Context, op string, fn func(context.Context) error) error {
	err := s.cb.Execute(ctx, fn)
	if circuitbreaker.IsRejected(err) {
		return retry.Permanent(shared.DataUnavailable(op, err))
	}
	return err
}

// Ping fails while the breaker is open.
func (s *Source) Ping(ctx context.Context) error {
	if s.cb.State() == circuitbreaker.StateOpen {
		return shared.DataUnavailable("Ping", circuitbreaker.ErrCircuitOpen)
	}
	return nil
}
