// Package retry re-runs reads against the student data source and the
// database when they fail with a transient error. Attempts back off
// exponentially with jitter, and every decision is counted per policy.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/alem-hub/wellness-hub/internal/domain/shared"
	"github.com/alem-hub/wellness-hub/internal/infrastructure/metrics"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MARKERS
// ══════════════════════════════════════════════════════════════════════════════

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Permanent marks err so Do returns it at once, unwrapped. A circuit breaker
// rejection is the typical case: retrying would only hit the open breaker.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func isPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Transient marks an error from outside the domain (a failed dial, say) as
// worth another attempt under the default predicate.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

func isTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// shouldRetry is the default predicate: errors marked Transient and
// DataUnavailable errors. Invalid transitions, validation failures and
// missing records never get better by asking again.
func shouldRetry(err error) bool {
	return isTransient(err) || shared.IsRetryable(err)
}

// ══════════════════════════════════════════════════════════════════════════════
// POLICY
// ══════════════════════════════════════════════════════════════════════════════

// Policy configures a Retrier. Zero fields take the defaults noted.
type Policy struct {
	// Name labels the retries metric. Default: "default"
	Name string

	// MaxAttempts includes the first call. Default: 3
	MaxAttempts int

	// BaseDelay is the wait before the second attempt; it doubles from there.
	// Default: 100ms
	BaseDelay time.Duration

	// MaxDelay caps a single wait. Default: 1s
	MaxDelay time.Duration

	// Jitter spreads each wait by up to ±Jitter of itself. Default: 0
	Jitter float64

	// RetryIf decides which failures are retried. Default: Transient-marked
	// and DataUnavailable errors.
	RetryIf func(error) bool

	// OnRetry runs before each wait.
	OnRetry func(attempt int, err error, delay time.Duration)
}

func (p Policy) withDefaults() Policy {
	if p.Name == "" {
		p.Name = "default"
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 100 * time.Millisecond
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = max(time.Second, p.BaseDelay)
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		p.Jitter = 0
	}
	if p.RetryIf == nil {
		p.RetryIf = shouldRetry
	}
	return p
}

// Source is the policy for dashboard snapshot reads: short enough to fit in
// one refresh.
func Source() Policy {
	return Policy{Name: "source", MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Jitter: 0.2}
}

// Database is the policy for opening database connections from the CLI.
func Database() Policy {
	return Policy{Name: "database", MaxAttempts: 3, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second, Jitter: 0.05}
}

// ══════════════════════════════════════════════════════════════════════════════
// RETRIER
// ══════════════════════════════════════════════════════════════════════════════

// Retrier runs operations under one policy. Safe for concurrent use.
type Retrier struct {
	policy Policy
	wait   func(ctx context.Context, d time.Duration) error
}

// New creates a Retrier.
func New(p Policy) *Retrier {
	return &Retrier{policy: p.withDefaults(), wait: sleep}
}

// Do calls op until it succeeds, fails with an error the policy does not
// retry, or runs out of attempts. The returned error is the last one, with
// the Permanent or Transient marker removed. Cancelling ctx stops the waits.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	p := r.policy
	var last error

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return unmark(last)
			}
			return err
		}

		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				metrics.RecordRetry(p.Name, "recovered")
			}
			return nil
		}
		last = err

		if isPermanent(err) || !p.RetryIf(err) {
			return unmark(err)
		}
		if attempt >= p.MaxAttempts {
			metrics.RecordRetry(p.Name, "exhausted")
			return unmark(err)
		}

		delay := r.backoff(attempt)
		metrics.RecordRetry(p.Name, "retry")
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}
		if err := r.wait(ctx, delay); err != nil {
			return unmark(last)
		}
	}
}

// backoff is the wait after the given failed attempt.
func (r *Retrier) backoff(attempt int) time.Duration {
	p := r.policy
	d := p.BaseDelay
	for i := 1; i < attempt && d < p.MaxDelay; i++ {
		d *= 2
	}
	d = min(d, p.MaxDelay)

	if p.Jitter > 0 {
		spread := float64(d) * p.Jitter
		d += time.Duration(spread * (rand.Float64()*2 - 1))
	}
	return max(d, 0)
}

// unmark strips a marker added by Permanent or Transient.
func unmark(err error) error {
	switch e := err.(type) {
	case *permanentError:
		return e.err
	case *transientError:
		return e.err
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
