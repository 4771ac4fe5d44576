// Package view implements the dashboard view controller: the List and Detail
// modes, the input echo and the deferred recomputation of derived results.
package view

import (
	"context"
	"sync"
	"time"

	"github.com/alem-hub/wellness-hub/internal/infrastructure/metrics"
)

// ══════════════════════════════════════════════════════════════════════════════
// EXECUTORS
// ══════════════════════════════════════════════════════════════════════════════

// Executor runs deferred tasks. Submit must not run the task on the calling
// goroutine: callers schedule while holding their own locks.
type Executor interface {
	Submit(task func())
}

// GoExecutor runs every task on its own goroutine.
type GoExecutor struct{}

// Submit implements Executor.
func (GoExecutor) Submit(task func()) { go task() }

// ManualExecutor queues tasks until the caller runs them, so tests can decide
// the order in which computations finish.
type ManualExecutor struct {
	mu    sync.Mutex
	tasks []func()
}

// NewManualExecutor creates an empty queue.
func NewManualExecutor() *ManualExecutor {
	return &ManualExecutor{}
}

// Submit implements Executor.
func (m *ManualExecutor) Submit(task func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, task)
}

// Pending returns the number of queued tasks.
func (m *ManualExecutor) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// Run runs and removes the i-th queued task (0 is the oldest).
func (m *ManualExecutor) Run(i int) {
	m.mu.Lock()
	task := m.tasks[i]
	m.tasks = append(m.tasks[:i:i], m.tasks[i+1:]...)
	m.mu.Unlock()
	task()
}

// RunAll runs queued tasks oldest first, including tasks queued meanwhile.
func (m *ManualExecutor) RunAll() {
	for m.Pending() > 0 {
		m.Run(0)
	}
}

// RunNewestFirst runs queued tasks in reverse submission order, modelling
// computations that complete out of order.
func (m *ManualExecutor) RunNewestFirst() {
	for n := m.Pending(); n > 0; n = m.Pending() {
		m.Run(n - 1)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DEFERRED
// ══════════════════════════════════════════════════════════════════════════════

// Result is the outcome of one scheduled computation.
type Result[T any] struct {
	Generation uint64
	Value      T
	Err        error
	Scheduled  time.Time
}

// Deferred is a single-slot, cancel-on-supersede task runner. Scheduling a
// new computation cancels the context of the previous one, and a result is
// delivered only while its generation is the latest.
//
// Delivery happens outside the slot's lock. An owner that holds its own lock
// while scheduling must re-check IsLatest under that lock before applying a
// result, so a newer Schedule cannot interleave with the apply.
type Deferred[T any] struct {
	kind    string
	exec    Executor
	deliver func(Result[T])

	mu       sync.Mutex
	gen      uint64
	cancel   context.CancelFunc
	inflight int
	idle     chan struct{}
}

// NewDeferred creates a slot. kind labels its metrics.
func NewDeferred[T any](kind string, exec Executor, deliver func(Result[T])) *Deferred[T] {
	if exec == nil {
		exec = GoExecutor{}
	}
	idle := make(chan struct{})
	close(idle)
	return &Deferred[T]{kind: kind, exec: exec, deliver: deliver, idle: idle}
}

// Schedule supersedes any pending computation with compute and returns the
// new generation.
func (d *Deferred[T]) Schedule(ctx context.Context, compute func(context.Context) (T, error)) uint64 {
	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
	}
	d.gen++
	gen := d.gen
	tctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	if d.inflight == 0 {
		d.idle = make(chan struct{})
	}
	d.inflight++
	d.mu.Unlock()

	metrics.RecordRecompute(d.kind, "scheduled")
	scheduled := time.Now()

	d.exec.Submit(func() {
		defer d.done()
		defer cancel()

		if tctx.Err() != nil {
			metrics.RecordRecompute(d.kind, "discarded")
			return
		}
		v, err := compute(tctx)
		if tctx.Err() != nil || !d.IsLatest(gen) {
			metrics.RecordRecompute(d.kind, "discarded")
			return
		}
		d.deliver(Result[T]{Generation: gen, Value: v, Err: err, Scheduled: scheduled})
	})

	return gen
}

// Supersede cancels any pending computation without scheduling a new one.
// Used when a result is produced synchronously, for example from a memo hit.
func (d *Deferred[T]) Supersede() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.gen++
	return d.gen
}

// IsLatest reports whether gen is the most recent generation.
func (d *Deferred[T]) IsLatest(gen uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return gen == d.gen
}

// Wait blocks until no computation is in flight or ctx is done.
// With a ManualExecutor the queued tasks must be run for Wait to return.
func (d *Deferred[T]) Wait(ctx context.Context) error {
	for {
		d.mu.Lock()
		if d.inflight == 0 {
			d.mu.Unlock()
			return nil
		}
		idle := d.idle
		d.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (d *Deferred[T]) done() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inflight--
	if d.inflight == 0 {
		close(d.idle)
	}
}
