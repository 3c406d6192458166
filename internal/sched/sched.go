// Package sched implements the cooperative scheduler contract from
// spec §4.3: a single-logical-thread executor with delayed and periodic
// scheduling, real and virtual clock modes, and cancellable tasks.
package sched

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"
)

// Task is a unit of work run to completion on the scheduler's worker.
type Task func(ctx context.Context)

// ErrorSink receives panics/errors recovered from a task so a single
// misbehaving task cannot kill the worker.
type ErrorSink func(err error)

type entry struct {
	deadline time.Time
	seq      uint64
	period   time.Duration
	periodic bool
	fn       Task
	cancelled bool
	index    int
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Scheduler is a single-threaded cooperative executor. Use New for a
// real-time scheduler driven by wall-clock monotonic time, or NewVirtual
// for a test scheduler whose clock only advances via Tick.
type Scheduler struct {
	mu       sync.Mutex
	heap     entryHeap
	seq      uint64
	log      *slog.Logger
	errSink  ErrorSink
	virtual  bool
	vnow     time.Time
	wake     chan struct{}
	ctx      context.Context
	cancelFn context.CancelFunc
	wg       sync.WaitGroup
}

// Option configures a Scheduler at construction.
type Option func(*Scheduler)

// WithLogger attaches a structured logger used for recovered task panics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// WithErrorSink attaches a process-level error sink for task failures.
func WithErrorSink(sink ErrorSink) Option {
	return func(s *Scheduler) { s.errSink = sink }
}

// New creates a real-time scheduler. Call Run to start its worker
// goroutine; cancel the context passed to Run to stop it.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{log: slog.Default(), wake: make(chan struct{}, 1)}
	for _, o := range opts {
		o(s)
	}
	return s
}

// NewVirtual creates a scheduler whose clock only advances via Tick,
// for deterministic tests. start sets the initial virtual time.
func NewVirtual(start time.Time, opts ...Option) *Scheduler {
	s := New(opts...)
	s.virtual = true
	s.vnow = start
	return s
}

// IsVirtual reports whether this scheduler was built with NewVirtual.
func (s *Scheduler) IsVirtual() bool { return s.virtual }

// Drain fires every task already due at the current virtual time without
// advancing the clock; it is Tick(0) under another name, provided for
// callers that submit a zero-delay task and want it to run before
// inspecting the result. Only valid on a virtual scheduler.
func (s *Scheduler) Drain() { s.Tick(0) }

// Now returns the scheduler's current time: virtual clock time in test
// mode, or wall-clock monotonic time otherwise.
func (s *Scheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.virtual {
		return s.vnow
	}
	return time.Now()
}

// CancelHandle is returned by Schedule/SchedulePeriodic. Cancel is
// idempotent; cancelling an already-fired or already-cancelled task is a
// no-op.
type CancelHandle struct {
	s *Scheduler
	e *entry
}

// Cancel removes a not-yet-fired task from the queue. Cancelling a task
// that is currently executing has no effect on that run.
func (h CancelHandle) Cancel() {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	h.e.cancelled = true
	if h.e.index >= 0 {
		heap.Remove(&h.s.heap, h.e.index)
	}
}

// Execute runs task as soon as the worker is free, preserving FIFO order
// relative to other Execute/Schedule calls with the same deadline.
func (s *Scheduler) Execute(task Task) CancelHandle {
	return s.Schedule(task, 0)
}

// Schedule runs task once after delay.
func (s *Scheduler) Schedule(task Task, delay time.Duration) CancelHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &entry{deadline: s.nowLocked().Add(delay), fn: task}
	s.enqueueLocked(e)
	return CancelHandle{s: s, e: e}
}

// SchedulePeriodic runs task first after initial, then every period until
// cancelled.
func (s *Scheduler) SchedulePeriodic(task Task, initial, period time.Duration) CancelHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &entry{deadline: s.nowLocked().Add(initial), fn: task, period: period, periodic: true}
	s.enqueueLocked(e)
	return CancelHandle{s: s, e: e}
}

func (s *Scheduler) nowLocked() time.Time {
	if s.virtual {
		return s.vnow
	}
	return time.Now()
}

func (s *Scheduler) enqueueLocked(e *entry) {
	s.seq++
	e.seq = s.seq
	heap.Push(&s.heap, e)
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) runTask(e *entry) {
	defer func() {
		if r := recover(); r != nil {
			s.reportError(panicToErr(r))
		}
	}()
	e.fn(s.ctx)
}

func (s *Scheduler) reportError(err error) {
	if s.errSink != nil {
		s.errSink(err)
		return
	}
	s.log.Error("scheduler task failed", "error", err)
}

// Tick advances the virtual clock by d, firing every callback whose
// deadline falls within the new window in scheduled order, then returns.
// Only valid on a scheduler created with NewVirtual.
func (s *Scheduler) Tick(d time.Duration) {
	s.mu.Lock()
	if !s.virtual {
		s.mu.Unlock()
		panic("sched: Tick called on a real-time scheduler")
	}
	target := s.vnow.Add(d)
	for {
		if s.heap.Len() == 0 || s.heap[0].deadline.After(target) {
			break
		}
		e := heap.Pop(&s.heap).(*entry)
		if e.cancelled {
			continue
		}
		s.vnow = e.deadline
		if e.periodic {
			// Reuse the same entry (and thus the same CancelHandle) for
			// the next occurrence rather than allocating a new one.
			e.deadline = e.deadline.Add(e.period)
			s.seq++
			e.seq = s.seq
			heap.Push(&s.heap, e)
		}
		s.mu.Unlock()
		s.runTask(e)
		s.mu.Lock()
	}
	s.vnow = target
	s.mu.Unlock()
}

// Run starts the real-time worker loop; it blocks until ctx is cancelled.
// Only valid on a scheduler created with New.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancelFn = context.WithCancel(ctx)
	s.mu.Unlock()
	for {
		s.mu.Lock()
		var timer *time.Timer
		if s.heap.Len() > 0 {
			delay := time.Until(s.heap[0].deadline)
			if delay < 0 {
				delay = 0
			}
			timer = time.NewTimer(delay)
		}
		s.mu.Unlock()

		var timerC <-chan time.Time
		if timer != nil {
			timerC = timer.C
		}
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-s.wake:
			if timer != nil {
				timer.Stop()
			}
			continue
		case <-timerC:
		}
		s.drainDue()
	}
}

func (s *Scheduler) drainDue() {
	now := time.Now()
	for {
		s.mu.Lock()
		if s.heap.Len() == 0 || s.heap[0].deadline.After(now) {
			s.mu.Unlock()
			return
		}
		e := heap.Pop(&s.heap).(*entry)
		if e.cancelled {
			s.mu.Unlock()
			continue
		}
		if e.periodic {
			e.deadline = e.deadline.Add(e.period)
			s.seq++
			e.seq = s.seq
			heap.Push(&s.heap, e)
		}
		s.mu.Unlock()
		s.runTask(e)
	}
}

func panicToErr(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return &panicError{v: r}
}

type panicError struct{ v any }

func (p *panicError) Error() string { return "scheduler task panicked" }
