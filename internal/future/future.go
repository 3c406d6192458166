// Package future implements the explicit async contract from spec §9:
// every Thing Core and Resource Link operation is a single-shot result
// that completes exactly once, carries either a value or a typed error,
// and is cancellable.
package future

import (
	"context"
	"sync"

	"github.com/rakunlabs/splot/internal/splotval"
)

// Future is a single-completion async result. The zero value is not
// usable; construct with New.
type Future struct {
	mu        sync.Mutex
	done      chan struct{}
	val       splotval.Value
	err       error
	resolved  bool
	cancelled bool
}

// New returns a pending Future and the resolve function that completes
// it. resolve must be called at most once; subsequent calls are no-ops.
func New() (*Future, func(splotval.Value, error)) {
	f := &Future{done: make(chan struct{})}
	return f, f.resolve
}

func (f *Future) resolve(v splotval.Value, err error) {
	f.mu.Lock()
	if f.resolved {
		f.mu.Unlock()
		return
	}
	f.resolved = true
	f.val, f.err = v, err
	f.mu.Unlock()
	close(f.done)
}

// Cancel marks the future cancelled. Per spec §5, cancelling an in-flight
// operation has no effect on a run already committed to completion — it
// only prevents a *pending* caller from waiting further and lets the
// owner check Cancelled() before committing side effects it hasn't
// started yet.
func (f *Future) Cancel() {
	f.mu.Lock()
	f.cancelled = true
	f.mu.Unlock()
	// Release pending waiters; a no-op if the future already resolved.
	f.resolve(splotval.Value{}, context.Canceled)
}

// Cancelled reports whether Cancel has been called.
func (f *Future) Cancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}

// Wait blocks until the future resolves or ctx is done.
func (f *Future) Wait(ctx context.Context) (splotval.Value, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		return splotval.Value{}, ctx.Err()
	}
}

// Done reports whether the future has already resolved, for synchronous
// callers running on the same scheduler worker that will resolve it.
func (f *Future) Done() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Resolved returns an already-completed future wrapping v.
func Resolved(v splotval.Value) *Future {
	f, resolve := New()
	resolve(v, nil)
	return f
}

// Failed returns an already-completed future wrapping err.
func Failed(err error) *Future {
	f, resolve := New()
	resolve(splotval.Value{}, err)
	return f
}
