package tech

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rakunlabs/splot/internal/thing"
)

// DiscoveryBuilder accumulates filters for a discovery query per spec
// §4.11, then launches an async cancellable producer over Run.
type DiscoveryBuilder struct {
	tc *Technology

	includeHosted bool
	mustBeGroup   bool
	mustHaveTrait string
	mustHaveUID   string
	maxResults    int
	timeout       time.Duration
}

// Discover starts building a discovery query against this Technology's
// hosted Things.
func (tc *Technology) Discover() *DiscoveryBuilder {
	return &DiscoveryBuilder{tc: tc}
}

// IncludeHosted, when set, also matches Things hosted indirectly (any
// descendant of a hosted Thing, at any depth) rather than only
// directly-hosted top-level entries.
func (b *DiscoveryBuilder) IncludeHosted() *DiscoveryBuilder {
	b.includeHosted = true
	return b
}

// MustBeGroup restricts results to hosted Groups.
func (b *DiscoveryBuilder) MustBeGroup() *DiscoveryBuilder {
	b.mustBeGroup = true
	return b
}

// MustHaveTrait restricts results to Things owning a trait with this
// short id.
func (b *DiscoveryBuilder) MustHaveTrait(shortID string) *DiscoveryBuilder {
	b.mustHaveTrait = shortID
	return b
}

// MustHaveUID restricts the query to a single uid.
func (b *DiscoveryBuilder) MustHaveUID(uid string) *DiscoveryBuilder {
	b.mustHaveUID = uid
	return b
}

// SetMaxResults caps the number of results delivered to onResult before
// on_done fires.
func (b *DiscoveryBuilder) SetMaxResults(n int) *DiscoveryBuilder {
	b.maxResults = n
	return b
}

// SetTimeout bounds how long Run's producer goroutine keeps delivering
// results before it calls on_done with a deadline-exceeded error.
func (b *DiscoveryBuilder) SetTimeout(d time.Duration) *DiscoveryBuilder {
	b.timeout = d
	return b
}

// candidate pairs a discoverable Thing with whether it is itself a hosted
// Group (as opposed to a plain child Thing pulled in by includeHosted).
type candidate struct {
	t       *thing.Thing
	isGroup bool
}

// candidates lists every Thing this query may consider: the directly
// hosted entries, plus — when includeHosted is set — every descendant of
// each hosted Thing, since those are reachable through it but were never
// separately passed to Host.
func (b *DiscoveryBuilder) candidates() []candidate {
	out := make([]candidate, 0, len(b.tc.hosted))
	for _, e := range b.tc.hosted {
		out = append(out, candidate{t: e.thing, isGroup: e.isGroup})
		if !b.includeHosted {
			continue
		}
		queue := e.thing.AllChildren()
		for len(queue) > 0 {
			c := queue[0]
			queue = queue[1:]
			out = append(out, candidate{t: c})
			queue = append(queue, c.AllChildren()...)
		}
	}
	return out
}

// matches reports whether c satisfies every configured filter.
func (b *DiscoveryBuilder) matches(c candidate) bool {
	if b.mustBeGroup && !c.isGroup {
		return false
	}
	if b.mustHaveUID != "" && c.t.UID() != b.mustHaveUID {
		return false
	}
	if b.mustHaveTrait != "" && !slices.Contains(c.t.TraitIDs(), b.mustHaveTrait) {
		return false
	}
	return true
}

// Run launches the cancellable producer: onResult is invoked once per
// matching Thing on its own goroutine (serialized — the next call waits
// for the previous one to return), and onDone exactly once at the end,
// with a non-nil error only if the configured timeout elapsed or Run was
// cancelled before finishing. The returned func cancels the query.
func (b *DiscoveryBuilder) Run(onResult func(*thing.Thing), onDone func(error)) func() {
	ctx, cancel := context.WithCancel(context.Background())
	if b.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
	}

	var once sync.Once
	finish := func(err error) {
		once.Do(func() {
			if onDone != nil {
				onDone(err)
			}
		})
	}

	go func() {
		defer cancel()

		delivered := 0
		for _, c := range b.candidates() {
			if ctx.Err() != nil {
				finish(ctx.Err())
				return
			}
			if !b.matches(c) {
				continue
			}
			onResult(c.t)
			delivered++
			if b.maxResults > 0 && delivered >= b.maxResults {
				break
			}
		}
		finish(nil)
	}()

	return cancel
}
