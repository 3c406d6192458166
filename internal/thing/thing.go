// Package thing implements the Thing Core (spec §4.5), the transition and
// scene capability extensions (§4.6), and Groups (§4.8): the aggregate
// that binds a set of Traits into one addressable entity with property,
// section, child, and method APIs and listener fan-out.
package thing

import (
	"context"
	"sync"

	"github.com/rakunlabs/splot/internal/future"
	"github.com/rakunlabs/splot/internal/sched"
	"github.com/rakunlabs/splot/internal/splotval"
	"github.com/rakunlabs/splot/internal/trait"
)

// Thing aggregates traits into a single addressable entity per spec §3.
type Thing struct {
	mu  sync.RWMutex
	uid string

	traits map[string]trait.Trait // by trait short id

	parent   *Thing // non-owning lookup relation
	children map[string]map[string]*Thing

	listeners *listenerRegistry
	sched     *sched.Scheduler

	deletable      bool
	deleted        bool
	sceneChildOnly bool

	transitions *transitionCapability // nil unless WithTransitions
	scene       *sceneCapability      // nil unless WithScene

	persistListener PersistListener
}

// Option configures a Thing at construction.
type Option func(*Thing)

// WithTransitions enables the Transitioning Thing capability (§4.6).
func WithTransitions(rate float64) Option {
	return func(t *Thing) { t.transitions = newTransitionCapability(t, rate) }
}

// WithScene enables the Scene Thing capability (§4.6).
func WithScene() Option {
	return func(t *Thing) { t.scene = newSceneCapability(t) }
}

// Deletable marks the Thing as one whose delete() may succeed.
func Deletable() Option {
	return func(t *Thing) { t.deletable = true }
}

// New constructs a Thing with the given uid and traits, driven by sch.
func New(uid string, sch *sched.Scheduler, traits []trait.Trait, opts ...Option) *Thing {
	t := &Thing{
		uid:       uid,
		traits:    make(map[string]trait.Trait, len(traits)),
		children:  make(map[string]map[string]*Thing),
		listeners: newListenerRegistry(),
		sched:     sch,
	}
	for _, tr := range traits {
		t.traits[tr.ShortID()] = tr
		tr.SetChangeFunc(t.onTraitChange(tr.ShortID()))
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// UID returns the Thing's unique identifier.
func (t *Thing) UID() string { return t.uid }

// Parent returns the non-owning parent back-reference, or nil for a root Thing.
func (t *Thing) Parent() *Thing {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.parent
}

func (t *Thing) setParent(p *Thing) {
	t.mu.Lock()
	t.parent = p
	t.mu.Unlock()
}

// Scheduler returns the scheduler this Thing's operations run on.
func (t *Thing) Scheduler() *sched.Scheduler { return t.sched }

// Trait looks up an owned trait by short id.
func (t *Thing) Trait(shortID string) (trait.Trait, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tr, ok := t.traits[shortID]
	return tr, ok
}

// TraitIDs lists the short ids of every trait this Thing owns, used by
// discovery's must_have_trait filter (§4.11).
func (t *Thing) TraitIDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.traits))
	for id := range t.traits {
		ids = append(ids, id)
	}
	return ids
}

func (t *Thing) onTraitChange(traitID string) trait.ChangeFunc {
	return func(key splotval.TypedKey, value splotval.Value) {
		t.handleStateInvalidation(key)
		t.listeners.notify(key.Section, key, value)
	}
}

// submit runs fn on the Thing's scheduler and returns a future resolved
// with fn's result. For a virtual (test) scheduler the task is drained
// synchronously so callers don't need to call Tick themselves for a plain
// property operation.
func (t *Thing) submit(fn func() (splotval.Value, error)) *future.Future {
	f, resolve := future.New()
	t.sched.Execute(func(_ context.Context) {
		v, err := fn()
		resolve(v, err)
	})
	if t.sched.IsVirtual() {
		t.sched.Drain()
	}
	return f
}
