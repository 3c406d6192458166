package reslink

import (
	"sync"

	"github.com/rakunlabs/splot/internal/future"
	"github.com/rakunlabs/splot/internal/splotval"
	"github.com/rakunlabs/splot/internal/thing"
)

// Listener receives a resource's new value whenever it changes.
type Listener func(value splotval.Value)

// Unregister removes a previously registered listener.
type Unregister func()

// Link is the contract every resolved resource exposes, per spec §4.7.
type Link interface {
	Fetch() *future.Future
	Apply(value splotval.Value, mods splotval.ModifierSet) *future.Future
	Invoke(args map[string]splotval.Value) *future.Future
	Register(fn Listener) Unregister
}

// loopbackLink addresses one property or method on a local Thing. Property
// observation is reference-counted: the first Register call opens the
// underlying Thing listener subscription, and the last Unregister closes
// it, per spec §4.7 and §5's resource-scoping rule.
type loopbackLink struct {
	th  *thing.Thing
	key splotval.TypedKey

	isMethod bool

	mu          sync.Mutex
	nextID      int
	subs        map[int]Listener
	underlying  thing.Unregister
}

func newLoopbackLink(th *thing.Thing, key splotval.TypedKey, isMethod bool) *loopbackLink {
	return &loopbackLink{th: th, key: key, isMethod: isMethod, subs: make(map[int]Listener)}
}

func (l *loopbackLink) Fetch() *future.Future {
	if l.isMethod {
		return future.Failed(splotval.NewError(splotval.ErrPropertyOperationUnsupported, "method uri does not support fetch"))
	}
	return l.th.FetchProperty(l.key, splotval.ModifierSet{})
}

func (l *loopbackLink) Apply(value splotval.Value, mods splotval.ModifierSet) *future.Future {
	if l.isMethod {
		return future.Failed(splotval.NewError(splotval.ErrPropertyOperationUnsupported, "method uri does not support apply"))
	}
	switch mods.Mutation {
	case splotval.MutationIncrement:
		return l.th.IncrementProperty(l.key, value, mods)
	case splotval.MutationToggle:
		return l.th.ToggleProperty(l.key, mods)
	case splotval.MutationInsert:
		return l.th.InsertValue(l.key, value, mods)
	case splotval.MutationRemove:
		return l.th.RemoveValue(l.key, value, mods)
	default:
		return l.th.SetProperty(l.key, value, mods)
	}
}

func (l *loopbackLink) Invoke(args map[string]splotval.Value) *future.Future {
	if !l.isMethod {
		return future.Failed(splotval.NewError(splotval.ErrPropertyOperationUnsupported, "property uri does not support invoke"))
	}
	return l.th.InvokeMethod(l.key, args)
}

func (l *loopbackLink) Register(fn Listener) Unregister {
	l.mu.Lock()
	if len(l.subs) == 0 && !l.isMethod {
		l.underlying = l.th.RegisterPropertyListener(l.key, func(_ splotval.TypedKey, value splotval.Value) {
			l.fanOut(value)
		})
	}
	l.nextID++
	id := l.nextID
	l.subs[id] = fn
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.subs, id)
		closeUnderlying := len(l.subs) == 0 && l.underlying != nil
		var u thing.Unregister
		if closeUnderlying {
			u = l.underlying
			l.underlying = nil
		}
		l.mu.Unlock()
		if u != nil {
			u()
		}
	}
}

func (l *loopbackLink) fanOut(value splotval.Value) {
	l.mu.Lock()
	listeners := make([]Listener, 0, len(l.subs))
	for _, fn := range l.subs {
		listeners = append(listeners, fn)
	}
	l.mu.Unlock()
	for _, fn := range listeners {
		fn(value)
	}
}

// groupLink addresses a property on a Group Thing. STATE writes fan out to
// every member via GroupSetState; CONFIG/METADATA stay group-local, per
// spec §4.8.
type groupLink struct {
	*loopbackLink
	g *thing.Group
}

func newGroupLink(g *thing.Group, key splotval.TypedKey) *groupLink {
	return &groupLink{loopbackLink: newLoopbackLink(g.Thing, key, false), g: g}
}

func (l *groupLink) Apply(value splotval.Value, mods splotval.ModifierSet) *future.Future {
	if l.key.Section == splotval.SectionState {
		return l.g.GroupSetState(l.key, value, mods)
	}
	return l.loopbackLink.Apply(value, mods)
}
