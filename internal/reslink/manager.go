package reslink

import (
	"sync"

	"github.com/rakunlabs/splot/internal/splotval"
	"github.com/rakunlabs/splot/internal/thing"
)

// Registry resolves a Thing or Group UID to its in-process instance. The
// default implementation is a flat, mutex-guarded map; a Technology (C11)
// composes one per hosted namespace.
type Registry interface {
	LookupThing(uid string) (*thing.Thing, bool)
	LookupGroup(gid string) (*thing.Group, bool)
}

// MapRegistry is the default in-memory Registry.
type MapRegistry struct {
	mu     sync.RWMutex
	things map[string]*thing.Thing
	groups map[string]*thing.Group
}

// NewMapRegistry returns an empty registry.
func NewMapRegistry() *MapRegistry {
	return &MapRegistry{things: make(map[string]*thing.Thing), groups: make(map[string]*thing.Group)}
}

func (r *MapRegistry) AddThing(t *thing.Thing) {
	r.mu.Lock()
	r.things[t.UID()] = t
	r.mu.Unlock()
}

func (r *MapRegistry) AddGroup(g *thing.Group) {
	r.mu.Lock()
	r.groups[g.GroupID()] = g
	r.mu.Unlock()
}

func (r *MapRegistry) RemoveThing(uid string) {
	r.mu.Lock()
	delete(r.things, uid)
	r.mu.Unlock()
}

func (r *MapRegistry) LookupThing(uid string) (*thing.Thing, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.things[uid]
	return t, ok
}

func (r *MapRegistry) LookupGroup(gid string) (*thing.Group, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[gid]
	return g, ok
}

// RemoteFactory builds a Link for a non-local URI, backed by a
// host-supplied transport (e.g. internal/transport/http's client side).
type RemoteFactory func(p *ParsedURI) (Link, error)

// Manager is the Resource Link Manager from spec §4.7: it turns a URI into
// a Link, routing local (loop-scheme or bare-path) URIs against a Registry
// and everything else through an optional RemoteFactory.
type Manager struct {
	registry Registry
	remote   RemoteFactory
}

// NewManager builds a Manager. remote may be nil, in which case remote URIs
// fail resolution with UnacceptableThing.
func NewManager(registry Registry, remote RemoteFactory) *Manager {
	return &Manager{registry: registry, remote: remote}
}

// Resolve parses raw and returns the Link addressing it.
func (m *Manager) Resolve(raw string) (Link, error) {
	p, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	if !p.Local() {
		if m.remote == nil {
			return nil, splotval.NewError(splotval.ErrUnacceptableThing, "no remote transport configured for scheme %q", p.Scheme)
		}
		return m.remote(p)
	}

	key := p.MethodKey()
	if !p.IsMethod {
		key = p.PropertyKey()
	}

	if p.GroupID != "" {
		g, ok := m.registry.LookupGroup(p.GroupID)
		if !ok {
			return nil, splotval.NewError(splotval.ErrUnknownResource, "group %q", p.GroupID)
		}
		return newGroupLink(g, key), nil
	}

	t, ok := m.registry.LookupThing(p.ThingID)
	if !ok {
		return nil, splotval.NewError(splotval.ErrUnknownResource, "thing %q", p.ThingID)
	}
	return newLoopbackLink(t, key, p.IsMethod), nil
}
