package thing

import "github.com/rakunlabs/splot/internal/splotval"

// PropertyListener receives a single property's new value.
type PropertyListener func(key splotval.TypedKey, value splotval.Value)

// SectionListener receives each changed property within a section, one
// call per change (used for fetch_section-shaped observers).
type SectionListener func(section splotval.Section, key splotval.TypedKey, value splotval.Value)

// ChildListener receives child lifecycle events for one trait's child kind.
type ChildListener func(traitID, childID string, child *Thing, added bool)

// Unregister removes a previously registered listener. Calling it more
// than once is tolerant (a no-op after the first call).
type Unregister func()

type listenerEntry[T any] struct {
	id int
	fn T
}

type listenerRegistry struct {
	nextID int

	propertyByKey map[string][]listenerEntry[PropertyListener]
	sectionByID   map[splotval.Section][]listenerEntry[SectionListener]
	childByTrait  map[string][]listenerEntry[ChildListener]
}

func newListenerRegistry() *listenerRegistry {
	return &listenerRegistry{
		propertyByKey: make(map[string][]listenerEntry[PropertyListener]),
		sectionByID:   make(map[splotval.Section][]listenerEntry[SectionListener]),
		childByTrait:  make(map[string][]listenerEntry[ChildListener]),
	}
}

// RegisterProperty adds a listener for one property, keyed by name.
// Each call adds one subscription; registrations are not deduplicated, so
// a listener registered twice gets two notifications.
func (r *listenerRegistry) RegisterProperty(key splotval.TypedKey, fn PropertyListener) Unregister {
	r.nextID++
	id := r.nextID
	name := key.HashName()
	r.propertyByKey[name] = append(r.propertyByKey[name], listenerEntry[PropertyListener]{id: id, fn: fn})
	return func() {
		r.propertyByKey[name] = removeByID(r.propertyByKey[name], id)
	}
}

func (r *listenerRegistry) RegisterSection(section splotval.Section, fn SectionListener) Unregister {
	r.nextID++
	id := r.nextID
	r.sectionByID[section] = append(r.sectionByID[section], listenerEntry[SectionListener]{id: id, fn: fn})
	return func() {
		r.sectionByID[section] = removeByID(r.sectionByID[section], id)
	}
}

func (r *listenerRegistry) RegisterChild(traitID string, fn ChildListener) Unregister {
	r.nextID++
	id := r.nextID
	r.childByTrait[traitID] = append(r.childByTrait[traitID], listenerEntry[ChildListener]{id: id, fn: fn})
	return func() {
		r.childByTrait[traitID] = removeByID(r.childByTrait[traitID], id)
	}
}

func removeByID[T any](list []listenerEntry[T], id int) []listenerEntry[T] {
	out := list[:0:0]
	for _, e := range list {
		if e.id != id {
			out = append(out, e)
		}
	}
	return out
}

// notify delivers a value change in the order required by §4.5: the
// property listener group, then the section listener group, each in
// registration order.
func (r *listenerRegistry) notify(section splotval.Section, key splotval.TypedKey, value splotval.Value) {
	for _, e := range r.propertyByKey[key.HashName()] {
		e.fn(key, value)
	}
	for _, e := range r.sectionByID[section] {
		e.fn(section, key, value)
	}
}

func (r *listenerRegistry) notifyChild(traitID, childID string, child *Thing, added bool) {
	for _, e := range r.childByTrait[traitID] {
		e.fn(traitID, childID, child, added)
	}
}
