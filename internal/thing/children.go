package thing

// AddChild registers child as owned by this Thing under the given trait
// kind and child id, firing the corresponding ChildListener group.
// Children are created by method invocation and destroyed by Delete().
func (t *Thing) AddChild(traitID, childID string, child *Thing) {
	t.mu.Lock()
	if t.children[traitID] == nil {
		t.children[traitID] = make(map[string]*Thing)
	}
	t.children[traitID][childID] = child
	t.mu.Unlock()
	child.setParent(t)
	t.listeners.notifyChild(traitID, childID, child, true)
}

// RemoveChild deletes a child Thing owned under traitID/childID.
func (t *Thing) RemoveChild(traitID, childID string) bool {
	t.mu.Lock()
	m, ok := t.children[traitID]
	if !ok {
		t.mu.Unlock()
		return false
	}
	child, ok := m[childID]
	if !ok {
		t.mu.Unlock()
		return false
	}
	delete(m, childID)
	t.mu.Unlock()
	child.Delete()
	t.listeners.notifyChild(traitID, childID, child, false)
	return true
}

// GetChild resolves a child by trait kind and child id.
func (t *Thing) GetChild(traitID, childID string) (*Thing, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.children[traitID]
	if !ok {
		return nil, false
	}
	c, ok := m[childID]
	return c, ok
}

// GetIDForChild reverse-looks-up a child Thing's id within its owning
// trait's child set.
func (t *Thing) GetIDForChild(child *Thing) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, m := range t.children {
		for id, c := range m {
			if c == child {
				return id, true
			}
		}
	}
	return "", false
}

// FetchChildrenForTrait returns every child owned under a trait kind.
func (t *Thing) FetchChildrenForTrait(traitID string) map[string]*Thing {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]*Thing, len(t.children[traitID]))
	for id, c := range t.children[traitID] {
		out[id] = c
	}
	return out
}

// AllChildren returns every direct child across every owning trait, for
// callers (internal/tech's discovery builder) that need to walk the child
// tree without caring which trait created each one.
func (t *Thing) AllChildren() []*Thing {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Thing, 0)
	for _, m := range t.children {
		for _, c := range m {
			out = append(out, c)
		}
	}
	return out
}
