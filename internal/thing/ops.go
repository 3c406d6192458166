package thing

import (
	"github.com/rakunlabs/splot/internal/future"
	"github.com/rakunlabs/splot/internal/splotval"
	"github.com/rakunlabs/splot/internal/trait"
)

func (t *Thing) findOwner(key splotval.TypedKey) (trait.Trait, trait.PropertyDef, bool) {
	t.mu.RLock()
	tr, ok := t.traits[key.Trait]
	t.mu.RUnlock()
	if !ok {
		return nil, trait.PropertyDef{}, false
	}
	for _, p := range tr.Properties() {
		if p.Key.Equal(key) {
			return tr, p, true
		}
	}
	return nil, trait.PropertyDef{}, false
}

// SetProperty implements spec §4.5's set_property: the value is committed
// on the Thing's scheduler or the returned future fails.
func (t *Thing) SetProperty(key splotval.TypedKey, value splotval.Value, mods splotval.ModifierSet) *future.Future {
	if err := mods.Validate(); err != nil {
		return future.Failed(err)
	}
	if mods.Mutation != splotval.MutationNone {
		return future.Failed(splotval.NewError(splotval.ErrInvalidModifierList, "set_property does not accept a mutation tag"))
	}
	return t.submit(func() (splotval.Value, error) {
		_, def, ok := t.findOwner(key)
		if !ok {
			return splotval.Value{}, splotval.NewError(splotval.ErrPropertyNotFound, "%s", key)
		}
		if key.Section == splotval.SectionState && t.transitions != nil && def.Caps.Has(splotval.CapTransitionable) && mods.HasDuration {
			return splotval.Null(), t.transitions.begin(key, value, mods.Duration)
		}
		if key.Section == splotval.SectionState && t.transitions != nil {
			t.transitions.cancel(key)
		}
		if err := t.setDirect(key, value); err != nil {
			return splotval.Value{}, err
		}
		return splotval.Null(), nil
	})
}

func (t *Thing) setDirect(key splotval.TypedKey, value splotval.Value) error {
	tr, _, ok := t.findOwner(key)
	if !ok {
		return splotval.NewError(splotval.ErrPropertyNotFound, "%s", key)
	}
	return tr.OnSet(key, value)
}

// IncrementProperty implements increment_property: an atomic
// read-modify-write at scheduler granularity.
func (t *Thing) IncrementProperty(key splotval.TypedKey, delta splotval.Value, mods splotval.ModifierSet) *future.Future {
	if t.sceneChildOnly {
		return future.Failed(splotval.NewError(splotval.ErrPropertyOperationUnsupported, "scene children support get/set only"))
	}
	return t.submit(func() (splotval.Value, error) {
		tr, def, ok := t.findOwner(key)
		if !ok {
			return splotval.Value{}, splotval.NewError(splotval.ErrPropertyNotFound, "%s", key)
		}
		if !def.Caps.Has(splotval.CapRead) {
			return splotval.Value{}, splotval.NewError(splotval.ErrPropertyWriteOnly, "%s", key)
		}
		cur, err := tr.OnGet(key)
		if err != nil {
			return splotval.Value{}, err
		}
		curF, err := splotval.Coerce(cur, splotval.KindReal)
		if err != nil {
			return splotval.Value{}, err
		}
		deltaF, err := splotval.Coerce(delta, splotval.KindReal)
		if err != nil {
			return splotval.Value{}, err
		}
		c, _ := curF.AsReal()
		d, _ := deltaF.AsReal()
		next := splotval.Real(c + d)
		if def.Key.Type == splotval.KindInt {
			next = splotval.Int(int64(c + d))
		}
		if err := tr.OnSet(key, next); err != nil {
			return splotval.Value{}, err
		}
		return next, nil
	})
}

// ToggleProperty implements toggle_property: flips a boolean key.
func (t *Thing) ToggleProperty(key splotval.TypedKey, mods splotval.ModifierSet) *future.Future {
	if t.sceneChildOnly {
		return future.Failed(splotval.NewError(splotval.ErrPropertyOperationUnsupported, "scene children support get/set only"))
	}
	return t.submit(func() (splotval.Value, error) {
		tr, def, ok := t.findOwner(key)
		if !ok {
			return splotval.Value{}, splotval.NewError(splotval.ErrPropertyNotFound, "%s", key)
		}
		if def.Key.Type != splotval.KindBool {
			return splotval.Value{}, splotval.NewError(splotval.ErrPropertyOperationUnsupported, "toggle requires a Bool property")
		}
		cur, err := tr.OnGet(key)
		if err != nil {
			return splotval.Value{}, err
		}
		b, _ := cur.AsBool()
		next := splotval.Bool(!b)
		if err := tr.OnSet(key, next); err != nil {
			return splotval.Value{}, err
		}
		return next, nil
	})
}

// InsertValue implements insert_value: appends elem to an array property
// if absent (idempotent on presence).
func (t *Thing) InsertValue(key splotval.TypedKey, elem splotval.Value, mods splotval.ModifierSet) *future.Future {
	return t.mutateArray(key, func(arr []splotval.Value) []splotval.Value {
		for _, e := range arr {
			if e.Equal(elem) {
				return arr
			}
		}
		return append(arr, elem)
	})
}

// RemoveValue implements remove_value: removes elem from an array
// property if present (idempotent on absence).
func (t *Thing) RemoveValue(key splotval.TypedKey, elem splotval.Value, mods splotval.ModifierSet) *future.Future {
	return t.mutateArray(key, func(arr []splotval.Value) []splotval.Value {
		out := arr[:0:0]
		for _, e := range arr {
			if !e.Equal(elem) {
				out = append(out, e)
			}
		}
		return out
	})
}

func (t *Thing) mutateArray(key splotval.TypedKey, fn func([]splotval.Value) []splotval.Value) *future.Future {
	if t.sceneChildOnly {
		return future.Failed(splotval.NewError(splotval.ErrPropertyOperationUnsupported, "scene children support get/set only"))
	}
	return t.submit(func() (splotval.Value, error) {
		tr, def, ok := t.findOwner(key)
		if !ok {
			return splotval.Value{}, splotval.NewError(splotval.ErrPropertyNotFound, "%s", key)
		}
		if def.Key.Type != splotval.KindArray {
			return splotval.Value{}, splotval.NewError(splotval.ErrPropertyOperationUnsupported, "insert/remove requires an Array property")
		}
		cur, err := tr.OnGet(key)
		if err != nil {
			return splotval.Value{}, err
		}
		arr, _ := cur.AsArray()
		next := splotval.Array(fn(arr))
		if err := tr.OnSet(key, next); err != nil {
			return splotval.Value{}, err
		}
		return next, nil
	})
}

// FetchProperty implements fetch_property: returns the most recent value.
func (t *Thing) FetchProperty(key splotval.TypedKey, mods splotval.ModifierSet) *future.Future {
	return t.submit(func() (splotval.Value, error) {
		tr, def, ok := t.findOwner(key)
		if !ok {
			return splotval.Value{}, splotval.NewError(splotval.ErrPropertyNotFound, "%s", key)
		}
		if mods.TransitionTarget && t.transitions != nil {
			if v, ok := t.transitions.target(key); ok {
				return v, nil
			}
		}
		if !def.Caps.Has(splotval.CapRead) {
			return splotval.Value{}, splotval.NewError(splotval.ErrPropertyWriteOnly, "%s", key)
		}
		return tr.OnGet(key)
	})
}

// FetchSection implements fetch_section: a map of short-name -> value for
// every readable property in the section, across every trait.
func (t *Thing) FetchSection(section splotval.Section, mods splotval.ModifierSet) *future.Future {
	return t.submit(func() (splotval.Value, error) {
		t.mu.RLock()
		traits := make([]trait.Trait, 0, len(t.traits))
		for _, tr := range t.traits {
			traits = append(traits, tr)
		}
		t.mu.RUnlock()
		out := make(map[string]splotval.Value)
		for _, tr := range traits {
			for _, p := range tr.Properties() {
				if p.Key.Section != section || !p.Caps.Has(splotval.CapRead) {
					continue
				}
				v, err := tr.OnGet(p.Key)
				if err != nil {
					continue
				}
				out[p.Key.Name] = v
			}
		}
		return splotval.Map(out), nil
	})
}

// ApplyProperties implements apply_properties: a batched, same-section
// set where failure is all-or-nothing per trait (a trait whose validation
// fails leaves every property on that trait unchanged; other traits in
// the same batch are unaffected).
func (t *Thing) ApplyProperties(values map[splotval.TypedKey]splotval.Value, mods splotval.ModifierSet) *future.Future {
	return t.submit(func() (splotval.Value, error) {
		byTrait := make(map[string]map[splotval.TypedKey]splotval.Value)
		for k, v := range values {
			byTrait[k.Trait] = assignInto(byTrait[k.Trait], k, v)
		}
		var firstErr error
		for traitID, kv := range byTrait {
			if err := t.applyTraitBatch(traitID, kv); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if firstErr != nil {
			return splotval.Value{}, firstErr
		}
		return splotval.Null(), nil
	})
}

func assignInto(m map[splotval.TypedKey]splotval.Value, k splotval.TypedKey, v splotval.Value) map[splotval.TypedKey]splotval.Value {
	if m == nil {
		m = make(map[splotval.TypedKey]splotval.Value)
	}
	m[k] = v
	return m
}

func (t *Thing) applyTraitBatch(traitID string, kv map[splotval.TypedKey]splotval.Value) error {
	t.mu.RLock()
	tr, ok := t.traits[traitID]
	t.mu.RUnlock()
	if !ok {
		return splotval.NewError(splotval.ErrPropertyNotFound, "trait %q", traitID)
	}
	// Validate every member of the batch before applying any of them, so
	// the batch is all-or-nothing per trait.
	for k, v := range kv {
		def, ok := findProp(tr, k)
		if !ok {
			return splotval.NewError(splotval.ErrPropertyNotFound, "%s", k)
		}
		if !def.Caps.Has(splotval.CapWrite) {
			return splotval.NewError(splotval.ErrPropertyReadOnly, "%s", k)
		}
		if _, err := splotval.Coerce(v, def.Key.Type); err != nil {
			return splotval.NewError(splotval.ErrInvalidPropertyValue, "%s: %v", k, err)
		}
	}
	for k, v := range kv {
		if err := tr.OnSet(k, v); err != nil {
			return err
		}
	}
	return nil
}

func findProp(tr trait.Trait, key splotval.TypedKey) (trait.PropertyDef, bool) {
	for _, p := range tr.Properties() {
		if p.Key.Equal(key) {
			return p, true
		}
	}
	return trait.PropertyDef{}, false
}

// InvokeMethod implements invoke_method.
func (t *Thing) InvokeMethod(key splotval.TypedKey, args map[string]splotval.Value) *future.Future {
	return t.submit(func() (splotval.Value, error) {
		t.mu.RLock()
		tr, ok := t.traits[key.Trait]
		t.mu.RUnlock()
		if !ok {
			return splotval.Value{}, splotval.NewError(splotval.ErrMethodNotFound, "%s", key)
		}
		return tr.OnInvoke(key, args)
	})
}

// Delete implements delete(): returns true if the Thing was deletable and
// is now deleted.
func (t *Thing) Delete() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.deletable || t.deleted {
		return false
	}
	t.deleted = true
	return true
}

// RegisterPropertyListener subscribes fn to changes on one property.
func (t *Thing) RegisterPropertyListener(key splotval.TypedKey, fn PropertyListener) Unregister {
	return t.listeners.RegisterProperty(key, fn)
}

// RegisterSectionListener subscribes fn to every change within a section.
func (t *Thing) RegisterSectionListener(section splotval.Section, fn SectionListener) Unregister {
	return t.listeners.RegisterSection(section, fn)
}
