package thing

import (
	"context"

	"github.com/rakunlabs/splot/internal/splotval"
	"github.com/rakunlabs/splot/internal/trait"
)

// PersistListener is the hook a Thing notifies whenever its persistent
// state (SAVABLE CONFIG/METADATA properties) should be written out, per
// spec §4.10's set_listener/on_save/on_save_blocking contract.
type PersistListener interface {
	OnSave(uid string, state map[string]splotval.Value)
	OnSaveBlocking(ctx context.Context, uid string, state map[string]splotval.Value) error
}

// SetListener installs (or, passed nil, clears) the persistence listener.
func (t *Thing) SetListener(l PersistListener) {
	t.mu.Lock()
	t.persistListener = l
	t.mu.Unlock()
}

// CopyPersistentState implements copy_persistent_state(): every SAVABLE
// CONFIG/METADATA property across every trait, keyed by its path string so
// a restore can route each value back to its owning trait.
func (t *Thing) CopyPersistentState() map[string]splotval.Value {
	t.mu.RLock()
	traits := make([]trait.Trait, 0, len(t.traits))
	for _, tr := range t.traits {
		traits = append(traits, tr)
	}
	t.mu.RUnlock()

	out := make(map[string]splotval.Value)
	for _, tr := range traits {
		for _, p := range tr.Properties() {
			if p.Key.Section == splotval.SectionState || !p.Caps.Has(splotval.CapSavable) {
				continue
			}
			if !tr.OnCanSave(p.Key) {
				continue
			}
			if v, err := tr.OnGet(p.Key); err == nil {
				out[p.Key.String()] = v
			}
		}
	}
	return out
}

// InitWithPersistentState implements init_with_persistent_state(): applies
// a previously-copied snapshot through each owning trait's OnSet, so the
// WRITE/CONSTANT checks, type coercion and the trait's Validate hook all
// apply (a WRITE-only property is restorable; a read-only or CONSTANT one
// is not). Every value is attempted; the first error is returned.
func (t *Thing) InitWithPersistentState(state map[string]splotval.Value) error {
	t.mu.RLock()
	traits := make(map[string]trait.Trait, len(t.traits))
	for id, tr := range t.traits {
		traits[id] = tr
	}
	t.mu.RUnlock()

	var firstErr error
	for path, v := range state {
		for _, tr := range traits {
			for _, p := range tr.Properties() {
				if p.Key.String() != path {
					continue
				}
				if err := tr.OnSet(p.Key, v); err != nil && firstErr == nil {
					firstErr = err
				}
			}
		}
	}
	return firstErr
}

// TriggerSave notifies the installed listener's non-blocking hook, if any.
func (t *Thing) TriggerSave() {
	t.mu.RLock()
	l := t.persistListener
	t.mu.RUnlock()
	if l == nil {
		return
	}
	l.OnSave(t.uid, t.CopyPersistentState())
}

// TriggerSaveBlocking notifies the installed listener's blocking hook, if
// any, and waits for it to complete.
func (t *Thing) TriggerSaveBlocking(ctx context.Context) error {
	t.mu.RLock()
	l := t.persistListener
	t.mu.RUnlock()
	if l == nil {
		return nil
	}
	return l.OnSaveBlocking(ctx, t.uid, t.CopyPersistentState())
}
