package thing

import (
	"sync"

	"github.com/rakunlabs/splot/internal/splotval"
	"github.com/rakunlabs/splot/internal/trait"
)

// sceneCapability implements the Scene Thing extension from spec §4.6: a
// scene_id -> persisted STATE snapshot mapping, with scene-id bookkeeping
// (any other STATE write clears it) and snapshots exposed as read/write
// child Things.
type sceneCapability struct {
	owner *Thing

	mu        sync.Mutex
	snapshots map[string]map[splotval.TypedKey]splotval.Value
	applying  bool
}

func newSceneCapability(owner *Thing) *sceneCapability {
	c := &sceneCapability{owner: owner, snapshots: make(map[string]map[splotval.TypedKey]splotval.Value)}
	sceneTrait := trait.NewSceneTrait(c.invokeSave)
	owner.traits[sceneTrait.ShortID()] = sceneTrait
	sceneTrait.SetChangeFunc(owner.onTraitChange(sceneTrait.ShortID()))
	return c
}

func (c *sceneCapability) invokeSave(method splotval.TypedKey, args map[string]splotval.Value) (splotval.Value, error) {
	sceneID, ok := args["scene_id"]
	id, _ := sceneID.AsStr()
	if !ok || id == "" {
		return splotval.Value{}, splotval.NewError(splotval.ErrInvalidMethodArguments, "scene_id is required")
	}
	c.Save(id)
	return splotval.Null(), nil
}

// Save captures every SAVABLE STATE property across every trait into a
// named snapshot.
func (c *sceneCapability) Save(sceneID string) {
	c.owner.mu.RLock()
	traits := make([]trait.Trait, 0, len(c.owner.traits))
	for _, tr := range c.owner.traits {
		traits = append(traits, tr)
	}
	c.owner.mu.RUnlock()

	snap := make(map[splotval.TypedKey]splotval.Value)
	for _, tr := range traits {
		for _, p := range tr.Properties() {
			if p.Key.Section != splotval.SectionState || !p.Caps.Has(splotval.CapSavable) {
				continue
			}
			if v, err := tr.OnGet(p.Key); err == nil {
				snap[p.Key] = v
			}
		}
	}
	c.mu.Lock()
	c.snapshots[sceneID] = snap
	c.mu.Unlock()
}

// Apply expands a saved snapshot into a batched STATE set.
func (c *sceneCapability) Apply(sceneID string) error {
	c.mu.Lock()
	snap, ok := c.snapshots[sceneID]
	c.mu.Unlock()
	if !ok {
		return splotval.NewError(splotval.ErrUnknownResource, "scene %q", sceneID)
	}
	c.applying = true
	defer func() { c.applying = false }()

	c.owner.mu.RLock()
	traits := c.owner.traits
	c.owner.mu.RUnlock()
	for key, v := range snap {
		if tr, ok := traits[key.Trait]; ok {
			_ = tr.OnSet(key, v)
		}
	}
	return nil
}

// Delete removes a saved snapshot, returning whether it existed.
func (c *sceneCapability) Delete(sceneID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.snapshots[sceneID]; !ok {
		return false
	}
	delete(c.snapshots, sceneID)
	return true
}

// handleStateInvalidation implements the scene-id clearing rule: when any
// STATE property not equal to the scene-id key is written, the scene-id
// is cleared; when the scene-id key itself is written, the named
// snapshot is applied.
func (t *Thing) handleStateInvalidation(key splotval.TypedKey) {
	if t.scene == nil || key.Section != splotval.SectionState {
		return
	}
	if t.scene.applying {
		return
	}
	if key.Equal(trait.KeySceneID) {
		sceneTrait, ok := t.Trait("scn")
		if !ok {
			return
		}
		v, err := sceneTrait.OnGet(trait.KeySceneID)
		if err != nil {
			return
		}
		id, _ := v.AsStr()
		if id != "" {
			_ = t.scene.Apply(id)
		}
		return
	}
	sceneTrait, ok := t.Trait("scn")
	if !ok {
		return
	}
	if ra, ok := sceneTrait.(rawAccessor); ok {
		ra.SetRaw(trait.KeySceneID, splotval.Str(""))
	}
}

// SceneChild returns (creating on first access) a read/write child Thing
// exposing a saved snapshot's STATE properties, restricted to get/set per
// spec §4.6 — no increment/toggle/insert/remove.
func (t *Thing) SceneChild(sceneID string) (*Thing, error) {
	if t.scene == nil {
		return nil, splotval.NewError(splotval.ErrPropertyOperationUnsupported, "scene capability not enabled")
	}
	if child, ok := t.GetChild("scn", sceneID); ok {
		return child, nil
	}
	t.scene.mu.Lock()
	snap, ok := t.scene.snapshots[sceneID]
	t.scene.mu.Unlock()
	if !ok {
		return nil, splotval.NewError(splotval.ErrUnknownResource, "scene %q", sceneID)
	}
	props := make([]trait.PropertyDef, 0, len(snap))
	for k, v := range snap {
		props = append(props, trait.PropertyDef{
			Key:     k,
			Caps:    splotval.CapRead | splotval.CapWrite | splotval.CapSavable,
			Default: v,
		})
	}
	childTrait := trait.NewBase("scn", props, nil)
	child := New(t.uid+"/scn/"+sceneID, t.sched, []trait.Trait{childTrait}, Deletable())
	child.sceneChildOnly = true
	t.AddChild("scn", sceneID, child)
	return child, nil
}

// DeleteScene removes a saved snapshot and its child Thing, emitting
// child_removed.
func (t *Thing) DeleteScene(sceneID string) bool {
	if t.scene == nil {
		return false
	}
	ok := t.scene.Delete(sceneID)
	if ok {
		t.RemoveChild("scn", sceneID)
	}
	return ok
}
