package trait

import "github.com/rakunlabs/splot/internal/splotval"

// KeySceneID is the STATE property that selects which saved snapshot is
// currently applied. Writing it expands the snapshot into a batched
// apply (spec §4.6); writing any other STATE property clears it.
var KeySceneID = splotval.NewPropertyKey(splotval.SectionState, "scn", "id", splotval.KindStr)

// KeySceneSave is the method that captures the current SAVABLE STATE
// under a scene id, with an optional group id for group-scoped saves.
var KeySceneSave = splotval.NewMethodKey("scn", "save", splotval.KindObject)

// NewSceneTrait builds the scene-bookkeeping trait a Thing adds when it
// opts into the Scene capability. save is the invoke hook supplied by the
// owning Thing's scene capability.
func NewSceneTrait(save InvokeFunc) *Base {
	b := NewBase("scn", []PropertyDef{
		{
			Key:     KeySceneID,
			Caps:    splotval.CapRead | splotval.CapWrite | splotval.CapObservable,
			Default: splotval.Str(""),
		},
	}, []MethodDef{
		{Key: KeySceneSave, Params: []splotval.TypedKey{
			splotval.NewParamKey("scene_id", splotval.KindStr),
			splotval.NewParamKey("group_id", splotval.KindStr),
		}},
	})
	b.Invoke = save
	return b
}
