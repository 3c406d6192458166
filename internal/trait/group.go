package trait

import "github.com/rakunlabs/splot/internal/splotval"

// KeyLocalMembers is the group-local CONFIG property listing member uris,
// mutated in-band via the add/remove methods.
var KeyLocalMembers = splotval.NewPropertyKey(splotval.SectionConfig, "grp", "members", splotval.KindArray)

var KeyGroupAdd = splotval.NewMethodKey("grp", "add", splotval.KindObject)
var KeyGroupRemove = splotval.NewMethodKey("grp", "remove", splotval.KindObject)

// NewGroupTrait builds the group-membership bookkeeping trait: a
// CONFIG array of member references plus add/remove methods. invoke is
// supplied by the owning Group so add/remove actually mutate its member set.
func NewGroupTrait(invoke InvokeFunc) *Base {
	b := NewBase("grp", []PropertyDef{
		{
			Key:     KeyLocalMembers,
			Caps:    splotval.CapRead | splotval.CapWrite | splotval.CapSavable,
			Default: splotval.Array(nil),
		},
	}, []MethodDef{
		{Key: KeyGroupAdd, Params: []splotval.TypedKey{splotval.NewParamKey("uri", splotval.KindUri)}},
		{Key: KeyGroupRemove, Params: []splotval.TypedKey{splotval.NewParamKey("uri", splotval.KindUri)}},
	})
	b.Invoke = invoke
	return b
}
