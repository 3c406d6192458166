package trait

import "github.com/rakunlabs/splot/internal/splotval"

// KeyOnOffValue is the boolean STATE property exposed by OnOffTrait.
var KeyOnOffValue = splotval.NewPropertyKey(splotval.SectionState, "onof", "v", splotval.KindBool)

// NewOnOffTrait builds the canonical on/off trait used by the toggle
// scenario in spec §8: a single observable, writable boolean STATE
// property.
func NewOnOffTrait() *Base {
	return NewBase("onof", []PropertyDef{
		{
			Key:     KeyOnOffValue,
			Caps:    splotval.CapRead | splotval.CapWrite | splotval.CapObservable,
			Default: splotval.Bool(false),
		},
	}, nil)
}
