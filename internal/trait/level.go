package trait

import "github.com/rakunlabs/splot/internal/splotval"

// KeyLevelValue is the real-valued, transitionable STATE property exposed
// by LevelTrait — the canonical target for the Transitioning Thing
// capability's linear interpolation.
var KeyLevelValue = splotval.NewPropertyKey(splotval.SectionState, "levl", "v", splotval.KindReal)

// NewLevelTrait builds a single observable, writable, transitionable and
// savable real STATE property, e.g. brightness or volume.
func NewLevelTrait() *Base {
	return NewBase("levl", []PropertyDef{
		{
			Key:     KeyLevelValue,
			Caps:    splotval.CapRead | splotval.CapWrite | splotval.CapObservable | splotval.CapTransitionable | splotval.CapSavable,
			Default: splotval.Real(0),
		},
	}, nil)
}
