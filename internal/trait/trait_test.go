package trait

import (
	"testing"

	"github.com/rakunlabs/splot/internal/splotval"
)

func TestOnOffGetSet(t *testing.T) {
	tr := NewOnOffTrait()
	var changes []splotval.Value
	tr.SetChangeFunc(func(_ splotval.TypedKey, v splotval.Value) { changes = append(changes, v) })

	v, err := tr.OnGet(KeyOnOffValue)
	if err != nil {
		t.Fatal(err)
	}
	if b, _ := v.AsBool(); b {
		t.Error("expected initial value false")
	}

	if err := tr.OnSet(KeyOnOffValue, splotval.Bool(true)); err != nil {
		t.Fatal(err)
	}
	v, _ = tr.OnGet(KeyOnOffValue)
	if b, _ := v.AsBool(); !b {
		t.Error("expected value true after set")
	}
	if len(changes) != 1 {
		t.Errorf("expected exactly 1 change notification, got %d", len(changes))
	}
}

func TestSetUnknownPropertyNotFound(t *testing.T) {
	tr := NewOnOffTrait()
	bogus := splotval.NewPropertyKey(splotval.SectionState, "onof", "bogus", splotval.KindBool)
	err := tr.OnSet(bogus, splotval.Bool(true))
	if kind, ok := splotval.KindOf(err); !ok || kind != splotval.ErrPropertyNotFound {
		t.Errorf("expected PropertyNotFound, got %v", err)
	}
}

func TestValidateHookRejectsBadState(t *testing.T) {
	tr := NewOnOffTrait()
	tr.Validate = func(key splotval.TypedKey, value splotval.Value) error {
		return splotval.NewError(splotval.ErrBadStateForPropertyValue, "locked")
	}
	err := tr.OnSet(KeyOnOffValue, splotval.Bool(true))
	if kind, ok := splotval.KindOf(err); !ok || kind != splotval.ErrBadStateForPropertyValue {
		t.Errorf("expected BadStateForPropertyValue, got %v", err)
	}
	// the property must remain unchanged (stable) after a failed validation
	v, _ := tr.OnGet(KeyOnOffValue)
	if b, _ := v.AsBool(); b {
		t.Error("value should not have changed after failed validation")
	}
}
