package splotval

import "testing"

func TestCoerceNumberToBool(t *testing.T) {
	cases := []struct {
		in   Value
		want bool
	}{
		{Real(0.5), true},
		{Real(0.49), false},
		{Int(1), true},
		{Int(0), false},
	}
	for _, c := range cases {
		got, err := Coerce(c.in, KindBool)
		if err != nil {
			t.Fatalf("Coerce(%v, Bool): %v", c.in, err)
		}
		b, _ := got.AsBool()
		if b != c.want {
			t.Errorf("Coerce(%v, Bool) = %v, want %v", c.in, b, c.want)
		}
	}
}

func TestCoerceBoolToNumber(t *testing.T) {
	got, err := Coerce(Bool(true), KindInt)
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := got.AsInt(); n != 1 {
		t.Errorf("Coerce(true, Int) = %d, want 1", n)
	}
	got, err = Coerce(Bool(false), KindInt)
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := got.AsInt(); n != 0 {
		t.Errorf("Coerce(false, Int) = %d, want 0", n)
	}
}

func TestCoerceRoundTrip(t *testing.T) {
	// coerce(coerce(v, T1), T2) succeeds whenever direct coerce(v, T2) succeeds.
	v := Real(3.0)
	direct, err := Coerce(v, KindStr)
	if err != nil {
		t.Fatalf("direct coerce failed: %v", err)
	}
	viaInt, err := Coerce(v, KindInt)
	if err != nil {
		t.Fatalf("coerce to Int failed: %v", err)
	}
	indirect, err := Coerce(viaInt, KindStr)
	if err != nil {
		t.Fatalf("indirect coerce failed: %v", err)
	}
	if direct.CanonicalText() != "3" || indirect.CanonicalText() != "3" {
		t.Errorf("round trip mismatch: direct=%q indirect=%q", direct.CanonicalText(), indirect.CanonicalText())
	}
}

func TestNumberToArray(t *testing.T) {
	got, err := Coerce(Real(1.5), KindArray)
	if err != nil {
		t.Fatal(err)
	}
	arr, ok := got.AsArray()
	if !ok || len(arr) != 1 {
		t.Fatalf("expected single-element array, got %v", got)
	}
}

func TestOutOfRangeIntCoercion(t *testing.T) {
	_, err := Coerce(Real(1e300), KindInt)
	if err == nil {
		t.Fatal("expected out-of-range error")
	}
	if kind, ok := KindOf(err); !ok || kind != ErrInvalidValue {
		t.Errorf("expected InvalidValue, got %v", err)
	}
}

func TestNullPassesThrough(t *testing.T) {
	got, err := Coerce(Null(), KindInt)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsNull() {
		t.Error("expected Null to pass through coercion")
	}
	got, err = Cast(Null(), KindStr)
	if err != nil || !got.IsNull() {
		t.Error("expected Null to pass through cast")
	}
}

func TestKeyEqualityAsymmetricObject(t *testing.T) {
	base := NewPropertyKey(SectionState, "onof", "v", KindObject)
	specific := NewPropertyKey(SectionState, "onof", "v", KindBool)
	if !base.Equal(specific) {
		t.Error("Object-typed key should match a specifically-typed key of the same name")
	}
	if !specific.Equal(base) {
		t.Error("key equality should be symmetric for the Object case")
	}
}

func TestModifierQueryRoundTrip(t *testing.T) {
	cases := []ModifierSet{
		{},
		{HasDuration: true, Duration: 0},
		{TransitionTarget: true},
		{All: true, Mutation: MutationToggle},
	}
	for _, ms := range cases {
		encoded := ms.Encode()
		got, err := ParseQuery(encoded)
		if err != nil {
			t.Fatalf("ParseQuery(%q): %v", encoded, err)
		}
		if got != ms {
			t.Errorf("round trip mismatch: got %+v, want %+v (query %q)", got, ms, encoded)
		}
	}
}

func TestModifierNonPositiveDurationClampedToZero(t *testing.T) {
	ms, err := ParseQuery("d=-5")
	if err != nil {
		t.Fatal(err)
	}
	if ms.Duration != 0 {
		t.Errorf("expected non-positive duration clamped to 0, got %v", ms.Duration)
	}
}

func TestModifierMultipleMutationTagsRejected(t *testing.T) {
	_, err := ParseQuery("tog&inc")
	if err == nil {
		t.Fatal("expected InvalidModifierList for multiple mutation tags")
	}
}
