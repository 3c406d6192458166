package persist

import (
	"testing"

	"github.com/rakunlabs/splot/internal/splotval"
)

func TestEncodeDecodeStateJSONRoundTrips(t *testing.T) {
	state := map[string]splotval.Value{
		"state.on_off.value": splotval.Bool(true),
		"config.level.value":  splotval.Real(0.75),
		"config.name.value":   splotval.Str("kitchen lamp"),
	}

	blob, err := EncodeStateJSON(state)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := DecodeStateJSON(blob)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != len(state) {
		t.Fatalf("expected %d keys, got %d", len(state), len(got))
	}
	if b, _ := got["state.on_off.value"].AsBool(); !b {
		t.Errorf("expected state.on_off.value=true")
	}
	if s, _ := got["config.name.value"].AsStr(); s != "kitchen lamp" {
		t.Errorf("expected config.name.value=%q, got %q", "kitchen lamp", s)
	}
}
