// Package persist adapts the three host store backends the teacher module
// carries (memory, sqlite, postgres) to spec §4.10's persistence contract:
// an opaque JSON blob keyed by Thing UID, with no knowledge of trait
// structure.
package persist

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rakunlabs/splot/internal/splotval"
	"github.com/rakunlabs/splot/internal/thing"
)

// Backend is the narrow contract every persist implementation satisfies. It
// embeds thing.PersistListener so a Backend can be installed directly via
// Thing.SetListener; Load/Delete round out restore and Technology unhost.
type Backend interface {
	thing.PersistListener

	// Load returns the last-saved state for uid, or ok=false if nothing
	// has been saved for it yet.
	Load(ctx context.Context, uid string) (state map[string]splotval.Value, ok bool, err error)

	// Delete drops any saved state for uid. Deleting an unknown uid is
	// not an error.
	Delete(ctx context.Context, uid string) error

	Close() error
}

// EncodeStateJSON turns a persistent-state map into the JSON blob the
// sqlite and postgres backends store, routed through splotval.Value.JSON
// so every backend shares one encoding.
func EncodeStateJSON(state map[string]splotval.Value) ([]byte, error) {
	out := make(map[string]any, len(state))
	for k, v := range state {
		out[k] = v.JSON()
	}
	blob, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode persistent state: %w", err)
	}
	return blob, nil
}

// DecodeStateJSON is EncodeStateJSON's inverse.
func DecodeStateJSON(blob []byte) (map[string]splotval.Value, error) {
	var raw map[string]any
	if err := json.Unmarshal(blob, &raw); err != nil {
		return nil, fmt.Errorf("decode persistent state: %w", err)
	}
	out := make(map[string]splotval.Value, len(raw))
	for k, v := range raw {
		val, err := splotval.ValueFromJSON(v)
		if err != nil {
			return nil, fmt.Errorf("decode persistent state field %q: %w", k, err)
		}
		out[k] = val
	}
	return out, nil
}
