// Package memory is an in-memory persist.Backend. Data does not survive
// process restarts; adapted from the teacher's internal/store/memory's
// mutex+map pattern, generalized from per-entity CRUD to an opaque blob
// keyed by Thing UID.
package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/rakunlabs/splot/internal/splotval"
)

// Memory is an in-memory implementation of persist.Backend.
type Memory struct {
	mu    sync.RWMutex
	state map[string]map[string]splotval.Value
}

func New() *Memory {
	slog.Info("using in-memory persist backend (data will not persist across restarts)")

	return &Memory{
		state: make(map[string]map[string]splotval.Value),
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) Load(_ context.Context, uid string) (map[string]splotval.Value, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	saved, ok := m.state[uid]
	if !ok {
		return nil, false, nil
	}
	out := make(map[string]splotval.Value, len(saved))
	for k, v := range saved {
		out[k] = v
	}
	return out, true, nil
}

func (m *Memory) Delete(_ context.Context, uid string) error {
	m.mu.Lock()
	delete(m.state, uid)
	m.mu.Unlock()
	return nil
}

func (m *Memory) save(uid string, state map[string]splotval.Value) {
	snapshot := make(map[string]splotval.Value, len(state))
	for k, v := range state {
		snapshot[k] = v
	}
	m.mu.Lock()
	m.state[uid] = snapshot
	m.mu.Unlock()
}

// OnSave implements thing.PersistListener's non-blocking hook.
func (m *Memory) OnSave(uid string, state map[string]splotval.Value) {
	m.save(uid, state)
}

// OnSaveBlocking implements thing.PersistListener's blocking hook; the
// in-memory backend has no I/O latency so it just writes synchronously.
func (m *Memory) OnSaveBlocking(_ context.Context, uid string, state map[string]splotval.Value) error {
	m.save(uid, state)
	return nil
}
