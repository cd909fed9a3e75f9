package store

import (
	"context"
	"sort"
	"sync"

	"pokerdice/apps/server/internal/codec"
	"pokerdice/match"
)

// Memory keeps encoded snapshots so callers never share state with it.
type Memory struct {
	mu   sync.RWMutex
	rows map[string]memoryRow
}

type memoryRow struct {
	version uint64
	active  bool
	blob    []byte
}

func NewMemory() *Memory {
	return &Memory{rows: make(map[string]memoryRow)}
}

func (m *Memory) Load(_ context.Context, id string) (*match.MatchState, error) {
	m.mu.RLock()
	row, ok := m.rows[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return codec.DecodeMatch(row.blob)
}

func (m *Memory) Save(_ context.Context, st *match.MatchState) error {
	blob := codec.EncodeMatch(st)
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[st.ID]; ok && row.version > st.Version {
		return ErrStaleVersion
	}
	m.rows[st.ID] = memoryRow{version: st.Version, active: st.Status != match.StatusFinished, blob: blob}
	return nil
}

func (m *Memory) ListActive(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.rows))
	for id, row := range m.rows {
		if row.active {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *Memory) Close() error { return nil }
