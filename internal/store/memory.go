package store

import (
	"context"
	"sync"
)

// Memory is an in-process Store. It backs tests and local demos.
type Memory struct {
	mu   sync.RWMutex
	data map[string]map[string]any
}

var _ Store = (*Memory)(nil)

// NewMemory returns a store seeded with a copy of seed (may be nil).
func NewMemory(seed map[string]map[string]any) *Memory {
	m := &Memory{data: make(map[string]map[string]any, len(seed))}
	for k, fields := range seed {
		m.data[k] = copyFields(fields)
	}
	return m
}

func (m *Memory) Snapshot(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := make([]Entry, 0, len(m.data))
	for k, fields := range m.data {
		out = append(out, Entry{Key: k, Fields: copyFields(fields)})
	}
	m.mu.RUnlock()
	sortEntries(out)
	return out, nil
}

func (m *Memory) Update(ctx context.Context, key string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.data[key]
	if !ok {
		return ErrNotFound
	}
	if cur == nil {
		cur = make(map[string]any, len(fields))
		m.data[key] = cur
	}
	for k, v := range fields {
		cur[k] = v
	}
	return nil
}

func (m *Memory) Put(ctx context.Context, key string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.data[key]
	if cur == nil {
		cur = make(map[string]any, len(fields))
		m.data[key] = cur
	}
	for k, v := range fields {
		cur[k] = v
	}
	return nil
}

func (m *Memory) Close() error { return nil }

func copyFields(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
