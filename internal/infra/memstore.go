package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/eliteGoblin/focusd/focusguard/internal/domain"
)

// MemoryStore implements domain.Store in process memory.
// Used by tests and by one-shot contexts that do not need persistence.
type MemoryStore struct {
	mu        sync.Mutex
	data      domain.Record
	listeners listenerSet
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(domain.Record)}
}

// Get returns the requested keys that exist.
func (m *MemoryStore) Get(ctx context.Context, keys ...string) (domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(domain.Record, len(keys))
	for _, k := range keys {
		if v, ok := m.data[k]; ok {
			out[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out, nil
}

// Set writes every key and notifies listeners of what changed.
func (m *MemoryStore) Set(ctx context.Context, rec domain.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	next := make(domain.Record, len(rec))
	for k, v := range rec {
		if !json.Valid(v) {
			return fmt.Errorf("invalid JSON for key %s", k)
		}
		next[k] = compact(v)
	}

	m.mu.Lock()
	changes := diff(m.data, next)
	for k, v := range next {
		m.data[k] = v
	}
	m.mu.Unlock()

	m.listeners.notify(changes)
	return nil
}

// Update rewrites one key under the store lock.
func (m *MemoryStore) Update(ctx context.Context, key string, fn domain.UpdateFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	current := m.data[key]
	v, err := fn(current)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	prev := domain.Record{}
	if current != nil {
		prev[key] = current
	}
	changes := diff(prev, domain.Record{key: raw})
	m.data[key] = raw
	m.mu.Unlock()

	m.listeners.notify(changes)
	return nil
}

// Subscribe registers a change listener.
func (m *MemoryStore) Subscribe(listener domain.ChangeListener) func() {
	return m.listeners.add(listener)
}

// Ensure MemoryStore implements domain.Store.
var _ domain.Store = (*MemoryStore)(nil)
