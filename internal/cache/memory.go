package cache

import (
	"encoding/json"
	"sync"
)

// Memory is the process-wide result cache mapping a job id to the last-seen
// result payload. Entries are never evicted within the process lifetime;
// unbounded growth is an accepted limitation.
type Memory struct {
	mu      sync.RWMutex
	results map[string]json.RawMessage
}

// NewMemory creates an empty result cache.
func NewMemory() *Memory {
	return &Memory{results: make(map[string]json.RawMessage)}
}

// Get returns the cached payload for id, or ok=false if absent.
func (m *Memory) Get(id string) (json.RawMessage, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	payload, ok := m.results[id]
	return payload, ok
}

// Set stores payload under id, replacing any previous entry.
func (m *Memory) Set(id string, payload json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[id] = payload
}

// Has reports whether an entry exists for id.
func (m *Memory) Has(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.results[id]
	return ok
}

// Len returns the number of cached entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.results)
}
