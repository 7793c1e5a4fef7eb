// Package mock provides in-memory implementations of the database stores for testing.
package mock

import (
	"context"
	"maps"
	"sync"

	"github.com/kozaktomas/face-queue/internal/database"
	"github.com/kozaktomas/face-queue/internal/facematch"
)

// MockStore is an in-memory database.Store with error injection.
type MockStore[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]V

	// Error injection
	SetError    error
	DeleteError error
	ReloadError error
	// FailSet, when non-nil, is consulted before every Set. A non-nil
	// return fails that write only.
	FailSet func(key K) error

	writes int
}

// NewMockStore creates an empty mock store.
func NewMockStore[K comparable, V any]() *MockStore[K, V] {
	return &MockStore[K, V]{items: make(map[K]V)}
}

// Get returns the value for key.
func (m *MockStore[K, V]) Get(key K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	return v, ok
}

// Set stores value under key unless an error is injected.
func (m *MockStore[K, V]) Set(key K, value V) error {
	if m.SetError != nil {
		return m.SetError
	}
	if m.FailSet != nil {
		if err := m.FailSet(key); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
	m.writes++
	return nil
}

// Delete removes key unless an error is injected.
func (m *MockStore[K, V]) Delete(key K) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	m.writes++
	return nil
}

// All returns a copy of every entry.
func (m *MockStore[K, V]) All() map[K]V {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.items)
}

// Reload is a no-op apart from error injection.
func (m *MockStore[K, V]) Reload() error {
	return m.ReloadError
}

// Writes returns the number of successful Set and Delete calls.
func (m *MockStore[K, V]) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

// Stores bundles one mock per store so tests can inject errors into a specific one.
type Stores struct {
	Tags        *MockStore[string, database.Tag]
	Votes       *MockStore[database.VoteKey, database.Vote]
	Ignores     *MockStore[string, database.Ignore]
	People      *MockStore[string, database.PersonMeta]
	Priorities  *MockStore[string, database.Priority]
	ManualBoxes *MockStore[string, database.ManualBox]
	PhotoStatus *MockStore[string, database.PhotoStatus]
}

// NewStores creates an empty set of mock stores.
func NewStores() *Stores {
	return &Stores{
		Tags:        NewMockStore[string, database.Tag](),
		Votes:       NewMockStore[database.VoteKey, database.Vote](),
		Ignores:     NewMockStore[string, database.Ignore](),
		People:      NewMockStore[string, database.PersonMeta](),
		Priorities:  NewMockStore[string, database.Priority](),
		ManualBoxes: NewMockStore[string, database.ManualBox](),
		PhotoStatus: NewMockStore[string, database.PhotoStatus](),
	}
}

// Decisions returns the decision stores.
func (s *Stores) Decisions() database.DecisionStores {
	return database.DecisionStores{Tags: s.Tags, Votes: s.Votes, Ignores: s.Ignores}
}

// Side returns the side stores.
func (s *Stores) Side() database.SideStores {
	return database.SideStores{
		People:      s.People,
		Priorities:  s.Priorities,
		ManualBoxes: s.ManualBoxes,
		PhotoStatus: s.PhotoStatus,
	}
}

// MockDetectionSource is a mock catalog source.
type MockDetectionSource struct {
	Detections []facematch.Detection
	LoadError  error
}

// LoadDetections returns the configured detections.
func (m *MockDetectionSource) LoadDetections(ctx context.Context) ([]facematch.Detection, error) {
	if m.LoadError != nil {
		return nil, m.LoadError
	}
	return append([]facematch.Detection(nil), m.Detections...), nil
}

// MockHintSource is a mock name hint source keyed by bucket prefix.
type MockHintSource struct {
	Hints     map[string][]string
	LoadError error
}

// LoadHints returns the configured hints.
func (m *MockHintSource) LoadHints(ctx context.Context, prefixes []string) (map[string][]string, error) {
	if m.LoadError != nil {
		return nil, m.LoadError
	}
	out := make(map[string][]string)
	for _, p := range prefixes {
		if h, ok := m.Hints[p]; ok {
			out[p] = h
		}
	}
	return out, nil
}
