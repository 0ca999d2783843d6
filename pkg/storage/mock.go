package storage

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
)

// MockStorage is an in-memory FlagStore for tests and single-process runs
type MockStorage struct {
	mu        sync.RWMutex
	flags     map[string]map[string][]byte
	pingError error
	setError  error
	writes    int
}

// Ensure MockStorage implements FlagStore interface
var _ FlagStore = (*MockStorage)(nil)

// NewMockStorage creates a new mock storage
func NewMockStorage() *MockStorage {
	return &MockStorage{
		flags: make(map[string]map[string][]byte),
	}
}

// SetPingError configures the mock to fail on ping with the given error
func (m *MockStorage) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = err
}

// SetWriteError makes every following write fail with err (nil clears it)
func (m *MockStorage) SetWriteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setError = err
}

// Writes returns the number of successful write calls
func (m *MockStorage) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

// Ping mocks storage ping
func (m *MockStorage) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingError
}

// Close mocks storage close
func (m *MockStorage) Close() error {
	return nil
}

func (m *MockStorage) GetFlag(ctx context.Context, actorID, namespace string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.flags[actorID][namespace]
	if !ok {
		return nil, nil
	}
	return slices.Clone(data), nil
}

func (m *MockStorage) SetFlag(ctx context.Context, actorID, namespace string, data []byte) error {
	return m.SetFlags(ctx, actorID, map[string][]byte{namespace: data})
}

func (m *MockStorage) SetFlags(ctx context.Context, actorID string, records map[string][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if actorID == "" {
		return errors.New("actor id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setError != nil {
		return m.setError
	}
	if m.flags[actorID] == nil {
		m.flags[actorID] = make(map[string][]byte)
	}
	for ns, data := range records {
		m.flags[actorID][ns] = slices.Clone(data)
	}
	m.writes++
	return nil
}

func (m *MockStorage) DeleteFlag(ctx context.Context, actorID string, namespaces ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setError != nil {
		return m.setError
	}
	for _, ns := range namespaces {
		delete(m.flags[actorID], ns)
	}
	m.writes++
	return nil
}

// Snapshot returns a copy of every flag stored for an actor (for testing)
func (m *MockStorage) Snapshot(actorID string) map[string][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]byte, len(m.flags[actorID]))
	for ns, data := range m.flags[actorID] {
		out[ns] = slices.Clone(data)
	}
	return out
}

// Namespaces lists the namespaces set for an actor in sorted order (for testing)
func (m *MockStorage) Namespaces(actorID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.flags[actorID]))
}
