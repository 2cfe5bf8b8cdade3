// ABOUTME: Flat string key-value store used for conversations, cache and preferences
// ABOUTME: Backends: in-memory, JSON file on disk, and Redis
package kv

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Store is a flat text key-value store
type Store interface {
	// Get returns the value and whether the key exists
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Keys lists keys starting with prefix, sorted
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// Memory is a process-local Store
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *Memory) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return matchKeys(m.data, prefix), nil
}

func (m *Memory) Close() error {
	return nil
}

func matchKeys(data map[string]string, prefix string) []string {
	keys := make([]string, 0)
	for k := range data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
