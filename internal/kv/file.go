// ABOUTME: JSON file backend for the key-value store
// ABOUTME: Keeps the whole map in memory and rewrites the file atomically on change
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// File persists all keys as one JSON object
type File struct {
	mu   sync.Mutex
	path string
	data map[string]string
}

// OpenFile loads path, creating parent directories. A missing file is an
// empty store.
func OpenFile(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	f := &File{path: path, data: make(map[string]string)}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read store: %w", err)
	}
	if len(raw) == 0 {
		return f, nil
	}
	if err := json.Unmarshal(raw, &f.data); err != nil {
		return nil, fmt.Errorf("failed to parse store %s: %w", path, err)
	}
	return f, nil
}

func (f *File) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *File) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev, had := f.data[key]
	f.data[key] = value
	if err := f.flushLocked(); err != nil {
		if had {
			f.data[key] = prev
		} else {
			delete(f.data, key)
		}
		return err
	}
	return nil
}

func (f *File) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev, had := f.data[key]
	if !had {
		return nil
	}
	delete(f.data, key)
	if err := f.flushLocked(); err != nil {
		f.data[key] = prev
		return err
	}
	return nil
}

func (f *File) Keys(_ context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return matchKeys(f.data, prefix), nil
}

func (f *File) Close() error {
	return nil
}

// flushLocked writes to a temp file and renames it over the store
func (f *File) flushLocked() error {
	raw, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode store: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".store-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write store: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to replace store: %w", err)
	}
	return nil
}
