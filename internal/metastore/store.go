// Package metastore persists record collections as whole-file JSON snapshots.
// Every mutation on a collection goes through a single writer and lands on
// disk via write-to-temporary-then-rename, so concurrent readers only ever
// observe fully written snapshots.
package metastore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrNotFound is returned when a key is absent from a collection.
var ErrNotFound = errors.New("record not found")

// Store is a durable key-value store with one JSON file per collection.
type Store struct {
	dir string

	mu          sync.Mutex
	collections map[string]*collection
}

type collection struct {
	mu      sync.RWMutex
	path    string
	records map[string]json.RawMessage
}

// Open prepares a store rooted at dataDir, creating the directory if needed.
// Collection files are loaded lazily on first access.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Store{
		dir:         dataDir,
		collections: make(map[string]*collection),
	}, nil
}

func (s *Store) collection(name string) (*collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.collections[name]; ok {
		return c, nil
	}
	c := &collection{
		path:    filepath.Join(s.dir, name+".json"),
		records: make(map[string]json.RawMessage),
	}
	data, err := os.ReadFile(c.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// new collection, starts empty
	case err != nil:
		return nil, fmt.Errorf("read collection %s: %w", name, err)
	default:
		if err := json.Unmarshal(data, &c.records); err != nil {
			return nil, fmt.Errorf("decode collection %s: %w", name, err)
		}
	}
	s.collections[name] = c
	return c, nil
}

// Update runs fn against the collection's record set under the collection's
// write lock and persists the result atomically. fn sees and mutates the live
// map; returning an error aborts the update without touching disk.
func (s *Store) Update(name string, fn func(records map[string]json.RawMessage) error) error {
	c, err := s.collection(name)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	// Work on a copy so a failed fn or persist leaves the snapshot intact.
	next := make(map[string]json.RawMessage, len(c.records)+1)
	for k, v := range c.records {
		next[k] = v
	}
	if err := fn(next); err != nil {
		return err
	}
	if err := persist(c.path, next); err != nil {
		return fmt.Errorf("persist collection %s: %w", name, err)
	}
	c.records = next
	return nil
}

func persist(path string, records map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// Upsert stores rec under key, replacing any existing record.
func (s *Store) Upsert(name, key string, rec any) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return s.Update(name, func(records map[string]json.RawMessage) error {
		records[key] = data
		return nil
	})
}

// Get decodes the record stored under key into out.
func (s *Store) Get(name, key string, out any) error {
	c, err := s.collection(name)
	if err != nil {
		return err
	}
	c.mu.RLock()
	raw, ok := c.records[key]
	c.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(raw, out)
}

// Delete removes the record stored under key.
func (s *Store) Delete(name, key string) error {
	return s.Update(name, func(records map[string]json.RawMessage) error {
		if _, ok := records[key]; !ok {
			return ErrNotFound
		}
		delete(records, key)
		return nil
	})
}

// List returns a snapshot of all records in the collection.
func (s *Store) List(name string) ([]json.RawMessage, error) {
	c, err := s.collection(name)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]json.RawMessage, 0, len(c.records))
	for _, raw := range c.records {
		out = append(out, raw)
	}
	return out, nil
}

// Len reports the number of records in the collection.
func (s *Store) Len(name string) (int, error) {
	c, err := s.collection(name)
	if err != nil {
		return 0, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records), nil
}
