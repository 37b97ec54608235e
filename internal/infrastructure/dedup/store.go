package dedup

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

var ErrPersistence = errors.New("dedup store persistence failure")

// Store is a durable set of processed message ids backed by a JSON array
// file. Every insert rewrites the whole file.
type Store struct {
	path string

	mu  sync.Mutex
	ids map[string]struct{}
}

// NewStore creates an empty store bound to path. Call Load to read it.
func NewStore(path string) *Store {
	return &Store{
		path: path,
		ids:  make(map[string]struct{}),
	}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load replaces the in-memory set with the file contents. A missing file
// yields an empty set. On a read or decode error the set is left empty.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ids = make(map[string]struct{})
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: read %s: %v", ErrPersistence, s.path, err)
	}
	if len(data) == 0 {
		return nil
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrPersistence, s.path, err)
	}
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	return nil
}

func (s *Store) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

// Insert adds id and persists the full set before returning. The id stays
// in memory even when the write fails.
func (s *Store) Insert(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return nil
	}
	s.ids[id] = struct{}{}
	return s.writeLocked()
}

// Flush writes the current set to disk.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked()
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// Snapshot returns the ids in sorted order.
func (s *Store) Snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked()
}

func (s *Store) sortedLocked() []string {
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *Store) writeLocked() error {
	data, err := json.Marshal(s.sortedLocked())
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrPersistence, err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", ErrPersistence, dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".processed-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp: %v", ErrPersistence, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: write: %v", ErrPersistence, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: close: %v", ErrPersistence, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: rename: %v", ErrPersistence, err)
	}
	return nil
}
