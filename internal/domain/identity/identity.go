package identity

import (
	"sort"
	"strings"
	"sync"
)

// Identity names a session participant. Comparisons are case-insensitive.
type Identity string

// Key returns the normalized lookup key.
func (i Identity) Key() string {
	return strings.ToLower(strings.TrimSpace(string(i)))
}

// Equal reports whether two identities name the same participant.
func (i Identity) Equal(other Identity) bool {
	return i.Key() == other.Key()
}

func (i Identity) String() string {
	return string(i)
}

// IsZero reports whether the identity is blank.
func (i Identity) IsZero() bool {
	return i.Key() == ""
}

// Set is a concurrency-safe set of identities keyed case-insensitively.
type Set struct {
	mu      sync.RWMutex
	members map[string]Identity
}

// NewSet creates a set holding the given identities.
func NewSet(ids ...Identity) *Set {
	s := &Set{members: make(map[string]Identity, len(ids))}
	for _, id := range ids {
		if id.IsZero() {
			continue
		}
		s.members[id.Key()] = id
	}
	return s
}

// ParseList builds a set from a comma separated list.
func ParseList(csv string) *Set {
	parts := strings.Split(csv, ",")
	ids := make([]Identity, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			ids = append(ids, Identity(p))
		}
	}
	return NewSet(ids...)
}

func (s *Set) Contains(id Identity) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.members[id.Key()]
	return ok
}

// Add inserts id and reports whether it was newly added.
func (s *Set) Add(id Identity) bool {
	if id.IsZero() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[id.Key()]; ok {
		return false
	}
	s.members[id.Key()] = id
	return true
}

// Remove deletes id and reports whether it was present.
func (s *Set) Remove(id Identity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[id.Key()]; !ok {
		return false
	}
	delete(s.members, id.Key())
	return true
}

func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.members)
}

// List returns the members sorted by key.
func (s *Set) List() []Identity {
	s.mu.RLock()
	keys := make([]string, 0, len(s.members))
	for k := range s.members {
		keys = append(keys, k)
	}
	out := make([]Identity, 0, len(keys))
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, s.members[k])
	}
	s.mu.RUnlock()
	return out
}
