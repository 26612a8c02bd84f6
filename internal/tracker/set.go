package tracker

import (
	"sort"
	"sync"
)

// IdentifierSet is a concurrency-safe set of vessel identifiers.
type IdentifierSet struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

// NewIdentifierSet returns a set holding ids. Empty strings are skipped.
func NewIdentifierSet(ids ...string) *IdentifierSet {
	s := &IdentifierSet{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		if id != "" {
			s.ids[id] = struct{}{}
		}
	}
	return s
}

// Replace swaps the contents for ids.
func (s *IdentifierSet) Replace(ids []string) {
	next := NewIdentifierSet(ids...).ids
	s.mu.Lock()
	s.ids = next
	s.mu.Unlock()
}

// Remove deletes id and reports whether it was present.
func (s *IdentifierSet) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; !ok {
		return false
	}
	delete(s.ids, id)
	return true
}

// Len returns the number of identifiers.
func (s *IdentifierSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// Slice returns a sorted copy of the identifiers.
func (s *IdentifierSet) Slice() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Equal reports whether the set holds exactly the distinct non-empty values of ids.
func (s *IdentifierSet) Equal(ids []string) bool {
	other := NewIdentifierSet(ids...)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.ids) != len(other.ids) {
		return false
	}
	for id := range other.ids {
		if _, ok := s.ids[id]; !ok {
			return false
		}
	}
	return true
}
