package api

import (
	"sort"
	"sync"
)

// ProcessedSet records which entities a flow has already handled so that a
// retried operation can skip them. It is owned by the orchestrating flow and
// passed by pointer into each attempt. Safe for concurrent use.
type ProcessedSet struct {
	mu    sync.Mutex
	names map[string]struct{}
}

// NewProcessedSet returns an empty set.
func NewProcessedSet() *ProcessedSet {
	return &ProcessedSet{names: make(map[string]struct{})}
}

// Has reports whether name was marked.
func (s *ProcessedSet) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.names[name]
	return ok
}

// Mark adds name and reports whether it was newly added.
func (s *ProcessedSet) Mark(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.names == nil {
		s.names = make(map[string]struct{})
	}
	if _, ok := s.names[name]; ok {
		return false
	}
	s.names[name] = struct{}{}
	return true
}

func (s *ProcessedSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.names)
}

// Names returns the marked names in sorted order.
func (s *ProcessedSet) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.names))
	for n := range s.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
