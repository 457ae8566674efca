// Package dedup provides the known-path membership test shared by the
// Wordlist Prober, Pattern Prober, and Link Follower: a bloom filter for a
// fast probable-negative check, backed by an exact set for the rare
// false-positive case. Adapted from the teacher's internal/state/dedup.go.
package dedup

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// defaultEstimate sizes the bloom filter; a prober rarely discovers more
// than a few thousand distinct paths per service.
const (
	defaultEstimate   = 50_000
	defaultFalsePosPr = 0.001
)

// Set is a concurrency-safe known-path set.
type Set struct {
	mu     sync.RWMutex
	filter *bloom.BloomFilter
	exact  map[string]struct{}
}

// New creates an empty known-path set.
func New() *Set {
	return &Set{
		filter: bloom.NewWithEstimates(defaultEstimate, defaultFalsePosPr),
		exact:  make(map[string]struct{}),
	}
}

// Add records path as known. Returns true if path was newly added (was not
// already known).
func (s *Set) Add(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasLocked(path) {
		return false
	}
	s.filter.AddString(path)
	s.exact[path] = struct{}{}
	return true
}

// Has reports whether path has already been recorded.
func (s *Set) Has(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasLocked(path)
}

func (s *Set) hasLocked(path string) bool {
	if !s.filter.TestString(path) {
		return false
	}
	_, ok := s.exact[path]
	return ok
}

// AddAll loads a batch of known paths (e.g. endpoints read back from the
// Store at the start of a resumed probe).
func (s *Set) AddAll(paths []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range paths {
		if s.hasLocked(p) {
			continue
		}
		s.filter.AddString(p)
		s.exact[p] = struct{}{}
	}
}

// Len returns the number of distinct known paths.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.exact)
}

// All returns a snapshot slice of every known path.
func (s *Set) All() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.exact))
	for p := range s.exact {
		out = append(out, p)
	}
	return out
}
