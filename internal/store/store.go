// Package store keeps the latest decoded value of every parameter.
//
// Values are written only from successful decoded reads. Consumers get copies.
package store

import (
	"math"
	"sort"
	"sync"
	"time"
)

// DefaultDeadband hides cell voltage flicker from change detection.
const DefaultDeadband = 0.003

type Value struct {
	Name      string    `json:"name"`
	Raw       int64     `json:"raw"`
	Physical  float64   `json:"value"`
	Unit      string    `json:"unit,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Stale     bool      `json:"stale,omitempty"`
}

// Snapshot is a point-in-time copy of the store.
type Snapshot map[string]Value

// Names returns the snapshot keys sorted.
func (s Snapshot) Names() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Physical returns a value and whether it is present and fresh.
func (s Snapshot) Physical(name string) (float64, bool) {
	v, ok := s[name]
	return v.Physical, ok && !v.Stale
}

type Store struct {
	mu       sync.RWMutex
	values   map[string]Value
	ref      map[string]float64 // value at the last reported change
	deadband float64
}

func New(deadband float64) *Store {
	if deadband < 0 {
		deadband = 0
	}
	return &Store{
		values:   make(map[string]Value),
		ref:      make(map[string]float64),
		deadband: deadband,
	}
}

// Update replaces a group of values in one step and returns the names that changed.
// A name changes when it is new, was stale, or moved by at least the deadband since its last change.
func (s *Store) Update(values ...Value) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed []string
	for _, v := range values {
		v.Stale = false
		prev, seen := s.values[v.Name]
		ref, hasRef := s.ref[v.Name]
		if !seen || !hasRef || prev.Stale || s.moved(ref, v.Physical) {
			changed = append(changed, v.Name)
			s.ref[v.Name] = v.Physical
		}
		s.values[v.Name] = v
	}
	return changed
}

func (s *Store) moved(ref, v float64) bool {
	if v == ref {
		return false
	}
	return math.Abs(v-ref) >= s.deadband
}

// MarkStale flags names whose read failed. Last known values are kept.
// It returns the names that were fresh before.
func (s *Store) MarkStale(names ...string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var flipped []string
	for _, n := range names {
		v, ok := s.values[n]
		if !ok {
			s.values[n] = Value{Name: n, Stale: true}
			flipped = append(flipped, n)
			continue
		}
		if !v.Stale {
			v.Stale = true
			s.values[n] = v
			flipped = append(flipped, n)
		}
	}
	return flipped
}

func (s *Store) Get(name string) (Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(Snapshot, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// StaleCount is the number of stale values.
func (s *Store) StaleCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, v := range s.values {
		if v.Stale {
			n++
		}
	}
	return n
}
