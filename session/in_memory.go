package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/zuzya/try.idea-validator/core"
)

// ErrRunExists is returned by Create for a run id that is already tracked.
var ErrRunExists = errors.New("run already exists")

// InMemoryStore is a volatile RunStore implementation storing runs in a
// process local map. It is safe for concurrent access and best suited for
// tests or a single server process. Each returned record is cloned to prevent
// external mutation of internal state.
type InMemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*core.RunRecord
}

// NewInMemoryStore constructs an empty in-memory run store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{runs: make(map[string]*core.RunRecord)}
}

// Create starts tracking a run.
func (s *InMemoryStore) Create(runID string, initial core.GraphState) (*core.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[runID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrRunExists, runID)
	}
	rec := core.NewRunRecord(runID, initial)
	s.runs[runID] = rec
	return rec.Clone(), nil
}

// Get returns a clone of the run record.
func (s *InMemoryStore) Get(runID string) (*core.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrRunNotFound, runID)
	}
	return rec.Clone(), nil
}

// AppendEvent adds an event to an existing run.
func (s *InMemoryStore) AppendEvent(runID string, ev core.Event) error {
	s.mu.RLock()
	rec, ok := s.runs[runID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrRunNotFound, runID)
	}
	rec.AddEvent(ev)
	return nil
}

// List returns clones of every run, oldest first.
func (s *InMemoryStore) List() ([]*core.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*core.RunRecord, 0, len(s.runs))
	for _, rec := range s.runs {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Created.Equal(out[j].Created) {
			return out[i].RunID < out[j].RunID
		}
		return out[i].Created.Before(out[j].Created)
	})
	return out, nil
}
