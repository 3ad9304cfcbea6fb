package artifact

import (
	"context"
	"slices"
	"sync"
)

type docKey struct {
	runID, filename string
}

// InMemoryStore keeps documents in a process local map. It is the default for
// tests and the CLI; nothing is evicted and nothing survives a restart.
type InMemoryStore struct {
	mu   sync.RWMutex
	docs map[docKey]string
}

// NewInMemoryStore returns an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{docs: make(map[docKey]string)}
}

// Save writes or overwrites one document.
func (s *InMemoryStore) Save(ctx context.Context, runID, filename, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateName(runID, filename); err != nil {
		return err
	}
	s.mu.Lock()
	s.docs[docKey{runID, filename}] = content
	s.mu.Unlock()
	return nil
}

// Get returns one document or ErrNotFound.
func (s *InMemoryStore) Get(_ context.Context, runID, filename string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.docs[docKey{runID, filename}]
	if !ok {
		return "", ErrNotFound
	}
	return content, nil
}

// List returns the run's filenames in lexical order; an unknown run has none.
func (s *InMemoryStore) List(_ context.Context, runID string) ([]string, error) {
	s.mu.RLock()
	names := []string{}
	for k := range s.docs {
		if k.runID == runID {
			names = append(names, k.filename)
		}
	}
	s.mu.RUnlock()
	slices.Sort(names)
	return names, nil
}

// Delete removes one document or returns ErrNotFound.
func (s *InMemoryStore) Delete(_ context.Context, runID, filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := docKey{runID, filename}
	if _, ok := s.docs[k]; !ok {
		return ErrNotFound
	}
	delete(s.docs, k)
	return nil
}
