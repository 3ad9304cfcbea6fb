package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/zuzya/try.idea-validator/core"
)

// ErrInjected is the error returned by the failing fakes.
var ErrInjected = errors.New("injected failure")

// FailingArtifactStore rejects every save and counts attempts.
type FailingArtifactStore struct {
	mu    sync.Mutex
	saves int
}

// Save implements core.ArtifactStore.
func (s *FailingArtifactStore) Save(context.Context, string, string, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	return ErrInjected
}

// Get implements core.ArtifactStore.
func (s *FailingArtifactStore) Get(context.Context, string, string) (string, error) {
	return "", ErrInjected
}

// List implements core.ArtifactStore.
func (s *FailingArtifactStore) List(context.Context, string) ([]string, error) {
	return nil, ErrInjected
}

// Saves returns the number of attempted saves.
func (s *FailingArtifactStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// StaticPersonaIndex answers every query with the same excerpts, or Err when
// set.
type StaticPersonaIndex struct {
	Excerpts []string
	Err      error
}

// Search implements core.PersonaIndex.
func (i StaticPersonaIndex) Search(_ context.Context, query string, limit int) ([]string, error) {
	if i.Err != nil {
		return nil, &core.SearchError{Query: query, Cause: i.Err}
	}
	if limit > 0 && len(i.Excerpts) > limit {
		return append([]string(nil), i.Excerpts[:limit]...), nil
	}
	return append([]string(nil), i.Excerpts...), nil
}
