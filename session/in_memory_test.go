package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zuzya/try.idea-validator/core"
)

// Interface compliance (compile-time assertion)
var _ core.RunStore = (*InMemoryStore)(nil)

func TestInMemoryStore_CreateGet(t *testing.T) {
	s := NewInMemoryStore()
	initial := core.NewGraphState("invoices", core.DefaultConfig())

	rec, err := s.Create("r1", initial)
	require.NoError(t, err)
	assert.Equal(t, core.RunRunning, rec.Status)
	assert.Equal(t, "invoices", rec.State.SeedInput)

	_, err = s.Create("r1", initial)
	assert.ErrorIs(t, err, ErrRunExists)

	_, err = s.Get("missing")
	assert.ErrorIs(t, err, core.ErrRunNotFound)
}

func TestInMemoryStore_AppendEventFoldsState(t *testing.T) {
	s := NewInMemoryStore()
	initial := core.NewGraphState("invoices", core.DefaultConfig())
	_, err := s.Create("r1", initial)
	require.NoError(t, err)

	next := core.Apply(initial, core.Patch{Artifact: &core.Idea{Title: "Invoice Bot"}, IncIteration: true})
	require.NoError(t, s.AppendEvent("r1", core.NewStageEvent("r1", core.StageGenerate, core.Patch{}, next)))

	rec, err := s.Get("r1")
	require.NoError(t, err)
	assert.Equal(t, core.RunRunning, rec.Status)
	assert.Equal(t, "Invoice Bot", rec.State.Artifact.Title)
	assert.Len(t, rec.GetEvents(), 1)

	require.NoError(t, s.AppendEvent("r1", core.NewCompleteEvent("r1", next)))
	rec, _ = s.Get("r1")
	assert.Equal(t, core.RunComplete, rec.Status)
	assert.True(t, rec.Status.IsFinal())

	assert.ErrorIs(t, s.AppendEvent("missing", core.NewCompleteEvent("missing", next)), core.ErrRunNotFound)
}

func TestInMemoryStore_ErrorStatuses(t *testing.T) {
	s := NewInMemoryStore()
	st := core.NewGraphState("x", core.DefaultConfig())
	_, _ = s.Create("failed", st)
	_, _ = s.Create("cancelled", st)

	_ = s.AppendEvent("failed", core.NewErrorEvent("failed", core.StageResearch, errors.New("boom"), st))
	_ = s.AppendEvent("cancelled", core.NewErrorEvent("cancelled", core.StageResearch, fmt.Errorf("stopped: %w", context.Canceled), st))

	rec, _ := s.Get("failed")
	assert.Equal(t, core.RunFailed, rec.Status)
	assert.Equal(t, "boom", rec.Error)

	rec, _ = s.Get("cancelled")
	assert.Equal(t, core.RunCancelled, rec.Status)
}

func TestInMemoryStore_ReturnsClones(t *testing.T) {
	s := NewInMemoryStore()
	_, _ = s.Create("r1", core.NewGraphState("x", core.DefaultConfig()))

	rec, _ := s.Get("r1")
	rec.State.SeedInput = "mutated"
	rec.Status = core.RunFailed

	again, _ := s.Get("r1")
	assert.Equal(t, "x", again.State.SeedInput)
	assert.Equal(t, core.RunRunning, again.Status)
}

func TestInMemoryStore_ListAndConcurrency(t *testing.T) {
	s := NewInMemoryStore()
	st := core.NewGraphState("x", core.DefaultConfig())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("r%d", i)
			_, _ = s.Create(id, st)
			_ = s.AppendEvent(id, core.NewCompleteEvent(id, st))
		}(i)
	}
	wg.Wait()

	runs, err := s.List()
	require.NoError(t, err)
	assert.Len(t, runs, 10)
	for _, r := range runs {
		assert.Equal(t, core.RunComplete, r.Status)
	}
}
