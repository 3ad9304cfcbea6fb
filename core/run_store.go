package core

import (
	"context"
	"errors"
	"sync"
	"time"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	// RunRunning marks a run whose engine goroutine is still active.
	RunRunning RunStatus = "running"
	// RunComplete marks a run that reached Terminal.
	RunComplete RunStatus = "complete"
	// RunFailed marks a run that halted on a fatal error.
	RunFailed RunStatus = "failed"
	// RunCancelled marks a run that was cancelled.
	RunCancelled RunStatus = "cancelled"
)

// IsFinal reports whether no more events will be recorded.
func (s RunStatus) IsFinal() bool { return s != RunRunning }

// RunRecord tracks one run: the latest state snapshot plus its ordered event
// history. It is safe for concurrent access.
//
// Contract:
//   - AddEvent advances State to the event's snapshot and, for terminal
//     events, sets Status
//   - GetEvents returns a copy
//   - Clone performs deep copies for safe divergence
type RunRecord struct {
	RunID   string     `json:"run_id"`
	Status  RunStatus  `json:"status"`
	State   GraphState `json:"state"`
	Events  []Event    `json:"events"`
	Error   string     `json:"error,omitempty"`
	Created time.Time  `json:"created"`
	Updated time.Time  `json:"updated"`
	mu      sync.RWMutex
}

// NewRunRecord creates a running record seeded with the initial state.
func NewRunRecord(runID string, initial GraphState) *RunRecord {
	now := time.Now().UTC()
	return &RunRecord{
		RunID:   runID,
		Status:  RunRunning,
		State:   initial.Clone(),
		Events:  []Event{},
		Created: now,
		Updated: now,
	}
}

// AddEvent appends ev to the history and folds it into State and Status.
func (r *RunRecord) AddEvent(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, ev)
	r.State = ev.State.Clone()
	switch ev.Kind {
	case KindComplete:
		r.Status = RunComplete
	case KindError:
		r.Status = RunFailed
		if errors.Is(ev.Err, context.Canceled) {
			r.Status = RunCancelled
		}
		r.Error = ev.ErrorMessage
	}
	r.Updated = time.Now().UTC()
}

// GetStatus returns the current status.
func (r *RunRecord) GetStatus() RunStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Status
}

// GetEvents returns a copy of the event history.
func (r *RunRecord) GetEvents() []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	events := make([]Event, len(r.Events))
	copy(events, r.Events)
	return events
}

// Clone returns a deep copy of the record safe for independent use.
func (r *RunRecord) Clone() *RunRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clone := &RunRecord{
		RunID:   r.RunID,
		Status:  r.Status,
		State:   r.State.Clone(),
		Events:  make([]Event, len(r.Events)),
		Error:   r.Error,
		Created: r.Created,
		Updated: r.Updated,
	}
	copy(clone.Events, r.Events)
	return clone
}

// RunStore persists run records and their event history.
type RunStore interface {
	Create(runID string, initial GraphState) (*RunRecord, error)
	Get(runID string) (*RunRecord, error)
	AppendEvent(runID string, event Event) error
	List() ([]*RunRecord, error)
}
