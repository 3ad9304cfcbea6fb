package core

import (
	"time"

	"github.com/google/uuid"
)

// EventKind distinguishes progress events from the terminal ones.
type EventKind string

const (
	// KindStage reports that a stage completed and its patch was applied.
	KindStage EventKind = "stage"
	// KindComplete closes a run that reached Terminal.
	KindComplete EventKind = "complete"
	// KindError closes a run that halted on a fatal error or cancellation.
	KindError EventKind = "error"
)

// Event is the unit of the engine's output stream. A run emits zero or more
// KindStage events followed by exactly one KindComplete or KindError event.
// Events are immutable after emission; State is a private snapshot.
//
// Err is not serialised; ErrorMessage carries its text for remote clients.
type Event struct {
	ID           string     `json:"id"`
	RunID        string     `json:"run_id"`
	Kind         EventKind  `json:"kind"`
	Stage        StageID    `json:"stage"`
	Patch        Patch      `json:"patch"`
	State        GraphState `json:"state"`
	Err          error      `json:"-"`
	ErrorMessage string     `json:"error,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
}

// NewStageEvent reports the completion of stage with the post-patch state.
func NewStageEvent(runID string, stage StageID, patch Patch, state GraphState) Event {
	e := newEvent(runID, KindStage, state)
	e.Stage = stage
	e.Patch = patch
	return e
}

// NewCompleteEvent closes a run successfully.
func NewCompleteEvent(runID string, state GraphState) Event {
	e := newEvent(runID, KindComplete, state)
	e.Stage = StageTerminal
	return e
}

// NewErrorEvent closes a run with err. stage is the stage that failed or was
// about to run.
func NewErrorEvent(runID string, stage StageID, err error, state GraphState) Event {
	e := newEvent(runID, KindError, state)
	e.Stage = stage
	e.Err = err
	if err != nil {
		e.ErrorMessage = err.Error()
	}
	return e
}

func newEvent(runID string, kind EventKind, state GraphState) Event {
	return Event{
		ID:        NewID(),
		RunID:     runID,
		Kind:      kind,
		State:     state.Clone(),
		Timestamp: time.Now().UTC(),
	}
}

// IsTerminal reports whether e closes the stream.
func (e Event) IsTerminal() bool { return e.Kind == KindComplete || e.Kind == KindError }

// Name is the label used on the wire (SSE event field): the stage name for
// progress events, the kind otherwise.
func (e Event) Name() string {
	if e.Kind == KindStage {
		return e.Stage.String()
	}
	return string(e.Kind)
}

// NewID generates a new unique identifier for runs and events.
func NewID() string { return uuid.NewString() }
