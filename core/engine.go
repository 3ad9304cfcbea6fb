package core

import "context"

// Engine drives a single run through the stage graph.
//
// A concrete implementation is responsible for:
//   - Validating the run configuration before any stage executes
//   - Dispatching stages in router order and applying their patches
//   - Streaming one event per applied patch, closed by exactly one terminal
//     event (complete or error)
//   - Propagating context cancellation between stages
type Engine interface {
	// Run starts a run asynchronously. The returned channel is closed after
	// the terminal event. The immediate error covers startup failures such as
	// an invalid configuration.
	Run(ctx context.Context, runID string, initial GraphState) (<-chan Event, error)

	// RunSync drains Run, returning the final state and every event.
	RunSync(ctx context.Context, runID string, initial GraphState) (GraphState, []Event, error)
}
