package core

import "context"

// Runner manages many independent runs. It provides:
//   - Asynchronous start via Start (streaming events)
//   - Cooperative cancellation through Cancel
//   - Stable run identifiers for tracking / external control
//
// Semantics & Guarantees:
//   - Event Ordering: events of one run are delivered in emission order.
//   - Channel Lifecycle: the events channel is closed after the terminal
//     event of the run.
//   - Isolation: runs share no mutable state; each owns its GraphState.
type Runner interface {
	// Start begins a new run seeded with seed and configured by cfg.
	Start(ctx context.Context, seed string, cfg Config) (string, <-chan Event, error)

	// Cancel requests cooperative termination of an in-flight run. Cancelling
	// an unknown or already finished run returns ErrRunNotFound.
	Cancel(runID string) error
}
