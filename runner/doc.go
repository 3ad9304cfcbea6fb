// Package runner manages many concurrent, independent runs on top of a
// single core.Engine.
//
// # Responsibilities (abridged)
//   - Run id assignment and asynchronous start with a streaming event channel
//   - A concurrent-run cap (golang.org/x/sync/semaphore); Start fails fast
//     with ErrTooManyRuns instead of queueing
//   - Event history and latest state per run in a core.RunStore
//   - Cancellation by run id
//
// See runner.go for the operational implementation details.
package runner
