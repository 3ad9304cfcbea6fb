package core

import "context"

type runIDKey struct{}

// WithRunID returns a context carrying runID. The engine attaches it before
// dispatching stages so that artifact saves and log lines are run scoped.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFromContext returns the run id attached by WithRunID, or "".
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}
