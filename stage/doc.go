// Package stage implements the workflow nodes of an idea validation run:
// Generate, Research, Recruit, Simulate, Analyze and Critique.
//
// Every stage reads the GraphState it is given and returns a core.Patch. Model
// calls go through extract.Retrier, so malformed or failed completions are
// retried and then replaced by a deterministic fallback flagged Degraded;
// only cancellation and wiring errors (no gateway, no idea yet) are returned.
// Simulate is a core.FanOutStage and relies on the engine to run its tasks.
//
// Stages persist human readable markdown artifacts with YAML frontmatter to
// the configured core.ArtifactStore. Save failures are logged and ignored.
package stage
