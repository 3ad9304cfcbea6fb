package core

import "context"

// ArtifactStore persists the human-readable documents produced during a run
// (idea drafts, interview guides, transcripts, reports). Implementations must
// be safe for concurrent use and treat Save as overwrite-on-same-name so that
// retried saves are idempotent. Artifacts are scoped by run identifier.
type ArtifactStore interface {
	Save(ctx context.Context, runID, filename, content string) error
	Get(ctx context.Context, runID, filename string) (string, error)
	List(ctx context.Context, runID string) ([]string, error)
}

// PersonaIndex is a searchable corpus of persona descriptions. Search returns
// up to limit text excerpts ordered by relevance; an empty result is valid.
// Implementations wrap failures in *SearchError.
type PersonaIndex interface {
	Search(ctx context.Context, query string, limit int) ([]string, error)
}
