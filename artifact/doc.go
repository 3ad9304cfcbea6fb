// Package artifact contains concrete implementations of core.ArtifactStore.
//
// The canonical ArtifactStore interface lives in the core package to avoid
// dependency cycles. Implementations here (in-memory, filesystem) and in
// artifact/redis can be swapped without touching the stages that save
// through them. Callers should depend on the core interface.
//
// Every store scopes artifacts by run id, treats Save as an overwrite and
// rejects names that could escape the run's namespace (see ValidateName).
package artifact
