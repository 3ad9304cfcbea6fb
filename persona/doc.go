// Package persona contains concrete PersonaIndex implementations. The index
// interface resides in the core package; depend on core.PersonaIndex in your
// code and select an implementation (the in-memory keyword index below or
// the pgvector index in persona/pgvector) at wiring time.
//
// Synthetic supplies the deterministic persona set used when an index is
// unavailable.
package persona
