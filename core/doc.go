// Package core provides the foundational domain types and contracts of the
// idea validator. It defines:
//
//   - GraphState (the single record carried through a run) and its value
//     objects: Idea, Guide, Persona, InterviewResult, Report, Critique
//   - Patch, the explicit partial update a stage returns, with named resets
//   - StageID (closed enum), Stage and FanOutStage contracts
//   - Event, the unit of the engine's output stream
//   - The error taxonomy (ExtractionError, ModelError, SearchError,
//     PersistenceError, FatalStageError)
//   - Collaborator interfaces: ModelGateway, PersonaIndex, ArtifactStore
//
// Implementation concerns (routing, fan-out, persistence backends, model
// providers) live in other packages; this package stays dependency free apart
// from identifier generation.
package core
