// Package flow holds the control-flow primitives of the workflow engine:
//
//   - the conditional router (AfterGenerate, AfterAnalyze, AfterCritique and
//     the total transition function Next), pure functions of the state
//   - FanOut, a bounded worker pool that runs independent tasks against
//     isolated state copies and merges their patches at a barrier
//   - IterationController, which owns the termination bounds of a run
//
// None of these types call model gateways, persona indexes or artifact
// stores; they only decide what runs next and how partial results combine.
package flow
