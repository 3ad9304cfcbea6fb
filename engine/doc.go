// Package engine implements the workflow engine that drives an idea through
// the stage graph.
//
// # Core Responsibilities
//
// Dispatch:
//   - Exhaustive dispatch over core.StageID using the Stages table
//   - Simulate expanded into a bounded parallel fan-out (flow.FanOut)
//   - Routing through flow.Next, bounded by flow.IterationController
//
// State:
//   - Stages return core.Patch values; the engine applies them in order
//   - Counter ownership is enforced before a patch is applied
//   - Every event carries a private snapshot of the post-patch state
//
// Event Streaming:
//   - One core.KindStage event per applied patch
//   - Exactly one terminal event (core.KindComplete or core.KindError)
//   - Unbuffered by default, so a slow consumer slows the run down
//   - After cancellation an idle consumer is dropped after DrainTimeout and
//     the channel is closed
//
// Cross-cutting concerns:
//   - Lifecycle callbacks (CallbackManager)
//   - Prometheus metrics (Metrics)
//   - Structured logging via logging.Logger
//
// # Graph
//
//	Generate ──► Research ──► Recruit ──► Simulate ──► Analyze
//	   ▲  │                                              │
//	   │  └──────────────► Critique ◄────────────────────┤
//	   │                      │                          │
//	   └──────────────────────┴──────────► Terminal ◄────┘
//
// # Usage
//
//	eng := engine.New(engine.Stages{
//	    Generate: stage.NewGenerate(deps),
//	    Research: stage.NewResearch(deps),
//	    Recruit:  stage.NewRecruit(deps),
//	    Simulate: stage.NewSimulate(deps),
//	    Analyze:  stage.NewAnalyze(deps),
//	    Critique: stage.NewCritique(deps),
//	})
//
//	events, err := eng.Run(ctx, "", core.NewGraphState("invoice tool for freelancers", core.DefaultConfig()))
//	if err != nil {
//	    return err
//	}
//	for ev := range events {
//	    fmt.Println(ev.Name(), ev.State.Version)
//	}
//
// # Error Handling
//
// Configuration and stage table problems are returned by Run before anything
// executes. Failures during the run end the stream with a KindError event
// whose error is a *core.FatalStageError carrying the last consistent state.
// Cancellation ends the stream with a KindError event wrapping the context
// error.
package engine
