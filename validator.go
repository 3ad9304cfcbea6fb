// Package validator provides a high-level façade over the stage pipeline,
// the engine and the runner. Most applications interact with this package by:
//  1. Creating a Validator via New() (or FromConfig for a config file)
//  2. Invoking runs asynchronously (Invoke) or synchronously (InvokeSync)
//  3. Inspecting or cancelling runs by id
//
// All defaults are safe for local development and testing: artifacts and run
// records stay in memory and the persona index is empty. Model gateways have
// no default; without them every model-backed stage fails fast.
package validator

import (
	"context"
	"errors"

	"github.com/zuzya/try.idea-validator/artifact"
	"github.com/zuzya/try.idea-validator/core"
	"github.com/zuzya/try.idea-validator/engine"
	"github.com/zuzya/try.idea-validator/logging"
	"github.com/zuzya/try.idea-validator/persona"
	"github.com/zuzya/try.idea-validator/runner"
	"github.com/zuzya/try.idea-validator/session"
	"github.com/zuzya/try.idea-validator/stage"
)

// Options configures the Validator instance.
type Options struct {
	// Gateways are the model tiers shared by every stage.
	Gateways core.Gateways

	// MaxConcurrentRuns limits the number of runs in flight. Invoke fails
	// with runner.ErrTooManyRuns beyond it.
	MaxConcurrentRuns int64

	// EventBufferSize sets the buffer of the channels returned by Invoke.
	EventBufferSize int

	// Stores (default to in-memory implementations if not provided)
	ArtifactStore core.ArtifactStore
	RunStore      core.RunStore
	PersonaIndex  core.PersonaIndex

	// Callbacks and Metrics are handed to the engine. Both are optional.
	Callbacks *engine.CallbackManager
	Metrics   *engine.Metrics

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Validator is the high-level façade aggregating the engine, the runner and
// the stores behind them.
type Validator struct {
	opts   Options
	engine *engine.Engine
	runner *runner.Runner
}

// New creates a new Validator with optional overrides. Any unset store is
// initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) *Validator {
	opts := Options{
		MaxConcurrentRuns: 10,
		EventBufferSize:   100,
		ArtifactStore:     artifact.NewInMemoryStore(),
		RunStore:          session.NewInMemoryStore(),
		PersonaIndex:      persona.NewInMemoryIndex(),
		Logger:            logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	stageOpts := []func(o *stage.Options){
		stage.WithGateways(opts.Gateways),
		stage.WithStore(opts.ArtifactStore),
		stage.WithIndex(opts.PersonaIndex),
		stage.WithLogger(opts.Logger),
	}

	e := engine.New(engine.Stages{
		Generate: stage.NewGenerate(stageOpts...),
		Research: stage.NewResearch(stageOpts...),
		Recruit:  stage.NewRecruit(stageOpts...),
		Simulate: stage.NewSimulate(stageOpts...),
		Analyze:  stage.NewAnalyze(stageOpts...),
		Critique: stage.NewCritique(stageOpts...),
	}, func(o *engine.Options) {
		o.Logger = opts.Logger
		o.Callbacks = opts.Callbacks
		o.Metrics = opts.Metrics
	})

	r := runner.New(e, func(o *runner.Options) {
		o.MaxConcurrentRuns = opts.MaxConcurrentRuns
		o.EventBufferSize = opts.EventBufferSize
		o.Store = opts.RunStore
		o.Logger = opts.Logger
	})

	return &Validator{opts: opts, engine: e, runner: r}
}

// Invoke starts an asynchronous run for seed and returns its id and event
// stream. The stream ends with exactly one complete or error event and must
// be drained.
func (v *Validator) Invoke(ctx context.Context, seed string, cfg core.Config) (string, <-chan core.Event, error) {
	return v.runner.Start(ctx, seed, cfg)
}

// InvokeSync is a synchronous helper that drains the event stream and returns
// the run id, the final state and every event. A failed or cancelled run
// returns the error carried by its terminal event.
func (v *Validator) InvokeSync(ctx context.Context, seed string, cfg core.Config) (string, core.GraphState, []core.Event, error) {
	runID, eventsCh, err := v.runner.Start(ctx, seed, cfg)
	if err != nil {
		return "", core.GraphState{}, nil, err
	}

	var (
		events []core.Event
		final  core.GraphState
		runErr error
	)
	for ev := range eventsCh {
		events = append(events, ev)
		final = ev.State
		if ev.Kind == core.KindError {
			runErr = ev.Err
			if runErr == nil {
				runErr = errors.New(ev.ErrorMessage)
			}
		}
	}

	return runID, final, events, runErr
}

// Cancel requests cooperative termination of a run.
func (v *Validator) Cancel(runID string) error { return v.runner.Cancel(runID) }

// Get returns a snapshot of a run.
func (v *Validator) Get(runID string) (*core.RunRecord, error) { return v.runner.Get(runID) }

// List returns snapshots of every known run.
func (v *Validator) List() ([]*core.RunRecord, error) { return v.runner.List() }

// Artifacts lists the documents a run has written.
func (v *Validator) Artifacts(ctx context.Context, runID string) ([]string, error) {
	return v.opts.ArtifactStore.List(ctx, runID)
}

// Artifact returns one document written by a run.
func (v *Validator) Artifact(ctx context.Context, runID, filename string) (string, error) {
	return v.opts.ArtifactStore.Get(ctx, runID, filename)
}

// ArtifactStore exposes the store stages write to.
func (v *Validator) ArtifactStore() core.ArtifactStore { return v.opts.ArtifactStore }

// Runner exposes the underlying runner.
func (v *Validator) Runner() *runner.Runner { return v.runner }

// Engine exposes the underlying engine.
func (v *Validator) Engine() *engine.Engine { return v.engine }

// Wait blocks until every started run has finished.
func (v *Validator) Wait() { v.runner.Wait() }
