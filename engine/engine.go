package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zuzya/try.idea-validator/core"
	"github.com/zuzya/try.idea-validator/flow"
	"github.com/zuzya/try.idea-validator/logging"
)

// ErrMissingStage is returned by Run when the configuration reaches a stage
// the engine was built without.
var ErrMissingStage = errors.New("stage not configured")

// Stages is the engine's stage table, one field per dispatchable StageID.
// Generate is always required; the research chain (Research, Recruit,
// Simulate, Analyze) is required when Config.EnableResearch is set and
// Critique when Config.EnableCritique is set.
type Stages struct {
	Generate core.Stage
	Research core.Stage
	Recruit  core.Stage
	Simulate core.FanOutStage
	Analyze  core.Stage
	Critique core.Stage
}

func (s Stages) validate(cfg core.Config) error {
	missing := func(id core.StageID) error { return fmt.Errorf("%w: %s", ErrMissingStage, id) }

	if s.Generate == nil {
		return missing(core.StageGenerate)
	}
	if cfg.EnableResearch {
		switch {
		case s.Research == nil:
			return missing(core.StageResearch)
		case s.Recruit == nil:
			return missing(core.StageRecruit)
		case s.Simulate == nil:
			return missing(core.StageSimulate)
		case s.Analyze == nil:
			return missing(core.StageAnalyze)
		}
	}
	if cfg.EnableCritique && s.Critique == nil {
		return missing(core.StageCritique)
	}
	return nil
}

// Options configures an Engine instance using the functional options pattern.
//
// Example:
//
//	eng := engine.New(stages, func(o *engine.Options) {
//	    o.Logger = logger
//	    o.Metrics = engine.NewMetrics(registry)
//	})
type Options struct {
	// EventBufferSize sets the event channel buffer. Zero keeps the channel
	// unbuffered, so the engine only advances as fast as the consumer reads.
	EventBufferSize int

	// Logger provides structured logging. Defaults to NoOp.
	Logger logging.Logger

	// Callbacks are consulted around every stage. Optional.
	Callbacks *CallbackManager

	// Metrics records Prometheus metrics. Optional.
	Metrics *Metrics

	// DrainTimeout bounds how long a cancelled run waits for the consumer to
	// take each remaining event. Once it expires the rest are dropped and
	// the channel is closed. Defaults to one second.
	DrainTimeout time.Duration
}

// Engine drives runs through the stage graph.
//
// Core Responsibilities:
//   - Validation: the run configuration and the stage table are checked
//     before anything executes
//   - Dispatch: stages run one at a time in router order starting at
//     Generate; Simulate is expanded into a bounded parallel fan-out
//   - State: every patch is checked by the IterationController and applied
//     to produce the next immutable state
//   - Streaming: one KindStage event per applied patch, then exactly one
//     terminal event (KindComplete or KindError)
//
// Concurrency Model:
//   - One goroutine per run owns that run's state; runs share nothing but
//     the stage implementations, which must be safe for concurrent use
//   - Cancellation is checked between stages and inside the stages' retry
//     loops
//
// Consumers must drain the event channel until it is closed or cancel the
// run's context. A cancelled run whose consumer stopped reading closes the
// channel after DrainTimeout.
type Engine struct {
	stages       Stages
	logger       logging.Logger
	callbacks    *CallbackManager
	metrics      *Metrics
	bufSize      int
	drainTimeout time.Duration
}

// New creates an Engine for the given stage table.
func New(stages Stages, optFns ...func(o *Options)) *Engine {
	opts := Options{
		Logger:       logging.NoOpLogger{},
		DrainTimeout: time.Second,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.EventBufferSize < 0 {
		opts.EventBufferSize = 0
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = time.Second
	}

	return &Engine{
		stages:       stages,
		logger:       opts.Logger,
		callbacks:    opts.Callbacks,
		metrics:      opts.Metrics,
		bufSize:      opts.EventBufferSize,
		drainTimeout: opts.DrainTimeout,
	}
}

// Run starts a run asynchronously and returns its event stream. An empty
// runID is replaced with a generated one. Configuration and stage table
// problems are reported immediately and nothing executes.
func (e *Engine) Run(ctx context.Context, runID string, initial core.GraphState) (<-chan core.Event, error) {
	if err := initial.Config.Validate(); err != nil {
		return nil, err
	}
	if err := e.stages.validate(initial.Config); err != nil {
		return nil, err
	}
	if runID == "" {
		runID = core.NewID()
	}

	out := make(chan core.Event, e.bufSize)

	go func() {
		defer close(out)
		r := &run{
			engine: e,
			id:     runID,
			ctrl:   flow.NewIterationController(initial.Config),
			logger: logging.ForRun(e.logger, runID),
			out:    out,
		}
		r.execute(core.WithRunID(ctx, runID), initial)
	}()

	return out, nil
}

// RunSync drains Run and returns the final state together with every event.
// The error is the terminal event's error, if any.
func (e *Engine) RunSync(ctx context.Context, runID string, initial core.GraphState) (core.GraphState, []core.Event, error) {
	events, err := e.Run(ctx, runID, initial)
	if err != nil {
		return initial, nil, err
	}

	var (
		all    []core.Event
		final  = initial
		runErr error
	)
	for ev := range events {
		all = append(all, ev)
		final = ev.State
		if ev.Kind == core.KindError {
			runErr = ev.Err
		}
	}

	return final, all, runErr
}

// run is the per-run dispatch loop.
type run struct {
	engine *Engine
	id     string
	ctrl   *flow.IterationController
	logger logging.Logger
	out    chan<- core.Event

	// abandoned is set once an event could not be delivered after
	// cancellation; later events are dropped without waiting.
	abandoned bool
}

func (r *run) execute(ctx context.Context, state core.GraphState) {
	started := time.Now()
	current := core.StageGenerate

	r.logger.Info("run started: seed=%q max_iterations=%d research=%t critique=%t",
		state.SeedInput, state.Config.MaxIterations, state.Config.EnableResearch, state.Config.EnableCritique)

	for current != core.StageTerminal {
		if err := ctx.Err(); err != nil {
			r.cancelled(ctx, current, state, err)
			return
		}

		next, err := r.step(ctx, current, state)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && !errors.As(err, new(*core.FatalStageError)) {
				r.cancelled(ctx, current, next, ctxErr)
				return
			}
			r.fail(ctx, current, next, err)
			return
		}

		state = next
		current = r.ctrl.Guard(flow.Next(current, state), state)
	}

	if !r.emit(ctx, core.NewCompleteEvent(r.id, state)) {
		r.engine.metrics.observeRun(OutcomeCancelled)
		return
	}
	r.engine.metrics.observeRun(OutcomeComplete)
	r.logger.Info("run complete: iterations=%d steps=%d duration=%s",
		state.IterationCount, r.ctrl.Steps(), time.Since(started))
}

// step executes one stage and emits its event. The returned state is the
// last consistent state: the post-patch state once the patch was applied,
// the input state otherwise.
func (r *run) step(ctx context.Context, id core.StageID, state core.GraphState) (core.GraphState, error) {
	if err := r.ctrl.Step(); err != nil {
		return state, err
	}

	cb := r.engine.callbacks
	if err := cb.Run(ctx, CallbackBeforeStage, &CallbackContext{RunID: r.id, Stage: id, State: state}); err != nil {
		return state, err
	}

	start := time.Now()
	patch, err := r.dispatch(ctx, id, state)
	dur := time.Since(start)
	r.engine.metrics.observeStage(id, dur, err)
	r.logStage(id, dur, err)
	if err != nil {
		return state, err
	}

	if err := r.ctrl.Validate(id, patch); err != nil {
		return state, err
	}

	next := core.Apply(state, patch)

	if id == core.StageSimulate {
		if fin, ok := r.engine.stages.Simulate.(core.FanOutFinisher); ok {
			fin.AfterFanOut(ctx, next.Clone())
		}
	}

	if err := cb.Run(ctx, CallbackOnStateChange, &CallbackContext{
		RunID:    r.id,
		Stage:    id,
		State:    next,
		Previous: &state,
		Patch:    &patch,
	}); err != nil {
		return state, err
	}

	ev := core.NewStageEvent(r.id, id, patch, next)
	if !r.emit(ctx, ev) {
		return next, ctx.Err()
	}

	if err := cb.Run(ctx, CallbackAfterStage, &CallbackContext{
		RunID:    r.id,
		Stage:    id,
		State:    next,
		Previous: &state,
		Patch:    &patch,
		Event:    &ev,
	}); err != nil {
		return next, &core.FatalStageError{Stage: id, State: next, Cause: err}
	}

	return next, nil
}

// dispatch is exhaustive over the dispatchable stages. Panics inside a stage
// are turned into errors.
func (r *run) dispatch(ctx context.Context, id core.StageID, state core.GraphState) (p core.Patch, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("stage %s panicked: %v", id, rec)
		}
	}()

	s := r.engine.stages
	var stage core.Stage
	switch id {
	case core.StageGenerate:
		stage = s.Generate
	case core.StageResearch:
		stage = s.Research
	case core.StageRecruit:
		stage = s.Recruit
	case core.StageSimulate:
		return r.fanOut(ctx, state)
	case core.StageAnalyze:
		stage = s.Analyze
	case core.StageCritique:
		stage = s.Critique
	default:
		return core.Patch{}, fmt.Errorf("%w: %s", core.ErrUnknownStage, id)
	}
	if stage == nil {
		return core.Patch{}, fmt.Errorf("%w: %s", ErrMissingStage, id)
	}

	return stage.Run(ctx, state.Clone())
}

func (r *run) fanOut(ctx context.Context, state core.GraphState) (core.Patch, error) {
	if r.engine.stages.Simulate == nil {
		return core.Patch{}, fmt.Errorf("%w: %s", ErrMissingStage, core.StageSimulate)
	}

	tasks := r.engine.stages.Simulate.Plan(state.Clone())
	logger := logging.ForStage(r.logger, core.StageSimulate.String())

	patch, report, err := flow.FanOut(ctx, state, tasks, func(o *flow.FanOutOptions) {
		o.Width = state.Config.Width(len(tasks))
		o.Strict = state.Config.StrictFanOut
		o.Stage = core.StageSimulate
		o.Logger = logger
		o.OnTaskDone = func(_ string, err error) { r.engine.metrics.observeTask(err) }
	})

	if rl, ok := logger.(*logging.RunLogger); ok {
		rl.LogFanOut(core.StageSimulate.String(), report.Total, len(report.Failed), report.Duration)
	} else {
		logger.Debug("fan-out finished: total=%d failed=%d duration=%s", report.Total, len(report.Failed), report.Duration)
	}

	return patch, err
}

func (r *run) logStage(id core.StageID, dur time.Duration, err error) {
	if rl, ok := r.logger.(*logging.RunLogger); ok {
		rl.LogStage(id.String(), dur, err == nil, err)
		return
	}
	if err != nil {
		r.logger.Error("stage %s failed after %s: %v", id, dur, err)
		return
	}
	r.logger.Debug("stage %s completed in %s", id, dur)
}

func (r *run) cancelled(ctx context.Context, id core.StageID, state core.GraphState, cause error) {
	err := fmt.Errorf("run %s cancelled at %s: %w", r.id, id, cause)
	r.terminate(ctx, id, state, err, OutcomeCancelled)
}

func (r *run) fail(ctx context.Context, id core.StageID, state core.GraphState, err error) {
	var fatal *core.FatalStageError
	if !errors.As(err, &fatal) {
		err = &core.FatalStageError{Stage: id, State: state, Cause: err}
	}
	r.terminate(ctx, id, state, err, OutcomeError)
}

func (r *run) terminate(ctx context.Context, id core.StageID, state core.GraphState, err error, outcome string) {
	r.logger.Error("run halted at %s: %v", id, err)

	// OnError callbacks must run even after cancellation.
	cbCtx := context.WithoutCancel(ctx)
	if cbErr := r.engine.callbacks.Run(cbCtx, CallbackOnError, &CallbackContext{
		RunID: r.id,
		Stage: id,
		State: state,
		Err:   err,
	}); cbErr != nil {
		r.logger.Warn("on_error callback failed: %v", cbErr)
	}

	r.emit(ctx, core.NewErrorEvent(r.id, id, err, state))
	r.engine.metrics.observeRun(outcome)
}

// emit delivers ev and reports whether the consumer took it. After ctx is
// done the consumer gets DrainTimeout to take the event; if it does not, the
// run is marked abandoned and every later emit returns false at once.
func (r *run) emit(ctx context.Context, ev core.Event) bool {
	if r.abandoned {
		return false
	}

	select {
	case r.out <- ev:
		return true
	case <-ctx.Done():
	}

	timer := time.NewTimer(r.engine.drainTimeout)
	defer timer.Stop()

	select {
	case r.out <- ev:
		return true
	case <-timer.C:
		r.abandoned = true
		r.logger.Warn("consumer stopped reading, dropped %s event", ev.Name())
		return false
	}
}
