package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/zuzya/try.idea-validator/core"
	"github.com/zuzya/try.idea-validator/logging"
	"github.com/zuzya/try.idea-validator/session"
)

// ErrTooManyRuns is returned by Start when MaxConcurrentRuns runs are
// already in flight.
var ErrTooManyRuns = errors.New("too many concurrent runs")

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// MaxConcurrentRuns caps in-flight runs. Start fails fast with
	// ErrTooManyRuns beyond it.
	MaxConcurrentRuns int64
	// EventBufferSize sets the buffer of the channel returned by Start.
	EventBufferSize int
	// Store records every run's events and latest state.
	Store core.RunStore
	// Logger receives lifecycle logs.
	Logger logging.Logger
	// DrainTimeout bounds how long a cancelled run waits for its consumer to
	// take each remaining event. Later events are still recorded in Store.
	DrainTimeout time.Duration
}

// Runner manages many independent runs on top of one engine: it assigns run
// ids, records events in the run store, enforces the concurrent-run cap and
// cancels runs by id. Public methods are safe for concurrent use.
type Runner struct {
	engine core.Engine

	sem             *semaphore.Weighted
	eventBufferSize int
	drainTimeout    time.Duration

	store  core.RunStore
	logger logging.Logger

	activeRuns map[string]context.CancelFunc
	mu         sync.RWMutex
	wg         sync.WaitGroup
}

// New constructs a Runner with optional overrides.
func New(engine core.Engine, optFns ...func(o *Options)) *Runner {
	opts := Options{
		MaxConcurrentRuns: 10,
		EventBufferSize:   100,
		Store:             session.NewInMemoryStore(),
		Logger:            logging.NoOpLogger{},
		DrainTimeout:      time.Second,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxConcurrentRuns < 1 {
		opts.MaxConcurrentRuns = 1
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = time.Second
	}

	return &Runner{
		engine:          engine,
		sem:             semaphore.NewWeighted(opts.MaxConcurrentRuns),
		eventBufferSize: opts.EventBufferSize,
		drainTimeout:    opts.DrainTimeout,
		store:           opts.Store,
		logger:          opts.Logger,
		activeRuns:      make(map[string]context.CancelFunc),
	}
}

// Start begins a new run. The returned channel carries every event of the
// run and is closed after the terminal one; callers drain it or cancel ctx.
// The run outlives ctx's values but not its cancellation.
func (r *Runner) Start(ctx context.Context, seed string, cfg core.Config) (string, <-chan core.Event, error) {
	if !r.sem.TryAcquire(1) {
		return "", nil, ErrTooManyRuns
	}

	runID := core.NewID()
	initial := core.NewGraphState(seed, cfg)

	if _, err := r.store.Create(runID, initial); err != nil {
		r.sem.Release(1)
		return "", nil, fmt.Errorf("failed to create run: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)

	events, err := r.engine.Run(runCtx, runID, initial)
	if err != nil {
		cancel()
		r.sem.Release(1)
		_ = r.store.AppendEvent(runID, core.NewErrorEvent(runID, core.StageGenerate, err, initial))
		return "", nil, err
	}

	r.mu.Lock()
	r.activeRuns[runID] = cancel
	r.mu.Unlock()

	out := make(chan core.Event, r.eventBufferSize)

	r.wg.Add(1)
	go func() {
		defer func() {
			close(out)
			r.mu.Lock()
			delete(r.activeRuns, runID)
			r.mu.Unlock()
			cancel()
			r.sem.Release(1)
			r.wg.Done()
		}()

		delivering := true
		for ev := range events {
			if err := r.store.AppendEvent(runID, ev); err != nil {
				r.logger.Warn("failed to record event %s for run %s: %v", ev.Name(), runID, err)
			}
			if !delivering {
				continue
			}
			if !r.forward(runCtx, out, ev) {
				delivering = false
				r.logger.Warn("consumer of run %s stopped reading, recording the rest only", runID)
				continue
			}
			r.logger.Debug("runner delivered event event_id=%s run_id=%s", ev.ID, runID)
		}
	}()

	r.logger.Info("run %s started", runID)

	return runID, out, nil
}

// forward hands ev to the consumer. Once ctx is done the consumer has
// drainTimeout to take it.
func (r *Runner) forward(ctx context.Context, out chan<- core.Event, ev core.Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
	}

	timer := time.NewTimer(r.drainTimeout)
	defer timer.Stop()

	select {
	case out <- ev:
		return true
	case <-timer.C:
		return false
	}
}

// Cancel requests cooperative termination of an in-flight run.
func (r *Runner) Cancel(runID string) error {
	r.mu.RLock()
	cancel, exists := r.activeRuns[runID]
	r.mu.RUnlock()

	if !exists {
		return fmt.Errorf("%w: %s", core.ErrRunNotFound, runID)
	}

	cancel()
	r.logger.Info("run %s cancellation requested", runID)

	return nil
}

// Get returns a snapshot of a run, finished or not.
func (r *Runner) Get(runID string) (*core.RunRecord, error) {
	return r.store.Get(runID)
}

// List returns snapshots of every known run.
func (r *Runner) List() ([]*core.RunRecord, error) {
	return r.store.List()
}

// Active returns the number of in-flight runs.
func (r *Runner) Active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.activeRuns)
}

// Wait blocks until every started run has finished and its channel has
// been closed.
func (r *Runner) Wait() { r.wg.Wait() }
