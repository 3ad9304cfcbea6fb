package stage

import (
	"context"
	"errors"
	"time"

	"github.com/zuzya/try.idea-validator/core"
	"github.com/zuzya/try.idea-validator/extract"
	"github.com/zuzya/try.idea-validator/logging"
)

var (
	// ErrNoGateway is returned when a stage has no model gateway for the
	// current configuration.
	ErrNoGateway = errors.New("no model gateway configured")
	// ErrNoArtifact is returned by stages that need an idea before Generate
	// has produced one.
	ErrNoArtifact = errors.New("no artifact in state")
)

// Options configures a stage.
//
// Use functional options with the New* constructors to override defaults.
type Options struct {
	// Gateways are the model tiers; each stage picks via ForGeneration or
	// ForCritique.
	Gateways core.Gateways
	// Store receives the markdown artifacts. Nil disables persistence.
	Store core.ArtifactStore
	// Index is the persona corpus searched by Recruit. Nil behaves like an
	// index that returns nothing.
	Index core.PersonaIndex
	// Logger is scoped per run and stage on every call.
	Logger logging.Logger
	// Instruction overrides the stage's system prompt.
	Instruction Instruction
	// Backoff and Jitter tune the retry delay between extraction attempts.
	Backoff time.Duration
	Jitter  bool
}

// WithGateways sets every model tier.
func WithGateways(g core.Gateways) func(o *Options) {
	return func(o *Options) { o.Gateways = g }
}

// WithStore sets the artifact store.
func WithStore(s core.ArtifactStore) func(o *Options) {
	return func(o *Options) { o.Store = s }
}

// WithIndex sets the persona index.
func WithIndex(idx core.PersonaIndex) func(o *Options) {
	return func(o *Options) { o.Index = idx }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}

// base bundles what every stage shares: identity, collaborators, logging
// and artifact persistence.
type base struct {
	id   core.StageID
	opts Options
}

func newBase(id core.StageID, system string, optFns []func(o *Options)) base {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Instruction.IsZero() {
		opts.Instruction = NewInstructionFromText(system)
	}
	return base{id: id, opts: opts}
}

// ID implements core.Stage.
func (b *base) ID() core.StageID { return b.id }

func (b *base) logger(ctx context.Context) logging.Logger {
	return logging.ForStage(logging.ForRun(b.opts.Logger, core.RunIDFromContext(ctx)), b.id.String())
}

func (b *base) system(s core.GraphState) (string, error) {
	return b.opts.Instruction.Resolve(s)
}

func (b *base) generator(cfg core.Config) (core.ModelGateway, error) {
	gw := b.opts.Gateways.ForGeneration(cfg)
	if gw == nil {
		return nil, ErrNoGateway
	}
	return gw, nil
}

func (b *base) critic(cfg core.Config) (core.ModelGateway, error) {
	gw := b.opts.Gateways.ForCritique(cfg)
	if gw == nil {
		return nil, ErrNoGateway
	}
	return gw, nil
}

// save persists an artifact. Failures are logged and never halt the run.
func (b *base) save(ctx context.Context, filename, content string) {
	if b.opts.Store == nil {
		return
	}
	runID := core.RunIDFromContext(ctx)
	if err := b.opts.Store.Save(ctx, runID, filename, content); err != nil {
		perr := &core.PersistenceError{RunID: runID, Filename: filename, Cause: err}
		b.logger(ctx).Warn("artifact not saved: %v", perr)
		return
	}
	b.logger(ctx).Debug("saved artifact %s", filename)
}

// retrier builds the shared retry policy for one structured call.
func retrier[T any](ctx context.Context, b *base, cfg core.Config, fallback func(error) T) *extract.Retrier[T] {
	return extract.NewRetrier(fallback, func(o *extract.RetryOptions) {
		o.MaxAttempts = cfg.ExtractAttempts
		o.Backoff = b.opts.Backoff
		o.Jitter = b.opts.Jitter
		o.Name = b.id.String()
		o.Logger = b.logger(ctx)
	})
}
