package extract

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/zuzya/try.idea-validator/core"
	"github.com/zuzya/try.idea-validator/logging"
)

// DefaultMaxAttempts is the retry budget used when none is configured.
const DefaultMaxAttempts = 3

// InvokeStructured asks gw for a completion and extracts a T from it.
// Gateway failures that are not already *core.ModelError are wrapped as
// transport errors.
func InvokeStructured[T any](ctx context.Context, gw core.ModelGateway, prompt core.Prompt) (T, error) {
	var zero T

	text, err := gw.Invoke(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if !core.IsRecoverable(err) {
			err = &core.ModelError{Kind: core.ModelErrorTransport, Cause: err}
		}
		return zero, err
	}

	return Extract[T](text)
}

// RetryOptions tunes a Retrier.
type RetryOptions struct {
	// MaxAttempts bounds the number of calls; values below one mean
	// DefaultMaxAttempts.
	MaxAttempts int
	// Backoff is the delay before the second attempt; it doubles afterwards.
	// Zero retries immediately.
	Backoff time.Duration
	// Jitter randomises each delay within [delay/2, delay).
	Jitter bool
	// Name labels log lines.
	Name string
	// Logger receives one warning per failed attempt.
	Logger logging.Logger
}

// Outcome describes how a Retrier call concluded.
type Outcome struct {
	Attempts int
	Degraded bool
	LastErr  error
}

// Retrier is the shared retry-then-fallback policy for structured model
// calls. Recoverable failures (extraction, model) are retried up to
// MaxAttempts; after that the fallback constructor supplies a deterministic
// value flagged as degraded. Without a fallback the last error is returned.
//
// Context cancellation is checked before every attempt and ends the loop
// immediately with the context error.
type Retrier[T any] struct {
	opts     RetryOptions
	fallback func(lastErr error) T
}

// NewRetrier builds a Retrier. fallback may be nil.
func NewRetrier[T any](fallback func(lastErr error) T, optFns ...func(o *RetryOptions)) *Retrier[T] {
	opts := RetryOptions{
		MaxAttempts: DefaultMaxAttempts,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Retrier[T]{opts: opts, fallback: fallback}
}

// MaxAttempts returns the configured attempt budget.
func (r *Retrier[T]) MaxAttempts() int { return r.opts.MaxAttempts }

// Do runs attempt until it succeeds, fails unrecoverably, the context ends or
// the budget is spent.
func (r *Retrier[T]) Do(ctx context.Context, attempt func(ctx context.Context) (T, error)) (T, Outcome, error) {
	var zero T
	var out Outcome

	for i := 1; i <= r.opts.MaxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return zero, out, err
		}
		if i > 1 {
			if err := r.wait(ctx, i-1); err != nil {
				return zero, out, err
			}
		}

		out.Attempts = i
		v, err := attempt(ctx)
		if err == nil {
			out.LastErr = nil
			return v, out, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, out, ctxErr
		}

		out.LastErr = err
		if !core.IsRecoverable(err) {
			return zero, out, err
		}
		r.opts.Logger.Warn("%s attempt %d/%d failed: %v", r.label(), i, r.opts.MaxAttempts, err)
	}

	if r.fallback == nil {
		return zero, out, out.LastErr
	}

	out.Degraded = true
	r.opts.Logger.Warn("%s exhausted %d attempts, using fallback", r.label(), r.opts.MaxAttempts)
	return r.fallback(out.LastErr), out, nil
}

// Invoke is the retrying structured extractor: InvokeStructured under the
// retry policy.
func (r *Retrier[T]) Invoke(ctx context.Context, gw core.ModelGateway, prompt core.Prompt) (T, Outcome, error) {
	return r.Do(ctx, func(ctx context.Context) (T, error) {
		return InvokeStructured[T](ctx, gw, prompt)
	})
}

func (r *Retrier[T]) wait(ctx context.Context, retry int) error {
	if r.opts.Backoff <= 0 {
		return nil
	}
	delay := r.opts.Backoff << (retry - 1)
	if r.opts.Jitter {
		half := delay / 2
		delay = half + time.Duration(rand.Int64N(int64(half)+1))
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (r *Retrier[T]) label() string {
	if r.opts.Name != "" {
		return r.opts.Name
	}
	return "extraction"
}
