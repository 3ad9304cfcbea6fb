package model

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/zuzya/try.idea-validator/core"
	"github.com/zuzya/try.idea-validator/logging"
)

// ErrEmptyCompletion is the cause of a refusal ModelError.
var ErrEmptyCompletion = errors.New("empty completion")

// GatewayOptions configures a Gateway.
type GatewayOptions struct {
	// Timeout bounds a single Invoke. Zero relies on the caller's context.
	Timeout time.Duration
	// Stream requests incremental chunks from the provider. The gateway
	// still returns the assembled text.
	Stream bool
	// Logger records one entry per model call.
	Logger logging.Logger
}

// Gateway adapts a Model to core.ModelGateway: one system prompt plus one
// user message in, the final completion text out. Failures come back as
// *core.ModelError.
type Gateway struct {
	model Model
	opts  GatewayOptions
}

// NewGateway wraps m.
func NewGateway(m Model, optFns ...func(o *GatewayOptions)) *Gateway {
	opts := GatewayOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Gateway{model: m, opts: opts}
}

// Info returns the wrapped model's metadata.
func (g *Gateway) Info() Info { return g.model.Info() }

// Invoke implements core.ModelGateway.
func (g *Gateway) Invoke(ctx context.Context, prompt core.Prompt) (string, error) {
	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := g.generate(ctx, prompt)
	g.logCall(time.Since(start), err)
	if err != nil {
		return "", g.classify(ctx, err)
	}
	return text, nil
}

func (g *Gateway) generate(ctx context.Context, prompt core.Prompt) (string, error) {
	req := Request{
		System:   prompt.System,
		Messages: []Message{{Role: RoleUser, Text: prompt.User}},
		Stream:   g.opts.Stream,
	}

	respCh, errCh := g.model.Generate(ctx, req)

	var (
		partial strings.Builder
		final   string
		done    bool
	)
	for resp := range respCh {
		if resp.Partial {
			partial.WriteString(resp.Text)
			continue
		}
		final, done = resp.Text, true
	}
	if err := <-errCh; err != nil {
		return "", err
	}
	if !done {
		final = partial.String()
	}
	if strings.TrimSpace(final) == "" {
		return "", ErrEmptyCompletion
	}
	return final, nil
}

func (g *Gateway) classify(ctx context.Context, err error) error {
	var me *core.ModelError
	if errors.As(err, &me) {
		return err
	}
	kind := core.ModelErrorTransport
	switch {
	case errors.Is(err, ErrEmptyCompletion), errors.Is(err, ErrRefused):
		kind = core.ModelErrorRefusal
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		kind = core.ModelErrorTimeout
	}
	return &core.ModelError{Kind: kind, Provider: g.model.Info().Provider, Cause: err}
}

func (g *Gateway) logCall(dur time.Duration, err error) {
	info := g.model.Info()
	if rl, ok := g.opts.Logger.(*logging.RunLogger); ok {
		rl.LogModelCall(info.Provider, info.Name, dur, err == nil, err)
		return
	}
	if err != nil {
		g.opts.Logger.Warn("model call %s/%s failed after %s: %v", info.Provider, info.Name, dur, err)
		return
	}
	g.opts.Logger.Debug("model call %s/%s completed in %s", info.Provider, info.Name, dur)
}
