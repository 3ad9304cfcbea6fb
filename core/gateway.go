package core

import "context"

// Prompt is a single model request: an optional system instruction plus the
// user message.
type Prompt struct {
	System string
	User   string
}

// ModelGateway is the boundary to a text generation model. Implementations
// return the raw completion text and wrap failures in *ModelError.
type ModelGateway interface {
	Invoke(ctx context.Context, prompt Prompt) (string, error)
}

// GatewayFunc adapts a function to ModelGateway.
type GatewayFunc func(ctx context.Context, prompt Prompt) (string, error)

// Invoke implements ModelGateway.
func (f GatewayFunc) Invoke(ctx context.Context, prompt Prompt) (string, error) {
	return f(ctx, prompt)
}

// Gateways groups the model tiers a run may use. Fast is optional; when set
// and Config.FastMode is on it replaces the other two.
type Gateways struct {
	Generator ModelGateway
	Critic    ModelGateway
	Fast      ModelGateway
}

// ForGeneration picks the gateway for generative stages.
func (g Gateways) ForGeneration(cfg Config) ModelGateway {
	if cfg.FastMode && g.Fast != nil {
		return g.Fast
	}
	return g.Generator
}

// ForCritique picks the gateway for evaluative stages. It falls back to the
// generator when no critic is configured.
func (g Gateways) ForCritique(cfg Config) ModelGateway {
	if cfg.FastMode && g.Fast != nil {
		return g.Fast
	}
	if g.Critic != nil {
		return g.Critic
	}
	return g.Generator
}
