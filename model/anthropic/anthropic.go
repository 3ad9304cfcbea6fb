// Package anthropic adapts the Anthropic Messages API to model.Model.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/zuzya/try.idea-validator/model"
)

const stopRefusal = "refusal"

// Options configures the Anthropic model adapter.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	// APIKey overrides ANTHROPIC_API_KEY when set.
	APIKey  string
	BaseURL string
}

// Model calls one Claude model through the non-streaming endpoint.
// Request.Stream is ignored.
type Model struct {
	client *anthropic.Client
	opts   Options
}

// NewModel builds a client from opts.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := options(optFns)

	var ro []option.RequestOption
	if opts.APIKey != "" {
		ro = append(ro, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		ro = append(ro, option.WithBaseURL(opts.BaseURL))
	}
	client := anthropic.NewClient(ro...)
	return &Model{client: &client, opts: opts}
}

// NewModelFromClient shares an existing client.
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	return &Model{client: client, opts: options(optFns)}
}

func options(optFns []func(o *Options)) Options {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return opts
}

// Generate implements model.Model.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	params := anthropic.MessageNewParams{
		Model:       m.opts.Model,
		Messages:    buildMessages(req.Messages),
		MaxTokens:   m.opts.MaxTokens,
		Temperature: anthropic.Float(m.opts.Temperature),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	return model.Single(ctx, func(ctx context.Context) (model.Response, error) {
		msg, err := m.client.Messages.New(ctx, params)
		if err != nil {
			return model.Response{}, fmt.Errorf("anthropic messages: %w", err)
		}
		if string(msg.StopReason) == stopRefusal {
			return model.Response{}, fmt.Errorf("%w: stop reason %s", model.ErrRefused, msg.StopReason)
		}

		var text strings.Builder
		for _, block := range msg.Content {
			if block.Type == "text" {
				text.WriteString(block.Text)
			}
		}
		return model.Response{
			ID:           msg.ID,
			Text:         text.String(),
			FinishReason: string(msg.StopReason),
			Usage: &model.TokenUsage{
				PromptTokens:     int(msg.Usage.InputTokens),
				CompletionTokens: int(msg.Usage.OutputTokens),
				TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
			},
		}, nil
	})
}

// buildMessages drops empty turns, which the API rejects.
func buildMessages(msgs []model.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Text == "" {
			continue
		}
		block := anthropic.NewTextBlock(msg.Text)
		if msg.Role == model.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}

// Info implements model.Model.
func (m *Model) Info() model.Info {
	return model.Info{Name: string(m.opts.Model), Provider: "anthropic"}
}
