// Package openai adapts the OpenAI Chat Completions API to model.Model and
// the Embeddings API to the pgvector persona index.
package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/zuzya/try.idea-validator/model"
)

const finishContentFilter = "content_filter"

// Options configure the OpenAI model adapter.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	// APIKey overrides OPENAI_API_KEY when set.
	APIKey string
	// BaseURL points the client at an OpenAI compatible endpoint.
	BaseURL string
}

// Model calls one chat model. A refusal or a content filter stop is reported
// as model.ErrRefused.
type Model struct {
	client *openai.Client
	opts   Options
}

// NewModel builds a client from opts. The SDK falls back to OPENAI_API_KEY
// and OPENAI_BASE_URL for anything left empty.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := options(optFns)
	client := openai.NewClient(clientOptions(opts.APIKey, opts.BaseURL)...)
	return &Model{client: &client, opts: opts}
}

// NewModelFromClient shares an existing client.
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	return &Model{client: client, opts: options(optFns)}
}

func options(optFns []func(o *Options)) Options {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return opts
}

func clientOptions(apiKey, baseURL string) []option.RequestOption {
	var ro []option.RequestOption
	if apiKey != "" {
		ro = append(ro, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		ro = append(ro, option.WithBaseURL(baseURL))
	}
	return ro
}

// Generate implements model.Model.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	params := openai.ChatCompletionNewParams{
		Messages:            buildMessages(req),
		Model:               m.opts.Model,
		Temperature:         openai.Float(m.opts.Temperature),
		MaxCompletionTokens: openai.Int(m.opts.MaxCompletionTokens),
	}
	if req.Stream {
		return m.stream(ctx, params)
	}
	return model.Single(ctx, func(ctx context.Context) (model.Response, error) {
		return m.complete(ctx, params)
	})
}

func buildMessages(req model.Request) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, openai.SystemMessage(req.System))
	}
	for _, msg := range req.Messages {
		if msg.Role == model.RoleAssistant {
			msgs = append(msgs, openai.AssistantMessage(msg.Text))
			continue
		}
		msgs = append(msgs, openai.UserMessage(msg.Text))
	}
	return msgs
}

func (m *Model) complete(ctx context.Context, params openai.ChatCompletionNewParams) (model.Response, error) {
	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return model.Response{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return model.Response{}, fmt.Errorf("openai chat completion %s: no choices", resp.ID)
	}

	choice := resp.Choices[0]
	if err := refusal(choice.Message.Refusal, choice.FinishReason); err != nil {
		return model.Response{}, err
	}
	return model.Response{
		ID:           resp.ID,
		Text:         choice.Message.Content,
		FinishReason: choice.FinishReason,
		Usage: &model.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

func (m *Model) stream(ctx context.Context, params openai.ChatCompletionNewParams) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		s := m.client.Chat.Completions.NewStreaming(ctx, params)
		defer s.Close()

		var text, refused strings.Builder
		for s.Next() {
			chunk := s.Current()
			for _, choice := range chunk.Choices {
				refused.WriteString(choice.Delta.Refusal)
				if choice.Delta.Content != "" {
					text.WriteString(choice.Delta.Content)
					out <- model.Response{ID: chunk.ID, Partial: true, Text: choice.Delta.Content}
				}
				if choice.FinishReason == "" {
					continue
				}
				if err := refusal(refused.String(), choice.FinishReason); err != nil {
					errCh <- err
					return
				}
				out <- model.Response{ID: chunk.ID, Text: text.String(), FinishReason: choice.FinishReason}
			}
		}
		if err := s.Err(); err != nil {
			errCh <- fmt.Errorf("openai chat stream: %w", err)
		}
	}()

	return out, errCh
}

func refusal(message, finishReason string) error {
	switch {
	case message != "":
		return fmt.Errorf("%w: %s", model.ErrRefused, message)
	case finishReason == finishContentFilter:
		return fmt.Errorf("%w: content filter", model.ErrRefused)
	}
	return nil
}

// Info implements model.Model.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.opts.Model, Provider: "openai"}
}
