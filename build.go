package validator

import (
	"context"
	"fmt"
	"os"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	oai "github.com/openai/openai-go"

	"github.com/zuzya/try.idea-validator/artifact"
	redisstore "github.com/zuzya/try.idea-validator/artifact/redis"
	"github.com/zuzya/try.idea-validator/config"
	"github.com/zuzya/try.idea-validator/core"
	"github.com/zuzya/try.idea-validator/logging"
	"github.com/zuzya/try.idea-validator/model"
	"github.com/zuzya/try.idea-validator/model/anthropic"
	"github.com/zuzya/try.idea-validator/model/openai"
	"github.com/zuzya/try.idea-validator/persona"
	"github.com/zuzya/try.idea-validator/persona/pgvector"
)

// embeddingDim matches text-embedding-3-small.
const embeddingDim = 1536

// NewLogger builds the application logger described by cfg.
func NewLogger(cfg config.Log) *logging.RunLogger {
	l := logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.ParseLevel(cfg.Level),
		Format: cfg.Format,
		Output: os.Stderr,
	})
	return l.WithComponent("validator")
}

// FromConfig wires a Validator from an application config: model gateways
// for the configured provider, the artifact store and the persona index.
// Extra option functions run last. The returned close function releases
// connections opened for Redis and Postgres; it is never nil.
func FromConfig(ctx context.Context, cfg config.Config, optFns ...func(o *Options)) (*Validator, func(), error) {
	logger := NewLogger(cfg.Log)

	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Validator, func(), error) {
		closeAll()
		return nil, func() {}, err
	}

	gateways, err := Gateways(cfg.Models, logger)
	if err != nil {
		return fail(err)
	}

	var store core.ArtifactStore
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		store = artifact.NewInMemoryStore()
	case config.BackendFile:
		store = artifact.NewFileStore(cfg.Storage.Dir)
	case config.BackendRedis:
		rs, client, err := redisstore.Connect(ctx, cfg.Storage.RedisAddr, cfg.Storage.RedisPassword, cfg.Storage.RedisDB,
			func(o *redisstore.Options) { o.Prefix = cfg.Storage.RedisPrefix })
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { _ = client.Close() })
		store = rs
	default:
		return fail(fmt.Errorf("%w: unknown storage backend %q", config.ErrInvalid, cfg.Storage.Backend))
	}

	var index core.PersonaIndex
	switch cfg.Personas.Backend {
	case config.BackendMemory:
		index = persona.NewInMemoryIndex(cfg.Personas.Seeds...)
	case config.BackendPgvector:
		idx, err := connectPgvector(ctx, cfg, logger)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, idx.Close)
		if len(cfg.Personas.Seeds) > 0 {
			if _, err := seedIndex(ctx, idx, cfg.Personas.Seeds); err != nil {
				return fail(err)
			}
		}
		index = idx
	default:
		return fail(fmt.Errorf("%w: unknown personas backend %q", config.ErrInvalid, cfg.Personas.Backend))
	}

	v := New(append([]func(o *Options){func(o *Options) {
		o.Gateways = gateways
		o.ArtifactStore = store
		o.PersonaIndex = index
		o.MaxConcurrentRuns = int64(cfg.Server.MaxConcurrentRuns)
		o.Logger = logger
	}}, optFns...)...)

	return v, closeAll, nil
}

func connectPgvector(ctx context.Context, cfg config.Config, logger logging.Logger) (*pgvector.Index, error) {
	embedder := openai.NewEmbedder(func(o *openai.EmbedderOptions) {
		o.Model = oai.EmbeddingModel(cfg.Models.Embedding)
		o.APIKey = cfg.Models.APIKey
		o.BaseURL = cfg.Models.BaseURL
	})
	return pgvector.Connect(ctx, cfg.Personas.DatabaseURL, embedder, func(o *pgvector.Options) {
		o.Table = cfg.Personas.Table
		o.Logger = logger
	})
}

// seedIndex creates the schema if needed and adds texts, returning how many
// were stored before any error.
func seedIndex(ctx context.Context, idx *pgvector.Index, texts []string) (int, error) {
	if err := idx.EnsureSchema(ctx, embeddingDim); err != nil {
		return 0, err
	}
	for i, text := range texts {
		if err := idx.Add(ctx, text); err != nil {
			return i, fmt.Errorf("add persona %d: %w", i, err)
		}
	}
	return len(texts), nil
}

// IndexPersonas embeds texts into the pgvector persona index named by cfg,
// creating its table first. It returns the number of texts stored. Only the
// pgvector backend persists an index, so other backends are rejected.
func IndexPersonas(ctx context.Context, cfg config.Config, texts []string) (int, error) {
	if cfg.Personas.Backend != config.BackendPgvector {
		return 0, fmt.Errorf("%w: indexing needs personas.backend %q, got %q",
			config.ErrInvalid, config.BackendPgvector, cfg.Personas.Backend)
	}

	logger := NewLogger(cfg.Log)
	idx, err := connectPgvector(ctx, cfg, logger)
	if err != nil {
		return 0, err
	}
	defer idx.Close()

	n, err := seedIndex(ctx, idx, texts)
	if err != nil {
		return n, err
	}
	logger.Info("indexed %d persona(s) into %s", n, cfg.Personas.Table)
	return n, nil
}

// Gateways builds the generator, critic and (optional) fast tiers for the
// configured provider.
func Gateways(cfg config.Models, logger logging.Logger) (core.Gateways, error) {
	timeout, err := cfg.TimeoutDuration()
	if err != nil {
		return core.Gateways{}, fmt.Errorf("%w: models.timeout: %v", config.ErrInvalid, err)
	}

	build := func(name string) (core.ModelGateway, error) {
		var m model.Model
		switch cfg.Provider {
		case config.ProviderOpenAI:
			m = openai.NewModel(func(o *openai.Options) {
				o.Model = oai.ChatModel(name)
				o.APIKey = cfg.APIKey
				o.BaseURL = cfg.BaseURL
			})
		case config.ProviderAnthropic:
			m = anthropic.NewModel(func(o *anthropic.Options) {
				o.Model = anthropicsdk.Model(name)
				o.APIKey = cfg.APIKey
				o.BaseURL = cfg.BaseURL
			})
		case config.ProviderMock:
			m = model.NewMockModel(name, config.ProviderMock)
		default:
			return nil, fmt.Errorf("%w: unknown provider %q", config.ErrInvalid, cfg.Provider)
		}
		return model.NewGateway(m, func(o *model.GatewayOptions) {
			o.Timeout = timeout
			o.Logger = logger
		}), nil
	}

	var g core.Gateways
	if g.Generator, err = build(cfg.Generator); err != nil {
		return core.Gateways{}, err
	}
	if cfg.Critic != "" {
		if g.Critic, err = build(cfg.Critic); err != nil {
			return core.Gateways{}, err
		}
	}
	if cfg.Fast != "" {
		if g.Fast, err = build(cfg.Fast); err != nil {
			return core.Gateways{}, err
		}
	}
	return g, nil
}
