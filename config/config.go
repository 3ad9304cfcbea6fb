// Package config loads the application configuration file. YAML (.yaml,
// .yml) and HCL (.hcl) are supported; both describe the same sections:
//
//	run      { max_iterations = 3, enable_research = true, ... }
//	models   { provider = "openai", generator = "gpt-4o-mini", ... }
//	storage  { backend = "file", dir = "artifacts" }
//	personas { backend = "memory", seeds = ["..."] }
//	server   { addr = ":8000", max_concurrent_runs = 10 }
//	log      { level = "info", format = "text" }
//
// Every setting is optional. Missing values fall back to Default(); API keys
// and the persona database URL fall back to the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"gopkg.in/yaml.v3"

	"github.com/zuzya/try.idea-validator/core"
)

var (
	// ErrUnsupportedFormat is returned for files that are neither YAML nor HCL.
	ErrUnsupportedFormat = errors.New("unsupported config format")
	// ErrInvalid is wrapped by Validate failures.
	ErrInvalid = errors.New("invalid configuration")
)

// Providers understood by the models section.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderMock      = "mock"
)

// Storage and persona backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPgvector = "pgvector"
)

// Models selects the provider and the model per tier.
type Models struct {
	Provider  string `yaml:"provider" hcl:"provider,optional"`
	Generator string `yaml:"generator" hcl:"generator,optional"`
	Critic    string `yaml:"critic" hcl:"critic,optional"`
	Fast      string `yaml:"fast" hcl:"fast,optional"`
	Embedding string `yaml:"embedding" hcl:"embedding,optional"`
	APIKey    string `yaml:"api_key" hcl:"api_key,optional"`
	BaseURL   string `yaml:"base_url" hcl:"base_url,optional"`
	// Timeout bounds a single model call, as a Go duration string.
	Timeout string `yaml:"timeout" hcl:"timeout,optional"`
}

// TimeoutDuration parses Timeout. An empty value means no timeout.
func (m Models) TimeoutDuration() (time.Duration, error) {
	if m.Timeout == "" {
		return 0, nil
	}
	return time.ParseDuration(m.Timeout)
}

// Storage selects where markdown artifacts are written.
type Storage struct {
	Backend       string `yaml:"backend" hcl:"backend,optional"`
	Dir           string `yaml:"dir" hcl:"dir,optional"`
	RedisAddr     string `yaml:"redis_addr" hcl:"redis_addr,optional"`
	RedisPassword string `yaml:"redis_password" hcl:"redis_password,optional"`
	RedisDB       int    `yaml:"redis_db" hcl:"redis_db,optional"`
	RedisPrefix   string `yaml:"redis_prefix" hcl:"redis_prefix,optional"`
}

// Personas selects the persona index.
type Personas struct {
	Backend     string   `yaml:"backend" hcl:"backend,optional"`
	DatabaseURL string   `yaml:"database_url" hcl:"database_url,optional"`
	Table       string   `yaml:"table" hcl:"table,optional"`
	Seeds       []string `yaml:"seeds" hcl:"seeds,optional"`
}

// Server configures the HTTP front end.
type Server struct {
	Addr              string `yaml:"addr" hcl:"addr,optional"`
	MaxConcurrentRuns int    `yaml:"max_concurrent_runs" hcl:"max_concurrent_runs,optional"`
}

// Log configures the structured logger.
type Log struct {
	Level  string `yaml:"level" hcl:"level,optional"`
	Format string `yaml:"format" hcl:"format,optional"`
}

// Config is the resolved application configuration.
type Config struct {
	Run      core.Config
	Models   Models
	Storage  Storage
	Personas Personas
	Server   Server
	Log      Log
}

// runSection mirrors core.Config with optional fields so an absent value can
// be told apart from an explicit zero.
type runSection struct {
	MaxIterations      *int  `yaml:"max_iterations" hcl:"max_iterations,optional"`
	MaxInterviewCycles *int  `yaml:"max_interview_cycles" hcl:"max_interview_cycles,optional"`
	EnableResearch     *bool `yaml:"enable_research" hcl:"enable_research,optional"`
	EnableCritique     *bool `yaml:"enable_critique" hcl:"enable_critique,optional"`
	FastMode           *bool `yaml:"fast_mode" hcl:"fast_mode,optional"`
	Parallelism        *int  `yaml:"parallelism" hcl:"parallelism,optional"`
	DegradedMode       *bool `yaml:"degraded_mode" hcl:"degraded_mode,optional"`
	PersonaCount       *int  `yaml:"persona_count" hcl:"persona_count,optional"`
	InterviewTurns     *int  `yaml:"interview_turns" hcl:"interview_turns,optional"`
	StrictFanOut       *bool `yaml:"strict_fan_out" hcl:"strict_fan_out,optional"`
	ExtractAttempts    *int  `yaml:"extract_attempts" hcl:"extract_attempts,optional"`
}

// file is the on-disk shape shared by both formats.
type file struct {
	Run      *runSection `yaml:"run" hcl:"run,block"`
	Models   *Models     `yaml:"models" hcl:"models,block"`
	Storage  *Storage    `yaml:"storage" hcl:"storage,block"`
	Personas *Personas   `yaml:"personas" hcl:"personas,block"`
	Server   *Server     `yaml:"server" hcl:"server,block"`
	Log      *Log        `yaml:"log" hcl:"log,block"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Run: core.DefaultConfig(),
		Models: Models{
			Provider:  ProviderOpenAI,
			Generator: "gpt-4o-mini",
			Critic:    "gpt-4o",
			Embedding: "text-embedding-3-small",
			Timeout:   "60s",
		},
		Storage: Storage{
			Backend:     BackendFile,
			Dir:         "artifacts",
			RedisPrefix: "artifacts",
		},
		Personas: Personas{
			Backend: BackendMemory,
			Table:   "personas",
		},
		Server: Server{
			Addr:              ":8000",
			MaxConcurrentRuns: 10,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads, resolves and validates the configuration at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg, err := Parse(data, path)
	if err != nil {
		return Config{}, err
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes data on top of Default(). filename picks the format by
// extension and labels diagnostics. Environment fallbacks are not applied.
func Parse(data []byte, filename string) (Config, error) {
	var f file
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("failed to decode YAML config %s: %w", filename, err)
		}
	case ".hcl":
		parser := hclparse.NewParser()
		hclFile, diags := parser.ParseHCL(data, filename)
		if diags.HasErrors() {
			return Config{}, fmt.Errorf("failed to parse HCL config %s: %w", filename, diags)
		}
		diags = gohcl.DecodeBody(hclFile.Body, nil, &f)
		if diags.HasErrors() {
			return Config{}, fmt.Errorf("failed to decode HCL config %s: %w", filename, diags)
		}
	default:
		return Config{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
	}

	cfg := Default()
	f.merge(&cfg)
	return cfg, nil
}

func (f file) merge(cfg *Config) {
	if f.Run != nil {
		f.Run.merge(&cfg.Run)
	}
	if f.Models != nil {
		mergeStrings(&cfg.Models.Provider, f.Models.Provider)
		mergeStrings(&cfg.Models.Generator, f.Models.Generator)
		mergeStrings(&cfg.Models.Critic, f.Models.Critic)
		mergeStrings(&cfg.Models.Fast, f.Models.Fast)
		mergeStrings(&cfg.Models.Embedding, f.Models.Embedding)
		mergeStrings(&cfg.Models.APIKey, f.Models.APIKey)
		mergeStrings(&cfg.Models.BaseURL, f.Models.BaseURL)
		mergeStrings(&cfg.Models.Timeout, f.Models.Timeout)
	}
	if f.Storage != nil {
		mergeStrings(&cfg.Storage.Backend, f.Storage.Backend)
		mergeStrings(&cfg.Storage.Dir, f.Storage.Dir)
		mergeStrings(&cfg.Storage.RedisAddr, f.Storage.RedisAddr)
		mergeStrings(&cfg.Storage.RedisPassword, f.Storage.RedisPassword)
		mergeStrings(&cfg.Storage.RedisPrefix, f.Storage.RedisPrefix)
		cfg.Storage.RedisDB = f.Storage.RedisDB
	}
	if f.Personas != nil {
		mergeStrings(&cfg.Personas.Backend, f.Personas.Backend)
		mergeStrings(&cfg.Personas.DatabaseURL, f.Personas.DatabaseURL)
		mergeStrings(&cfg.Personas.Table, f.Personas.Table)
		if f.Personas.Seeds != nil {
			cfg.Personas.Seeds = f.Personas.Seeds
		}
	}
	if f.Server != nil {
		mergeStrings(&cfg.Server.Addr, f.Server.Addr)
		if f.Server.MaxConcurrentRuns != 0 {
			cfg.Server.MaxConcurrentRuns = f.Server.MaxConcurrentRuns
		}
	}
	if f.Log != nil {
		mergeStrings(&cfg.Log.Level, f.Log.Level)
		mergeStrings(&cfg.Log.Format, f.Log.Format)
	}
}

func (r runSection) merge(c *core.Config) {
	mergeInt(&c.MaxIterations, r.MaxIterations)
	mergeInt(&c.MaxInterviewCycles, r.MaxInterviewCycles)
	mergeBool(&c.EnableResearch, r.EnableResearch)
	mergeBool(&c.EnableCritique, r.EnableCritique)
	mergeBool(&c.FastMode, r.FastMode)
	mergeInt(&c.Parallelism, r.Parallelism)
	mergeBool(&c.DegradedMode, r.DegradedMode)
	mergeInt(&c.PersonaCount, r.PersonaCount)
	mergeInt(&c.InterviewTurns, r.InterviewTurns)
	mergeBool(&c.StrictFanOut, r.StrictFanOut)
	mergeInt(&c.ExtractAttempts, r.ExtractAttempts)
}

func mergeStrings(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func mergeInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func mergeBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// ApplyEnv fills secrets that were left out of the file from the
// environment: OPENAI_API_KEY or ANTHROPIC_API_KEY depending on the provider,
// and DATABASE_URL for the pgvector persona index.
func (c *Config) ApplyEnv() {
	if c.Models.APIKey == "" {
		switch c.Models.Provider {
		case ProviderOpenAI:
			c.Models.APIKey = os.Getenv("OPENAI_API_KEY")
		case ProviderAnthropic:
			c.Models.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
	if c.Personas.Backend == BackendPgvector && c.Personas.DatabaseURL == "" {
		c.Personas.DatabaseURL = os.Getenv("DATABASE_URL")
	}
}

// Validate rejects configurations that cannot be wired.
func (c Config) Validate() error {
	if err := c.Run.Validate(); err != nil {
		return err
	}

	switch c.Models.Provider {
	case ProviderOpenAI, ProviderAnthropic:
		if c.Models.APIKey == "" {
			return fmt.Errorf("%w: models.api_key is required for provider %q", ErrInvalid, c.Models.Provider)
		}
	case ProviderMock:
	default:
		return fmt.Errorf("%w: unknown models.provider %q", ErrInvalid, c.Models.Provider)
	}
	if c.Models.Generator == "" {
		return fmt.Errorf("%w: models.generator is required", ErrInvalid)
	}
	if _, err := c.Models.TimeoutDuration(); err != nil {
		return fmt.Errorf("%w: models.timeout: %v", ErrInvalid, err)
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendFile:
		if c.Storage.Dir == "" {
			return fmt.Errorf("%w: storage.dir is required for the file backend", ErrInvalid)
		}
	case BackendRedis:
		if c.Storage.RedisAddr == "" {
			return fmt.Errorf("%w: storage.redis_addr is required for the redis backend", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown storage.backend %q", ErrInvalid, c.Storage.Backend)
	}

	switch c.Personas.Backend {
	case BackendMemory:
	case BackendPgvector:
		if c.Personas.DatabaseURL == "" {
			return fmt.Errorf("%w: personas.database_url is required for the pgvector backend", ErrInvalid)
		}
		if c.Models.Provider != ProviderOpenAI {
			return fmt.Errorf("%w: the pgvector backend needs the openai provider for embeddings", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown personas.backend %q", ErrInvalid, c.Personas.Backend)
	}

	if c.Server.MaxConcurrentRuns < 1 {
		return fmt.Errorf("%w: server.max_concurrent_runs must be > 0", ErrInvalid)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log.format must be text or json, got %q", ErrInvalid, c.Log.Format)
	}

	return nil
}
