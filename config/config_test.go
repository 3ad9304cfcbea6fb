package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zuzya/try.idea-validator/core"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "validator.yaml", `
run:
  max_iterations: 2
  enable_research: false
  parallelism: 3
models:
  provider: mock
  generator: tiny
storage:
  backend: memory
personas:
  seeds:
    - "Maria, 34, runs a bakery"
    - "Tom, 51, freelance accountant"
server:
  max_concurrent_runs: 4
log:
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Run.MaxIterations)
	assert.False(t, cfg.Run.EnableResearch)
	assert.True(t, cfg.Run.EnableCritique, "unset booleans keep their defaults")
	assert.Equal(t, 3, cfg.Run.Parallelism)
	assert.Equal(t, 3, cfg.Run.PersonaCount)
	assert.Equal(t, "tiny", cfg.Models.Generator)
	assert.Equal(t, "gpt-4o", cfg.Models.Critic)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Len(t, cfg.Personas.Seeds, 2)
	assert.Equal(t, 4, cfg.Server.MaxConcurrentRuns)
	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_HCL(t *testing.T) {
	path := writeFile(t, "validator.hcl", `
run {
  max_iterations  = 1
  enable_critique = false
  degraded_mode   = true
}

models {
  provider = "mock"
  timeout  = "5s"
}

storage {
  backend = "file"
  dir     = "out"
}

server {
  addr = ":9090"
}
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.Run.MaxIterations)
	assert.False(t, cfg.Run.EnableCritique)
	assert.True(t, cfg.Run.EnableResearch)
	assert.True(t, cfg.Run.DegradedMode)
	assert.Equal(t, "out", cfg.Storage.Dir)
	assert.Equal(t, ":9090", cfg.Server.Addr)

	d, err := cfg.Models.TimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, d)
}

func TestLoad_EmptyYAMLUsesDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	path := writeFile(t, "empty.yml", "")

	cfg, err := Load(path)
	require.NoError(t, err)

	want := Default()
	want.Models.APIKey = "sk-test"
	assert.Equal(t, want, cfg)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "validator.toml", "x = 1"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Load(writeFile(t, "bad.yaml", "run:\n  no_such_field: 1\n"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.hcl", "run {\n  max_iterations = \n"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "zero.yaml", "models:\n  provider: mock\nrun:\n  max_iterations: 0\n"))
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("ANTHROPIC_API_KEY", "sk-anthropic")
	t.Setenv("DATABASE_URL", "postgres://localhost/personas")

	cfg := Default()
	cfg.ApplyEnv()
	assert.Equal(t, "sk-openai", cfg.Models.APIKey)

	cfg = Default()
	cfg.Models.Provider = ProviderAnthropic
	cfg.Personas.Backend = BackendPgvector
	cfg.ApplyEnv()
	assert.Equal(t, "sk-anthropic", cfg.Models.APIKey)
	assert.Equal(t, "postgres://localhost/personas", cfg.Personas.DatabaseURL)

	cfg = Default()
	cfg.Models.APIKey = "from-file"
	cfg.ApplyEnv()
	assert.Equal(t, "from-file", cfg.Models.APIKey)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.Models.Provider = ProviderMock
		return cfg
	}

	require.NoError(t, valid().Validate())

	cases := map[string]func(c *Config){
		"missing api key": func(c *Config) {
			c.Models.Provider = ProviderOpenAI
		},
		"unknown provider": func(c *Config) {
			c.Models.Provider = "cohere"
		},
		"empty generator": func(c *Config) {
			c.Models.Generator = ""
		},
		"bad timeout": func(c *Config) {
			c.Models.Timeout = "soon"
		},
		"unknown storage": func(c *Config) {
			c.Storage.Backend = "s3"
		},
		"redis without addr": func(c *Config) {
			c.Storage.Backend = BackendRedis
		},
		"file without dir": func(c *Config) {
			c.Storage.Dir = ""
		},
		"pgvector without url": func(c *Config) {
			c.Personas.Backend = BackendPgvector
		},
		"pgvector without openai": func(c *Config) {
			c.Personas.Backend = BackendPgvector
			c.Personas.DatabaseURL = "postgres://x"
		},
		"unknown personas": func(c *Config) {
			c.Personas.Backend = "qdrant"
		},
		"zero runs": func(c *Config) {
			c.Server.MaxConcurrentRuns = 0
		},
		"bad log format": func(c *Config) {
			c.Log.Format = "xml"
		},
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}
