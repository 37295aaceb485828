package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(""))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, int64(DefaultMaxUploadBytes), cfg.Server.MaxUploadBytes)
	assert.True(t, cfg.RateLimiting.IsEnabled())
	assert.Equal(t, 5, cfg.RateLimiting.Limit)
	assert.Equal(t, time.Hour, cfg.RateLimiting.Window)
	assert.Equal(t, IdentityAddress, cfg.RateLimiting.Identity.Strategy)
	assert.Equal(t, "X-Forwarded-For", cfg.RateLimiting.Identity.Header)
	assert.Equal(t, BackendMemory, cfg.RateLimiting.Backend)
	assert.Equal(t, DefaultGeneratorProvider, cfg.Generator.Provider)
	assert.Equal(t, DefaultGeminiModel, cfg.Generator.Model)
}

func TestParse_YAML(t *testing.T) {
	data := `
server:
  port: 9090
rate_limiting:
  limit: 2
  window: 10m
  identity:
    strategy: cookie
  cookie:
    max_age: 48h
generator:
  model: gemini-2.0-flash
  temperature: 0.4
`
	cfg, err := Parse([]byte(data))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 2, cfg.RateLimiting.Limit)
	assert.Equal(t, 10*time.Minute, cfg.RateLimiting.Window)
	assert.Equal(t, IdentityCookie, cfg.RateLimiting.Identity.Strategy)
	assert.Equal(t, 48*time.Hour, cfg.RateLimiting.Cookie.MaxAge)
	assert.Equal(t, "gemini-2.0-flash", cfg.Generator.Model)
	require.NotNil(t, cfg.Generator.Temperature)
	assert.InDelta(t, 0.4, *cfg.Generator.Temperature, 1e-9)
}

func TestParse_JSON(t *testing.T) {
	cfg, err := Parse([]byte(`{"rate_limiting": {"limit": 7}}`))
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.RateLimiting.Limit)
}

func TestParse_EnvExpansion(t *testing.T) {
	t.Setenv("JOBSUM_TEST_KEY", "secret")
	t.Setenv("JOBSUM_TEST_PORT", "7070")

	data := `
server:
  port: ${JOBSUM_TEST_PORT}
generator:
  api_key: $JOBSUM_TEST_KEY
  model: ${JOBSUM_TEST_MISSING:-gemini-fallback}
`
	cfg, err := Parse([]byte(data))
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "secret", cfg.Generator.APIKey)
	assert.Equal(t, "gemini-fallback", cfg.Generator.Model)
}

func TestParse_RequiredEnv(t *testing.T) {
	t.Setenv("JOBSUM_TEST_KEY", "")
	t.Setenv("JOBSUM_TEST_REDIS", "")

	data := `
generator:
  api_key: ${JOBSUM_TEST_KEY:?set the Gemini API key}
rate_limiting:
  redis:
    addr: ${JOBSUM_TEST_REDIS:?}
`
	_, err := Parse([]byte(data))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JOBSUM_TEST_KEY (set the Gemini API key), JOBSUM_TEST_REDIS")

	t.Setenv("JOBSUM_TEST_KEY", "secret")
	t.Setenv("JOBSUM_TEST_REDIS", "localhost:6379")
	cfg, err := Parse([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.Generator.APIKey)
	assert.Equal(t, "localhost:6379", cfg.RateLimiting.Redis.Addr)
}

func TestRestartRequired(t *testing.T) {
	prev, err := Parse([]byte("rate_limiting:\n  limit: 4\n"))
	require.NoError(t, err)

	tests := []struct {
		name string
		data string
		want []string
	}{
		{name: "unchanged", data: "rate_limiting:\n  limit: 4\n"},
		{name: "policy only", data: "rate_limiting:\n  limit: 9\n  window: 10m\n"},
		{name: "log level and prompt", data: "rate_limiting:\n  limit: 4\nlogger:\n  level: debug\ngenerator:\n  prompt_template: \"{{ .JobDescription }}\"\n"},
		{name: "port", data: "rate_limiting:\n  limit: 4\nserver:\n  port: 9999\n", want: []string{"server"}},
		{name: "strategy and model", data: "rate_limiting:\n  limit: 4\n  identity:\n    strategy: cookie\ngenerator:\n  model: gemini-2.0-flash\n", want: []string{"generator", "rate_limiting"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := Parse([]byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, RestartRequired(prev, next))
		})
	}

	assert.Nil(t, RestartRequired(nil, prev))
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{name: "unknown key", data: "rate_limiting:\n  limt: 3\n", wantErr: "limt"},
		{name: "negative limit", data: "rate_limiting:\n  limit: -1\n", wantErr: "rate_limiting.limit"},
		{name: "bad strategy", data: "rate_limiting:\n  identity:\n    strategy: fingerprint\n", wantErr: "strategy"},
		{name: "bad backend", data: "rate_limiting:\n  backend: mongo\n", wantErr: "backend"},
		{name: "sql without reference", data: "rate_limiting:\n  backend: sql\n", wantErr: "sql_database"},
		{name: "sql with missing database", data: "rate_limiting:\n  backend: sql\n  sql_database: main\n", wantErr: "not defined"},
		{name: "bad log level", data: "logger:\n  level: loud\n", wantErr: "log level"},
		{name: "bad temperature", data: "generator:\n  temperature: 3\n", wantErr: "temperature"},
		{name: "bad template", data: "generator:\n  prompt_template: \"{{ .Oops \"\n", wantErr: "prompt_template"},
		{name: "not a document", data: "[1, 2", wantErr: "parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParse_SQLBackend(t *testing.T) {
	data := `
databases:
  main:
    driver: sqlite
    database: ":memory:"
rate_limiting:
  backend: sql
  sql_database: main
`
	cfg, err := Parse([]byte(data))
	require.NoError(t, err)

	db, ok := cfg.GetDatabase("main")
	require.True(t, ok)
	assert.Equal(t, "sqlite", db.Dialect())
	assert.True(t, db.IsInMemory())
	assert.Equal(t, []string{"main"}, cfg.DatabaseNames())
}

func TestParse_DisabledSkipsRateLimitValidation(t *testing.T) {
	cfg, err := Parse([]byte("rate_limiting:\n  enabled: false\n  backend: sql\n"))
	require.NoError(t, err)
	assert.False(t, cfg.RateLimiting.IsEnabled())
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobsum.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rate_limiting:\n  limit: 4\n"), 0o644))

	cfg, loader, err := LoadConfigFile(context.Background(), path)
	require.NoError(t, err)
	defer loader.Close()

	assert.Equal(t, 4, cfg.RateLimiting.Limit)

	_, _, err = LoadConfigFile(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoader_WatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobsum.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rate_limiting:\n  limit: 4\n"), 0o644))

	reloaded := make(chan *Config, 4)
	_, loader, err := LoadConfigFile(context.Background(), path, WithOnChange(func(cfg *Config) {
		reloaded <- cfg
	}))
	require.NoError(t, err)
	defer loader.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loader.Watch(ctx)

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("rate_limiting:\n  limit: 9\n"), 0o644))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 9, cfg.RateLimiting.Limit)
	case <-time.After(3 * time.Second):
		t.Fatal("config was not reloaded")
	}
}
