// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/jobsum/pkg/config/provider"
)

// Loader loads and watches configuration from a Provider.
//
// Only the rate limit policy, the prompt template and the log level are
// applied on reload. Any other edit is reported as needing a restart.
type Loader struct {
	provider provider.Provider
	onChange func(*Config)

	mu      sync.Mutex
	current *Config
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithOnChange sets a callback invoked with every successfully reloaded
// config that differs from the previous one.
func WithOnChange(fn func(*Config)) LoaderOption {
	return func(l *Loader) {
		l.onChange = fn
	}
}

// NewLoader creates a Loader with the given provider.
func NewLoader(p provider.Provider, opts ...LoaderOption) *Loader {
	l := &Loader{provider: p}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads the provider and runs the full pipeline. The result becomes
// the baseline the next reload is compared against.
func (l *Loader) Load(ctx context.Context) (*Config, error) {
	data, err := l.provider.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s provider: %w", l.provider.Type(), err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.current = cfg
	l.mu.Unlock()
	return cfg, nil
}

// Parse turns raw YAML or JSON into a defaulted, validated Config.
// Environment references are expanded before decoding; a reference
// written as ${VAR:?message} fails the parse when VAR is unset.
func Parse(data []byte) (*Config, error) {
	raw, err := parseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	exp := &expander{}
	expanded := exp.expandMap(raw)
	if err := exp.err(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := decodeConfig(expanded, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Watch reloads the config whenever the provider signals a change.
// Invalid and unchanged reloads are skipped. Blocks until ctx is cancelled.
func (l *Loader) Watch(ctx context.Context) error {
	changes, err := l.provider.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to start watching: %w", err)
	}

	if changes == nil {
		slog.Info("Config watching not supported by provider", "type", l.provider.Type())
		<-ctx.Done()
		return nil
	}

	slog.Info("Watching configuration for changes", "type", l.provider.Type())

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			l.reload(ctx)
		}
	}
}

func (l *Loader) reload(ctx context.Context) {
	l.mu.Lock()
	prev := l.current
	l.mu.Unlock()

	cfg, err := l.Load(ctx)
	if err != nil {
		slog.Error("Ignoring invalid configuration change", "error", err)
		return
	}
	if prev != nil && reflect.DeepEqual(prev, cfg) {
		slog.Debug("Configuration unchanged")
		return
	}

	for _, section := range RestartRequired(prev, cfg) {
		slog.Warn("Configuration change takes effect after a restart", "section", section)
	}

	slog.Info("Configuration reloaded",
		"limit", cfg.RateLimiting.Limit,
		"window", cfg.RateLimiting.Window,
		"log_level", cfg.Logger.Level)
	if l.onChange != nil {
		l.onChange(cfg)
	}
}

// Close releases resources held by the loader.
func (l *Loader) Close() error {
	return l.provider.Close()
}

// RestartRequired lists the sections that differ between prev and next
// beyond what a running server applies on reload.
func RestartRequired(prev, next *Config) []string {
	if prev == nil || next == nil {
		return nil
	}
	a, b := restartView(prev), restartView(next)

	var sections []string
	if !reflect.DeepEqual(a.Server, b.Server) {
		sections = append(sections, "server")
	}
	if !reflect.DeepEqual(a.Logger, b.Logger) {
		sections = append(sections, "logger")
	}
	if !reflect.DeepEqual(a.Generator, b.Generator) {
		sections = append(sections, "generator")
	}
	if !reflect.DeepEqual(a.RateLimiting, b.RateLimiting) {
		sections = append(sections, "rate_limiting")
	}
	if !reflect.DeepEqual(a.Databases, b.Databases) {
		sections = append(sections, "databases")
	}
	if !reflect.DeepEqual(a.Observability, b.Observability) {
		sections = append(sections, "observability")
	}
	return sections
}

// restartView copies cfg with the reloadable fields cleared.
func restartView(cfg *Config) Config {
	view := *cfg
	view.Logger.Level = ""
	view.Generator.PromptTemplate = ""
	view.RateLimiting.Limit = 0
	view.RateLimiting.Window = 0
	return view
}

// parseBytes parses YAML, falling back to JSON. An empty document is an
// empty config.
func parseBytes(data []byte) (map[string]any, error) {
	var result map[string]any

	if err := yaml.Unmarshal(data, &result); err == nil {
		if result == nil {
			result = map[string]any{}
		}
		return result, nil
	}

	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse as YAML or JSON: %w", err)
	}

	return result, nil
}

// decodeConfig decodes a map into a Config struct using mapstructure.
// Unknown keys are rejected so typos surface at load time.
func decodeConfig(input map[string]any, output *Config) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           output,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}

	return decoder.Decode(input)
}

// envVarPattern matches ${VAR}, ${VAR:-default}, ${VAR:?message} and $VAR.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::([-?])([^}]*))?\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expander substitutes environment references and collects the required
// variables that are unset.
type expander struct {
	missing map[string]string
}

func (e *expander) expandMap(input map[string]any) map[string]any {
	result := make(map[string]any, len(input))
	for k, v := range input {
		result[k] = e.expandValue(v)
	}
	return result
}

func (e *expander) expandValue(v any) any {
	switch val := v.(type) {
	case string:
		return e.expandString(val)
	case map[string]any:
		return e.expandMap(val)
	case []any:
		result := make([]any, len(val))
		for i, item := range val {
			result[i] = e.expandValue(item)
		}
		return result
	default:
		return v
	}
}

func (e *expander) expandString(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		if parts[4] != "" {
			return os.Getenv(parts[4])
		}

		name, op, arg := parts[1], parts[2], parts[3]
		if val := os.Getenv(name); val != "" {
			return val
		}
		if op == "?" {
			if e.missing == nil {
				e.missing = make(map[string]string)
			}
			e.missing[name] = arg
			return ""
		}
		return arg
	})
}

func (e *expander) err() error {
	if len(e.missing) == 0 {
		return nil
	}
	names := make([]string, 0, len(e.missing))
	for name := range e.missing {
		names = append(names, name)
	}
	sort.Strings(names)

	msgs := make([]string, 0, len(names))
	for _, name := range names {
		if msg := e.missing[name]; msg != "" {
			msgs = append(msgs, fmt.Sprintf("%s (%s)", name, msg))
		} else {
			msgs = append(msgs, name)
		}
	}
	return fmt.Errorf("required environment variables are not set: %s", strings.Join(msgs, ", "))
}

// LoadConfig creates a provider and loader and loads the config once.
func LoadConfig(ctx context.Context, opts provider.ProviderConfig, loaderOpts ...LoaderOption) (*Config, *Loader, error) {
	p, err := provider.New(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create provider: %w", err)
	}

	loader := NewLoader(p, loaderOpts...)
	cfg, err := loader.Load(ctx)
	if err != nil {
		p.Close()
		return nil, nil, err
	}

	return cfg, loader, nil
}

// LoadConfigFile loads config from a local file.
func LoadConfigFile(ctx context.Context, path string, loaderOpts ...LoaderOption) (*Config, *Loader, error) {
	return LoadConfig(ctx, provider.ProviderConfig{
		Type: provider.TypeFile,
		Path: path,
	}, loaderOpts...)
}
