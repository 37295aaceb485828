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

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kadirpekel/jobsum"
	"github.com/kadirpekel/jobsum/pkg/config"
	"github.com/kadirpekel/jobsum/pkg/config/provider"
	"github.com/kadirpekel/jobsum/pkg/model"
	"github.com/kadirpekel/jobsum/pkg/model/gemini"
	"github.com/kadirpekel/jobsum/pkg/observability"
	"github.com/kadirpekel/jobsum/pkg/ratelimit"
	"github.com/kadirpekel/jobsum/pkg/summarizer"
)

var (
	errRateLimitingDisabled = errors.New("rate limiting is disabled")
	errCookieUsage          = errors.New("usage is kept in client cookies (identity strategy \"cookie\") and cannot be managed server-side")
)

// loadConfig loads the configured source, or the defaults when no config
// is given, and merges its logger section into the logger.
func (cli *CLI) loadConfig(ctx context.Context, opts ...config.LoaderOption) (*config.Config, *config.Loader, error) {
	cfg, loader, err := cli.readConfig(ctx, opts...)
	if err != nil {
		return nil, nil, err
	}
	if err := cli.logging.apply(&cfg.Logger); err != nil {
		if loader != nil {
			loader.Close()
		}
		return nil, nil, err
	}
	return cfg, loader, nil
}

func (cli *CLI) readConfig(ctx context.Context, opts ...config.LoaderOption) (*config.Config, *config.Loader, error) {
	typ, err := provider.ParseType(cli.ConfigType)
	if err != nil {
		return nil, nil, err
	}

	if cli.Config == "" {
		if typ != provider.TypeFile {
			return nil, nil, fmt.Errorf("--config is required for the %s provider", typ)
		}
		cfg := config.Default()
		if err := cfg.Validate(); err != nil {
			return nil, nil, fmt.Errorf("invalid default configuration: %w", err)
		}
		slog.Debug("Using default configuration")
		return cfg, nil, nil
	}

	if typ == provider.TypeFile {
		config.LoadDotEnvForConfig(cli.Config)
	}

	source := provider.ProviderConfig{
		Type:      typ,
		Path:      cli.Config,
		Endpoints: cli.ConfigEndpoints,
		Token:     cli.ConfigToken,
	}
	cfg, loader, err := config.LoadConfig(ctx, source, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config from %s: %w", source, err)
	}
	slog.Info("Loaded configuration", "source", source.String())
	return cfg, loader, nil
}

// app holds the components built from one configuration.
type app struct {
	cfg       *config.Config
	pool      *config.DBPool
	limiter   *ratelimit.Limiter
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	generator model.Generator
	svc       *summarizer.Service
}

// newApp opens the usage store. Observability and the generator are
// started separately by the commands that need them.
func newApp(cfg *config.Config) (*app, error) {
	a := &app{
		cfg:  cfg,
		pool: config.NewDBPool(),
	}

	limiter, err := ratelimit.NewLimiterFromConfig(cfg, a.pool, ratelimit.WithPruneHook(func(ctx context.Context, removed int) {
		a.metrics.RecordPruned(ctx, removed)
	}))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create rate limiter: %w", err)
	}
	a.limiter = limiter

	if limiter != nil {
		policy := limiter.Policy()
		slog.Debug("Rate limiting enabled", "backend", cfg.RateLimiting.Backend, "limit", policy.Limit, "window", policy.Window)
	}
	return a, nil
}

// startObservability creates the tracer and metrics.
func (a *app) startObservability(ctx context.Context) error {
	tracer, err := observability.NewTracer(ctx, a.cfg.Observability.Tracing, jobsum.GetVersion().Version)
	if err != nil {
		return fmt.Errorf("failed to create tracer: %w", err)
	}
	a.tracer = tracer

	metrics, err := observability.NewMetrics(a.cfg.Observability.Metrics)
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}
	a.metrics = metrics
	return nil
}

// startService creates the generator and the summarizer.
func (a *app) startService() error {
	generator, err := newGenerator(a.cfg.Generator)
	if err != nil {
		return err
	}
	a.generator = generator

	svc, err := summarizer.New(generator, a.limiter,
		summarizer.WithMetrics(a.metrics),
		summarizer.WithTracer(a.tracer),
		summarizer.WithTimeout(a.cfg.Generator.Timeout),
		summarizer.WithPromptTemplate(a.cfg.Generator.PromptTemplate),
	)
	if err != nil {
		return fmt.Errorf("failed to create summarizer: %w", err)
	}
	a.svc = svc
	return nil
}

// requireLimiter returns the limiter backing server-side usage, or an
// error when rate limiting is off or usage lives in client cookies.
func (a *app) requireLimiter() (*ratelimit.Limiter, error) {
	if a.limiter == nil {
		return nil, errRateLimitingDisabled
	}
	if a.cfg.RateLimiting.Identity.Strategy == config.IdentityCookie {
		return nil, errCookieUsage
	}
	if a.cfg.RateLimiting.Backend == config.BackendMemory {
		slog.Warn("The memory backend lives inside one process; use the sql or redis backend to inspect a running server")
	}
	return a.limiter, nil
}

// reload applies the hot-reloadable parts of a new configuration.
func (a *app) reload(next *config.Config) {
	if a.limiter != nil && next.RateLimiting.IsEnabled() {
		policy := ratelimit.PolicyFromConfig(next.RateLimiting)
		if err := a.limiter.SetPolicy(policy); err != nil {
			slog.Warn("Ignoring invalid rate limit policy", "error", err)
		} else {
			slog.Info("Rate limit policy updated", "limit", policy.Limit, "window", policy.Window)
		}
	}

	if a.svc != nil {
		if err := a.svc.SetPromptTemplate(next.Generator.PromptTemplate); err != nil {
			slog.Warn("Ignoring invalid prompt template", "error", err)
		}
	}
}

// Close releases everything the app opened.
func (a *app) Close() {
	ctx := context.Background()
	if a.generator != nil {
		if err := a.generator.Close(); err != nil {
			slog.Debug("Failed to close generator", "error", err)
		}
	}
	if a.limiter != nil {
		if err := a.limiter.Close(); err != nil {
			slog.Warn("Failed to close usage store", "error", err)
		}
	}
	if err := a.pool.Close(); err != nil {
		slog.Warn("Failed to close database pool", "error", err)
	}
	if err := a.tracer.Shutdown(ctx); err != nil {
		slog.Warn("Failed to flush traces", "error", err)
	}
	if err := a.metrics.Shutdown(ctx); err != nil {
		slog.Debug("Failed to shut down metrics", "error", err)
	}
}

// newGenerator creates the configured text generator.
func newGenerator(cfg config.GeneratorConfig) (model.Generator, error) {
	switch cfg.Provider {
	case config.DefaultGeneratorProvider:
		generator, err := gemini.NewFromConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s generator: %w (set GOOGLE_API_KEY or generator.api_key)", cfg.Provider, err)
		}
		return generator, nil
	default:
		return nil, fmt.Errorf("unsupported generator provider: %s", cfg.Provider)
	}
}
