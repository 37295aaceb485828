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
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/jobsum/pkg/auth"
	"github.com/kadirpekel/jobsum/pkg/config"
	"github.com/kadirpekel/jobsum/pkg/ratelimit"
	"github.com/kadirpekel/jobsum/pkg/server"
)

// ServeCmd starts the web server.
type ServeCmd struct {
	Host  string `help:"Host to bind (overrides server.host)."`
	Port  int    `help:"Port to listen on (overrides server.port)."`
	Watch bool   `help:"Reload the rate limit policy, prompt template and log level when the config changes."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Reloads can arrive only after the app exists: Watch starts below.
	var a *app
	cfg, loader, err := cli.loadConfig(ctx, config.WithOnChange(func(next *config.Config) {
		cli.logging.reloadLevel(&next.Logger)
		if a != nil {
			a.reload(next)
		}
	}))
	if err != nil {
		return err
	}
	if loader != nil {
		defer loader.Close()
	}

	if c.Host != "" {
		cfg.Server.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	a, err = newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.startObservability(ctx); err != nil {
		return err
	}
	if err := a.startService(); err != nil {
		return err
	}

	opts := []server.Option{
		server.WithMetrics(a.metrics),
		server.WithTracer(a.tracer),
	}
	validator, err := auth.NewValidatorFromConfig(cfg.Server.Auth)
	if err != nil {
		return err
	}
	if validator != nil {
		defer validator.Close()
		opts = append(opts, server.WithAuthValidator(validator))
	}

	srv, err := server.New(cfg, a.svc, opts...)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	printStartup(cfg, srv, a, validator != nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	g.Go(func() error {
		return ratelimit.NewSweeper(a.limiter, cfg.RateLimiting.SweepInterval).Run(gctx)
	})
	if c.Watch {
		if loader == nil {
			slog.Warn("--watch needs --config; not watching")
		} else {
			g.Go(func() error {
				return loader.Watch(gctx)
			})
		}
	}

	err = g.Wait()
	slog.Info("Shutting down...")
	return err
}

func printStartup(cfg *config.Config, srv *server.Server, a *app, adminEnabled bool) {
	scheme := "http"
	if cfg.Server.TLS.IsEnabled() {
		scheme = "https"
	}
	base := fmt.Sprintf("%s://%s", scheme, srv.Address())

	out := os.Stderr
	fmt.Fprintf(out, "\njobsum server ready\n")
	fmt.Fprintf(out, "   Web UI:      %s/\n", base)
	fmt.Fprintf(out, "   API:         %s/api/summarize\n", base)
	fmt.Fprintf(out, "   Health:      %s/health\n", base)
	if a.metrics != nil {
		fmt.Fprintf(out, "   Metrics:     %s%s\n", base, cfg.Observability.Metrics.Path)
	}
	if cfg.Observability.Tracing.Enabled {
		fmt.Fprintf(out, "   Tracing:     %s (%s)\n", cfg.Observability.Tracing.Exporter, cfg.Observability.Tracing.Endpoint)
	}
	if adminEnabled {
		fmt.Fprintf(out, "   Admin API:   %s/admin (role %q)\n", base, cfg.Server.Auth.AdminRole)
	}
	fmt.Fprintf(out, "   Model:       %s\n", a.generator.Name())

	if a.limiter == nil {
		fmt.Fprintf(out, "   Rate limit:  disabled\n")
	} else {
		policy := a.limiter.Policy()
		fmt.Fprintf(out, "   Rate limit:  %d per %s (%s backend, %s identity)\n",
			policy.Limit, policy.Window, cfg.RateLimiting.Backend, cfg.RateLimiting.Identity.Strategy)
	}
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")
}
