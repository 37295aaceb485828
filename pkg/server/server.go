// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kadirpekel/jobsum/pkg/auth"
	"github.com/kadirpekel/jobsum/pkg/config"
	"github.com/kadirpekel/jobsum/pkg/identity"
	"github.com/kadirpekel/jobsum/pkg/observability"
	"github.com/kadirpekel/jobsum/pkg/ratelimit"
	"github.com/kadirpekel/jobsum/pkg/summarizer"
)

// Server serves the summarizer web form, the JSON API and, when
// authentication is configured, the admin API.
type Server struct {
	serverCfg  *config.ServerConfig
	limitCfg   *config.RateLimitConfig
	metricsCfg *observability.MetricsConfig
	server     *http.Server

	svc       *summarizer.Service
	resolver  identity.Resolver
	validator *auth.JWTValidator
	metrics   *observability.Metrics
	tracer    *observability.Tracer
}

// Option configures a Server.
type Option func(*Server)

// WithAuthValidator mounts the admin API behind JWT validation.
func WithAuthValidator(v *auth.JWTValidator) Option {
	return func(s *Server) {
		s.validator = v
	}
}

// WithMetrics enables request metrics and the metrics endpoint.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithTracer enables request tracing.
func WithTracer(t *observability.Tracer) Option {
	return func(s *Server) {
		s.tracer = t
	}
}

// WithResolver overrides the identity resolver derived from configuration.
func WithResolver(r identity.Resolver) Option {
	return func(s *Server) {
		s.resolver = r
	}
}

// New creates a Server for svc.
func New(cfg *config.Config, svc *summarizer.Service, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if svc == nil {
		return nil, fmt.Errorf("summarizer is required")
	}

	s := &Server{
		serverCfg:  &cfg.Server,
		limitCfg:   &cfg.RateLimiting,
		metricsCfg: &cfg.Observability.Metrics,
		svc:        svc,
		resolver:   identity.FromConfig(cfg.RateLimiting),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Handler returns the routed handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Order: request ID -> recovery -> observability -> logging -> routes.
	r.Use(requestIDMiddleware)
	r.Use(recoveryMiddleware)
	if s.tracer != nil || s.metrics != nil {
		r.Use(observability.HTTPMiddleware(s.tracer, s.metrics))
	}
	r.Use(loggingMiddleware)

	r.Get("/", s.handleIndex)
	r.Post("/", s.handleSubmit)
	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/summarize", s.handleSummarize)
		r.Get("/usage", s.handleUsage)
	})

	if s.metrics != nil {
		r.Method(http.MethodGet, s.metricsCfg.Path, s.metrics.Handler())
	}

	if s.validator != nil {
		adminRole := auth.AdminRole(s.serverCfg.Auth)
		r.Route("/admin", func(r chi.Router) {
			r.Use(s.validator.Require(adminRole))
			r.Get("/usage/{identity}", s.handleAdminUsage)
			r.Delete("/usage/{identity}", s.handleAdminReset)
			r.Post("/prune", s.handleAdminPrune)
		})
		slog.Info("Admin API enabled", "role", adminRole)
	}

	return r
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.serverCfg.Address(),
		Handler:      s.Handler(),
		ReadTimeout:  s.serverCfg.ReadTimeout,
		WriteTimeout: s.serverCfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	tlsEnabled := s.serverCfg.TLS.IsEnabled()
	slog.Info("HTTP server starting", "address", s.serverCfg.Address(), "tls", tlsEnabled, "identity", s.limitCfg.Identity.Strategy)

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tlsEnabled {
			err = s.server.ListenAndServeTLS(s.serverCfg.TLS.CertFile, s.serverCfg.TLS.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, s.serverCfg.ShutdownTimeout)
	defer cancel()

	slog.Info("HTTP server shutting down")
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP shutdown error: %w", err)
	}
	return nil
}

// Address returns the HTTP server address.
func (s *Server) Address() string {
	return s.serverCfg.Address()
}

func (s *Server) cookieMode() bool {
	return s.limitCfg.Identity.Strategy == config.IdentityCookie && s.svc.Limiter() != nil
}

// requestStore returns the per-request usage log in cookie mode, or nil.
func (s *Server) requestStore(r *http.Request) *ratelimit.CookieStore {
	if !s.cookieMode() {
		return nil
	}
	return ratelimit.CookieStoreFromRequest(r, s.limitCfg.Cookie.Name)
}

func requestOptions(jar *ratelimit.CookieStore) []summarizer.RequestOption {
	if jar == nil {
		return nil
	}
	return []summarizer.RequestOption{summarizer.WithStore(jar)}
}

// writeCookie stores the usage log back on the client. It must run before
// the response body is written.
func (s *Server) writeCookie(w http.ResponseWriter, jar *ratelimit.CookieStore) {
	if jar == nil || !jar.Modified() {
		return
	}
	http.SetCookie(w, jar.Cookie(ratelimit.CookieOptions{
		Name:   s.limitCfg.Cookie.Name,
		MaxAge: s.limitCfg.Cookie.MaxAge,
		Secure: s.limitCfg.Cookie.Secure,
	}))
}

// issueCookie hands an empty usage log to a client that has none, so that
// its next summarize request can be identified. It must run before the
// response body is written.
func (s *Server) issueCookie(w http.ResponseWriter, r *http.Request) {
	if !s.cookieMode() {
		return
	}
	if _, err := r.Cookie(s.limitCfg.Cookie.Name); err == nil {
		return
	}
	http.SetCookie(w, ratelimit.NewCookieStore("").Cookie(ratelimit.CookieOptions{
		Name:   s.limitCfg.Cookie.Name,
		MaxAge: s.limitCfg.Cookie.MaxAge,
		Secure: s.limitCfg.Cookie.Secure,
	}))
}

// summarize runs the flow for r and writes the usage cookie when needed.
func (s *Server) summarize(w http.ResponseWriter, r *http.Request, jobDescription string) (*summarizer.Result, error) {
	jar := s.requestStore(r)
	result, err := s.svc.Summarize(r.Context(), s.resolver.Resolve(r), jobDescription, requestOptions(jar)...)
	if jar != nil && jar.Modified() {
		s.writeCookie(w, jar)
	} else {
		s.issueCookie(w, r)
	}
	return result, err
}

// usage returns the caller's usage without modifying it. In cookie mode
// the log is read as is, so a client without the cookie sees zero usage.
func (s *Server) usage(r *http.Request) (*ratelimit.Decision, error) {
	id := s.resolver.Resolve(r)
	if s.cookieMode() {
		id = identity.Browser
	}
	return s.svc.Usage(r.Context(), id, requestOptions(s.requestStore(r))...)
}
