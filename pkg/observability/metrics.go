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

package observability

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Summary outcomes.
const (
	OutcomeSuccess         = "success"
	OutcomeEmptyInput      = "empty_input"
	OutcomeUnknownIdentity = "unknown_identity"
	OutcomeRateLimited     = "rate_limited"
	OutcomeGenerationError = "generation_failed"
	OutcomeInternalError   = "internal_error"
)

// Metrics records application metrics through an OpenTelemetry meter
// exported to a private Prometheus registry. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry
	provider *sdkmetric.MeterProvider

	summaries    metric.Int64Counter
	checks       metric.Int64Counter
	pruned       metric.Int64Counter
	generation   metric.Float64Histogram
	httpRequests metric.Int64Counter
	httpDuration metric.Float64Histogram
}

// NewMetrics creates the instruments. It returns nil when metrics are
// disabled.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.IsEnabled() {
		return nil, nil
	}

	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(
		otelprom.WithRegisterer(registry),
		otelprom.WithoutScopeInfo(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter(meterName)

	m := &Metrics{registry: registry, provider: provider}

	if m.summaries, err = meter.Int64Counter("jobsum_summaries",
		metric.WithDescription("Summarize requests by outcome")); err != nil {
		return nil, fmt.Errorf("failed to create summaries counter: %w", err)
	}
	if m.checks, err = meter.Int64Counter("jobsum_ratelimit_checks",
		metric.WithDescription("Rate limit checks by decision")); err != nil {
		return nil, fmt.Errorf("failed to create checks counter: %w", err)
	}
	if m.pruned, err = meter.Int64Counter("jobsum_ratelimit_pruned_events",
		metric.WithDescription("Expired usage events removed from the store")); err != nil {
		return nil, fmt.Errorf("failed to create pruned counter: %w", err)
	}
	if m.generation, err = meter.Float64Histogram("jobsum_generation_duration",
		metric.WithDescription("Text generation latency"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("failed to create generation histogram: %w", err)
	}
	if m.httpRequests, err = meter.Int64Counter("jobsum_http_requests",
		metric.WithDescription("HTTP requests by route and status")); err != nil {
		return nil, fmt.Errorf("failed to create http requests counter: %w", err)
	}
	if m.httpDuration, err = meter.Float64Histogram("jobsum_http_request_duration",
		metric.WithDescription("HTTP request latency"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("failed to create http duration histogram: %w", err)
	}

	return m, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordSummary counts one summarize request.
func (m *Metrics) RecordSummary(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.summaries.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordCheck counts one rate limit decision.
func (m *Metrics) RecordCheck(ctx context.Context, allowed bool) {
	if m == nil {
		return
	}
	m.checks.Add(ctx, 1, metric.WithAttributes(attribute.Bool("allowed", allowed)))
}

// RecordPruned counts removed usage events.
func (m *Metrics) RecordPruned(ctx context.Context, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.pruned.Add(ctx, int64(n))
}

// RecordGeneration observes one generation call.
func (m *Metrics) RecordGeneration(ctx context.Context, model string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.generation.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("model", model),
		attribute.Bool("error", err != nil),
	))
}

// RecordHTTPRequest observes one HTTP request.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status", strconv.Itoa(status)),
	)
	m.httpRequests.Add(ctx, 1, attrs)
	m.httpDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
	))
}

// Shutdown stops the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}
