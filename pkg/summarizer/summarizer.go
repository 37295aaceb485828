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

// Package summarizer runs the summarize flow: reject unidentified callers
// and blank input, consult the rate limiter, call the generator and record
// usage only once generation succeeded.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"text/template"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kadirpekel/jobsum/pkg/identity"
	"github.com/kadirpekel/jobsum/pkg/model"
	"github.com/kadirpekel/jobsum/pkg/observability"
	"github.com/kadirpekel/jobsum/pkg/ratelimit"
)

// Service summarizes job descriptions on behalf of identified callers.
type Service struct {
	generator model.Generator
	limiter   *ratelimit.Limiter
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	timeout   time.Duration

	mu     sync.RWMutex
	prompt *template.Template
}

// Option configures a Service.
type Option func(*Service) error

// WithMetrics records outcomes and generation latency.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) error {
		s.metrics = m
		return nil
	}
}

// WithTracer wraps each summarize call in spans.
func WithTracer(t *observability.Tracer) Option {
	return func(s *Service) error {
		s.tracer = t
		return nil
	}
}

// WithTimeout bounds each generation call. Zero means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) error {
		s.timeout = d
		return nil
	}
}

// WithPromptTemplate replaces DefaultPromptTemplate.
func WithPromptTemplate(text string) Option {
	return func(s *Service) error {
		tmpl, err := ParsePrompt(text)
		if err != nil {
			return err
		}
		s.prompt = tmpl
		return nil
	}
}

// New creates a Service. A nil limiter disables rate limiting.
func New(generator model.Generator, limiter *ratelimit.Limiter, opts ...Option) (*Service, error) {
	if generator == nil {
		return nil, fmt.Errorf("generator is required")
	}

	tmpl, err := ParsePrompt("")
	if err != nil {
		return nil, err
	}

	s := &Service{
		generator: generator,
		limiter:   limiter,
		prompt:    tmpl,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Limiter returns the rate limiter, or nil when limiting is disabled.
func (s *Service) Limiter() *ratelimit.Limiter {
	return s.limiter
}

// Generator returns the configured generator.
func (s *Service) Generator() model.Generator {
	return s.generator
}

// SetPromptTemplate swaps the prompt template, e.g. on config reload.
func (s *Service) SetPromptTemplate(text string) error {
	tmpl, err := ParsePrompt(text)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.prompt = tmpl
	s.mu.Unlock()
	return nil
}

// RenderPrompt returns the prompt sent for a job description.
func (s *Service) RenderPrompt(jobDescription string) (string, error) {
	s.mu.RLock()
	tmpl := s.prompt
	s.mu.RUnlock()
	return renderPrompt(tmpl, jobDescription)
}

// RequestOption configures a single Summarize or Usage call.
type RequestOption func(*requestOptions)

type requestOptions struct {
	store ratelimit.Store
}

// WithStore counts usage against store instead of the limiter's shared
// store. Used for the per-request cookie store.
func WithStore(store ratelimit.Store) RequestOption {
	return func(o *requestOptions) {
		o.store = store
	}
}

// Result is a successful summarization.
type Result struct {
	// Summary is the generated text, passed through unparsed.
	Summary string

	// Usage is the admission decision made before generating. Nil when
	// rate limiting is disabled.
	Usage *ratelimit.Decision

	// Model that produced the summary.
	Model string

	// Duration of the generation call.
	Duration time.Duration
}

func (s *Service) limiterFor(opts []RequestOption) *ratelimit.Limiter {
	var o requestOptions
	for _, opt := range opts {
		opt(&o)
	}
	if s.limiter == nil {
		return nil
	}
	if o.store != nil {
		return s.limiter.WithStore(o.store)
	}
	return s.limiter
}

// Summarize runs the summarize flow for identity.
//
// Errors: ErrUnknownIdentity, ErrEmptyInput, *ratelimit.RateLimitError,
// *GenerationError, or a wrapped store error. Only a successful generation
// is recorded. A failure to record after success is logged and the summary
// is still returned.
func (s *Service) Summarize(ctx context.Context, id, jobDescription string, opts ...RequestOption) (*Result, error) {
	ctx, span := s.tracer.StartSummarize(ctx, id)
	defer span.End()

	result, outcome, err := s.summarize(ctx, id, jobDescription, s.limiterFor(opts))

	s.metrics.RecordSummary(ctx, outcome)
	span.SetAttributes(attribute.String(observability.AttrOutcome, outcome))
	switch outcome {
	case observability.OutcomeInternalError, observability.OutcomeGenerationError:
		observability.Fail(span, err)
	}
	return result, err
}

func (s *Service) summarize(ctx context.Context, id, jobDescription string, limiter *ratelimit.Limiter) (*Result, string, error) {
	if !identity.IsKnown(id) {
		slog.Debug("Rejected request without identity")
		return nil, observability.OutcomeUnknownIdentity, ErrUnknownIdentity
	}

	if strings.TrimSpace(jobDescription) == "" {
		slog.Debug("Rejected empty job description", "identity", id)
		return nil, observability.OutcomeEmptyInput, ErrEmptyInput
	}

	decision, err := s.check(ctx, limiter, id)
	if err != nil {
		if ratelimit.IsRateLimitError(err) {
			slog.Info("Summary rate limited", "identity", id, "count", decision.Count, "limit", decision.Limit, "retry_after", decision.RetryAfter)
			return nil, observability.OutcomeRateLimited, err
		}
		slog.Error("Rate limit check failed", "identity", id, "error", err)
		return nil, observability.OutcomeInternalError, err
	}

	prompt, err := s.RenderPrompt(jobDescription)
	if err != nil {
		return nil, observability.OutcomeInternalError, err
	}

	start := time.Now()
	resp, err := s.generate(ctx, prompt)
	elapsed := time.Since(start)
	if err != nil {
		slog.Warn("Summary generation failed", "identity", id, "model", s.generator.Name(), "duration", elapsed, "error", err)
		return nil, observability.OutcomeGenerationError, newGenerationError(s.generator.Name(), err)
	}

	if limiter != nil {
		if err := limiter.Record(ctx, id); err != nil {
			slog.Error("Failed to record usage after successful summary", "identity", id, "error", err)
		} else if usage, err := limiter.Usage(ctx, id); err == nil {
			decision = usage
		}
	}

	slog.Info("Summary generated", "identity", id, "model", s.generator.Name(), "duration", elapsed)
	return &Result{
		Summary:  resp.Text,
		Usage:    decision,
		Model:    s.generator.Name(),
		Duration: elapsed,
	}, observability.OutcomeSuccess, nil
}

func (s *Service) check(ctx context.Context, limiter *ratelimit.Limiter, id string) (*ratelimit.Decision, error) {
	if limiter == nil {
		return nil, nil
	}

	ctx, span := s.tracer.StartCheck(ctx)
	defer span.End()

	decision, err := limiter.Check(ctx, id)
	if err != nil {
		observability.Fail(span, err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Bool(observability.AttrAllowed, decision.Allowed),
		attribute.Int(observability.AttrCount, decision.Count),
	)
	s.metrics.RecordCheck(ctx, decision.Allowed)

	if !decision.Allowed {
		return decision, ratelimit.NewRateLimitError(decision)
	}
	return decision, nil
}

func (s *Service) generate(ctx context.Context, prompt string) (*model.Response, error) {
	ctx, span := s.tracer.StartGenerate(ctx, s.generator.Name())
	defer span.End()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := s.generator.Generate(ctx, prompt)
	if err == nil && (resp == nil || strings.TrimSpace(resp.Text) == "") {
		err = model.ErrEmptyResponse
	}
	s.metrics.RecordGeneration(ctx, s.generator.Name(), time.Since(start), err)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && s.timeout > 0 {
			err = fmt.Errorf("timed out after %s: %w", s.timeout, err)
		}
		observability.Fail(span, err)
		return nil, err
	}
	return resp, nil
}

// Usage returns the caller's current usage without pruning. It returns
// nil when rate limiting is disabled.
func (s *Service) Usage(ctx context.Context, id string, opts ...RequestOption) (*ratelimit.Decision, error) {
	limiter := s.limiterFor(opts)
	if limiter == nil {
		return nil, nil
	}
	if !identity.IsKnown(id) {
		return nil, ErrUnknownIdentity
	}
	return limiter.Usage(ctx, id)
}
