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

// Package model defines the text-generation interface used to summarize
// job descriptions.
//
// A Generator turns a fully rendered prompt into text. Providers live in
// subpackages (see model/gemini).
package model

import (
	"context"
	"errors"
)

// Generator is the interface for text-generation models.
type Generator interface {
	// Name returns the model identifier.
	Name() string

	// Provider returns the provider type (e.g., "gemini").
	Provider() Provider

	// Generate produces a completion for the prompt. It returns an error
	// when the model cannot be reached or produced no text.
	Generate(ctx context.Context, prompt string) (*Response, error)

	// Close releases any resources held by the generator.
	Close() error
}

// Provider identifies the model provider.
type Provider string

const (
	// ProviderGemini represents Google Gemini models.
	ProviderGemini Provider = "gemini"

	// ProviderStatic is a generator backed by a Go function.
	ProviderStatic Provider = "static"
)

// FinishReason indicates why generation stopped.
type FinishReason string

const (
	FinishReasonStop    FinishReason = "stop"
	FinishReasonLength  FinishReason = "length"
	FinishReasonContent FinishReason = "content_filter"
	FinishReasonOther   FinishReason = "other"
)

// Response is a completed generation.
type Response struct {
	// Text is the generated text.
	Text string

	// FinishReason indicates why generation stopped.
	FinishReason FinishReason

	// Usage contains token usage when the provider reports it.
	Usage *Usage
}

// Usage contains token usage information.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("model returned an empty response")

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Name returns "static".
func (f GeneratorFunc) Name() string { return string(ProviderStatic) }

// Provider returns ProviderStatic.
func (f GeneratorFunc) Provider() Provider { return ProviderStatic }

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (*Response, error) {
	text, err := f(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return &Response{Text: text, FinishReason: FinishReasonStop}, nil
}

// Close is a no-op.
func (f GeneratorFunc) Close() error { return nil }

var _ Generator = GeneratorFunc(nil)
