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

// Package gemini implements model.Generator for Google Gemini models using
// the official google.golang.org/genai SDK.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/kadirpekel/jobsum/pkg/config"
	"github.com/kadirpekel/jobsum/pkg/model"
)

// DefaultModel is used when no model is configured.
const DefaultModel = config.DefaultGeminiModel

// Config contains configuration for the Gemini model.
type Config struct {
	// APIKey is the Google AI API key.
	APIKey string

	// Model is the model name (e.g., "gemini-1.5-flash").
	Model string

	// BaseURL overrides the API endpoint.
	BaseURL string

	// MaxTokens limits the response length.
	MaxTokens int

	// Temperature controls randomness (0-2). Nil uses the model default.
	Temperature *float64
}

// geminiModel implements model.Generator for Gemini.
type geminiModel struct {
	client *genai.Client
	name   string
	config Config
}

// New creates a new Gemini generator.
func New(cfg Config) (model.Generator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required (set generator.api_key or GOOGLE_API_KEY)")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(context.Background(), clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &geminiModel{
		client: client,
		name:   cfg.Model,
		config: cfg,
	}, nil
}

// NewFromConfig creates a Gemini generator from the generator section.
func NewFromConfig(cfg config.GeneratorConfig) (model.Generator, error) {
	return New(Config{
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		BaseURL:     cfg.BaseURL,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	})
}

// Name returns the model identifier.
func (m *geminiModel) Name() string {
	return m.name
}

// Provider returns the provider type.
func (m *geminiModel) Provider() model.Provider {
	return model.ProviderGemini
}

// Generate sends the prompt as a single user turn.
func (m *geminiModel) Generate(ctx context.Context, prompt string) (*model.Response, error) {
	genResp, err := m.client.Models.GenerateContent(ctx, m.name, genai.Text(prompt), m.buildConfig())
	if err != nil {
		return nil, fmt.Errorf("Gemini generation failed: %w", err)
	}
	return parseResponse(genResp)
}

// Close releases resources.
func (m *geminiModel) Close() error {
	return nil
}

func (m *geminiModel) buildConfig() *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if m.config.Temperature != nil {
		cfg.Temperature = genai.Ptr(float32(*m.config.Temperature))
	}
	if m.config.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(m.config.MaxTokens)
	}
	return cfg
}

// parseResponse joins the text parts of the first candidate, skipping
// thought parts.
func parseResponse(genResp *genai.GenerateContentResponse) (*model.Response, error) {
	if genResp == nil || len(genResp.Candidates) == 0 {
		if genResp != nil && genResp.PromptFeedback != nil && genResp.PromptFeedback.BlockReason != "" {
			return nil, fmt.Errorf("prompt blocked by Gemini: %s", genResp.PromptFeedback.BlockReason)
		}
		return nil, model.ErrEmptyResponse
	}

	candidate := genResp.Candidates[0]

	var text strings.Builder
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			text.WriteString(part.Text)
		}
	}

	if strings.TrimSpace(text.String()) == "" {
		if candidate.FinishReason == genai.FinishReasonSafety {
			return nil, fmt.Errorf("response blocked by Gemini safety filters")
		}
		return nil, model.ErrEmptyResponse
	}

	resp := &model.Response{
		Text:         text.String(),
		FinishReason: mapFinishReason(candidate.FinishReason),
	}

	if genResp.UsageMetadata != nil {
		resp.Usage = &model.Usage{
			PromptTokens:     int(genResp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(genResp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(genResp.UsageMetadata.TotalTokenCount),
		}
	}

	return resp, nil
}

func mapFinishReason(reason genai.FinishReason) model.FinishReason {
	switch reason {
	case genai.FinishReasonStop, "":
		return model.FinishReasonStop
	case genai.FinishReasonMaxTokens:
		return model.FinishReasonLength
	case genai.FinishReasonSafety:
		return model.FinishReasonContent
	default:
		return model.FinishReasonOther
	}
}
