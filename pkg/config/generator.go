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

package config

import (
	"fmt"
	"os"
	"text/template"
	"time"
)

// Generator defaults.
const (
	DefaultGeneratorProvider = "gemini"
	DefaultGeminiModel       = "gemini-1.5-flash"
)

// GeneratorConfig configures the text-generation collaborator.
//
// Example:
//
//	generator:
//	  provider: gemini
//	  model: gemini-1.5-flash
//	  api_key: ${GOOGLE_API_KEY}
//	  timeout: 60s
type GeneratorConfig struct {
	// Provider selects the backend. Only "gemini" is supported.
	Provider string `yaml:"provider,omitempty" json:"provider,omitempty" jsonschema:"enum=gemini,default=gemini"`

	// Model is the model name. Default: gemini-1.5-flash
	Model string `yaml:"model,omitempty" json:"model,omitempty"`

	// APIKey authenticates against the provider. When empty,
	// GOOGLE_API_KEY and then GEMINI_API_KEY are consulted.
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty"`

	// BaseURL overrides the provider endpoint.
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`

	// Temperature controls sampling randomness (0-2).
	Temperature *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`

	// MaxTokens caps the response length. Zero leaves the provider default.
	MaxTokens int `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`

	// Timeout bounds one generation call. Zero means no timeout beyond
	// the request's own.
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// PromptTemplate overrides the built-in prompt. It is a text/template
	// receiving .JobDescription.
	PromptTemplate string `yaml:"prompt_template,omitempty" json:"prompt_template,omitempty"`
}

// SetDefaults applies default values to GeneratorConfig.
func (c *GeneratorConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = DefaultGeneratorProvider
	}
	if c.Model == "" {
		c.Model = DefaultGeminiModel
	}
	if c.APIKey == "" {
		c.APIKey = os.Getenv("GOOGLE_API_KEY")
	}
	if c.APIKey == "" {
		c.APIKey = os.Getenv("GEMINI_API_KEY")
	}
}

// Validate checks the generator configuration. A missing API key is
// reported when the generator is built, so validate works offline.
func (c *GeneratorConfig) Validate() error {
	if c.Provider != DefaultGeneratorProvider {
		return fmt.Errorf("invalid provider %q (valid: gemini)", c.Provider)
	}

	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0 and 2, got %v", *c.Temperature)
	}

	if c.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be non-negative")
	}

	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative")
	}

	if c.PromptTemplate != "" {
		if _, err := template.New("prompt").Parse(c.PromptTemplate); err != nil {
			return fmt.Errorf("invalid prompt_template: %w", err)
		}
	}

	return nil
}
