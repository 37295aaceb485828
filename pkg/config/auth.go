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
	"time"
)

// AuthConfig configures JWT authentication for the admin endpoints.
//
// Authentication is disabled by default, and the admin endpoints are not
// mounted at all unless it is enabled. Public summarize endpoints never
// require a token.
//
// Example configuration:
//
//	server:
//	  auth:
//	    enabled: true
//	    jwks_url: "https://auth.example.com/.well-known/jwks.json"
//	    issuer: "https://auth.example.com"
//	    audience: "jobsum-admin"
//	    admin_role: admin
type AuthConfig struct {
	// Enabled controls whether the admin API is mounted.
	// Default: false
	Enabled bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	// JWKSURL is the URL to fetch JSON Web Key Set from.
	JWKSURL string `yaml:"jwks_url,omitempty" json:"jwks_url,omitempty"`

	// Issuer is the expected token issuer (iss claim).
	Issuer string `yaml:"issuer,omitempty" json:"issuer,omitempty"`

	// Audience is the expected token audience (aud claim).
	Audience string `yaml:"audience,omitempty" json:"audience,omitempty"`

	// RefreshInterval is how often to refresh the JWKS.
	// Default: 15m
	RefreshInterval time.Duration `yaml:"refresh_interval,omitempty" json:"refresh_interval,omitempty"`

	// AdminRole is the role claim value required on admin endpoints.
	// Default: admin
	AdminRole string `yaml:"admin_role,omitempty" json:"admin_role,omitempty"`
}

// SetDefaults applies default values to AuthConfig.
func (c *AuthConfig) SetDefaults() {
	if c.RefreshInterval == 0 {
		c.RefreshInterval = 15 * time.Minute
	}
	if c.AdminRole == "" {
		c.AdminRole = "admin"
	}
}

// Validate checks the AuthConfig for errors.
func (c *AuthConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.JWKSURL == "" {
		return fmt.Errorf("jwks_url is required when auth is enabled")
	}

	if c.Issuer == "" {
		return fmt.Errorf("issuer is required when auth is enabled")
	}

	if c.Audience == "" {
		return fmt.Errorf("audience is required when auth is enabled")
	}

	if c.RefreshInterval < time.Minute {
		return fmt.Errorf("refresh_interval must be at least 1 minute")
	}

	return nil
}

// IsEnabled returns true if authentication is configured and enabled.
func (c *AuthConfig) IsEnabled() bool {
	return c != nil && c.Enabled && c.JWKSURL != "" && c.Issuer != "" && c.Audience != ""
}
