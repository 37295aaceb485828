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

package auth

import (
	"fmt"

	"github.com/kadirpekel/jobsum/pkg/config"
)

// DefaultAdminRole is required on admin endpoints when admin_role is unset.
const DefaultAdminRole = "admin"

// NewValidatorFromConfig creates a JWTValidator for the admin API.
// It returns nil when authentication is not enabled, in which case the
// admin API stays unmounted.
func NewValidatorFromConfig(cfg *config.AuthConfig) (*JWTValidator, error) {
	if cfg == nil || !cfg.IsEnabled() {
		return nil, nil
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server.auth config: %w", err)
	}

	validator, err := NewJWTValidator(JWTValidatorConfig{
		JWKSURL:         cfg.JWKSURL,
		Issuer:          cfg.Issuer,
		Audience:        cfg.Audience,
		RefreshInterval: cfg.RefreshInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create admin token validator: %w", err)
	}
	return validator, nil
}

// AdminRole returns the role the admin API requires.
func AdminRole(cfg *config.AuthConfig) string {
	if cfg == nil || cfg.AdminRole == "" {
		return DefaultAdminRole
	}
	return cfg.AdminRole
}
