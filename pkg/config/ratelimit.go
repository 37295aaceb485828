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

package config

import (
	"fmt"
	"time"
)

// Rate limit backends.
const (
	BackendMemory = "memory"
	BackendSQL    = "sql"
	BackendRedis  = "redis"
)

// Identity strategies.
const (
	// IdentityAddress keys usage by the forwarded client address and keeps
	// the log server-side.
	IdentityAddress = "address"

	// IdentityCookie keeps each client's log in its own cookie.
	IdentityCookie = "cookie"
)

// RateLimitConfig defines rate limiting configuration.
//
// Example:
//
//	rate_limiting:
//	  enabled: true
//	  limit: 5
//	  window: 1h
//	  identity:
//	    strategy: address
//	    header: X-Forwarded-For
//	  backend: redis
//	  redis:
//	    addr: localhost:6379
//	  sweep_interval: 10m
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active. Default: true
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	// Limit is the number of summaries allowed per window. Default: 5
	Limit int `yaml:"limit,omitempty" json:"limit,omitempty"`

	// Window is the trailing window. Default: 1h
	Window time.Duration `yaml:"window,omitempty" json:"window,omitempty"`

	// Identity selects how callers are told apart.
	Identity IdentityConfig `yaml:"identity,omitempty" json:"identity,omitempty"`

	// Cookie configures the usage log cookie (identity strategy "cookie").
	Cookie CookieConfig `yaml:"cookie,omitempty" json:"cookie,omitempty"`

	// Backend is the server-side store ("memory", "sql" or "redis").
	// Ignored by the cookie strategy except for CLI maintenance commands.
	Backend string `yaml:"backend,omitempty" json:"backend,omitempty" jsonschema:"enum=memory,enum=sql,enum=redis"`

	// SQLDatabase references an entry of the databases section.
	// Required when backend is "sql".
	SQLDatabase string `yaml:"sql_database,omitempty" json:"sql_database,omitempty"`

	// Redis configures the redis backend.
	Redis RedisConfig `yaml:"redis,omitempty" json:"redis,omitempty"`

	// SweepInterval runs a background prune of expired events.
	// Zero disables the sweeper; checks prune on their own.
	SweepInterval time.Duration `yaml:"sweep_interval,omitempty" json:"sweep_interval,omitempty"`
}

// IdentityConfig configures the identity resolver.
type IdentityConfig struct {
	// Strategy is "address" (default) or "cookie".
	Strategy string `yaml:"strategy,omitempty" json:"strategy,omitempty" jsonschema:"enum=address,enum=cookie"`

	// Header carries the forwarded client address chain.
	// Default: X-Forwarded-For
	Header string `yaml:"header,omitempty" json:"header,omitempty"`

	// TrustRemoteAddr falls back to the connection's peer address when the
	// header is missing. Default: false
	TrustRemoteAddr bool `yaml:"trust_remote_addr,omitempty" json:"trust_remote_addr,omitempty"`
}

// CookieConfig configures the usage log cookie.
type CookieConfig struct {
	// Name of the cookie. Default: usage_log
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// MaxAge of the cookie. Default: 30 days
	MaxAge time.Duration `yaml:"max_age,omitempty" json:"max_age,omitempty"`

	// Secure marks the cookie HTTPS-only.
	Secure bool `yaml:"secure,omitempty" json:"secure,omitempty"`
}

// RedisConfig configures the redis usage store.
type RedisConfig struct {
	Addr      string `yaml:"addr,omitempty" json:"addr,omitempty"`
	Username  string `yaml:"username,omitempty" json:"username,omitempty"`
	Password  string `yaml:"password,omitempty" json:"password,omitempty"`
	DB        int    `yaml:"db,omitempty" json:"db,omitempty"`
	KeyPrefix string `yaml:"key_prefix,omitempty" json:"key_prefix,omitempty"`
}

// IsEnabled returns true if rate limiting is enabled.
func (c *RateLimitConfig) IsEnabled() bool {
	return c != nil && BoolValue(c.Enabled, true)
}

// SetDefaults sets default values for RateLimitConfig.
func (c *RateLimitConfig) SetDefaults() {
	if c.Enabled == nil {
		c.Enabled = BoolPtr(true)
	}
	if c.Limit == 0 {
		c.Limit = 5
	}
	if c.Window == 0 {
		c.Window = time.Hour
	}
	if c.Identity.Strategy == "" {
		c.Identity.Strategy = IdentityAddress
	}
	if c.Identity.Header == "" {
		c.Identity.Header = "X-Forwarded-For"
	}
	if c.Cookie.Name == "" {
		c.Cookie.Name = "usage_log"
	}
	if c.Cookie.MaxAge == 0 {
		c.Cookie.MaxAge = 30 * 24 * time.Hour
	}
	if c.Backend == "" {
		c.Backend = BackendMemory
	}
	if c.Backend == BackendRedis {
		if c.Redis.Addr == "" {
			c.Redis.Addr = "localhost:6379"
		}
		if c.Redis.KeyPrefix == "" {
			c.Redis.KeyPrefix = "jobsum:usage:"
		}
	}
}

// Validate validates the RateLimitConfig.
func (c *RateLimitConfig) Validate() error {
	if !c.IsEnabled() {
		return nil
	}

	if c.Limit <= 0 {
		return fmt.Errorf("rate_limiting.limit must be positive")
	}

	if c.Window <= 0 {
		return fmt.Errorf("rate_limiting.window must be positive")
	}

	if c.Identity.Strategy != IdentityAddress && c.Identity.Strategy != IdentityCookie {
		return fmt.Errorf("invalid rate_limiting.identity.strategy '%s', must be 'address' or 'cookie'", c.Identity.Strategy)
	}

	switch c.Backend {
	case BackendMemory, BackendRedis:
	case BackendSQL:
		if c.SQLDatabase == "" {
			return fmt.Errorf("rate_limiting.backend 'sql' requires 'sql_database' reference")
		}
	default:
		return fmt.Errorf("invalid rate_limiting.backend '%s', must be 'memory', 'sql' or 'redis'", c.Backend)
	}

	if c.SweepInterval < 0 {
		return fmt.Errorf("rate_limiting.sweep_interval must be non-negative")
	}

	if c.Cookie.MaxAge < 0 {
		return fmt.Errorf("rate_limiting.cookie.max_age must be non-negative")
	}

	return nil
}
