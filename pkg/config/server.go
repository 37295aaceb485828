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

// DefaultMaxUploadBytes caps uploaded job description documents.
const DefaultMaxUploadBytes = 10 << 20

// ServerConfig configures the HTTP server.
//
// Example:
//
//	server:
//	  host: 0.0.0.0
//	  port: 8080
//	  max_upload_bytes: 10485760
//	  tls:
//	    enabled: true
//	    cert_file: /etc/jobsum/tls.crt
//	    key_file: /etc/jobsum/tls.key
type ServerConfig struct {
	// Host to bind to.
	Host string `yaml:"host,omitempty" json:"host,omitempty"`

	// Port to listen on.
	Port int `yaml:"port,omitempty" json:"port,omitempty"`

	// MaxUploadBytes limits request bodies, including uploaded documents.
	// Default: 10 MiB
	MaxUploadBytes int64 `yaml:"max_upload_bytes,omitempty" json:"max_upload_bytes,omitempty"`

	// ReadTimeout bounds reading a request. Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout,omitempty" json:"read_timeout,omitempty"`

	// WriteTimeout bounds writing a response, generation included.
	// Default: 120s
	WriteTimeout time.Duration `yaml:"write_timeout,omitempty" json:"write_timeout,omitempty"`

	// ShutdownTimeout bounds graceful shutdown. Default: 5s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty" json:"shutdown_timeout,omitempty"`

	// TLS configuration.
	TLS *TLSConfig `yaml:"tls,omitempty" json:"tls,omitempty"`

	// Auth protects the admin endpoints with JWTs.
	Auth *AuthConfig `yaml:"auth,omitempty" json:"auth,omitempty"`
}

// TLSConfig configures TLS.
type TLSConfig struct {
	// Enabled turns on TLS.
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	// CertFile is the path to the certificate.
	CertFile string `yaml:"cert_file,omitempty" json:"cert_file,omitempty"`

	// KeyFile is the path to the private key.
	KeyFile string `yaml:"key_file,omitempty" json:"key_file,omitempty"`
}

// IsEnabled reports whether TLS is on.
func (c *TLSConfig) IsEnabled() bool {
	return c != nil && BoolValue(c.Enabled, false)
}

// SetDefaults applies default values.
func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.MaxUploadBytes == 0 {
		c.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 120 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
	if c.Auth != nil {
		c.Auth.SetDefaults()
	}
}

// Validate checks the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}

	if c.MaxUploadBytes < 0 {
		return fmt.Errorf("max_upload_bytes must be non-negative")
	}

	if c.TLS.IsEnabled() {
		if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
			return fmt.Errorf("tls requires cert_file and key_file")
		}
	}

	if c.Auth != nil {
		if err := c.Auth.Validate(); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	return nil
}

// Address returns the listen address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
