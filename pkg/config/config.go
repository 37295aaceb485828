// Package config defines the jobsum configuration file and its loading
// pipeline.
//
// A configuration is read from a provider (file, consul, etcd or
// zookeeper), parsed as YAML or JSON, environment-expanded, decoded,
// defaulted and validated:
//
//	server:
//	  port: 8080
//	generator:
//	  api_key: ${GOOGLE_API_KEY}
//	rate_limiting:
//	  limit: 5
//	  window: 1h
//	  backend: sql
//	  sql_database: default
//	databases:
//	  default:
//	    driver: sqlite
//	    database: ./jobsum.db
package config

import (
	"fmt"
	"sort"

	"github.com/kadirpekel/jobsum/pkg/observability"
)

// Config is the root configuration.
type Config struct {
	// Server configures the HTTP listener, uploads and admin auth.
	Server ServerConfig `yaml:"server,omitempty" json:"server,omitempty"`

	// Logger configures logging.
	Logger LoggerConfig `yaml:"logger,omitempty" json:"logger,omitempty"`

	// Generator configures the text-generation model.
	Generator GeneratorConfig `yaml:"generator,omitempty" json:"generator,omitempty"`

	// RateLimiting configures per-identity usage limits.
	RateLimiting RateLimitConfig `yaml:"rate_limiting,omitempty" json:"rate_limiting,omitempty"`

	// Databases are named SQL connections referenced by other sections.
	Databases map[string]*DatabaseConfig `yaml:"databases,omitempty" json:"databases,omitempty"`

	// Observability configures tracing and metrics.
	Observability observability.Config `yaml:"observability,omitempty" json:"observability,omitempty"`
}

// Default returns a configuration with every default applied. It is used
// when no config file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults applies default values to every section.
func (c *Config) SetDefaults() {
	c.Server.SetDefaults()
	c.Logger.SetDefaults()
	c.Generator.SetDefaults()
	c.RateLimiting.SetDefaults()
	c.Observability.SetDefaults()

	if c.Databases == nil {
		c.Databases = make(map[string]*DatabaseConfig)
	}
	for _, db := range c.Databases {
		if db != nil {
			db.SetDefaults()
		}
	}
}

// Validate checks every section and cross-references between them.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Logger.Validate(); err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	if err := c.Generator.Validate(); err != nil {
		return fmt.Errorf("generator: %w", err)
	}
	if err := c.RateLimiting.Validate(); err != nil {
		return err
	}
	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("observability: %w", err)
	}

	for _, name := range c.DatabaseNames() {
		db := c.Databases[name]
		if db == nil {
			return fmt.Errorf("databases.%s: definition is empty", name)
		}
		if err := db.Validate(); err != nil {
			return fmt.Errorf("databases.%s: %w", name, err)
		}
	}

	if c.RateLimiting.IsEnabled() && c.RateLimiting.Backend == BackendSQL {
		if _, ok := c.GetDatabase(c.RateLimiting.SQLDatabase); !ok {
			return fmt.Errorf("rate_limiting.sql_database %q is not defined in databases", c.RateLimiting.SQLDatabase)
		}
	}

	return nil
}

// GetDatabase returns a named database definition.
func (c *Config) GetDatabase(name string) (*DatabaseConfig, bool) {
	db, ok := c.Databases[name]
	if !ok || db == nil {
		return nil, false
	}
	return db, true
}

// DatabaseNames returns the defined database names in sorted order.
func (c *Config) DatabaseNames() []string {
	names := make([]string, 0, len(c.Databases))
	for name := range c.Databases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
