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
	"net/url"
	"sort"
	"strings"
)

// DatabaseConfig describes one named SQL connection.
// Supports PostgreSQL, MySQL, and SQLite.
//
//	databases:
//	  default:
//	    driver: postgres
//	    host: db.internal
//	    database: jobsum
//	    username: jobsum
//	    password: ${DB_PASSWORD}
type DatabaseConfig struct {
	// Driver is "postgres", "mysql" or "sqlite".
	Driver string `yaml:"driver" json:"driver" jsonschema:"enum=postgres,enum=mysql,enum=sqlite,enum=sqlite3"`

	// Host is the database server hostname (not used by SQLite).
	Host string `yaml:"host,omitempty" json:"host,omitempty"`

	// Port is the database server port (not used by SQLite).
	Port int `yaml:"port,omitempty" json:"port,omitempty"`

	// Database is the database name, or the file path for SQLite
	// (":memory:" for an in-process database).
	Database string `yaml:"database" json:"database"`

	Username string `yaml:"username,omitempty" json:"username,omitempty"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`

	// SSLMode for PostgreSQL connections. Default: disable
	SSLMode string `yaml:"ssl_mode,omitempty" json:"ssl_mode,omitempty"`

	// Params are extra driver parameters appended to the DSN.
	Params map[string]string `yaml:"params,omitempty" json:"params,omitempty"`

	// MaxConns is the maximum number of open connections. Default: 10
	MaxConns int `yaml:"max_conns,omitempty" json:"max_conns,omitempty"`

	// MaxIdle is the maximum number of idle connections. Default: 2
	MaxIdle int `yaml:"max_idle,omitempty" json:"max_idle,omitempty"`
}

// SetDefaults applies default values to the database config.
func (c *DatabaseConfig) SetDefaults() {
	if c.MaxConns == 0 {
		c.MaxConns = 10
	}
	if c.MaxIdle == 0 {
		c.MaxIdle = 2
	}

	switch c.Dialect() {
	case "postgres":
		if c.Port == 0 {
			c.Port = 5432
		}
		if c.SSLMode == "" {
			c.SSLMode = "disable"
		}
	case "mysql":
		if c.Port == 0 {
			c.Port = 3306
		}
	}
}

// Validate checks the database configuration.
func (c *DatabaseConfig) Validate() error {
	switch c.Driver {
	case "":
		return fmt.Errorf("driver is required")
	case "postgres", "mysql", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("invalid driver %q (valid: postgres, mysql, sqlite)", c.Driver)
	}

	if c.Database == "" {
		return fmt.Errorf("database is required")
	}

	if c.Dialect() != "sqlite" && c.Host == "" {
		return fmt.Errorf("host is required for %s", c.Driver)
	}

	if c.MaxConns < 0 || c.MaxIdle < 0 {
		return fmt.Errorf("max_conns and max_idle must be non-negative")
	}

	return nil
}

// IsInMemory reports whether this is an in-process SQLite database.
func (c *DatabaseConfig) IsInMemory() bool {
	return c.Dialect() == "sqlite" && (c.Database == ":memory:" || strings.Contains(c.Database, "mode=memory"))
}

// DSN returns the data source name for sql.Open.
func (c *DatabaseConfig) DSN() string {
	switch c.Dialect() {
	case "postgres":
		parts := []string{
			fmt.Sprintf("host=%s", c.Host),
			fmt.Sprintf("port=%d", c.Port),
			fmt.Sprintf("dbname=%s", c.Database),
		}
		if c.Username != "" {
			parts = append(parts, fmt.Sprintf("user=%s", c.Username))
		}
		if c.Password != "" {
			parts = append(parts, fmt.Sprintf("password=%s", c.Password))
		}
		if c.SSLMode != "" {
			parts = append(parts, fmt.Sprintf("sslmode=%s", c.SSLMode))
		}
		for _, k := range sortedKeys(c.Params) {
			parts = append(parts, fmt.Sprintf("%s=%s", k, c.Params[k]))
		}
		return strings.Join(parts, " ")
	case "mysql":
		// [username[:password]@]tcp(host:port)/dbname[?params]
		dsn := fmt.Sprintf("tcp(%s:%d)/%s", c.Host, c.Port, c.Database)
		if c.Username != "" {
			dsn = fmt.Sprintf("%s:%s@%s", c.Username, c.Password, dsn)
		}
		return dsn + encodeParams(c.Params)
	case "sqlite":
		return c.Database + encodeParams(c.Params)
	default:
		return ""
	}
}

// DriverName returns the registered database/sql driver name.
func (c *DatabaseConfig) DriverName() string {
	if c.Driver == "sqlite" {
		return "sqlite3"
	}
	return c.Driver
}

// Dialect returns the normalized SQL dialect: postgres, mysql or sqlite.
func (c *DatabaseConfig) Dialect() string {
	if c.Driver == "sqlite3" {
		return "sqlite"
	}
	return c.Driver
}

func encodeParams(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	return "?" + values.Encode()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
