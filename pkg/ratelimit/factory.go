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

package ratelimit

import (
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/kadirpekel/jobsum/pkg/config"
)

// PolicyFromConfig builds the admission policy.
func PolicyFromConfig(cfg config.RateLimitConfig) Policy {
	return Policy{Limit: cfg.Limit, Window: cfg.Window}
}

// NewStoreFromConfig creates the server-side store selected by
// rate_limiting.backend. SQL stores borrow their connection from pool.
//
// Example config:
//
//	databases:
//	  default:
//	    driver: sqlite
//	    database: ./.jobsum/jobsum.db
//
//	rate_limiting:
//	  backend: sql
//	  sql_database: default
func NewStoreFromConfig(cfg *config.Config, pool *config.DBPool) (Store, error) {
	rl := cfg.RateLimiting

	switch rl.Backend {
	case config.BackendSQL:
		if pool == nil {
			return nil, fmt.Errorf("DBPool is required for SQL rate limit backend")
		}

		dbCfg, ok := cfg.GetDatabase(rl.SQLDatabase)
		if !ok {
			return nil, fmt.Errorf("database %q not found", rl.SQLDatabase)
		}

		db, err := pool.Get(dbCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to get database connection: %w", err)
		}

		store, err := NewSQLStore(db, dbCfg.Dialect())
		if err != nil {
			return nil, fmt.Errorf("failed to create SQL store: %w", err)
		}
		slog.Debug("Using SQL usage store", "database", rl.SQLDatabase, "dialect", dbCfg.Dialect())
		return store, nil

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     rl.Redis.Addr,
			Username: rl.Redis.Username,
			Password: rl.Redis.Password,
			DB:       rl.Redis.DB,
		})
		store, err := NewRedisStore(client, rl.Redis.KeyPrefix)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to create redis store: %w", err)
		}
		slog.Debug("Using redis usage store", "addr", rl.Redis.Addr)
		return store, nil

	case config.BackendMemory, "":
		return NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("unsupported rate limit backend: %s", rl.Backend)
	}
}

// NewLimiterFromConfig creates the limiter with its server-side store.
// It returns nil when rate limiting is disabled.
func NewLimiterFromConfig(cfg *config.Config, pool *config.DBPool, opts ...Option) (*Limiter, error) {
	if !cfg.RateLimiting.IsEnabled() {
		return nil, nil
	}

	store, err := NewStoreFromConfig(cfg, pool)
	if err != nil {
		return nil, err
	}

	limiter, err := New(store, PolicyFromConfig(cfg.RateLimiting), opts...)
	if err != nil {
		store.Close()
		return nil, err
	}
	return limiter, nil
}
