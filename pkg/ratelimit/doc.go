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

// Package ratelimit implements a sliding-log rate limiter for summarize
// requests.
//
// Every successful summary appends one UsageEvent to a Store. A new request
// is admitted when fewer than Policy.Limit events of the caller's identity
// fall inside the trailing window. The window is exclusive on its old edge:
// an event whose timestamp equals now - window is already expired.
//
// # Basic Usage
//
//	store := ratelimit.NewMemoryStore()
//	limiter, err := ratelimit.New(store, ratelimit.DefaultPolicy())
//
//	decision, err := limiter.Check(ctx, "203.0.113.7")
//	if !decision.Allowed {
//	    return ratelimit.NewRateLimitError(decision)
//	}
//	// ... perform the gated action ...
//	err = limiter.Record(ctx, "203.0.113.7")
//
// # Stores
//
//   - memory: process-local map, for development and tests
//   - sql: shared usage_events table (sqlite, postgres, mysql)
//   - redis: one sorted set per identity
//   - cookie: the caller's own log, carried in a browser cookie
//
// # Configuration
//
//	rate_limiting:
//	  enabled: true
//	  limit: 5
//	  window: 1h
//	  backend: sql
//	  sql_database: default
package ratelimit
