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
	"context"
	"time"
)

// Store persists usage events.
//
// Implementations must be safe for concurrent use per operation. The
// limiter does not require check-then-record atomicity across calls.
type Store interface {
	// Query returns the identity's events with timestamp strictly after
	// cutoff, oldest first.
	Query(ctx context.Context, identity string, cutoff time.Time) ([]UsageEvent, error)

	// Insert appends one event.
	Insert(ctx context.Context, event UsageEvent) error

	// Prune deletes every event, of any identity, with timestamp at or
	// before cutoff. It returns the number of events removed.
	Prune(ctx context.Context, cutoff time.Time) (int, error)

	// Close releases resources held by the store.
	Close() error
}

// Resetter is implemented by stores that can drop all events of one
// identity.
type Resetter interface {
	Reset(ctx context.Context, identity string) error
}

// Ensure interface compliance at compile time.
var (
	_ Store    = (*MemoryStore)(nil)
	_ Store    = (*SQLStore)(nil)
	_ Store    = (*RedisStore)(nil)
	_ Store    = (*CookieStore)(nil)
	_ Resetter = (*MemoryStore)(nil)
	_ Resetter = (*SQLStore)(nil)
	_ Resetter = (*RedisStore)(nil)
)
