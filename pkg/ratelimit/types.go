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
	"math"
	"time"
)

const (
	// DefaultLimit is the number of summaries allowed per window.
	DefaultLimit = 5

	// DefaultWindow is the trailing window over which usage is counted.
	DefaultWindow = time.Hour
)

// UsageEvent is one successful, rate-limited action.
// Events are immutable once recorded.
type UsageEvent struct {
	Identity  string    `json:"identity"`
	Timestamp time.Time `json:"timestamp"`
}

// Policy is the admission rule applied to every identity.
type Policy struct {
	Limit  int           `json:"limit"`
	Window time.Duration `json:"window"`
}

// DefaultPolicy returns 5 events per hour.
func DefaultPolicy() Policy {
	return Policy{Limit: DefaultLimit, Window: DefaultWindow}
}

// Validate checks the policy for errors.
func (p Policy) Validate() error {
	if p.Limit <= 0 {
		return NewValidationError("limit", fmt.Sprintf("must be positive, got %d", p.Limit))
	}
	if p.Window <= 0 {
		return NewValidationError("window", fmt.Sprintf("must be positive, got %s", p.Window))
	}
	return nil
}

// Cutoff returns the expiry boundary for now. Events at or before the
// cutoff are expired.
func (p Policy) Cutoff(now time.Time) time.Time {
	return now.Add(-p.Window)
}

// Decision is the outcome of a limit check or usage query.
type Decision struct {
	Allowed   bool          `json:"allowed"`
	Identity  string        `json:"identity"`
	Count     int           `json:"count"`
	Limit     int           `json:"limit"`
	Remaining int           `json:"remaining"`
	Window    time.Duration `json:"window"`

	// RetryAfter is how long a denied caller must wait before one more
	// action is admitted. Zero when allowed.
	RetryAfter time.Duration `json:"retry_after,omitempty"`

	// ResetAt is when the oldest counted event expires. Zero when no
	// events are counted.
	ResetAt time.Time `json:"reset_at,omitempty"`
}

// decide builds a Decision from the identity's live events, oldest first.
func decide(identity string, live []UsageEvent, policy Policy, now time.Time) *Decision {
	count := len(live)
	d := &Decision{
		Allowed:   count < policy.Limit,
		Identity:  identity,
		Count:     count,
		Limit:     policy.Limit,
		Remaining: max(policy.Limit-count, 0),
		Window:    policy.Window,
	}

	if count == 0 {
		return d
	}

	d.ResetAt = live[0].Timestamp.Add(policy.Window)
	if !d.Allowed {
		// One slot frees up once all but limit-1 events have expired.
		unblock := live[count-policy.Limit].Timestamp.Add(policy.Window)
		if wait := unblock.Sub(now); wait > 0 {
			d.RetryAfter = wait
		}
	}
	return d
}

// UnixSeconds converts t to fractional seconds since the epoch, the
// persisted form of a usage timestamp.
func UnixSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/float64(time.Second)
}

// liveAt reports whether ts is strictly after cutoff, compared in persisted
// form. SQL and Redis compare floats, and a timestamp decoded from a cookie
// may sit a few hundred nanoseconds off its original, so in-process stores
// compare the same way to draw the window edge identically.
func liveAt(ts, cutoff time.Time) bool {
	return UnixSeconds(ts) > UnixSeconds(cutoff)
}

// FromUnixSeconds converts fractional epoch seconds back to a time.Time.
func FromUnixSeconds(s float64) time.Time {
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(math.Round(frac*float64(time.Second))))
}
