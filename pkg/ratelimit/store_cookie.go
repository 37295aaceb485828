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
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultCookieName is the cookie carrying the client-local usage log.
	DefaultCookieName = "usage_log"

	// maxCookieEvents bounds a decoded log; larger payloads are rejected.
	maxCookieEvents = 1024
)

// EncodeUsageLog serializes timestamps as a base64url JSON array of epoch
// seconds, safe to use as a cookie value.
func EncodeUsageLog(timestamps []time.Time) string {
	secs := make([]float64, len(timestamps))
	for i, ts := range timestamps {
		secs[i] = UnixSeconds(ts)
	}
	raw, _ := json.Marshal(secs)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeUsageLog parses a cookie value produced by EncodeUsageLog. A bare
// JSON array is accepted as well. Every element must be a finite,
// non-negative number. The result is sorted oldest first.
func DecodeUsageLog(value string) ([]time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	raw := []byte(value)
	if !strings.HasPrefix(value, "[") {
		decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(value, "="))
		if err != nil {
			return nil, fmt.Errorf("usage log is not base64url: %w", err)
		}
		raw = decoded
	}

	var secs []float64
	if err := json.Unmarshal(raw, &secs); err != nil {
		return nil, fmt.Errorf("usage log is not a list of numbers: %w", err)
	}
	if len(secs) > maxCookieEvents {
		return nil, fmt.Errorf("usage log has %d entries (max %d)", len(secs), maxCookieEvents)
	}

	timestamps := make([]time.Time, 0, len(secs))
	for i, s := range secs {
		if math.IsNaN(s) || math.IsInf(s, 0) || s < 0 {
			return nil, fmt.Errorf("usage log entry %d is not a valid timestamp: %v", i, s)
		}
		timestamps = append(timestamps, FromUnixSeconds(s))
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i].Before(timestamps[j]) })

	return timestamps, nil
}

// CookieStore is a Store scoped to a single client whose usage log travels
// in a cookie. It lives for one request: build it from the incoming cookie,
// run the limiter against it, then write Cookie() back to the response.
//
// Every event belongs to the client, so the identity argument only labels
// the returned events.
type CookieStore struct {
	mu         sync.Mutex
	timestamps []time.Time
	modified   bool
	invalid    bool
}

// NewCookieStore decodes a cookie value. Malformed values yield an empty
// log; Invalid reports whether that happened.
func NewCookieStore(value string) *CookieStore {
	timestamps, err := DecodeUsageLog(value)
	if err != nil {
		return &CookieStore{invalid: true}
	}
	return &CookieStore{timestamps: timestamps}
}

// CookieStoreFromRequest builds a CookieStore from the named request cookie.
// A missing cookie yields an empty log.
func CookieStoreFromRequest(r *http.Request, name string) *CookieStore {
	c, err := r.Cookie(name)
	if err != nil {
		return NewCookieStore("")
	}
	return NewCookieStore(c.Value)
}

// Query returns events after cutoff, oldest first.
func (s *CookieStore) Query(ctx context.Context, identity string, cutoff time.Time) ([]UsageEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var live []UsageEvent
	for _, ts := range s.timestamps {
		if liveAt(ts, cutoff) {
			live = append(live, UsageEvent{Identity: identity, Timestamp: ts})
		}
	}
	return live, nil
}

// Insert appends an event.
func (s *CookieStore) Insert(ctx context.Context, event UsageEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.timestamps = append(s.timestamps, event.Timestamp)
	sort.SliceStable(s.timestamps, func(i, j int) bool { return s.timestamps[i].Before(s.timestamps[j]) })
	s.modified = true
	return nil
}

// Prune drops events at or before cutoff. The log is marked modified even
// when nothing expired so the cookie is rewritten on every check.
func (s *CookieStore) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.timestamps[:0]
	for _, ts := range s.timestamps {
		if liveAt(ts, cutoff) {
			kept = append(kept, ts)
		}
	}
	removed := len(s.timestamps) - len(kept)
	s.timestamps = kept
	s.modified = true
	return removed, nil
}

// Close is a no-op.
func (s *CookieStore) Close() error {
	return nil
}

// Modified reports whether the log changed since it was decoded.
func (s *CookieStore) Modified() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modified
}

// Invalid reports whether the incoming cookie was malformed and discarded.
func (s *CookieStore) Invalid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invalid
}

// Len returns the number of events in the log.
func (s *CookieStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timestamps)
}

// Value returns the encoded log.
func (s *CookieStore) Value() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return EncodeUsageLog(s.timestamps)
}

// CookieOptions controls the attributes of the usage log cookie.
type CookieOptions struct {
	Name   string
	MaxAge time.Duration
	Secure bool
}

// Cookie returns the usage log as an HTTP cookie.
func (s *CookieStore) Cookie(opts CookieOptions) *http.Cookie {
	name := opts.Name
	if name == "" {
		name = DefaultCookieName
	}
	return &http.Cookie{
		Name:     name,
		Value:    s.Value(),
		Path:     "/",
		MaxAge:   int(opts.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
