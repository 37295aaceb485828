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
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store.
// It is thread-safe and suitable for development, testing, and single-instance deployments.
type MemoryStore struct {
	events map[string][]UsageEvent
	mu     sync.RWMutex
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events: make(map[string][]UsageEvent),
	}
}

// Query returns the identity's events after cutoff, oldest first.
func (s *MemoryStore) Query(ctx context.Context, identity string, cutoff time.Time) ([]UsageEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var live []UsageEvent
	for _, ev := range s.events[identity] {
		if liveAt(ev.Timestamp, cutoff) {
			live = append(live, ev)
		}
	}
	return live, nil
}

// Insert appends an event, keeping the identity's log ordered by time.
func (s *MemoryStore) Insert(ctx context.Context, event UsageEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := append(s.events[event.Identity], event)
	if n := len(log); n > 1 && log[n-1].Timestamp.Before(log[n-2].Timestamp) {
		sort.SliceStable(log, func(i, j int) bool {
			return log[i].Timestamp.Before(log[j].Timestamp)
		})
	}
	s.events[event.Identity] = log
	return nil
}

// Prune deletes events at or before cutoff across all identities.
func (s *MemoryStore) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for identity, log := range s.events {
		kept := log[:0]
		for _, ev := range log {
			if liveAt(ev.Timestamp, cutoff) {
				kept = append(kept, ev)
			} else {
				removed++
			}
		}
		if len(kept) == 0 {
			delete(s.events, identity)
			continue
		}
		s.events[identity] = kept
	}
	return removed, nil
}

// Reset deletes all events of an identity.
func (s *MemoryStore) Reset(ctx context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.events, identity)
	return nil
}

// Close clears the store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = make(map[string][]UsageEvent)
	return nil
}

// Size returns the number of events in the store (for testing).
func (s *MemoryStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, log := range s.events {
		n += len(log)
	}
	return n
}
