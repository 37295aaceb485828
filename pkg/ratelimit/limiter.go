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
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Clock returns the current time.
type Clock func() time.Time

// PruneHook is called after a prune that removed at least one event.
type PruneHook func(ctx context.Context, removed int)

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now, mainly for tests.
func WithClock(clock Clock) Option {
	return func(l *Limiter) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// WithPruneHook registers a callback for removed events.
func WithPruneHook(hook PruneHook) Option {
	return func(l *Limiter) {
		l.onPrune = hook
	}
}

// Limiter admits at most Policy.Limit actions per identity within the
// trailing Policy.Window.
//
// Check and Record are separate calls so that only successful actions
// consume quota. Two concurrent requests of one identity may both pass
// Check near the limit.
type Limiter struct {
	store   Store
	clock   Clock
	onPrune PruneHook

	mu     sync.RWMutex
	policy Policy
}

// New creates a limiter over store.
func New(store Store, policy Policy, opts ...Option) (*Limiter, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rate limit policy: %w", err)
	}

	l := &Limiter{
		store:  store,
		clock:  time.Now,
		policy: policy,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// WithStore returns a limiter sharing this limiter's policy snapshot, clock
// and hook but backed by another store. Used for per-request cookie stores.
func (l *Limiter) WithStore(store Store) *Limiter {
	return &Limiter{
		store:   store,
		clock:   l.clock,
		onPrune: l.onPrune,
		policy:  l.Policy(),
	}
}

// Store returns the backing store.
func (l *Limiter) Store() Store {
	return l.store
}

// Policy returns the active policy.
func (l *Limiter) Policy() Policy {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.policy
}

// SetPolicy swaps the active policy, e.g. on config reload.
func (l *Limiter) SetPolicy(policy Policy) error {
	if err := policy.Validate(); err != nil {
		return fmt.Errorf("invalid rate limit policy: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.policy = policy
	return nil
}

// Check prunes expired events of every identity from the store, then
// decides whether identity may perform one more action. It never records.
func (l *Limiter) Check(ctx context.Context, identity string) (*Decision, error) {
	if identity == "" {
		return nil, ErrInvalidIdentity
	}

	policy := l.Policy()
	now := l.clock()
	cutoff := policy.Cutoff(now)

	if _, err := l.prune(ctx, cutoff); err != nil {
		return nil, err
	}

	live, err := l.store.Query(ctx, identity, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to get usage for %s: %w", identity, err)
	}

	decision := decide(identity, live, policy, now)
	if !decision.Allowed {
		slog.Debug("Rate limit reached", "identity", identity, "count", decision.Count, "limit", decision.Limit)
	}
	return decision, nil
}

// Usage reports identity's current usage without pruning the store.
func (l *Limiter) Usage(ctx context.Context, identity string) (*Decision, error) {
	if identity == "" {
		return nil, ErrInvalidIdentity
	}

	policy := l.Policy()
	now := l.clock()

	live, err := l.store.Query(ctx, identity, policy.Cutoff(now))
	if err != nil {
		return nil, fmt.Errorf("failed to get usage for %s: %w", identity, err)
	}
	return decide(identity, live, policy, now), nil
}

// Record appends one usage event for identity stamped with the current time.
// Call it only after the gated action succeeded.
func (l *Limiter) Record(ctx context.Context, identity string) error {
	if identity == "" {
		return ErrInvalidIdentity
	}

	event := UsageEvent{Identity: identity, Timestamp: l.clock()}
	if err := l.store.Insert(ctx, event); err != nil {
		return fmt.Errorf("failed to record usage for %s: %w", identity, err)
	}
	return nil
}

// Prune removes every expired event and returns how many were removed.
func (l *Limiter) Prune(ctx context.Context) (int, error) {
	return l.prune(ctx, l.Policy().Cutoff(l.clock()))
}

func (l *Limiter) prune(ctx context.Context, cutoff time.Time) (int, error) {
	removed, err := l.store.Prune(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune expired usage: %w", err)
	}
	if removed > 0 {
		slog.Debug("Pruned expired usage events", "removed", removed)
		if l.onPrune != nil {
			l.onPrune(ctx, removed)
		}
	}
	return removed, nil
}

// Reset deletes all of identity's events.
func (l *Limiter) Reset(ctx context.Context, identity string) error {
	if identity == "" {
		return ErrInvalidIdentity
	}

	r, ok := l.store.(Resetter)
	if !ok {
		return ErrResetUnsupported
	}
	if err := r.Reset(ctx, identity); err != nil {
		return fmt.Errorf("failed to reset usage for %s: %w", identity, err)
	}
	return nil
}

// Close closes the backing store.
func (l *Limiter) Close() error {
	return l.store.Close()
}
