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
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisKeyPrefix namespaces all keys written by RedisStore.
const DefaultRedisKeyPrefix = "jobsum:usage:"

// RedisStore keeps one sorted set per identity, scored by epoch seconds.
// A companion set indexes the identities that currently hold events so
// Prune can visit them without SCAN.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a Redis-backed store and verifies connectivity.
func NewRedisStore(client redis.UniversalClient, prefix string) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{
		client: client,
		prefix: prefix,
	}, nil
}

func (s *RedisStore) eventsKey(identity string) string {
	return s.prefix + "events:" + identity
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "identities"
}

func formatScore(t time.Time) string {
	return strconv.FormatFloat(UnixSeconds(t), 'f', -1, 64)
}

// Query returns the identity's events after cutoff, oldest first.
func (s *RedisStore) Query(ctx context.Context, identity string, cutoff time.Time) ([]UsageEvent, error) {
	members, err := s.client.ZRangeByScoreWithScores(ctx, s.eventsKey(identity), &redis.ZRangeBy{
		Min: "(" + formatScore(cutoff),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query usage: %w", err)
	}

	events := make([]UsageEvent, 0, len(members))
	for _, m := range members {
		events = append(events, UsageEvent{Identity: identity, Timestamp: FromUnixSeconds(m.Score)})
	}
	return events, nil
}

// Insert appends an event. Members are random so equal timestamps do not
// collapse into one entry.
func (s *RedisStore) Insert(ctx context.Context, event UsageEvent) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, s.eventsKey(event.Identity), redis.Z{
			Score:  UnixSeconds(event.Timestamp),
			Member: uuid.NewString(),
		})
		pipe.SAdd(ctx, s.indexKey(), event.Identity)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to insert usage: %w", err)
	}
	return nil
}

//go:embed prune.lua
var pruneSource string

// pruneScript trims one identity's events and unindexes it once empty, in
// one step so a concurrent Insert cannot land between the count and SREM.
var pruneScript = redis.NewScript(pruneSource)

// Prune deletes events at or before cutoff across all identities.
func (s *RedisStore) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	identities, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list identities: %w", err)
	}

	upper := formatScore(cutoff)
	removed := 0
	for _, identity := range identities {
		keys := []string{s.eventsKey(identity), s.indexKey()}
		n, err := pruneScript.Run(ctx, s.client, keys, upper, identity).Int()
		if err != nil {
			return removed, fmt.Errorf("failed to prune usage for %q: %w", identity, err)
		}
		removed += n
	}
	return removed, nil
}

// Reset deletes all events of an identity.
func (s *RedisStore) Reset(ctx context.Context, identity string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.eventsKey(identity))
		pipe.SRem(ctx, s.indexKey(), identity)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to reset usage: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
