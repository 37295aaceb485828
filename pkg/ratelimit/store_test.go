package ratelimit

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(sec int) time.Time {
	return epoch.Add(time.Duration(sec) * time.Second)
}

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLStore(db, "sqlite")
	require.NoError(t, err)
	return store
}

func newMiniredisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	store, err := NewRedisStore(client, "test:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// sharedStores are the server-side stores keyed by identity.
func sharedStores(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": newSQLiteStore(t),
		"redis":  newMiniredisStore(t),
	}
}

func timestamps(events []UsageEvent) []time.Time {
	out := make([]time.Time, len(events))
	for i, ev := range events {
		out[i] = ev.Timestamp
	}
	return out
}

func TestStores_QueryIsExclusiveAndOrdered(t *testing.T) {
	ctx := context.Background()
	for name, store := range sharedStores(t) {
		t.Run(name, func(t *testing.T) {
			for _, sec := range []int{30, 10, 20} {
				require.NoError(t, store.Insert(ctx, UsageEvent{Identity: "a", Timestamp: at(sec)}))
			}
			require.NoError(t, store.Insert(ctx, UsageEvent{Identity: "b", Timestamp: at(15)}))

			live, err := store.Query(ctx, "a", at(10))
			require.NoError(t, err)
			got := timestamps(live)
			require.Len(t, got, 2)
			assert.True(t, got[0].Equal(at(20)), "got %v", got)
			assert.True(t, got[1].Equal(at(30)), "got %v", got)
			for _, ev := range live {
				assert.Equal(t, "a", ev.Identity)
			}
		})
	}
}

func TestStores_DuplicateTimestampsAreKept(t *testing.T) {
	ctx := context.Background()
	for name, store := range sharedStores(t) {
		t.Run(name, func(t *testing.T) {
			ev := UsageEvent{Identity: "a", Timestamp: at(5)}
			require.NoError(t, store.Insert(ctx, ev))
			require.NoError(t, store.Insert(ctx, ev))

			live, err := store.Query(ctx, "a", at(0))
			require.NoError(t, err)
			assert.Len(t, live, 2)
		})
	}
}

func TestStores_PruneAcrossIdentities(t *testing.T) {
	ctx := context.Background()
	for name, store := range sharedStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Insert(ctx, UsageEvent{Identity: "a", Timestamp: at(0)}))
			require.NoError(t, store.Insert(ctx, UsageEvent{Identity: "a", Timestamp: at(100)}))
			require.NoError(t, store.Insert(ctx, UsageEvent{Identity: "b", Timestamp: at(100)}))
			require.NoError(t, store.Insert(ctx, UsageEvent{Identity: "b", Timestamp: at(101)}))

			removed, err := store.Prune(ctx, at(100))
			require.NoError(t, err)
			assert.Equal(t, 3, removed, "events at the cutoff are removed too")

			a, err := store.Query(ctx, "a", at(-1))
			require.NoError(t, err)
			assert.Empty(t, a)

			b, err := store.Query(ctx, "b", at(-1))
			require.NoError(t, err)
			require.Len(t, b, 1)
			assert.True(t, b[0].Timestamp.Equal(at(101)))

			removed, err = store.Prune(ctx, at(100))
			require.NoError(t, err)
			assert.Zero(t, removed)
		})
	}
}

func TestStores_Reset(t *testing.T) {
	ctx := context.Background()
	for name, store := range sharedStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Insert(ctx, UsageEvent{Identity: "a", Timestamp: at(1)}))
			require.NoError(t, store.Insert(ctx, UsageEvent{Identity: "b", Timestamp: at(1)}))

			require.NoError(t, store.(Resetter).Reset(ctx, "a"))

			a, err := store.Query(ctx, "a", at(0))
			require.NoError(t, err)
			assert.Empty(t, a)

			b, err := store.Query(ctx, "b", at(0))
			require.NoError(t, err)
			assert.Len(t, b, 1)
		})
	}
}

func TestStores_FractionalTimestamps(t *testing.T) {
	ctx := context.Background()
	for name, store := range sharedStores(t) {
		t.Run(name, func(t *testing.T) {
			ts := epoch.Add(1500 * time.Millisecond)
			require.NoError(t, store.Insert(ctx, UsageEvent{Identity: "a", Timestamp: ts}))

			live, err := store.Query(ctx, "a", at(1))
			require.NoError(t, err)
			require.Len(t, live, 1)
			assert.WithinDuration(t, ts, live[0].Timestamp, time.Microsecond)

			live, err = store.Query(ctx, "a", at(2))
			require.NoError(t, err)
			assert.Empty(t, live)
		})
	}
}

// edgeOffsets are sub-second offsets whose float seconds do not all map
// back to the same nanosecond.
var edgeOffsets = []time.Duration{
	100 * time.Millisecond,
	300 * time.Millisecond,
	700 * time.Millisecond,
	123456789 * time.Nanosecond,
	987654321 * time.Nanosecond,
}

// allStores adds a cookie store whose log has been through the cookie
// encoding, as it is between requests.
func allStores(t *testing.T) map[string]func(events []UsageEvent) Store {
	stores := map[string]func(events []UsageEvent) Store{}
	for name, store := range sharedStores(t) {
		store := store
		stores[name] = func(events []UsageEvent) Store {
			for _, ev := range events {
				require.NoError(t, store.Insert(context.Background(), ev))
			}
			return store
		}
	}
	stores["cookie"] = func(events []UsageEvent) Store {
		log := make([]time.Time, len(events))
		for i, ev := range events {
			log[i] = ev.Timestamp
		}
		return NewCookieStore(EncodeUsageLog(log))
	}
	return stores
}

func TestStores_FractionalCutoffIsExclusive(t *testing.T) {
	ctx := context.Background()
	for name, build := range allStores(t) {
		t.Run(name, func(t *testing.T) {
			for i, offset := range edgeOffsets {
				ts := at(10 * (i + 1)).Add(offset)
				store := build([]UsageEvent{{Identity: name, Timestamp: ts}})

				live, err := store.Query(ctx, name, ts)
				require.NoError(t, err)
				assert.Empty(t, live, "event at the cutoff %v is live", offset)

				live, err = store.Query(ctx, name, ts.Add(-time.Microsecond))
				require.NoError(t, err)
				assert.Len(t, live, 1, "event after the cutoff %v expired", offset)

				n, err := store.Prune(ctx, ts)
				require.NoError(t, err)
				assert.Equal(t, 1, n, "prune at %v", offset)
			}
		})
	}
}

func TestStores_LimiterExpiresEventAtWindowEdge(t *testing.T) {
	ctx := context.Background()
	window := 3600 * time.Second
	for name, build := range allStores(t) {
		t.Run(name, func(t *testing.T) {
			ts := at(1).Add(edgeOffsets[1])
			store := build([]UsageEvent{{Identity: name, Timestamp: ts}})
			l, clock := newTestLimiter(t, store, 1, window)

			clock.Set(ts.Add(window).Add(-time.Microsecond))
			d, err := l.Check(ctx, name)
			require.NoError(t, err)
			assert.False(t, d.Allowed)

			clock.Set(ts.Add(window))
			d, err = l.Check(ctx, name)
			require.NoError(t, err)
			assert.True(t, d.Allowed)
			assert.Zero(t, d.Count)
		})
	}
}

func TestStores_LimiterScenario(t *testing.T) {
	ctx := context.Background()
	for name, store := range sharedStores(t) {
		t.Run(name, func(t *testing.T) {
			l, clock := newTestLimiter(t, store, 5, 3600*time.Second)

			for i := 0; i < 5; i++ {
				require.NoError(t, l.Record(ctx, "203.0.113.7"))
			}

			clock.At(100)
			d, err := l.Check(ctx, "203.0.113.7")
			require.NoError(t, err)
			assert.False(t, d.Allowed)

			clock.At(3601)
			d, err = l.Check(ctx, "203.0.113.7")
			require.NoError(t, err)
			assert.True(t, d.Allowed)
		})
	}
}

func TestSQLStore_Schema(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	// Creating a second store on the same database is idempotent.
	_, err := NewSQLStore(store.db, "sqlite")
	require.NoError(t, err)

	require.NoError(t, store.Insert(ctx, UsageEvent{Identity: "a", Timestamp: at(1)}))

	var identity string
	var ts float64
	err = store.db.QueryRowContext(ctx, `SELECT identity, "timestamp" FROM usage_events`).Scan(&identity, &ts)
	require.NoError(t, err)
	assert.Equal(t, "a", identity)
	assert.Equal(t, UnixSeconds(at(1)), ts)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLStore_UnsupportedDialect(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	_, err = NewSQLStore(db, "oracle")
	assert.Error(t, err)

	_, err = NewSQLStore(nil, "sqlite")
	assert.Error(t, err)
}

func TestSQLStore_Rebind(t *testing.T) {
	pg := &SQLStore{dialect: "postgres"}
	assert.Equal(t, "a = $1 AND b > $2", pg.rebind("a = ? AND b > ?"))

	lite := &SQLStore{dialect: "sqlite"}
	assert.Equal(t, "a = ? AND b > ?", lite.rebind("a = ? AND b > ?"))
}

func TestRedisStore_UnindexesEmptyIdentities(t *testing.T) {
	store := newMiniredisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, UsageEvent{Identity: "a", Timestamp: at(1)}))
	require.NoError(t, store.Insert(ctx, UsageEvent{Identity: "b", Timestamp: at(5)}))

	_, err := store.Prune(ctx, at(2))
	require.NoError(t, err)

	members, err := store.client.SMembers(ctx, store.indexKey()).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, members)

	exists, err := store.client.Exists(ctx, store.eventsKey("a")).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}

func TestRedisStore_PruneKeepsConcurrentInsertsIndexed(t *testing.T) {
	store := newMiniredisStore(t)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		require.NoError(t, store.Insert(ctx, UsageEvent{Identity: "a", Timestamp: at(1)}))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := store.Prune(ctx, at(2))
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, store.Insert(ctx, UsageEvent{Identity: "a", Timestamp: at(10)}))
		}()
		wg.Wait()

		left, err := store.client.ZCard(ctx, store.eventsKey("a")).Result()
		require.NoError(t, err)
		require.NotZero(t, left)
		indexed, err := store.client.SIsMember(ctx, store.indexKey(), "a").Result()
		require.NoError(t, err)
		require.True(t, indexed, "identity with live events dropped from index")

		require.NoError(t, store.Reset(ctx, "a"))
	}
}

func TestRedisStore_PruneCountsRemoved(t *testing.T) {
	store := newMiniredisStore(t)
	ctx := context.Background()

	for _, sec := range []int{1, 2, 3} {
		require.NoError(t, store.Insert(ctx, UsageEvent{Identity: "a", Timestamp: at(sec)}))
	}
	require.NoError(t, store.Insert(ctx, UsageEvent{Identity: "b", Timestamp: at(1)}))

	n, err := store.Prune(ctx, at(2))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	members, err := store.client.SMembers(ctx, store.indexKey()).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, members)
}

func TestRedisStore_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond})
	defer client.Close()

	_, err := NewRedisStore(client, "")
	assert.Error(t, err)
}
