package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// epoch is t=0 for every scenario; whole seconds keep float storage exact.
var epoch = time.Unix(1_700_000_000, 0)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: epoch}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// At moves the clock to epoch + sec seconds.
func (c *fakeClock) At(sec int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = epoch.Add(time.Duration(sec) * time.Second)
}

// Set moves the clock to t.
func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newTestLimiter(t *testing.T, store Store, limit int, window time.Duration) (*Limiter, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	l, err := New(store, Policy{Limit: limit, Window: window}, WithClock(clock.Now))
	require.NoError(t, err)
	return l, clock
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, DefaultPolicy())
	assert.Error(t, err)

	_, err = New(NewMemoryStore(), Policy{Limit: 0, Window: time.Hour})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Equal(t, "limit", verr.Field)

	_, err = New(NewMemoryStore(), Policy{Limit: 5, Window: 0})
	assert.ErrorAs(t, err, &verr)
	assert.Equal(t, "window", verr.Field)
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 5, p.Limit)
	assert.Equal(t, time.Hour, p.Window)
}

func TestLimiter_AllowsBelowLimit(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(t, NewMemoryStore(), 3, time.Hour)

	for i := 0; i < 3; i++ {
		d, err := l.Check(ctx, "1.2.3.4")
		require.NoError(t, err)
		require.True(t, d.Allowed, "check %d should be allowed", i)
		assert.Equal(t, i, d.Count)
		assert.Equal(t, 3-i, d.Remaining)
		require.NoError(t, l.Record(ctx, "1.2.3.4"))
	}
}

func TestLimiter_DeniesAtLimit(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(t, NewMemoryStore(), 2, time.Hour)

	require.NoError(t, l.Record(ctx, "a"))
	require.NoError(t, l.Record(ctx, "a"))

	d, err := l.Check(ctx, "a")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 2, d.Count)
	assert.Equal(t, 0, d.Remaining)
}

func TestLimiter_EventAtCutoffIsExpired(t *testing.T) {
	ctx := context.Background()
	l, clock := newTestLimiter(t, NewMemoryStore(), 1, 3600*time.Second)

	require.NoError(t, l.Record(ctx, "a"))

	clock.At(3599)
	d, err := l.Check(ctx, "a")
	require.NoError(t, err)
	assert.False(t, d.Allowed, "event one second inside the window still counts")

	clock.At(3600)
	d, err = l.Check(ctx, "a")
	require.NoError(t, err)
	assert.True(t, d.Allowed, "event exactly at now-window is expired")
	assert.Equal(t, 0, d.Count)
}

func TestLimiter_RecordIsVisibleToCheck(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(t, NewMemoryStore(), 5, time.Hour)

	before, err := l.Check(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, l.Record(ctx, "a"))
	after, err := l.Check(ctx, "a")
	require.NoError(t, err)

	assert.Equal(t, before.Count+1, after.Count)
}

func TestLimiter_CheckPrunesAllIdentities(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	l, clock := newTestLimiter(t, store, 5, time.Hour)

	require.NoError(t, l.Record(ctx, "a"))
	require.NoError(t, l.Record(ctx, "b"))
	clock.At(1800)
	require.NoError(t, l.Record(ctx, "b"))
	require.Equal(t, 3, store.Size())

	clock.At(3600)
	_, err := l.Check(ctx, "c")
	require.NoError(t, err)

	assert.Equal(t, 1, store.Size(), "expired events of a and b are gone")

	// Expired events never resurface, even if the clock were read earlier.
	live, err := store.Query(ctx, "a", epoch.Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestLimiter_Scenario5PerHour(t *testing.T) {
	ctx := context.Background()
	l, clock := newTestLimiter(t, NewMemoryStore(), 5, 3600*time.Second)

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Record(ctx, "a"))
	}

	clock.At(100)
	d, err := l.Check(ctx, "a")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 3500*time.Second, d.RetryAfter)
	assert.Equal(t, epoch.Add(3600*time.Second), d.ResetAt)

	clock.At(3601)
	d, err = l.Check(ctx, "a")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Count)
}

func TestLimiter_RetryAfterWaitsForEnoughExpiries(t *testing.T) {
	ctx := context.Background()
	l, clock := newTestLimiter(t, NewMemoryStore(), 2, 100*time.Second)

	// Three events over the limit of two (possible with racing requests).
	for _, at := range []int{0, 10, 20} {
		clock.At(at)
		require.NoError(t, l.Record(ctx, "a"))
	}

	clock.At(30)
	d, err := l.Check(ctx, "a")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	// Two events must expire: the second one does so at t=110.
	assert.Equal(t, 80*time.Second, d.RetryAfter)
}

func TestLimiter_IdentitiesAreIndependent(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(t, NewMemoryStore(), 1, time.Hour)

	require.NoError(t, l.Record(ctx, "a"))

	d, err := l.Check(ctx, "b")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestLimiter_UsageDoesNotPrune(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	l, clock := newTestLimiter(t, store, 5, time.Hour)

	require.NoError(t, l.Record(ctx, "a"))
	clock.At(7200)

	d, err := l.Usage(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 0, d.Count)
	assert.Equal(t, 1, store.Size())
}

func TestLimiter_EmptyIdentity(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	l, _ := newTestLimiter(t, store, 5, time.Hour)

	_, err := l.Check(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidIdentity)
	assert.ErrorIs(t, l.Record(ctx, ""), ErrInvalidIdentity)
	assert.Equal(t, 0, store.Size())
}

func TestLimiter_Reset(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(t, NewMemoryStore(), 1, time.Hour)

	require.NoError(t, l.Record(ctx, "a"))
	require.NoError(t, l.Reset(ctx, "a"))

	d, err := l.Check(ctx, "a")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	cookie := l.WithStore(NewCookieStore(""))
	assert.ErrorIs(t, cookie.Reset(ctx, "browser"), ErrResetUnsupported)
}

func TestLimiter_SetPolicy(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(t, NewMemoryStore(), 1, time.Hour)

	require.NoError(t, l.Record(ctx, "a"))
	require.NoError(t, l.SetPolicy(Policy{Limit: 2, Window: time.Hour}))

	d, err := l.Check(ctx, "a")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 2, d.Limit)

	assert.Error(t, l.SetPolicy(Policy{Limit: -1, Window: time.Hour}))
	assert.Equal(t, 2, l.Policy().Limit)
}

func TestLimiter_PruneHook(t *testing.T) {
	ctx := context.Background()
	var pruned int
	clock := newFakeClock()
	l, err := New(NewMemoryStore(), Policy{Limit: 5, Window: time.Minute},
		WithClock(clock.Now),
		WithPruneHook(func(_ context.Context, n int) { pruned += n }),
	)
	require.NoError(t, err)

	require.NoError(t, l.Record(ctx, "a"))
	require.NoError(t, l.Record(ctx, "b"))
	clock.At(60)

	n, err := l.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, pruned)
}

type failingStore struct {
	*MemoryStore
}

func (s *failingStore) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	return 0, errors.New("disk on fire")
}

func TestLimiter_StoreErrorsAreWrapped(t *testing.T) {
	l, err := New(&failingStore{MemoryStore: NewMemoryStore()}, DefaultPolicy())
	require.NoError(t, err)

	_, err = l.Check(context.Background(), "a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")
	assert.False(t, IsRateLimitError(err))
}

func TestRateLimitError(t *testing.T) {
	d := &Decision{Count: 5, Limit: 5, Window: time.Hour, RetryAfter: 90 * time.Second}
	err := NewRateLimitError(d)

	assert.True(t, errors.Is(err, ErrRateLimitExceeded))
	assert.True(t, IsRateLimitError(err))
	assert.Same(t, d, DecisionFromError(err))
	assert.Contains(t, err.Error(), "5 of 5")
	assert.Contains(t, err.Error(), "1m30s")

	assert.Nil(t, DecisionFromError(errors.New("other")))
	assert.False(t, IsRateLimitError(nil))
}

func TestUnixSecondsRoundTrip(t *testing.T) {
	ts := time.Unix(1_700_000_123, 250_000_000)
	assert.InDelta(t, 1_700_000_123.25, UnixSeconds(ts), 1e-6)
	assert.True(t, FromUnixSeconds(UnixSeconds(ts)).Equal(ts))
}
