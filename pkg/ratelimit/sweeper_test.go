package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeper_PrunesExpiredEvents(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, UsageEvent{Identity: "a", Timestamp: time.Now().Add(-2 * time.Hour)}))
	require.NoError(t, store.Insert(ctx, UsageEvent{Identity: "b", Timestamp: time.Now()}))

	l, err := New(store, Policy{Limit: 5, Window: time.Hour})
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- NewSweeper(l, 10*time.Millisecond).Run(runCtx) }()

	assert.Eventually(t, func() bool { return store.Size() == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestSweeper_Disabled(t *testing.T) {
	l, err := New(NewMemoryStore(), Policy{Limit: 1, Window: time.Minute})
	require.NoError(t, err)

	assert.NoError(t, NewSweeper(l, 0).Run(context.Background()))
	assert.NoError(t, NewSweeper(nil, time.Second).Run(context.Background()))
}
