package plock_test

import (
	"context"
	"testing"
	"time"

	"github.com/luno/jettison/jtest"
	"github.com/stretchr/testify/require"

	"github.com/luno/puma"
)

// testLock checks the lock contract given two instances for the same
// client name.
func testLock(t *testing.T, l1, l2 puma.Lock) {
	ctx := context.Background()

	ok, err := l1.TryAcquire(ctx, time.Second)
	jtest.RequireNil(t, err)
	require.True(t, ok)

	// Reentrant.
	ok, err = l1.TryAcquire(ctx, time.Second)
	jtest.RequireNil(t, err)
	require.True(t, ok)

	// Excluded.
	ok, err = l2.TryAcquire(ctx, 100*time.Millisecond)
	jtest.RequireNil(t, err)
	require.False(t, ok)

	// Released locks can be taken over.
	acquired := make(chan bool)
	go func() {
		ok, err := l2.TryAcquire(ctx, 10*time.Second)
		if err != nil {
			ok = false
		}
		acquired <- ok
	}()

	time.Sleep(50 * time.Millisecond)
	l1.Release(ctx)
	require.True(t, <-acquired)

	ok, err = l1.TryAcquire(ctx, 100*time.Millisecond)
	jtest.RequireNil(t, err)
	require.False(t, ok)

	// Release is idempotent.
	l2.Release(ctx)
	l2.Release(ctx)
	l1.Release(ctx)

	ok, err = l1.TryAcquire(ctx, time.Second)
	jtest.RequireNil(t, err)
	require.True(t, ok)
	l1.Release(ctx)
}
