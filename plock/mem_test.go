package plock_test

import (
	"context"
	"testing"
	"time"

	"github.com/luno/jettison/jtest"
	"github.com/stretchr/testify/require"

	"github.com/luno/puma/plock"
)

func TestMem(t *testing.T) {
	reg := plock.NewMemRegistry()
	testLock(t, reg.NewLock("client"), reg.NewLock("client"))
}

func TestMemNames(t *testing.T) {
	ctx := context.Background()
	reg := plock.NewMemRegistry()

	a := reg.NewLock("a")
	b := reg.NewLock("b")

	ok, err := a.TryAcquire(ctx, time.Second)
	jtest.RequireNil(t, err)
	require.True(t, ok)

	ok, err = b.TryAcquire(ctx, time.Second)
	jtest.RequireNil(t, err)
	require.True(t, ok)

	require.Equal(t, a, reg.Holder("a"))
	require.Equal(t, b, reg.Holder("b"))

	// Releasing a lock that is not held does not affect the holder.
	reg.NewLock("a").Release(ctx)
	require.Equal(t, a, reg.Holder("a"))
}

func TestMemCancel(t *testing.T) {
	reg := plock.NewMemRegistry()
	holder := reg.NewLock("c")

	ok, err := holder.TryAcquire(context.Background(), time.Second)
	jtest.RequireNil(t, err)
	require.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	ok, err = reg.NewLock("c").TryAcquire(ctx, time.Minute)
	jtest.Require(t, context.Canceled, err)
	require.False(t, ok)
}
