package prouter_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luno/puma/prouter"
)

func TestStatic(t *testing.T) {
	ctx := context.Background()
	r := prouter.NewStatic("a:1", "b:2")

	var got []string
	for range 4 {
		addr, ok := r.Next(ctx)
		require.True(t, ok)
		got = append(got, addr)
	}
	assert.Equal(t, []string{"a:1", "b:2", "a:1", "b:2"}, got)

	assert.True(t, r.Exists(ctx, "a:1"))
	assert.False(t, r.Exists(ctx, "c:3"))

	r.Set("c:3")
	assert.False(t, r.Exists(ctx, "a:1"))
	addr, ok := r.Next(ctx)
	require.True(t, ok)
	assert.Equal(t, "c:3", addr)

	r.Set()
	_, ok = r.Next(ctx)
	assert.False(t, ok)
}
