package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brackenhill/eventflow/pkg/offsettracker/memory"
)

func TestTrackerReadsNoOffsetUntilSaved(t *testing.T) {
	ctx := context.Background()
	tr := memory.New()

	state, err := tr.GetOffset(ctx, "sub-a")
	require.NoError(t, err)
	assert.False(t, state.HasValue())

	require.NoError(t, tr.SaveOffset(ctx, "sub-a", 42))

	state, err = tr.GetOffset(ctx, "sub-a")
	require.NoError(t, err)
	require.True(t, state.HasValue())
	assert.Equal(t, int64(42), state.Value())
}

func TestTrackerAllowsStaleSave(t *testing.T) {
	ctx := context.Background()
	tr := memory.New()

	require.NoError(t, tr.SaveOffset(ctx, "sub-a", 10))
	require.NoError(t, tr.SaveOffset(ctx, "sub-a", 3))

	state, err := tr.GetOffset(ctx, "sub-a")
	require.NoError(t, err)
	assert.Equal(t, int64(3), state.Value())
}

func TestTrackerKeepsSubscriptionsIndependent(t *testing.T) {
	ctx := context.Background()
	tr := memory.New()

	require.NoError(t, tr.SaveOffset(ctx, "sub-a", 1))
	require.NoError(t, tr.SaveOffset(ctx, "sub-b", 2))

	a, err := tr.GetOffset(ctx, "sub-a")
	require.NoError(t, err)
	b, err := tr.GetOffset(ctx, "sub-b")
	require.NoError(t, err)

	assert.Equal(t, int64(1), a.Value())
	assert.Equal(t, int64(2), b.Value())
}
