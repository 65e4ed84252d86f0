package sqlite_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/brackenhill/eventflow/pkg/sqlite"
)

func openOffsetStore(t *testing.T) *sqlite.OffsetStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := sqlite.NewOffsetStore(db)
	require.NoError(t, err)
	return store
}

func TestOffsetStoreReadsNoOffsetUntilSaved(t *testing.T) {
	ctx := context.Background()
	store := openOffsetStore(t)

	state, err := store.GetOffset(ctx, "sub-a")
	require.NoError(t, err)
	assert.False(t, state.HasValue())
}

func TestOffsetStoreSaveAndLoadRoundTrips(t *testing.T) {
	ctx := context.Background()
	store := openOffsetStore(t)

	require.NoError(t, store.SaveOffset(ctx, "sub-a", 17))

	state, err := store.GetOffset(ctx, "sub-a")
	require.NoError(t, err)
	require.True(t, state.HasValue())
	assert.Equal(t, int64(17), state.Value())
}

func TestOffsetStoreSaveIsUpsert(t *testing.T) {
	ctx := context.Background()
	store := openOffsetStore(t)

	require.NoError(t, store.SaveOffset(ctx, "sub-a", 1))
	require.NoError(t, store.SaveOffset(ctx, "sub-a", 2))
	require.NoError(t, store.SaveOffset(ctx, "sub-a", 3))

	state, err := store.GetOffset(ctx, "sub-a")
	require.NoError(t, err)
	assert.Equal(t, int64(3), state.Value())
}

func TestOffsetStoreSurvivesReopenOfSameDB(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	store1, err := sqlite.NewOffsetStore(db)
	require.NoError(t, err)
	require.NoError(t, store1.SaveOffset(context.Background(), "sub-a", 99))

	// Migrations are idempotent: constructing a second store against the
	// same connection must not fail or lose data.
	store2, err := sqlite.NewOffsetStore(db)
	require.NoError(t, err)

	state, err := store2.GetOffset(context.Background(), "sub-a")
	require.NoError(t, err)
	assert.Equal(t, int64(99), state.Value())
}
