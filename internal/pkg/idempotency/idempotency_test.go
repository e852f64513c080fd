package idempotency

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	return NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
}

func TestStore_CheckOrReserve_FirstRequest(t *testing.T) {
	store := newTestStore(t)

	result, err := store.CheckOrReserve(context.Background(), "clinic-1", "req-1")

	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestStore_CheckOrReserve_InFlightDuplicate(t *testing.T) {
	store := newTestStore(t)

	_, err := store.CheckOrReserve(context.Background(), "clinic-1", "req-1")
	require.NoError(t, err)

	// Same key again while the first request has not stored a result.
	_, err = store.CheckOrReserve(context.Background(), "clinic-1", "req-1")

	require.ErrorIs(t, err, ErrDuplicateRequest)
}

func TestStore_CheckOrReserve_CompletedReplay(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CheckOrReserve(ctx, "clinic-1", "req-1")
	require.NoError(t, err)
	require.NoError(t, store.StoreResult(ctx, "clinic-1", "req-1", "item-42"))

	result, err := store.CheckOrReserve(ctx, "clinic-1", "req-1")

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "item-42", result.ItemID)
}

func TestStore_KeysScopedByTenant(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CheckOrReserve(ctx, "clinic-1", "req-1")
	require.NoError(t, err)

	// The same key under another tenant is independent.
	result, err := store.CheckOrReserve(ctx, "clinic-2", "req-1")

	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestStore_Release(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CheckOrReserve(ctx, "clinic-1", "req-1")
	require.NoError(t, err)
	require.NoError(t, store.Release(ctx, "clinic-1", "req-1"))

	// After release the key is usable again.
	result, err := store.CheckOrReserve(ctx, "clinic-1", "req-1")
	require.NoError(t, err)
	assert.Nil(t, result)
}
