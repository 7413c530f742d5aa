package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger-aggregates/internal/storage"
)

func TestLedgerCursorStore_SetAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewLedgerCursorStore(pool)

	_, err := store.LastLedger(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.SetLastLedger(ctx, &storage.LedgerCursor{Sequence: 100, ClosedAt: 1700000000}))
	require.NoError(t, store.SetLastLedger(ctx, &storage.LedgerCursor{Sequence: 101, ClosedAt: 1700000005}))

	got, err := store.LastLedger(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(101), got.Sequence)
	assert.Equal(t, uint64(1700000005), got.ClosedAt)
}

func TestLedgerCursorStore_NilCursor(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	err := NewLedgerCursorStore(pool).SetLastLedger(context.Background(), nil)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
