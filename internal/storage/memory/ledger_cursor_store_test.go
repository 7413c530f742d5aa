package memory

import (
	"context"
	"errors"
	"testing"

	"ledger-aggregates/internal/storage"
)

func TestLedgerCursorStore_SetAndGet(t *testing.T) {
	store := NewLedgerCursorStore()
	ctx := context.Background()

	if _, err := store.LastLedger(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound on empty store, got %v", err)
	}

	cursor := &storage.LedgerCursor{Sequence: 42, ClosedAt: 1700000000}
	if err := store.SetLastLedger(ctx, cursor); err != nil {
		t.Fatalf("SetLastLedger failed: %v", err)
	}

	// Mutating the caller's copy must not leak into the store.
	cursor.Sequence = 99

	got, err := store.LastLedger(ctx)
	if err != nil {
		t.Fatalf("LastLedger failed: %v", err)
	}
	if got.Sequence != 42 || got.ClosedAt != 1700000000 {
		t.Errorf("Unexpected cursor: %+v", got)
	}

	if err := store.SetLastLedger(ctx, &storage.LedgerCursor{Sequence: 43, ClosedAt: 1700000005}); err != nil {
		t.Fatalf("SetLastLedger failed: %v", err)
	}
	got, err = store.LastLedger(ctx)
	if err != nil {
		t.Fatalf("LastLedger failed: %v", err)
	}
	if got.Sequence != 43 {
		t.Errorf("Expected sequence 43, got %d", got.Sequence)
	}
}

func TestLedgerCursorStore_RejectsNil(t *testing.T) {
	store := NewLedgerCursorStore()
	if err := store.SetLastLedger(context.Background(), nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Fatalf("Expected ErrInvalidInput, got %v", err)
	}
}
