package memory

import (
	"context"
	"sync"

	"ledger-aggregates/internal/storage"
)

// LedgerCursorStore is an in-memory implementation of storage.LedgerCursorStore.
type LedgerCursorStore struct {
	mu     sync.RWMutex
	cursor *storage.LedgerCursor
}

// NewLedgerCursorStore creates a new in-memory ledger cursor store.
func NewLedgerCursorStore() *LedgerCursorStore {
	return &LedgerCursorStore{}
}

var _ storage.LedgerCursorStore = (*LedgerCursorStore)(nil)

// LastLedger returns the last completed ledger.
func (s *LedgerCursorStore) LastLedger(_ context.Context) (*storage.LedgerCursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cursor == nil {
		return nil, storage.ErrNotFound
	}
	cp := *s.cursor
	return &cp, nil
}

// SetLastLedger records a completed ledger.
func (s *LedgerCursorStore) SetLastLedger(_ context.Context, cursor *storage.LedgerCursor) error {
	if cursor == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *cursor
	s.cursor = &cp
	return nil
}

// NewStores returns a fresh in-memory backend.
func NewStores() storage.Stores {
	return storage.Stores{
		Sequencer: NewKeySequencer(),
		Snapshots: NewSnapshotStore(),
		Cursor:    NewLedgerCursorStore(),
	}
}
