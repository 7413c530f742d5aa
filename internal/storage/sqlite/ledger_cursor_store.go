package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"ledger-aggregates/internal/storage"
)

// LedgerCursorStore is a SQLite implementation of storage.LedgerCursorStore.
type LedgerCursorStore struct {
	db *DB
}

// NewLedgerCursorStore creates a new SQLite ledger cursor store.
func NewLedgerCursorStore(db *DB) *LedgerCursorStore {
	return &LedgerCursorStore{db: db}
}

var _ storage.LedgerCursorStore = (*LedgerCursorStore)(nil)

// LastLedger returns the last completed ledger.
func (s *LedgerCursorStore) LastLedger(ctx context.Context) (*storage.LedgerCursor, error) {
	var seq, closedAt int64
	err := s.db.QueryRowContext(ctx, `
		SELECT ledger_sequence, closed_at FROM ledger_cursor WHERE id = 1
	`).Scan(&seq, &closedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}

	return &storage.LedgerCursor{Sequence: uint32(seq), ClosedAt: uint64(closedAt)}, nil
}

// SetLastLedger records a completed ledger.
func (s *LedgerCursorStore) SetLastLedger(ctx context.Context, cursor *storage.LedgerCursor) error {
	if cursor == nil {
		return storage.ErrInvalidInput
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_cursor (id, ledger_sequence, closed_at)
		VALUES (1, ?, ?)
		ON CONFLICT (id) DO UPDATE
		SET ledger_sequence = excluded.ledger_sequence,
		    closed_at = excluded.closed_at
	`, int64(cursor.Sequence), int64(cursor.ClosedAt))

	return err
}
