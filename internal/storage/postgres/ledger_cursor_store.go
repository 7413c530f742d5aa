package postgres

import (
	"context"

	"ledger-aggregates/internal/storage"
)

// LedgerCursorStore is a PostgreSQL implementation of storage.LedgerCursorStore.
// ledger_cursor holds a single row with id = 1.
type LedgerCursorStore struct {
	pool *Pool
}

// NewLedgerCursorStore creates a new PostgreSQL ledger cursor store.
func NewLedgerCursorStore(pool *Pool) *LedgerCursorStore {
	return &LedgerCursorStore{pool: pool}
}

var _ storage.LedgerCursorStore = (*LedgerCursorStore)(nil)

// LastLedger returns the last completed ledger.
func (s *LedgerCursorStore) LastLedger(ctx context.Context) (*storage.LedgerCursor, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT ledger_sequence, closed_at
		FROM ledger_cursor
		WHERE id = 1
	`)

	var seq, closedAt int64
	if err := row.Scan(&seq, &closedAt); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}

	return &storage.LedgerCursor{Sequence: uint32(seq), ClosedAt: uint64(closedAt)}, nil
}

// SetLastLedger records a completed ledger.
// Uses upsert to handle initial insert and subsequent updates.
func (s *LedgerCursorStore) SetLastLedger(ctx context.Context, cursor *storage.LedgerCursor) error {
	if cursor == nil {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO ledger_cursor (id, ledger_sequence, closed_at, updated_at)
		VALUES (1, $1, $2, NOW())
		ON CONFLICT (id) DO UPDATE
		SET ledger_sequence = EXCLUDED.ledger_sequence,
		    closed_at = EXCLUDED.closed_at,
		    updated_at = NOW()
	`, int64(cursor.Sequence), int64(cursor.ClosedAt))

	return err
}
