package clickhouse

import (
	"context"
	"fmt"

	"ledger-aggregates/internal/storage"
)

// LedgerCursorStore implements storage.LedgerCursorStore using ClickHouse.
// Every update inserts a row; the highest ledger wins on read.
type LedgerCursorStore struct {
	conn *Conn
}

// NewLedgerCursorStore creates a new LedgerCursorStore.
func NewLedgerCursorStore(conn *Conn) *LedgerCursorStore {
	return &LedgerCursorStore{conn: conn}
}

var _ storage.LedgerCursorStore = (*LedgerCursorStore)(nil)

// LastLedger returns the last completed ledger.
func (s *LedgerCursorStore) LastLedger(ctx context.Context) (*storage.LedgerCursor, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT ledger_sequence, closed_at
		FROM ledger_cursor
		WHERE id = 1
		ORDER BY ledger_sequence DESC
		LIMIT 1
	`)
	if err != nil {
		return nil, fmt.Errorf("query ledger cursor: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate ledger cursor: %w", err)
		}
		return nil, storage.ErrNotFound
	}

	var cursor storage.LedgerCursor
	if err := rows.Scan(&cursor.Sequence, &cursor.ClosedAt); err != nil {
		return nil, fmt.Errorf("scan ledger cursor: %w", err)
	}
	return &cursor, nil
}

// SetLastLedger records a completed ledger.
func (s *LedgerCursorStore) SetLastLedger(ctx context.Context, cursor *storage.LedgerCursor) error {
	if cursor == nil {
		return storage.ErrInvalidInput
	}

	err := s.conn.Exec(ctx, `
		INSERT INTO ledger_cursor (id, ledger_sequence, closed_at)
		VALUES (1, ?, ?)
	`, cursor.Sequence, cursor.ClosedAt)
	if err != nil {
		return fmt.Errorf("insert ledger cursor: %w", err)
	}
	return nil
}
