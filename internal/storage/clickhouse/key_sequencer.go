package clickhouse

import (
	"context"
	"fmt"
	"time"

	"ledger-aggregates/internal/domain"
	"ledger-aggregates/internal/storage"
)

// KeySequencer implements storage.KeySequencer on a ReplacingMergeTree.
// Raising the counter inserts a new row; readers take max(current_version).
type KeySequencer struct {
	conn *Conn
}

// NewKeySequencer creates a new ClickHouse key sequencer.
func NewKeySequencer(conn *Conn) *KeySequencer {
	return &KeySequencer{conn: conn}
}

var _ storage.KeySequencer = (*KeySequencer)(nil)

// NextVersion raises the counter to expected and returns the stored value.
// A counter already at or past expected is left as is.
func (s *KeySequencer) NextVersion(ctx context.Context, key domain.SeriesKey, expected uint32) (version uint32, err error) {
	if key.EntityKey == "" || !key.MetricKind.IsValid() {
		return 0, storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("next_version", start, err) }(time.Now())

	current, found, err := s.read(ctx, key)
	if err != nil {
		return 0, err
	}
	if found && current >= expected {
		return current, nil
	}

	err = s.conn.Exec(ctx, `
		INSERT INTO key_versions (entity_key, metric_kind, current_version)
		VALUES (?, ?, ?)
	`, key.EntityKey, string(key.MetricKind), expected)
	if err != nil {
		return 0, fmt.Errorf("next version %s: %w", key, err)
	}

	return expected, nil
}

// Current returns the stored counter for key.
func (s *KeySequencer) Current(ctx context.Context, key domain.SeriesKey) (uint32, error) {
	current, found, err := s.read(ctx, key)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, storage.ErrNotFound
	}
	return current, nil
}

func (s *KeySequencer) read(ctx context.Context, key domain.SeriesKey) (uint32, bool, error) {
	var current uint32
	var rows uint64
	err := s.conn.QueryRow(ctx, `
		SELECT max(current_version), count()
		FROM key_versions
		WHERE metric_kind = ? AND entity_key = ?
	`, string(key.MetricKind), key.EntityKey).Scan(&current, &rows)
	if err != nil {
		return 0, false, fmt.Errorf("read version %s: %w", key, err)
	}
	return current, rows > 0, nil
}
