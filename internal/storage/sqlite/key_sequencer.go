package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ledger-aggregates/internal/domain"
	"ledger-aggregates/internal/storage"
)

// KeySequencer is a SQLite implementation of storage.KeySequencer.
type KeySequencer struct {
	db *DB
}

// NewKeySequencer creates a new SQLite key sequencer.
func NewKeySequencer(db *DB) *KeySequencer {
	return &KeySequencer{db: db}
}

var _ storage.KeySequencer = (*KeySequencer)(nil)

// NextVersion raises the counter to expected and returns the stored value.
func (s *KeySequencer) NextVersion(ctx context.Context, key domain.SeriesKey, expected uint32) (version uint32, err error) {
	if key.EntityKey == "" || !key.MetricKind.IsValid() {
		return 0, storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("next_version", start, err) }(time.Now())

	var current int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO key_versions (entity_key, metric_kind, current_version)
		VALUES (?, ?, ?)
		ON CONFLICT (entity_key, metric_kind) DO UPDATE
		SET current_version = MAX(key_versions.current_version, excluded.current_version)
		RETURNING current_version
	`, key.EntityKey, string(key.MetricKind), int64(expected)).Scan(&current)
	if err != nil {
		return 0, fmt.Errorf("next version %s: %w", key, err)
	}

	return uint32(current), nil
}

// Current returns the stored counter for key.
func (s *KeySequencer) Current(ctx context.Context, key domain.SeriesKey) (uint32, error) {
	var current int64
	err := s.db.QueryRowContext(ctx, `
		SELECT current_version FROM key_versions
		WHERE entity_key = ? AND metric_kind = ?
	`, key.EntityKey, string(key.MetricKind)).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("current version %s: %w", key, err)
	}

	return uint32(current), nil
}
