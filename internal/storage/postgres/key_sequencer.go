package postgres

import (
	"context"
	"fmt"
	"time"

	"ledger-aggregates/internal/domain"
	"ledger-aggregates/internal/storage"
)

// KeySequencer is a PostgreSQL implementation of storage.KeySequencer.
// The counter lives in key_versions; a single upsert creates or raises it.
type KeySequencer struct {
	pool *Pool
}

// NewKeySequencer creates a new PostgreSQL key sequencer.
func NewKeySequencer(pool *Pool) *KeySequencer {
	return &KeySequencer{pool: pool}
}

var _ storage.KeySequencer = (*KeySequencer)(nil)

// NextVersion raises the counter to expected and returns the stored value.
func (s *KeySequencer) NextVersion(ctx context.Context, key domain.SeriesKey, expected uint32) (version uint32, err error) {
	if key.EntityKey == "" || !key.MetricKind.IsValid() {
		return 0, storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("next_version", start, err) }(time.Now())

	var current int64
	err = s.pool.QueryRow(ctx, `
		INSERT INTO key_versions (entity_key, metric_kind, current_version, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (entity_key, metric_kind) DO UPDATE
		SET current_version = GREATEST(key_versions.current_version, EXCLUDED.current_version),
		    updated_at = NOW()
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
	err := s.pool.QueryRow(ctx, `
		SELECT current_version
		FROM key_versions
		WHERE entity_key = $1 AND metric_kind = $2
	`, key.EntityKey, string(key.MetricKind)).Scan(&current)
	if err != nil {
		if isNotFoundError(err) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("current version %s: %w", key, err)
	}

	return uint32(current), nil
}
