package storage

import (
	"context"
	"iter"

	"ledger-aggregates/internal/domain"
)

// KeySequencer hands out per-series versions on top of insert-only storage.
type KeySequencer interface {
	// NextVersion returns the version to assign to the next snapshot of key.
	// expected is the version the snapshot log calls for: latest.version + 1,
	// or 0 for an unseen key. The counter is raised to expected and returned,
	// so repeating the call before the append lands returns the same version.
	// A counter already past expected is returned unchanged; callers treat that
	// as an inconsistency.
	NextVersion(ctx context.Context, key domain.SeriesKey, expected uint32) (uint32, error)

	// Current returns the stored counter. Returns ErrNotFound if key is unseen.
	Current(ctx context.Context, key domain.SeriesKey) (uint32, error)
}

// ScanOptions narrows a snapshot scan.
type ScanOptions struct {
	FromTimestamp uint64 // only snapshots with timestamp >= FromTimestamp; 0 disables
}

// SnapshotStore is the append-only log of versioned aggregate rows.
type SnapshotStore interface {
	// Latest returns the snapshot with the highest version for key.
	// Returns ErrNotFound if key is unseen.
	Latest(ctx context.Context, key domain.SeriesKey) (*domain.Snapshot, error)

	// Append inserts an immutable snapshot.
	// Returns ErrDuplicateKey if (entity_key, metric_kind, version) exists.
	Append(ctx context.Context, s *domain.Snapshot) error

	// Scan yields snapshots for key in ascending version order.
	// The sequence is lazy and can be ranged over again to restart it.
	Scan(ctx context.Context, key domain.SeriesKey, opts ScanOptions) iter.Seq2[*domain.Snapshot, error]

	// Keys returns every series with at least one snapshot, sorted by kind then entity.
	// An empty kind returns all kinds.
	Keys(ctx context.Context, kind domain.MetricKind) ([]domain.SeriesKey, error)
}

// CollectSnapshots drains a scan into a slice, stopping at the first error.
func CollectSnapshots(seq iter.Seq2[*domain.Snapshot, error]) ([]*domain.Snapshot, error) {
	var out []*domain.Snapshot
	for s, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// ScanPageSize is the number of rows durable backends fetch per page while scanning.
const ScanPageSize = 500
