package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"ledger-aggregates/internal/domain"
	"ledger-aggregates/internal/storage"
)

// SnapshotStore is a SQLite implementation of storage.SnapshotStore.
// Amounts are stored as decimal text; SQLite integers stop at 64 bits.
type SnapshotStore struct {
	db       *DB
	pageSize int
}

// NewSnapshotStore creates a new SQLite snapshot store.
func NewSnapshotStore(db *DB) *SnapshotStore {
	return &SnapshotStore{db: db, pageSize: storage.ScanPageSize}
}

var _ storage.SnapshotStore = (*SnapshotStore)(nil)

const snapshotColumns = `entity_key, metric_kind, version, cumulative_value, delta,
		ledger_sequence, ledger_timestamp, source, tx_hash, event_index, leg`

// Latest returns the highest-version snapshot for key.
func (s *SnapshotStore) Latest(ctx context.Context, key domain.SeriesKey) (snap *domain.Snapshot, err error) {
	defer func(start time.Time) { observe("latest", start, err) }(time.Now())

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+snapshotColumns+`
		FROM snapshots
		WHERE entity_key = ? AND metric_kind = ?
		ORDER BY version DESC
		LIMIT 1
	`, key.EntityKey, string(key.MetricKind))
	if err != nil {
		return nil, fmt.Errorf("query latest snapshot: %w", err)
	}
	defer rows.Close()

	snaps, err := scanSnapshots(rows)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, storage.ErrNotFound
	}
	return snaps[0], nil
}

// Append inserts a snapshot. Returns ErrDuplicateKey if the version exists.
// Timestamps above math.MaxInt64 overflow SQLite integers and are rejected
// with ErrInvalidInput.
func (s *SnapshotStore) Append(ctx context.Context, snap *domain.Snapshot) (err error) {
	if snap == nil || snap.EntityKey == "" || !snap.MetricKind.IsValid() || snap.Timestamp > math.MaxInt64 {
		return storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("append", start, err) }(time.Now())

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (`+snapshotColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		snap.EntityKey,
		string(snap.MetricKind),
		int64(snap.Version),
		snap.CumulativeValue.String(),
		snap.Delta.String(),
		int64(snap.LedgerSequence),
		int64(snap.Timestamp),
		snap.Source,
		snap.TxHash,
		int64(snap.EventIndex),
		int64(snap.Leg),
	)
	if err != nil {
		if isConstraintError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert snapshot: %w", err)
	}

	return nil
}

// Scan yields snapshots for key in ascending version order, one page at a time.
// No stored row is newer than math.MaxInt64, so a later FromTimestamp yields nothing.
func (s *SnapshotStore) Scan(ctx context.Context, key domain.SeriesKey, opts storage.ScanOptions) iter.Seq2[*domain.Snapshot, error] {
	return func(yield func(*domain.Snapshot, error) bool) {
		if opts.FromTimestamp > math.MaxInt64 {
			return
		}
		after := int64(-1)
		for {
			page, err := s.scanPage(ctx, key, after, opts.FromTimestamp)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, snap := range page {
				if !yield(snap, nil) {
					return
				}
			}
			if len(page) < s.pageSize {
				return
			}
			after = int64(page[len(page)-1].Version)
		}
	}
}

func (s *SnapshotStore) scanPage(ctx context.Context, key domain.SeriesKey, afterVersion int64, fromTimestamp uint64) (page []*domain.Snapshot, err error) {
	defer func(start time.Time) { observe("scan", start, err) }(time.Now())

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+snapshotColumns+`
		FROM snapshots
		WHERE entity_key = ? AND metric_kind = ?
		  AND version > ? AND ledger_timestamp >= ?
		ORDER BY version ASC
		LIMIT ?
	`, key.EntityKey, string(key.MetricKind), afterVersion, int64(fromTimestamp), s.pageSize)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// Keys returns every series with snapshots, sorted by kind then entity.
func (s *SnapshotStore) Keys(ctx context.Context, kind domain.MetricKind) ([]domain.SeriesKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT metric_kind, entity_key
		FROM snapshots
		WHERE ? = '' OR metric_kind = ?
		ORDER BY metric_kind, entity_key
	`, string(kind), string(kind))
	if err != nil {
		return nil, fmt.Errorf("query series keys: %w", err)
	}
	defer rows.Close()

	var keys []domain.SeriesKey
	for rows.Next() {
		var k domain.SeriesKey
		var metricKind string
		if err := rows.Scan(&metricKind, &k.EntityKey); err != nil {
			return nil, fmt.Errorf("scan series key: %w", err)
		}
		k.MetricKind = domain.MetricKind(metricKind)
		keys = append(keys, k)
	}

	return keys, rows.Err()
}

func scanSnapshots(rows *sql.Rows) ([]*domain.Snapshot, error) {
	var snaps []*domain.Snapshot

	for rows.Next() {
		var snap domain.Snapshot
		var metricKind, cumulative, delta string
		var version, ledgerSeq, ts, eventIndex, leg int64

		err := rows.Scan(
			&snap.EntityKey, &metricKind, &version, &cumulative, &delta,
			&ledgerSeq, &ts, &snap.Source, &snap.TxHash, &eventIndex, &leg,
		)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}

		snap.MetricKind = domain.MetricKind(metricKind)
		snap.Version = uint32(version)
		snap.LedgerSequence = uint32(ledgerSeq)
		snap.Timestamp = uint64(ts)
		snap.EventIndex = uint32(eventIndex)
		snap.Leg = domain.Leg(leg)
		if snap.CumulativeValue, err = decimal.NewFromString(cumulative); err != nil {
			return nil, fmt.Errorf("parse cumulative value %q: %w", cumulative, err)
		}
		if snap.Delta, err = decimal.NewFromString(delta); err != nil {
			return nil, fmt.Errorf("parse delta %q: %w", delta, err)
		}
		snaps = append(snaps, &snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}

	return snaps, nil
}
