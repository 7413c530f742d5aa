package clickhouse

import (
	"context"
	"fmt"
	"iter"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"ledger-aggregates/internal/domain"
	"ledger-aggregates/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using ClickHouse.
// Amounts are Int128 columns exchanged as *big.Int.
type SnapshotStore struct {
	conn     *Conn
	pageSize int
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(conn *Conn) *SnapshotStore {
	return &SnapshotStore{conn: conn, pageSize: storage.ScanPageSize}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

const snapshotColumns = `entity_key, metric_kind, version, cumulative_value, delta,
		ledger_sequence, ledger_timestamp, source, tx_hash, event_index, leg`

// Latest returns the highest-version snapshot for key.
func (s *SnapshotStore) Latest(ctx context.Context, key domain.SeriesKey) (snap *domain.Snapshot, err error) {
	defer func(start time.Time) { observe("latest", start, err) }(time.Now())

	rows, err := s.conn.Query(ctx, `
		SELECT `+snapshotColumns+`
		FROM snapshots
		WHERE metric_kind = ? AND entity_key = ?
		ORDER BY version DESC
		LIMIT 1
	`, string(key.MetricKind), key.EntityKey)
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
func (s *SnapshotStore) Append(ctx context.Context, snap *domain.Snapshot) (err error) {
	if snap == nil || snap.EntityKey == "" || !snap.MetricKind.IsValid() {
		return storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("append", start, err) }(time.Now())

	exists, err := s.exists(ctx, snap.Key(), snap.Version)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO snapshots (`+snapshotColumns+`)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		snap.EntityKey, string(snap.MetricKind), snap.Version,
		snap.CumulativeValue.BigInt(), snap.Delta.BigInt(),
		snap.LedgerSequence, snap.Timestamp, snap.Source, snap.TxHash,
		snap.EventIndex, uint8(snap.Leg),
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// Scan yields snapshots for key in ascending version order, one page at a time.
func (s *SnapshotStore) Scan(ctx context.Context, key domain.SeriesKey, opts storage.ScanOptions) iter.Seq2[*domain.Snapshot, error] {
	return func(yield func(*domain.Snapshot, error) bool) {
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

	rows, err := s.conn.Query(ctx, `
		SELECT `+snapshotColumns+`
		FROM snapshots
		WHERE metric_kind = ? AND entity_key = ?
		  AND toInt64(version) > ? AND ledger_timestamp >= ?
		ORDER BY version ASC
		LIMIT ?
	`, string(key.MetricKind), key.EntityKey, afterVersion, fromTimestamp, uint64(s.pageSize))
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// Keys returns every series with snapshots, sorted by kind then entity.
func (s *SnapshotStore) Keys(ctx context.Context, kind domain.MetricKind) ([]domain.SeriesKey, error) {
	rows, err := s.conn.Query(ctx, `
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

// exists checks if a snapshot with the given key and version exists.
func (s *SnapshotStore) exists(ctx context.Context, key domain.SeriesKey, version uint32) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `
		SELECT count(*) FROM snapshots
		WHERE metric_kind = ? AND entity_key = ? AND version = ?
	`, string(key.MetricKind), key.EntityKey, version).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanSnapshots scans multiple rows.
func scanSnapshots(rows chRows) ([]*domain.Snapshot, error) {
	var snaps []*domain.Snapshot

	for rows.Next() {
		var snap domain.Snapshot
		var metricKind string
		var cumulative, delta big.Int
		var leg uint8

		err := rows.Scan(
			&snap.EntityKey, &metricKind, &snap.Version, &cumulative, &delta,
			&snap.LedgerSequence, &snap.Timestamp, &snap.Source, &snap.TxHash,
			&snap.EventIndex, &leg,
		)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}

		snap.MetricKind = domain.MetricKind(metricKind)
		snap.Leg = domain.Leg(leg)
		snap.CumulativeValue = decimal.NewFromBigInt(&cumulative, 0)
		snap.Delta = decimal.NewFromBigInt(&delta, 0)
		snaps = append(snaps, &snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}

	return snaps, nil
}
