package domain

import (
	"cmp"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// SeriesKey identifies one aggregate series.
type SeriesKey struct {
	EntityKey  string
	MetricKind MetricKind
}

// String renders the key as kind:entity.
func (k SeriesKey) String() string {
	return string(k.MetricKind) + ":" + k.EntityKey
}

// ParseSeriesKey parses the kind:entity form produced by String.
func ParseSeriesKey(s string) (SeriesKey, error) {
	kind, entity, ok := strings.Cut(s, ":")
	if !ok || entity == "" {
		return SeriesKey{}, fmt.Errorf("malformed series key %q", s)
	}
	k, err := ParseMetricKind(kind)
	if err != nil {
		return SeriesKey{}, err
	}
	return SeriesKey{EntityKey: entity, MetricKind: k}, nil
}

// KeyVersion is the per-series counter emulating a mutable "current id".
// CurrentVersion is the version most recently handed out; it runs one ahead
// of the log only while that version's append is outstanding.
type KeyVersion struct {
	Key            SeriesKey
	CurrentVersion uint32
}

// Snapshot is one immutable versioned aggregate row.
// Corresponds to the snapshots table.
type Snapshot struct {
	EntityKey       string          // series owner
	MetricKind      MetricKind      // aggregate dimension
	Version         uint32          // 0, 1, 2, ... per series
	CumulativeValue decimal.Decimal // running total after this event
	Delta           decimal.Decimal // signed change applied by this event
	LedgerSequence  uint32          // ledger that produced the row
	Timestamp       uint64          // ledger close time, Unix seconds
	Source          string          // account that caused the change
	TxHash          string          // originating transaction, may be empty
	EventIndex      uint32          // position of the event within its ledger
	Leg             Leg             // which side of the event wrote the row
}

// Key returns the series this snapshot belongs to.
func (s *Snapshot) Key() SeriesKey {
	return SeriesKey{EntityKey: s.EntityKey, MetricKind: s.MetricKind}
}

// Position returns the event position that produced the snapshot.
func (s *Snapshot) Position() EventPosition {
	return EventPosition{Ledger: s.LedgerSequence, Index: s.EventIndex, Leg: s.Leg}
}

// Leg identifies the side of an event a snapshot belongs to.
type Leg uint8

const (
	LegPrimary Leg = 0 // single-key change, or the debit of a transfer
	LegCredit  Leg = 1 // credit of a transfer
)

// EventPosition orders the rows of one series by the event that wrote them.
// A self-transfer writes two rows at the same index, told apart by Leg.
type EventPosition struct {
	Ledger uint32
	Index  uint32
	Leg    Leg
}

// Compare returns -1, 0 or +1 when p is before, equal to or after o.
func (p EventPosition) Compare(o EventPosition) int {
	if c := cmp.Compare(p.Ledger, o.Ledger); c != 0 {
		return c
	}
	if c := cmp.Compare(p.Index, o.Index); c != 0 {
		return c
	}
	return cmp.Compare(p.Leg, o.Leg)
}
