package ingestion

import (
	"errors"
	"sort"
)

// ErrInvalidOrdering is returned when events are not properly ordered.
var ErrInvalidOrdering = errors.New("events are not in deterministic order")

// SortRawEvents orders events by (ledger ASC, tx_index ASC, event_index ASC).
// This is the order transactions were applied in.
func SortRawEvents(events []*RawEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return compareRawEvents(events[i], events[j]) < 0
	})
}

// ValidateOrdering checks that events are strictly ordered.
// Returns ErrInvalidOrdering on a regression or a duplicate position.
func ValidateOrdering(events []*RawEvent) error {
	for i := 1; i < len(events); i++ {
		if compareRawEvents(events[i-1], events[i]) >= 0 {
			return ErrInvalidOrdering
		}
	}
	return nil
}

// compareRawEvents returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
//
// Close markers sort after every event of their ledger.
func compareRawEvents(a, b *RawEvent) int {
	if a.Ledger != b.Ledger {
		if a.Ledger < b.Ledger {
			return -1
		}
		return 1
	}
	if a.IsLedgerClose() != b.IsLedgerClose() {
		if b.IsLedgerClose() {
			return -1
		}
		return 1
	}
	if a.TxIndex != b.TxIndex {
		if a.TxIndex < b.TxIndex {
			return -1
		}
		return 1
	}
	if a.EventIndex != b.EventIndex {
		if a.EventIndex < b.EventIndex {
			return -1
		}
		return 1
	}
	return 0
}
