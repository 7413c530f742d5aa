package ingestion

import (
	"errors"
	"testing"
)

func TestSortRawEvents(t *testing.T) {
	events := []*RawEvent{
		{Ledger: 20, TxIndex: 0, EventIndex: 0},
		LedgerClose(10, 50),
		{Ledger: 10, TxIndex: 1, EventIndex: 0},
		{Ledger: 10, TxIndex: 0, EventIndex: 1},
		{Ledger: 10, TxIndex: 0, EventIndex: 0},
	}

	SortRawEvents(events)

	expected := []struct {
		ledger   uint32
		tx, idx  int
		isMarker bool
	}{
		{10, 0, 0, false},
		{10, 0, 1, false},
		{10, 1, 0, false},
		{10, 0, 0, true},
		{20, 0, 0, false},
	}
	for i, exp := range expected {
		ev := events[i]
		if ev.Ledger != exp.ledger || ev.TxIndex != exp.tx || ev.EventIndex != exp.idx || ev.IsLedgerClose() != exp.isMarker {
			t.Errorf("Index %d: got (%d, %d, %d, %v), want %+v",
				i, ev.Ledger, ev.TxIndex, ev.EventIndex, ev.IsLedgerClose(), exp)
		}
	}

	if err := ValidateOrdering(events); err != nil {
		t.Errorf("sorted events should validate: %v", err)
	}
}

func TestSortRawEvents_Empty(t *testing.T) {
	var events []*RawEvent
	SortRawEvents(events) // Should not panic
}

func TestValidateOrdering(t *testing.T) {
	tests := []struct {
		name   string
		events []*RawEvent
	}{
		{"regression", []*RawEvent{{Ledger: 2}, {Ledger: 1}}},
		{"duplicate", []*RawEvent{{Ledger: 1, TxIndex: 3, EventIndex: 1}, {Ledger: 1, TxIndex: 3, EventIndex: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateOrdering(tt.events); !errors.Is(err, ErrInvalidOrdering) {
				t.Errorf("expected ErrInvalidOrdering, got %v", err)
			}
		})
	}
}

func TestGroupByLedger(t *testing.T) {
	events := []*RawEvent{
		{Ledger: 5, Timestamp: 100, Action: "supply"},
		{Ledger: 5, Timestamp: 102, EventIndex: 1, Action: "borrow"},
		LedgerClose(5, 103),
		{Ledger: 6, Timestamp: 110, Action: "repay"},
	}

	batches := GroupByLedger(events)
	if len(batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(batches))
	}
	if batches[0].Sequence != 5 || len(batches[0].Events) != 2 || batches[0].ClosedAt != 103 {
		t.Errorf("unexpected first batch %+v", batches[0])
	}
	if batches[1].Sequence != 6 || batches[1].ClosedAt != 110 {
		t.Errorf("unexpected second batch %+v", batches[1])
	}
}
