package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// DomainEvent is one decoded change to a tracked aggregate.
// Transfer-like events set CounterpartyKey and touch two series.
type DomainEvent struct {
	EntityKey       string          // series owner, e.g. pool:asset or asset:holder
	MetricKind      MetricKind      // aggregate dimension
	Amount          decimal.Decimal // unsigned magnitude
	Direction       Direction       // increase | decrease, ignored for transfers
	CounterpartyKey *string         // credit side of a transfer, nil otherwise
	LedgerSequence  uint32          // ledger that closed with this event
	Timestamp       uint64          // ledger close time, Unix seconds
	Source          string          // account that caused the change
	TxHash          string          // hex transaction hash, audit only
	EventIndex      int             // position of the event within its ledger
}

// IsTransfer reports whether the event debits EntityKey and credits CounterpartyKey.
func (e *DomainEvent) IsTransfer() bool {
	return e.CounterpartyKey != nil
}

// Key returns the series the event applies to (the debit side for transfers).
func (e *DomainEvent) Key() SeriesKey {
	return SeriesKey{EntityKey: e.EntityKey, MetricKind: e.MetricKind}
}

// CounterpartySeries returns the credit side series of a transfer.
func (e *DomainEvent) CounterpartySeries() (SeriesKey, bool) {
	if e.CounterpartyKey == nil {
		return SeriesKey{}, false
	}
	return SeriesKey{EntityKey: *e.CounterpartyKey, MetricKind: e.MetricKind}, true
}

// SignedAmount returns +Amount for increases and -Amount for decreases.
func (e *DomainEvent) SignedAmount() decimal.Decimal {
	if e.Direction == DirectionDecrease {
		return e.Amount.Neg()
	}
	return e.Amount
}

// Validate checks that the event is complete enough to be aggregated.
func (e *DomainEvent) Validate() error {
	if e.EntityKey == "" {
		return errors.New("entity key is empty")
	}
	if !e.MetricKind.IsValid() {
		return fmt.Errorf("unknown metric kind %q", e.MetricKind)
	}
	if e.CounterpartyKey != nil {
		if *e.CounterpartyKey == "" {
			return errors.New("counterparty key is empty")
		}
	} else if !e.Direction.IsValid() {
		return fmt.Errorf("unknown direction %q", e.Direction)
	}
	if err := CheckInt128(e.Amount); err != nil {
		return fmt.Errorf("amount %s: %w", e.Amount, err)
	}
	if e.Amount.IsNegative() {
		return fmt.Errorf("amount %s is negative", e.Amount)
	}
	return nil
}

// Ledger is the ordered set of events emitted by one ledger close.
type Ledger struct {
	Sequence uint32         // ledger sequence number
	ClosedAt uint64         // close time, Unix seconds
	Events   []*DomainEvent // in transaction application order
	Rejected int            // raw events the normalizer could not decode
}
