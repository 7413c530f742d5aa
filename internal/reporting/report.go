package reporting

import (
	"time"

	"github.com/shopspring/decimal"

	"ledger-aggregates/internal/domain"
)

// Report is the window summary report of one metric kind at a reference time.
type Report struct {
	// Metadata
	GeneratedAt        time.Time
	Kind               domain.MetricKind // empty means every kind
	ReferenceTimestamp uint64            // Unix seconds
	Decimals           int32             // display scaling, 7 = stroop

	// One row per series (sorted by kind, entity)
	Summaries []SummaryRow

	// Most recent changes across all series, newest first
	Actions []ActionRow
}

// SummaryRow is one row of the window summary table. Values are raw integers.
type SummaryRow struct {
	EntityKey     string
	MetricKind    domain.MetricKind
	Total         decimal.Decimal
	Peak          decimal.Decimal
	Volume        decimal.Decimal // all-time sum of |delta|
	Volume24h     decimal.Decimal
	Volume7d      decimal.Decimal
	Volume30d     decimal.Decimal
	Count24h      int
	Count7d       int
	Count30d      int
	SnapshotCount int
	LastLedger    uint32
}

// ActionRow is one snapshot rendered as the action that produced it.
type ActionRow struct {
	Ledger     uint32
	Timestamp  uint64
	EntityKey  string
	MetricKind domain.MetricKind
	Action     string
	Amount     decimal.Decimal // |delta|
	Total      decimal.Decimal // cumulative value after the action
	Source     string
	TxHash     string
}
