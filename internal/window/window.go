// Package window computes rolling-window summaries over a series history.
package window

import (
	"iter"
	"math"

	"github.com/shopspring/decimal"

	"ledger-aggregates/internal/domain"
)

// Window lengths in seconds.
const (
	Day   uint64 = 86_400
	Week  uint64 = 604_800
	Month uint64 = 2_592_000
)

// Window is a named trailing interval.
type Window struct {
	Name    string
	Seconds uint64
}

// DefaultWindows are the windows every summary reports.
var DefaultWindows = []Window{
	{Name: "24h", Seconds: Day},
	{Name: "7d", Seconds: Week},
	{Name: "30d", Seconds: Month},
}

// InWindow reports whether an event at ts falls inside a window of w seconds
// ending at ref. The bound is strict: an event exactly w seconds old is excluded.
func InWindow(ts, w, ref uint64) bool {
	if ts > math.MaxUint64-w {
		return true
	}
	return ts+w > ref
}

// Accumulator folds snapshots, in version order, into a WindowSummary.
type Accumulator struct {
	summary domain.WindowSummary
	started bool
}

// NewAccumulator starts a summary for reference time ref.
func NewAccumulator(ref uint64) *Accumulator {
	return &Accumulator{summary: domain.WindowSummary{
		ReferenceTimestamp: ref,
		Series:             []domain.SeriesPoint{},
	}}
}

// Add folds one snapshot into the summary.
func (a *Accumulator) Add(s *domain.Snapshot) {
	sum := &a.summary
	if !a.started {
		sum.EntityKey = s.EntityKey
		sum.MetricKind = s.MetricKind
		sum.AllTimePeak = s.CumulativeValue
		a.started = true
	} else if s.CumulativeValue.GreaterThan(sum.AllTimePeak) {
		sum.AllTimePeak = s.CumulativeValue
	}

	sum.AllTimeTotal = s.CumulativeValue
	volume := s.Delta.Abs()
	sum.AllTimeVolume = sum.AllTimeVolume.Add(volume)

	ref := sum.ReferenceTimestamp
	if InWindow(s.Timestamp, Day, ref) {
		sum.Volume24h = sum.Volume24h.Add(volume)
		sum.Count24h++
	}
	if InWindow(s.Timestamp, Week, ref) {
		sum.Volume7d = sum.Volume7d.Add(volume)
		sum.Count7d++
	}
	if InWindow(s.Timestamp, Month, ref) {
		sum.Volume30d = sum.Volume30d.Add(volume)
		sum.Count30d++
	}

	version := s.Version
	sum.LastVersion = &version
	sum.SnapshotCount++
	sum.Series = append(sum.Series, domain.SeriesPoint{
		Ledger:    s.LedgerSequence,
		Timestamp: s.Timestamp,
		Value:     s.CumulativeValue,
	})
}

// Summary returns the accumulated summary. An empty history yields zeros.
func (a *Accumulator) Summary() *domain.WindowSummary {
	out := a.summary
	return &out
}

// Aggregate summarizes history, which must be in ascending version order.
func Aggregate(history []*domain.Snapshot, ref uint64) *domain.WindowSummary {
	acc := NewAccumulator(ref)
	for _, s := range history {
		acc.Add(s)
	}
	return acc.Summary()
}

// AggregateSeq summarizes a scan without materializing it.
// It stops at the first scan error.
func AggregateSeq(seq iter.Seq2[*domain.Snapshot, error], ref uint64) (*domain.WindowSummary, error) {
	acc := NewAccumulator(ref)
	for s, err := range seq {
		if err != nil {
			return nil, err
		}
		acc.Add(s)
	}
	return acc.Summary(), nil
}

// Sum returns the absolute delta volume of history inside a window of w seconds ending at ref.
func Sum(history []*domain.Snapshot, w, ref uint64) decimal.Decimal {
	total := decimal.Zero
	for _, s := range history {
		if InWindow(s.Timestamp, w, ref) {
			total = total.Add(s.Delta.Abs())
		}
	}
	return total
}
