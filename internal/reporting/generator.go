package reporting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"ledger-aggregates/internal/domain"
)

// DefaultActionLimit is the number of recent actions in a report.
const DefaultActionLimit = 50

// Source is the read side a report is built from.
type Source interface {
	Keys(ctx context.Context, kind domain.MetricKind) ([]domain.SeriesKey, error)
	Summary(ctx context.Context, key domain.SeriesKey, ref uint64) (*domain.WindowSummary, error)
	History(ctx context.Context, key domain.SeriesKey, from uint64) ([]*domain.Snapshot, error)
}

// Generator produces reports from stored snapshots.
type Generator struct {
	source      Source
	decimals    int32
	actionLimit int
	now         func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(source Source, decimals int32) *Generator {
	return &Generator{
		source:      source,
		decimals:    decimals,
		actionLimit: DefaultActionLimit,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// WithActionLimit sets how many recent actions are listed.
func (g *Generator) WithActionLimit(n int) *Generator {
	g.actionLimit = n
	return g
}

// Generate builds the report for kind (empty for all kinds) as of ref.
// A zero ref uses the generator clock.
func (g *Generator) Generate(ctx context.Context, kind domain.MetricKind, ref uint64) (*Report, error) {
	generated := g.now()
	if ref == 0 {
		ref = uint64(generated.Unix())
	}

	keys, err := g.source.Keys(ctx, kind)
	if err != nil {
		return nil, err
	}

	report := &Report{
		GeneratedAt:        generated,
		Kind:               kind,
		ReferenceTimestamp: ref,
		Decimals:           g.decimals,
		Summaries:          make([]SummaryRow, 0, len(keys)),
	}

	var actions []ActionRow
	for _, key := range keys {
		summary, err := g.source.Summary(ctx, key, ref)
		if err != nil {
			return nil, fmt.Errorf("summary %s: %w", key, err)
		}
		report.Summaries = append(report.Summaries, summaryRow(summary))

		history, err := g.source.History(ctx, key, 0)
		if err != nil {
			return nil, fmt.Errorf("history %s: %w", key, err)
		}
		for _, snap := range history {
			if snap.Timestamp > ref {
				break
			}
			actions = append(actions, actionRow(snap))
		}
	}

	report.Actions = latestActions(actions, g.actionLimit)
	return report, nil
}

func summaryRow(s *domain.WindowSummary) SummaryRow {
	row := SummaryRow{
		EntityKey:     s.EntityKey,
		MetricKind:    s.MetricKind,
		Total:         s.AllTimeTotal,
		Peak:          s.AllTimePeak,
		Volume:        s.AllTimeVolume,
		Volume24h:     s.Volume24h,
		Volume7d:      s.Volume7d,
		Volume30d:     s.Volume30d,
		Count24h:      s.Count24h,
		Count7d:       s.Count7d,
		Count30d:      s.Count30d,
		SnapshotCount: s.SnapshotCount,
	}
	if n := len(s.Series); n > 0 {
		row.LastLedger = s.Series[n-1].Ledger
	}
	return row
}

func actionRow(s *domain.Snapshot) ActionRow {
	return ActionRow{
		Ledger:     s.LedgerSequence,
		Timestamp:  s.Timestamp,
		EntityKey:  s.EntityKey,
		MetricKind: s.MetricKind,
		Action:     ActionLabel(s.MetricKind, s.Delta),
		Amount:     s.Delta.Abs(),
		Total:      s.CumulativeValue,
		Source:     s.Source,
		TxHash:     s.TxHash,
	}
}

// latestActions sorts newest first and keeps at most limit rows.
// Ties are broken by series so output is deterministic.
func latestActions(actions []ActionRow, limit int) []ActionRow {
	sort.SliceStable(actions, func(i, j int) bool {
		a, b := actions[i], actions[j]
		if a.Timestamp != b.Timestamp {
			return a.Timestamp > b.Timestamp
		}
		if a.Ledger != b.Ledger {
			return a.Ledger > b.Ledger
		}
		if a.MetricKind != b.MetricKind {
			return a.MetricKind < b.MetricKind
		}
		return a.EntityKey < b.EntityKey
	})
	if limit > 0 && len(actions) > limit {
		actions = actions[:limit]
	}
	if actions == nil {
		actions = []ActionRow{}
	}
	return actions
}
