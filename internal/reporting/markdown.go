package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder
	d := r.Decimals

	kind := "all"
	if r.Kind != "" {
		kind = string(r.Kind)
	}

	// Header
	sb.WriteString("# Aggregate Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Reference: %s | Kind: %s | Series: %d\n\n",
		time.Unix(int64(r.ReferenceTimestamp), 0).UTC().Format(time.RFC3339), kind, len(r.Summaries)))

	// Window summaries
	sb.WriteString("## Window Summaries\n\n")
	if len(r.Summaries) > 0 {
		sb.WriteString("| Entity | Kind | Total | Peak | Volume | Volume 24h | Volume 7d | Volume 30d | Events 24h | Events 7d | Events 30d | Snapshots | Last Ledger |\n")
		sb.WriteString("|--------|------|-------|------|--------|------------|-----------|------------|------------|-----------|------------|-----------|-------------|\n")
		for _, s := range r.Summaries {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s | %s | %s | %d | %d | %d | %d | %d |\n",
				s.EntityKey, s.MetricKind,
				FormatAmount(s.Total, d), FormatAmount(s.Peak, d), FormatAmount(s.Volume, d),
				FormatAmount(s.Volume24h, d), FormatAmount(s.Volume7d, d), FormatAmount(s.Volume30d, d),
				s.Count24h, s.Count7d, s.Count30d, s.SnapshotCount, s.LastLedger))
		}
	} else {
		sb.WriteString("No series recorded.\n")
	}
	sb.WriteString("\n")

	// Recent actions
	sb.WriteString("## Recent Actions\n\n")
	if len(r.Actions) > 0 {
		sb.WriteString("| Ledger | Time | Entity | Action | Amount | Total | Source |\n")
		sb.WriteString("|--------|------|--------|--------|--------|-------|--------|\n")
		for _, a := range r.Actions {
			sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s | %s | %s |\n",
				a.Ledger,
				time.Unix(int64(a.Timestamp), 0).UTC().Format(time.RFC3339),
				a.EntityKey, a.Action,
				FormatAmount(a.Amount, d), FormatAmount(a.Total, d),
				a.Source))
		}
	} else {
		sb.WriteString("No actions recorded.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}
