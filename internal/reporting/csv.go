package reporting

import (
	"fmt"
	"strings"
)

// RenderCSV renders the summary rows as CSV string. Amounts are in display units.
func RenderCSV(r *Report) string {
	var sb strings.Builder
	d := r.Decimals

	// Header
	sb.WriteString("entity_key,metric_kind,total,peak,volume,volume_24h,volume_7d,volume_30d,")
	sb.WriteString("count_24h,count_7d,count_30d,snapshot_count,last_ledger\n")

	// Rows
	for _, s := range r.Summaries {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%s,%s,%s,%s,%s,%d,%d,%d,%d,%d\n",
			s.EntityKey,
			s.MetricKind,
			FormatAmount(s.Total, d),
			FormatAmount(s.Peak, d),
			FormatAmount(s.Volume, d),
			FormatAmount(s.Volume24h, d),
			FormatAmount(s.Volume7d, d),
			FormatAmount(s.Volume30d, d),
			s.Count24h,
			s.Count7d,
			s.Count30d,
			s.SnapshotCount,
			s.LastLedger,
		))
	}

	return sb.String()
}
