package domain

import "github.com/shopspring/decimal"

// SeriesPoint is one (timestamp, cumulative value) chart point.
type SeriesPoint struct {
	Ledger    uint32          `json:"ledger"`
	Timestamp uint64          `json:"timestamp"`
	Value     decimal.Decimal `json:"value"`
}

// WindowSummary is the rolling-window view of one series at a reference time.
type WindowSummary struct {
	EntityKey          string          `json:"entity_key"`
	MetricKind         MetricKind      `json:"metric_kind"`
	ReferenceTimestamp uint64          `json:"reference_timestamp"`
	AllTimeTotal       decimal.Decimal `json:"all_time_total"`
	AllTimePeak        decimal.Decimal `json:"all_time_peak"`
	AllTimeVolume      decimal.Decimal `json:"all_time_volume"`
	Volume24h          decimal.Decimal `json:"volume_24h"`
	Volume7d           decimal.Decimal `json:"volume_7d"`
	Volume30d          decimal.Decimal `json:"volume_30d"`
	Count24h           int             `json:"count_24h"`
	Count7d            int             `json:"count_7d"`
	Count30d           int             `json:"count_30d"`
	SnapshotCount      int             `json:"snapshot_count"`
	LastVersion        *uint32         `json:"last_version,omitempty"`
	Series             []SeriesPoint   `json:"series"`
}

// Key returns the series the summary describes.
func (w *WindowSummary) Key() SeriesKey {
	return SeriesKey{EntityKey: w.EntityKey, MetricKind: w.MetricKind}
}
