package window

import (
	"errors"
	"iter"
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"ledger-aggregates/internal/domain"
)

func snap(version uint32, value, delta int64, ts uint64) *domain.Snapshot {
	return &domain.Snapshot{
		EntityKey:       "X",
		MetricKind:      domain.MetricSupply,
		Version:         version,
		CumulativeValue: decimal.NewFromInt(value),
		Delta:           decimal.NewFromInt(delta),
		LedgerSequence:  version + 1,
		Timestamp:       ts,
	}
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestAggregate_Empty(t *testing.T) {
	s := Aggregate(nil, 1000)

	for name, v := range map[string]decimal.Decimal{
		"total": s.AllTimeTotal, "peak": s.AllTimePeak, "24h": s.Volume24h, "7d": s.Volume7d, "30d": s.Volume30d,
	} {
		if !v.IsZero() {
			t.Errorf("%s = %s, want 0", name, v)
		}
	}
	if len(s.Series) != 0 || s.SnapshotCount != 0 || s.LastVersion != nil {
		t.Errorf("unexpected empty summary %+v", s)
	}
	if s.ReferenceTimestamp != 1000 {
		t.Errorf("reference = %d", s.ReferenceTimestamp)
	}
}

func TestAggregate_SingleIncrease(t *testing.T) {
	s := Aggregate([]*domain.Snapshot{snap(0, 100, 100, 5000)}, 5000)

	if !s.AllTimeTotal.Equal(dec(100)) || !s.AllTimePeak.Equal(dec(100)) {
		t.Errorf("total/peak = %s/%s", s.AllTimeTotal, s.AllTimePeak)
	}
	for _, v := range []decimal.Decimal{s.Volume24h, s.Volume7d, s.Volume30d} {
		if !v.Equal(dec(100)) {
			t.Errorf("window sum = %s, want 100", v)
		}
	}
	if s.EntityKey != "X" || s.MetricKind != domain.MetricSupply {
		t.Errorf("key not carried: %s %s", s.EntityKey, s.MetricKind)
	}
	if s.LastVersion == nil || *s.LastVersion != 0 {
		t.Errorf("last version = %v", s.LastVersion)
	}
}

func TestAggregate_PeakAndAbsoluteVolume(t *testing.T) {
	history := []*domain.Snapshot{
		snap(0, 100, 100, 10),
		snap(1, 60, -40, 20),
	}
	s := Aggregate(history, 30)

	if !s.AllTimeTotal.Equal(dec(60)) {
		t.Errorf("total = %s, want 60", s.AllTimeTotal)
	}
	if !s.AllTimePeak.Equal(dec(100)) {
		t.Errorf("peak = %s, want 100", s.AllTimePeak)
	}
	if !s.Volume24h.Equal(dec(140)) || !s.AllTimeVolume.Equal(dec(140)) {
		t.Errorf("volume = %s / %s, want 140", s.Volume24h, s.AllTimeVolume)
	}
	if s.Count24h != 2 || s.SnapshotCount != 2 {
		t.Errorf("counts = %d / %d", s.Count24h, s.SnapshotCount)
	}
	if len(s.Series) != 2 || !s.Series[1].Value.Equal(dec(60)) || s.Series[1].Timestamp != 20 {
		t.Errorf("series not passed through: %+v", s.Series)
	}
}

func TestAggregate_NegativePeak(t *testing.T) {
	s := Aggregate([]*domain.Snapshot{snap(0, -10, -10, 1), snap(1, -30, -20, 2)}, 2)
	if !s.AllTimePeak.Equal(dec(-10)) {
		t.Errorf("peak = %s, want -10", s.AllTimePeak)
	}
}

func TestAggregate_DayBoundary(t *testing.T) {
	const t0 = 1_700_000_000
	history := []*domain.Snapshot{
		snap(0, 10, 10, t0),
		snap(1, 15, 5, t0+100),
	}
	s := Aggregate(history, t0+86_500)

	if !s.Volume24h.Equal(dec(5)) {
		t.Errorf("24h = %s, want 5", s.Volume24h)
	}
	if !s.Volume7d.Equal(dec(15)) {
		t.Errorf("7d = %s, want 15", s.Volume7d)
	}
}

func TestInWindow(t *testing.T) {
	tests := []struct {
		name    string
		ts, ref uint64
		want    bool
	}{
		{"at reference", 1000, 1000, true},
		{"exactly one window old", 1000, 1000 + Day, false},
		{"one second inside", 1001, 1000 + Day, true},
		{"after reference", 2000, 1000, true},
		{"overflowing timestamp", math.MaxUint64 - 10, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InWindow(tt.ts, Day, tt.ref); got != tt.want {
				t.Errorf("InWindow(%d, Day, %d) = %v, want %v", tt.ts, tt.ref, got, tt.want)
			}
		})
	}
}

func TestAggregate_WindowMonotonicity(t *testing.T) {
	const ref = 10_000_000
	var history []*domain.Snapshot
	value := int64(0)
	for i := 0; i < 60; i++ {
		delta := int64(i*7%23) - 11
		value += delta
		ts := uint64(ref - Month - Day + uint64(i)*60_000)
		history = append(history, snap(uint32(i), value, delta, ts))
	}

	s := Aggregate(history, ref)
	if s.Volume24h.GreaterThan(s.Volume7d) || s.Volume7d.GreaterThan(s.Volume30d) {
		t.Errorf("windows not monotone: %s %s %s", s.Volume24h, s.Volume7d, s.Volume30d)
	}
	if s.Volume30d.GreaterThan(s.AllTimeVolume) {
		t.Errorf("30d %s exceeds all-time %s", s.Volume30d, s.AllTimeVolume)
	}
	if !s.Volume7d.Equal(Sum(history, Week, ref)) {
		t.Errorf("Sum disagrees with Aggregate: %s vs %s", Sum(history, Week, ref), s.Volume7d)
	}
	if s.Count24h > s.Count7d || s.Count7d > s.Count30d {
		t.Errorf("counts not monotone: %d %d %d", s.Count24h, s.Count7d, s.Count30d)
	}
}

func TestAggregateSeq(t *testing.T) {
	history := []*domain.Snapshot{snap(0, 5, 5, 1), snap(1, 8, 3, 2)}
	seq := func(yield func(*domain.Snapshot, error) bool) {
		for _, s := range history {
			if !yield(s, nil) {
				return
			}
		}
	}

	s, err := AggregateSeq(seq, 2)
	if err != nil {
		t.Fatalf("AggregateSeq: %v", err)
	}
	if !s.AllTimeTotal.Equal(dec(8)) || s.SnapshotCount != 2 {
		t.Errorf("unexpected summary %+v", s)
	}

	boom := errors.New("scan failed")
	var failing iter.Seq2[*domain.Snapshot, error] = func(yield func(*domain.Snapshot, error) bool) {
		if yield(history[0], nil) {
			yield(nil, boom)
		}
	}
	if _, err := AggregateSeq(failing, 2); !errors.Is(err, boom) {
		t.Errorf("expected scan error, got %v", err)
	}
}
