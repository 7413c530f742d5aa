package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
)

type fakeReader struct {
	msgs      []kafka.Message
	committed []kafka.Message
	closed    bool
}

var errDrained = errors.New("no more messages")

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(f.msgs) == 0 {
		return kafka.Message{}, errDrained
	}
	m := f.msgs[0]
	f.msgs = f.msgs[1:]
	return m, nil
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.committed = append(f.committed, msgs...)
	return nil
}

func (f *fakeReader) Close() error {
	f.closed = true
	return nil
}

func message(t *testing.T, offset int64, ev *RawEvent) kafka.Message {
	t.Helper()
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	return kafka.Message{Offset: offset, Value: data}
}

func TestKafkaSource_AssemblesLedgers(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{
		message(t, 0, rawEvent(5, 1, 0, "supply", "2")),
		message(t, 1, rawEvent(5, 0, 0, "supply", "1")),
		{Offset: 2, Value: []byte("not json")},
		message(t, 3, LedgerClose(5, 30)),
		message(t, 4, rawEvent(6, 0, 0, "borrow", "1")),
		message(t, 5, rawEvent(7, 0, 0, "repay", "1")),
	}}
	src := newKafkaSource(reader, nil)
	ctx := context.Background()

	b5, err := src.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if b5.Sequence != 5 || len(b5.Events) != 2 || b5.ClosedAt != 30 || b5.Malformed != 1 {
		t.Fatalf("unexpected batch %+v", b5)
	}
	if b5.Events[0].TxIndex != 0 {
		t.Error("batch events should be sorted by position")
	}
	if len(reader.committed) != 0 {
		t.Fatal("nothing may be committed before Commit")
	}

	// Ledger 6 has no marker; it closes when ledger 7 arrives.
	b6, err := src.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if b6.Sequence != 6 || len(b6.Events) != 1 {
		t.Fatalf("unexpected batch %+v", b6)
	}

	if err := src.Commit(ctx, b5); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if len(reader.committed) != 4 {
		t.Errorf("expected 4 committed messages for ledger 5, got %d", len(reader.committed))
	}

	// Ledger 7 is still open when the reader runs dry.
	if _, err := src.Next(ctx); !errors.Is(err, errDrained) {
		t.Errorf("expected reader error, got %v", err)
	}
}

func TestKafkaSource_DropsLateEvents(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{
		message(t, 0, LedgerClose(5, 30)),
		message(t, 1, rawEvent(4, 0, 0, "supply", "1")),
		message(t, 2, LedgerClose(6, 35)),
	}}
	src := newKafkaSource(reader, nil)
	ctx := context.Background()

	if b, err := src.Next(ctx); err != nil || b.Sequence != 5 || len(b.Events) != 0 {
		t.Fatalf("unexpected first batch %+v, %v", b, err)
	}
	b6, err := src.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if b6.Sequence != 6 || b6.Malformed != 1 {
		t.Errorf("late event should be carried as malformed: %+v", b6)
	}

	if err := src.Close(); err != nil || !reader.closed {
		t.Errorf("Close: %v", err)
	}
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaPublisher_RoundTrip(t *testing.T) {
	writer := &fakeWriter{}
	pub := &KafkaPublisher{writer: writer}
	ctx := context.Background()

	batch := &LedgerBatch{Sequence: 8, ClosedAt: 40, Events: []*RawEvent{
		rawEvent(8, 0, 0, "supply", "1"),
		rawEvent(8, 0, 1, "borrow", "2"),
	}}
	if err := pub.PublishLedger(ctx, batch); err != nil {
		t.Fatalf("PublishLedger: %v", err)
	}
	if len(writer.msgs) != 3 {
		t.Fatalf("expected events plus marker, got %d messages", len(writer.msgs))
	}
	for _, m := range writer.msgs {
		if string(m.Key) != "8" {
			t.Errorf("message key = %q, want 8", m.Key)
		}
	}

	reader := &fakeReader{msgs: writer.msgs}
	got, err := newKafkaSource(reader, nil).Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got.Sequence != 8 || got.ClosedAt != 40 || len(got.Events) != 2 {
		t.Errorf("round trip mismatch: %+v", got)
	}
}
