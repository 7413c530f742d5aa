package ingestion

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeEventsFile(t *testing.T, events []*RawEvent, extra string) string {
	t.Helper()
	var buf bytes.Buffer
	if err := WriteEvents(&buf, events); err != nil {
		t.Fatalf("WriteEvents: %v", err)
	}
	buf.WriteString(extra)

	path := filepath.Join(t.TempDir(), "events.jsonl")
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFileSource(t *testing.T) {
	path := writeEventsFile(t, []*RawEvent{
		rawEvent(2, 0, 0, "borrow", "5"),
		rawEvent(1, 1, 0, "supply", "7"),
		rawEvent(1, 0, 0, "supply", "3"),
	}, "\n{not json}\n")

	src := NewFileSource(path, nil)
	ctx := context.Background()

	first, err := src.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if first.Sequence != 1 || len(first.Events) != 2 || first.Events[0].Amount != "3" {
		t.Errorf("unexpected first batch %+v", first)
	}

	second, err := src.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if second.Sequence != 2 || second.ClosedAt != 10 {
		t.Errorf("unexpected second batch %+v", second)
	}

	if _, err := src.Next(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestFileSource_DuplicatePosition(t *testing.T) {
	path := writeEventsFile(t, []*RawEvent{
		rawEvent(1, 0, 0, "supply", "3"),
		rawEvent(1, 0, 0, "supply", "4"),
	}, "")

	_, err := NewFileSource(path, nil).Next(context.Background())
	if !errors.Is(err, ErrInvalidOrdering) {
		t.Errorf("expected ErrInvalidOrdering, got %v", err)
	}
}

func TestFileSource_MissingFile(t *testing.T) {
	_, err := NewFileSource(filepath.Join(t.TempDir(), "nope.jsonl"), nil).Next(context.Background())
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestReadEvents_SkipsMalformed(t *testing.T) {
	input := `{"ledger":1,"action":"supply","amount":"1"}
garbage
{"action":"supply"}

{"ledger":2,"action":"ledger_close"}
`
	events, err := ReadEvents(strings.NewReader(input), nil)
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if !events[1].IsLedgerClose() {
		t.Error("second event should be a close marker")
	}
}
