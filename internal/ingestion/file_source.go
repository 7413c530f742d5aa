package ingestion

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"ledger-aggregates/internal/observability"
)

const maxLineSize = 1 << 20

// FileSource replays a JSON Lines file of raw events.
// The whole file is loaded, sorted and grouped on the first call to Next.
type FileSource struct {
	path    string
	logger  *zap.Logger
	batches []*LedgerBatch
	loaded  bool
}

// NewFileSource creates a source reading path.
func NewFileSource(path string, logger *zap.Logger) *FileSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSource{path: path, logger: logger}
}

var _ LedgerSource = (*FileSource)(nil)

// Next returns the next ledger, or io.EOF after the last one.
func (s *FileSource) Next(ctx context.Context) (*LedgerBatch, error) {
	if !s.loaded {
		if err := s.load(); err != nil {
			return nil, err
		}
		s.loaded = true
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.batches) == 0 {
		return nil, io.EOF
	}
	b := s.batches[0]
	s.batches = s.batches[1:]
	return b, nil
}

// Commit is a no-op; file progress is tracked by the ledger cursor.
func (s *FileSource) Commit(context.Context, *LedgerBatch) error {
	return nil
}

func (s *FileSource) load() error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open events file: %w", err)
	}
	defer f.Close()

	events, err := ReadEvents(f, s.logger)
	if err != nil {
		return fmt.Errorf("read %s: %w", s.path, err)
	}

	SortRawEvents(events)
	if err := ValidateOrdering(events); err != nil {
		return fmt.Errorf("%s: %w", s.path, err)
	}
	s.batches = GroupByLedger(events)

	s.logger.Info("loaded events file",
		zap.String("path", s.path),
		zap.Int("events", len(events)),
		zap.Int("ledgers", len(s.batches)))
	return nil
}

// ReadEvents parses JSON Lines from r. Blank lines are ignored and
// malformed lines are logged and dropped.
func ReadEvents(r io.Reader, logger *zap.Logger) ([]*RawEvent, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var events []*RawEvent
	line := 0
	for scanner.Scan() {
		line++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		raw, err := ParseRawEvent(data)
		if err != nil {
			logger.Warn("skipping malformed line", zap.Int("line", line), zap.Error(err))
			observability.RecordEventSkipped("malformed")
			continue
		}
		events = append(events, raw)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// WriteEvents writes events as JSON Lines.
func WriteEvents(w io.Writer, events []*RawEvent) error {
	bw := bufio.NewWriter(w)
	for _, ev := range events {
		data, err := marshalRawEvent(ev)
		if err != nil {
			return err
		}
		bw.Write(data)
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
