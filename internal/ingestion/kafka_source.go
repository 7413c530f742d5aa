package ingestion

import (
	"context"
	"fmt"
	"sort"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"ledger-aggregates/internal/observability"
)

// KafkaConfig holds Kafka connection configuration.
type KafkaConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
}

// messageReader is the subset of *kafka.Reader the source uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSource assembles ledgers from a topic of raw events.
//
// Messages of the open ledger are buffered until its close marker or a message
// from a later ledger arrives. Offsets are committed only through Commit, after
// the ledger has been applied.
type KafkaSource struct {
	reader messageReader
	logger *zap.Logger

	open     *LedgerBatch
	openMsgs []kafka.Message
	ahead    *RawEvent // first event of the next ledger, read while closing open
	aheadMsg kafka.Message

	lastEmitted uint32
	stray       []kafka.Message // undecodable messages not yet tied to a ledger
	pending     map[uint32][]kafka.Message
}

// NewKafkaSource creates a consumer-group reader with auto-commit disabled.
func NewKafkaSource(cfg KafkaConfig, logger *zap.Logger) *KafkaSource {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
	})
	return newKafkaSource(reader, logger)
}

func newKafkaSource(reader messageReader, logger *zap.Logger) *KafkaSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaSource{
		reader:  reader,
		logger:  logger,
		pending: make(map[uint32][]kafka.Message),
	}
}

var _ LedgerSource = (*KafkaSource)(nil)

// Next blocks until a ledger closes.
func (s *KafkaSource) Next(ctx context.Context) (*LedgerBatch, error) {
	if s.ahead != nil {
		raw, msg := s.ahead, s.aheadMsg
		s.ahead = nil
		if batch := s.accept(raw, msg); batch != nil {
			return batch, nil
		}
	}

	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch message: %w", err)
		}

		raw, err := ParseRawEvent(msg.Value)
		if err != nil {
			s.logger.Warn("skipping malformed message",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
			observability.RecordEventSkipped("malformed")
			s.drop(msg)
			continue
		}

		if raw.Ledger <= s.lastEmitted {
			s.logger.Warn("dropping event for closed ledger",
				zap.Uint32("ledger", raw.Ledger),
				zap.Uint32("last_emitted", s.lastEmitted))
			observability.RecordEventSkipped("late")
			s.drop(msg)
			continue
		}

		if s.open != nil && raw.Ledger > s.open.Sequence {
			s.ahead, s.aheadMsg = raw, msg
			return s.emit(), nil
		}

		if batch := s.accept(raw, msg); batch != nil {
			return batch, nil
		}
	}
}

// drop keeps an unusable message so its offset is committed with a ledger.
func (s *KafkaSource) drop(msg kafka.Message) {
	if s.open != nil {
		s.open.Malformed++
		s.openMsgs = append(s.openMsgs, msg)
		return
	}
	s.stray = append(s.stray, msg)
}

// accept adds raw to the open ledger and returns it if raw closes it.
func (s *KafkaSource) accept(raw *RawEvent, msg kafka.Message) *LedgerBatch {
	if s.open == nil {
		s.open = &LedgerBatch{Sequence: raw.Ledger, Malformed: len(s.stray)}
		s.openMsgs = append(s.openMsgs, s.stray...)
		s.stray = nil
	}
	s.open.observe(raw)
	s.openMsgs = append(s.openMsgs, msg)

	if raw.IsLedgerClose() {
		return s.emit()
	}
	return nil
}

func (s *KafkaSource) emit() *LedgerBatch {
	batch := s.open
	sort.SliceStable(batch.Events, func(i, j int) bool {
		return compareRawEvents(batch.Events[i], batch.Events[j]) < 0
	})
	s.pending[batch.Sequence] = s.openMsgs
	s.lastEmitted = batch.Sequence
	s.open, s.openMsgs = nil, nil
	return batch
}

// Commit commits the offsets of every message that made up batch.
func (s *KafkaSource) Commit(ctx context.Context, batch *LedgerBatch) error {
	msgs, ok := s.pending[batch.Sequence]
	if !ok {
		return nil
	}
	if err := s.reader.CommitMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("commit ledger %d: %w", batch.Sequence, err)
	}
	delete(s.pending, batch.Sequence)
	return nil
}

// Close closes the reader. Uncommitted ledgers are redelivered on restart.
func (s *KafkaSource) Close() error {
	return s.reader.Close()
}
