package ingestion

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes ledgers of raw events to a topic.
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher creates a publisher.
// Messages are keyed by ledger so a ledger stays on one partition, in order.
func NewKafkaPublisher(cfg KafkaConfig) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	return &KafkaPublisher{writer: writer}
}

// PublishLedger sends every event of batch followed by its close marker.
func (p *KafkaPublisher) PublishLedger(ctx context.Context, batch *LedgerBatch) error {
	key := []byte(strconv.FormatUint(uint64(batch.Sequence), 10))
	now := time.Now()

	events := make([]*RawEvent, 0, len(batch.Events)+1)
	events = append(events, batch.Events...)
	events = append(events, LedgerClose(batch.Sequence, batch.ClosedAt))

	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		data, err := marshalRawEvent(ev)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{Key: key, Value: data, Time: now})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish ledger %d: %w", batch.Sequence, err)
	}
	return nil
}

// Close closes the publisher.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
