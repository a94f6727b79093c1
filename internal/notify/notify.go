// Package notify publishes accepted trade records for downstream consumers
// (the alarm dashboard) over Kafka. The sink is best-effort: a failed publish
// is logged, never retried, and never blocks the pipeline's persistence path.
package notify

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/batulgn/gipfeed/internal/models"
)

// Sink receives accepted trade records.
type Sink interface {
	PublishTrade(ctx context.Context, rec *models.TradeRecord) error
	Close() error
}

// Nop discards everything. Used when no broker is configured.
type Nop struct{}

func (Nop) PublishTrade(context.Context, *models.TradeRecord) error { return nil }
func (Nop) Close() error                                            { return nil }

// KafkaSink publishes trades as JSON messages keyed by contract name, so one
// contract's trades land on one partition in order.
type KafkaSink struct {
	writer *kafka.Writer
	log    *logrus.Logger
}

// NewKafkaSink creates a sink writing to the given broker and topic.
func NewKafkaSink(broker, topic string, log *logrus.Logger) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(broker),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		},
		log: log,
	}
}

// PublishTrade sends one record.
func (k *KafkaSink) PublishTrade(ctx context.Context, rec *models.TradeRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(rec.ContractName),
		Value: payload,
	})
}

// Close flushes and closes the writer.
func (k *KafkaSink) Close() error {
	return k.writer.Close()
}
