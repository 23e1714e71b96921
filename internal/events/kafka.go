package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
)

// Publisher sends JSON values to a topic
type Publisher interface {
	PublishJSON(ctx context.Context, topic, key string, value any) (int32, int64, error)
	Close() error
}

// SyncProducer is a Publisher over a sarama sync producer
type SyncProducer struct {
	producer sarama.SyncProducer
	logger   *slog.Logger
}

// NewSyncProducer connects an idempotent producer to brokers
func NewSyncProducer(brokers []string, logger *slog.Logger) (*SyncProducer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_6_0_0
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Retry.Backoff = 250 * time.Millisecond

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return NewSyncProducerFrom(producer, logger), nil
}

// NewSyncProducerFrom wraps an existing sarama producer
func NewSyncProducerFrom(producer sarama.SyncProducer, logger *slog.Logger) *SyncProducer {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncProducer{producer: producer, logger: logger}
}

func (p *SyncProducer) PublishJSON(ctx context.Context, topic, key string, value any) (int32, int64, error) {
	select {
	case <-ctx.Done():
		return 0, 0, ctx.Err()
	default:
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return 0, 0, fmt.Errorf("marshal kafka payload: %w", err)
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		p.logger.Error("kafka publish failed", "topic", topic, "error", err)
		return 0, 0, fmt.Errorf("kafka publish failed: %w", err)
	}
	return partition, offset, nil
}

func (p *SyncProducer) Close() error {
	if p.producer == nil {
		return nil
	}
	return p.producer.Close()
}

// KafkaSink publishes each envelope to one topic, keyed by transaction hash
// so events of one transaction stay ordered within a partition.
type KafkaSink struct {
	publisher Publisher
	topic     string
}

func NewKafkaSink(publisher Publisher, topic string) *KafkaSink {
	return &KafkaSink{publisher: publisher, topic: topic}
}

func (k *KafkaSink) Name() string {
	return "kafka"
}

func (k *KafkaSink) Publish(ctx context.Context, envs []Envelope) error {
	for _, e := range envs {
		if _, _, err := k.publisher.PublishJSON(ctx, k.topic, e.TxHash, e); err != nil {
			return fmt.Errorf("publish %s: %w", e.EventID, err)
		}
	}
	return nil
}

func (k *KafkaSink) Close() error {
	return k.publisher.Close()
}
