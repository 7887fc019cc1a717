package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cryptofund-settlement/internal/config"
	"github.com/segmentio/kafka-go"
)

// WebhookEventProducer publishes payment gateway callbacks for the
// settlement processor. Writes are synchronous with full acks: the HTTP
// webhook endpoint must not acknowledge a provider callback before the
// event is durable, since providers only retry for so long.
type WebhookEventProducer struct {
	logger *slog.Logger
	writer KafkaWriter // Interface for testability
	topic  string
}

// NewWebhookEventProducer creates the webhook producer and ensures the topic exists
func NewWebhookEventProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*WebhookEventProducer, error) {
	if cfg.WebhookTopic == "" {
		return nil, fmt.Errorf("kafka webhook topic is not configured")
	}

	conn, err := kafka.Dial("tcp", cfg.Brokers)
	if err != nil {
		return nil, fmt.Errorf("failed to dial kafka for webhook producer: %w", err)
	}
	defer conn.Close()

	err = createKafkaTopicIfNotExists(conn, cfg.WebhookTopic, cfg.NumPartitions, cfg.ReplicationFactor, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure webhook topic %s exists: %w", cfg.WebhookTopic, err)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        cfg.WebhookTopic,
		Balancer:     &kafka.Hash{}, // Same payment id always lands on the same partition
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		WriteTimeout: cfg.MaxWait,
	}

	return &WebhookEventProducer{
		logger: logger,
		writer: writer,
		topic:  cfg.WebhookTopic,
	}, nil
}

func (p *WebhookEventProducer) Publish(ctx context.Context, key string, value interface{}) error {
	jsonValue, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: jsonValue,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish webhook event",
			"topic", p.topic,
			"key", key,
			"error", err,
		)
		return fmt.Errorf("failed to publish webhook event to %s: %w", p.topic, err)
	}

	p.logger.Debug("Published webhook event",
		"topic", p.topic,
		"key", key,
	)
	return nil
}

func (p *WebhookEventProducer) Close() error {
	p.logger.Info("Closing webhook Kafka producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close webhook kafka writer for topic %s: %w", p.topic, err)
	}
	return nil
}
