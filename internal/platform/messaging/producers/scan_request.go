package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/reconcilia-matching-engine/internal/config"
	"github.com/segmentio/kafka-go"
)

// ScanReqMessageProducer publishes reconciliation scan requests from the API
// gateway to the processor's topic.
type ScanReqMessageProducer struct {
	logger *slog.Logger
	writer KafkaWriter // Interface for testability
	topic  string
}

// NewScanReqMessageProducer creates the gateway-side producer and ensures the
// scan topic exists before the first write.
func NewScanReqMessageProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*ScanReqMessageProducer, error) {
	if cfg.ScanTopic == "" {
		return nil, fmt.Errorf("kafka scan topic is not configured")
	}

	conn, err := kafka.Dial("tcp", cfg.Brokers)
	if err != nil {
		return nil, fmt.Errorf("failed to dial kafka for scan request producer: %w", err)
	}
	defer conn.Close()

	err = createKafkaTopicIfNotExists(conn, cfg.ScanTopic, cfg.NumPartitions, cfg.ReplicationFactor, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure scan topic %s exists: %w", cfg.ScanTopic, err)
	}

	writer := &kafka.Writer{
		Addr:  kafka.TCP(cfg.Brokers),
		Topic: cfg.ScanTopic,
		// Messages are keyed by anchor id; hashing keeps every scan of one
		// anchor on the same partition so they process in order.
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true, // Using async for high throughput
		WriteTimeout: cfg.MaxWait,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error("Failed to write messages asynchronously", "topic", cfg.ScanTopic, "error", err, "count", len(messages))
			} else {
				logger.Debug("Successfully wrote messages asynchronously", "topic", cfg.ScanTopic, "count", len(messages))
			}
		},
	}

	return &ScanReqMessageProducer{
		logger: logger,
		writer: writer,
		topic:  cfg.ScanTopic,
	}, nil
}

func (p *ScanReqMessageProducer) Publish(ctx context.Context, key string, value interface{}) error {
	jsonValue, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal message value for scan request producer: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: jsonValue,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish scan request",
			"topic", p.topic,
			"key", key,
			"error", err,
		)
		return fmt.Errorf("failed to publish scan request to %s: %w", p.topic, err)
	}

	p.logger.Debug("Published scan request",
		"topic", p.topic,
		"key", key,
	)
	return nil
}

func (p *ScanReqMessageProducer) Close() error {
	p.logger.Info("Closing scan request Kafka producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close scan request kafka writer for topic %s: %w", p.topic, err)
	}
	return nil
}
