package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"address-intelligence/internal/domain/entity"
	domain_service "address-intelligence/internal/domain/service"
	"address-intelligence/internal/infrastructure/config"
	"address-intelligence/internal/infrastructure/logger"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// TriggerEnvelope wraps a trigger event on the wire
type TriggerEnvelope struct {
	Type string          `json:"type"`
	TS   int64           `json:"ts"`
	Data json.RawMessage `json:"data"`
}

// KafkaHookPublisher publishes trigger events to a Kafka topic
type KafkaHookPublisher struct {
	topic    string
	producer sarama.SyncProducer
	logger   *logger.Logger
}

var _ domain_service.ResponseHook = (*KafkaHookPublisher)(nil)

// NewKafkaHookPublisher dials the brokers with an idempotent sync producer
func NewKafkaHookPublisher(cfg *config.KafkaConfig, logger *logger.Logger) (*KafkaHookPublisher, error) {
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic empty")
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("no kafka brokers")
	}

	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 10
	sc.Producer.Retry.Backoff = 200 * time.Millisecond
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.Idempotent = true
	sc.Net.MaxOpenRequests = 1
	sc.Version = sarama.V2_1_0_0

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return NewKafkaHookPublisherWithProducer(cfg.Topic, producer, logger), nil
}

// NewKafkaHookPublisherWithProducer uses an existing producer
func NewKafkaHookPublisherWithProducer(topic string, producer sarama.SyncProducer, logger *logger.Logger) *KafkaHookPublisher {
	return &KafkaHookPublisher{
		topic:    topic,
		producer: producer,
		logger:   logger.WithComponent("kafka-hook"),
	}
}

// Fire publishes the event keyed by address, so all of an address's triggers
// land on one partition. The bridge delivers the triggers of one message in
// order; triggers from concurrent messages for the same address may interleave.
func (k *KafkaHookPublisher) Fire(ctx context.Context, event entity.TriggerEvent) error {
	// SyncProducer has no context support; only check before sending
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(TriggerEnvelope{
		Type: string(event.Kind),
		TS:   event.FiredAt.UnixMilli(),
		Data: data,
	})
	if err != nil {
		return err
	}

	partition, offset, err := k.producer.SendMessage(&sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(event.Address),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return fmt.Errorf("kafka publish failed: %w", err)
	}

	k.logger.Debug("Published trigger event",
		zap.String("kind", string(event.Kind)),
		zap.String("address", event.Address),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

// Close closes the producer
func (k *KafkaHookPublisher) Close() error {
	if k.producer != nil {
		return k.producer.Close()
	}
	return nil
}
