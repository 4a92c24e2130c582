package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/learnhub/learnhub/pkg/logger"
	"github.com/learnhub/learnhub/pkg/metrics"
)

// KafkaConfig configures the Kafka event stream.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	ClientID     string
	WriteTimeout time.Duration
}

const defaultKafkaWriteTimeout = 5 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON messages keyed by user id so that all events
// of one account land on the same partition in order.
type KafkaPublisher struct {
	writer  messageWriter
	topic   string
	timeout time.Duration
	log     *zap.Logger
}

// NewKafkaPublisher builds a synchronous kafka-go writer for the configured topic.
func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, broker := range cfg.Brokers {
		if trimmed := strings.TrimSpace(broker); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	if len(brokers) == 0 {
		return nil, errors.New("kafka publisher: at least one broker is required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("kafka publisher: topic is required")
	}

	transport := &kafka.Transport{ClientID: cfg.ClientID}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  3,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}

	return newKafkaPublisher(writer, cfg), nil
}

func newKafkaPublisher(writer messageWriter, cfg KafkaConfig) *KafkaPublisher {
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = defaultKafkaWriteTimeout
	}
	return &KafkaPublisher{
		writer:  writer,
		topic:   cfg.Topic,
		timeout: timeout,
		log:     logger.WithModule("events"),
	}
}

// Publish writes the event and waits for the broker acknowledgement.
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafka publisher: marshal: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.UserID),
		Value: payload,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		metrics.EventsPublished.WithLabelValues("kafka", "error").Inc()
		p.log.Warn("kafka publish failed",
			zap.String("topic", p.topic),
			zap.String("event", string(event.Type)),
			zap.Error(err),
		)
		return fmt.Errorf("kafka publisher: write: %w", err)
	}
	metrics.EventsPublished.WithLabelValues("kafka", "ok").Inc()
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
