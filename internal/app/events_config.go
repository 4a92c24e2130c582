package app

import (
	"strings"

	"github.com/learnhub/learnhub/internal/events"
)

// KafkaPublisherConfig converts the Kafka settings into the events package representation.
func (c EventsConfig) KafkaPublisherConfig() events.KafkaConfig {
	brokers := make([]string, 0, len(c.Kafka.Brokers))
	for _, broker := range c.Kafka.Brokers {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return events.KafkaConfig{
		Brokers:      brokers,
		Topic:        strings.TrimSpace(c.Kafka.Topic),
		ClientID:     strings.TrimSpace(c.Kafka.ClientID),
		WriteTimeout: c.Kafka.WriteTimeout,
	}
}
