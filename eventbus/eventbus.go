package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/marcelsud/webhook-pipeline/webhook"
)

/* Watermill-backed publisher for outbound events
 * Publishing durability is the event bus's contract; this layer only
 * guarantees the event left the process with its correlation metadata
 */

// Metadata keys set on every published message
const (
	EventTypeMetadataKey     = "event_type"
	CorrelationIDMetadataKey = "correlation_id"
)

// Publisher sends outbound events to a watermill topic.
// Implements webhook.Publisher.
type Publisher struct {
	publisher message.Publisher
	topic     string
}

// NewPublisher wraps any watermill publisher for the given topic
func NewPublisher(pub message.Publisher, topic string) *Publisher {
	return &Publisher{
		publisher: pub,
		topic:     topic,
	}
}

// NewKafkaPublisher creates a publisher backed by a Kafka cluster
func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) (*Publisher, error) {
	saramaConfig := kafka.DefaultSaramaSyncPublisherConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll

	pub, err := kafka.NewPublisher(kafka.PublisherConfig{
		Brokers:               brokers,
		Marshaler:             kafka.DefaultMarshaler{},
		OverwriteSaramaConfig: saramaConfig,
	}, watermill.NewSlogLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("creating kafka publisher: %w", err)
	}

	return NewPublisher(pub, topic), nil
}

// Publish sends one outbound event tagged with its correlation ID
func (p *Publisher) Publish(ctx context.Context, event webhook.OutboundEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling outbound event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(EventTypeMetadataKey, event.Type)
	msg.Metadata.Set(CorrelationIDMetadataKey, event.CorrelationID)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("publishing to %s: %w", p.topic, err)
	}
	return nil
}

// Close closes the underlying watermill publisher
func (p *Publisher) Close() error {
	return p.publisher.Close()
}
