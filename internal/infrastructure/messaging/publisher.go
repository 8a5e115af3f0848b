package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/telcoingest/invoice-pipeline/internal/application/port"
	"github.com/telcoingest/invoice-pipeline/internal/domain/invoice"
)

// EventMappingRequested is the event type; the routing key appends the vendor
const EventMappingRequested = "invoice.mapping.requested"

// MappingRequested asks a downstream consumer to map one persisted package
type MappingRequested struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	PersistedID string         `json:"persisted_id"`
	Vendor      invoice.Vendor `json:"vendor"`
	RequestedAt time.Time      `json:"requested_at"`
}

// Channel is the part of *amqp.Channel the publisher needs
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher implements port.Mapper by publishing a MappingRequested event
type Publisher struct {
	channel  Channel
	exchange string
	logger   *zap.Logger
	now      func() time.Time
}

// NewPublisher creates a publisher for exchange
func NewPublisher(ch Channel, exchange string, logger *zap.Logger) *Publisher {
	return &Publisher{
		channel:  ch,
		exchange: exchange,
		logger:   logger,
		now:      time.Now,
	}
}

// RoutingKey returns the key a vendor's mapping requests are published under
func RoutingKey(vendor invoice.Vendor) string {
	return EventMappingRequested + "." + vendor.String()
}

// Map publishes the mapping request. The package counts as mapped once the
// broker has accepted the message.
func (p *Publisher) Map(ctx context.Context, persistedID string, vendor invoice.Vendor) error {
	event := MappingRequested{
		ID:          uuid.NewString(),
		Type:        EventMappingRequested,
		PersistedID: persistedID,
		Vendor:      vendor,
		RequestedAt: p.now().UTC(),
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	key := RoutingKey(vendor)
	err = p.channel.PublishWithContext(ctx,
		p.exchange, // exchange
		key,        // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			MessageId:     event.ID,
			CorrelationId: persistedID,
			Timestamp:     event.RequestedAt,
			Body:          body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish mapping request: %w", err)
	}

	p.logger.Debug("Mapping request published",
		zap.String("routing_key", key),
		zap.String("event_id", event.ID),
		zap.String("persisted_id", persistedID))
	return nil
}

var _ port.Mapper = (*Publisher)(nil)
