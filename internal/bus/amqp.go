package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	// ExchangeMailReceived is the fanout exchange new mail is relayed to.
	ExchangeMailReceived = "mail.received"

	defaultPublishTimeout = 5 * time.Second
)

// Channel is the part of *amqp.Channel the relay publishes through.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPRelay forwards deliveries from a subscription to a RabbitMQ fanout exchange.
type AMQPRelay struct {
	channel        Channel
	exchange       string
	publishTimeout time.Duration
	logger         *zap.Logger

	conn *amqp.Connection
	ch   *amqp.Channel
}

// DialAMQPRelay connects to the broker at url and declares the exchange.
func DialAMQPRelay(url string, logger *zap.Logger) (*AMQPRelay, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		ExchangeMailReceived,
		"fanout",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", ExchangeMailReceived, err)
	}

	relay := NewAMQPRelay(ch, logger)
	relay.conn = conn
	relay.ch = ch
	return relay, nil
}

// NewAMQPRelay builds a relay over an already configured channel.
func NewAMQPRelay(channel Channel, logger *zap.Logger) *AMQPRelay {
	return &AMQPRelay{
		channel:        channel,
		exchange:       ExchangeMailReceived,
		publishTimeout: defaultPublishTimeout,
		logger:         logger.Named("amqp_relay"),
	}
}

// Run relays deliveries until the subscription closes or ctx ends.
// Publish failures are logged; the relay keeps going.
func (r *AMQPRelay) Run(ctx context.Context, deliveries <-chan Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			if err := r.publish(ctx, d); err != nil {
				r.logger.Warn("Failed to relay delivery",
					zap.String("user_id", d.UserID),
					zap.String("message_id", d.Message.ID),
					zap.Error(err),
				)
			}
		}
	}
}

func (r *AMQPRelay) publish(ctx context.Context, d Delivery) error {
	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal delivery: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.publishTimeout)
	defer cancel()

	return r.channel.PublishWithContext(ctx, r.exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    d.ID.String(),
		Timestamp:    d.PublishedAt,
		Body:         body,
	})
}

// Close releases the connection opened by DialAMQPRelay.
func (r *AMQPRelay) Close() error {
	if r.ch != nil {
		_ = r.ch.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
