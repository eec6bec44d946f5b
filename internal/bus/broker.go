package bus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/BLNCname/GMailSecretary/internal/metrics"
	"github.com/BLNCname/GMailSecretary/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("broker closed")

// Delivery is one newly discovered message on its way to consumers.
type Delivery struct {
	ID          uuid.UUID      `json:"id"`
	UserID      string         `json:"user_id"`
	Message     models.Message `json:"message"`
	PublishedAt time.Time      `json:"published_at"`
}

// NewDelivery stamps a message with a fresh delivery id.
func NewDelivery(msg models.Message) Delivery {
	return Delivery{
		ID:          uuid.New(),
		UserID:      msg.UserID,
		Message:     msg,
		PublishedAt: time.Now().UTC(),
	}
}

type subscriber struct {
	name string
	ch   chan Delivery
}

// Broker fans every published delivery out to all subscribers.
// Each subscriber has its own buffered channel and sees deliveries in publish order.
type Broker struct {
	mu          sync.RWMutex
	subscribers []*subscriber
	closed      bool

	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewBroker creates a broker. m may be nil.
func NewBroker(logger *zap.Logger, m *metrics.Metrics) *Broker {
	return &Broker{
		logger:  logger.Named("bus"),
		metrics: m,
	}
}

// Subscribe registers a named consumer. Subscriptions made after Close get a
// closed channel.
func (b *Broker) Subscribe(name string, buffer int) <-chan Delivery {
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan Delivery, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch
	}

	b.subscribers = append(b.subscribers, &subscriber{name: name, ch: ch})
	b.logger.Debug("Subscriber registered", zap.String("subscriber", name), zap.Int("buffer", buffer))
	return ch
}

// Publish hands d to every subscriber in registration order, waiting for each
// to accept it. When ctx ends first, the remaining subscribers miss d and the
// context error is returned.
func (b *Broker) Publish(ctx context.Context, d Delivery) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}

	for i, sub := range b.subscribers {
		select {
		case sub.ch <- d:
		case <-ctx.Done():
			for _, missed := range b.subscribers[i:] {
				b.recordDrop(missed.name, d)
			}
			return ctx.Err()
		}
	}

	return nil
}

// Close closes every subscriber channel. It waits for in-flight publishes.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, sub := range b.subscribers {
		close(sub.ch)
	}
}

func (b *Broker) recordDrop(name string, d Delivery) {
	b.logger.Warn("Delivery dropped",
		zap.String("subscriber", name),
		zap.String("user_id", d.UserID),
		zap.String("message_id", d.Message.ID),
	)
	if b.metrics != nil {
		b.metrics.BusDrops.WithLabelValues(name).Inc()
	}
}
