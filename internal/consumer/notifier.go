package consumer

import (
	"context"

	"github.com/BLNCname/GMailSecretary/internal/bus"
	"go.uber.org/zap"
)

// NewEmailEvent is pushed to a user's open connections when mail arrives.
type NewEmailEvent struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Subject string `json:"subject"`
	From    string `json:"from"`
	Date    string `json:"date"`
}

// Pusher delivers a JSON payload to every open connection of a user.
type Pusher interface {
	SendJSON(userID string, v any) error
}

// Notifier pushes a new_email event for every delivery.
type Notifier struct {
	pusher Pusher
	logger *zap.Logger
}

func NewNotifier(pusher Pusher, logger *zap.Logger) *Notifier {
	return &Notifier{pusher: pusher, logger: logger.Named("notifier")}
}

// Run notifies until the channel closes or ctx ends.
func (n *Notifier) Run(ctx context.Context, deliveries <-chan bus.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			n.notify(d)
		}
	}
}

func (n *Notifier) notify(d bus.Delivery) {
	event := NewEmailEvent{
		Type:    "new_email",
		ID:      d.Message.ID,
		Subject: d.Message.Subject,
		From:    d.Message.From,
		Date:    d.Message.Date,
	}
	if err := n.pusher.SendJSON(d.UserID, event); err != nil {
		n.logger.Warn("Failed to push notification", zap.String("user_id", d.UserID), zap.Error(err))
	}
}
