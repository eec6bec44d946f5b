package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BLNCname/GMailSecretary/internal/metrics"
	"github.com/BLNCname/GMailSecretary/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func delivery(id string) Delivery {
	return NewDelivery(models.Message{ID: id, UserID: "alice", Subject: "subject " + id})
}

func TestBrokerFanOut(t *testing.T) {
	broker := NewBroker(zap.NewNop(), nil)
	indexer := broker.Subscribe("indexer", 4)
	notifier := broker.Subscribe("notifier", 4)

	ctx := context.Background()
	for _, id := range []string{"m1", "m2", "m3"} {
		require.NoError(t, broker.Publish(ctx, delivery(id)))
	}
	broker.Close()

	collect := func(ch <-chan Delivery) []string {
		var ids []string
		for d := range ch {
			ids = append(ids, d.Message.ID)
		}
		return ids
	}

	t.Run("every subscriber sees every delivery in order", func(t *testing.T) {
		assert.Equal(t, []string{"m1", "m2", "m3"}, collect(indexer))
		assert.Equal(t, []string{"m1", "m2", "m3"}, collect(notifier))
	})
}

func TestNewDelivery(t *testing.T) {
	first := delivery("m1")
	second := delivery("m1")

	assert.Equal(t, "alice", first.UserID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.False(t, first.PublishedAt.IsZero())
}

func TestBrokerPublishBlocksUntilAccepted(t *testing.T) {
	broker := NewBroker(zap.NewNop(), nil)
	ch := broker.Subscribe("slow", 0)

	done := make(chan error, 1)
	go func() {
		done <- broker.Publish(context.Background(), delivery("m1"))
	}()

	select {
	case <-done:
		t.Fatal("Publish returned before the subscriber received")
	case <-time.After(50 * time.Millisecond):
	}

	got := <-ch
	assert.Equal(t, "m1", got.Message.ID)
	require.NoError(t, <-done)
}

func TestBrokerPublishContextEnds(t *testing.T) {
	m := metrics.New()
	broker := NewBroker(zap.NewNop(), m)
	_ = broker.Subscribe("stuck", 0)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := broker.Publish(ctx, delivery("m1"))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestBrokerClose(t *testing.T) {
	t.Run("publish after close fails", func(t *testing.T) {
		broker := NewBroker(zap.NewNop(), nil)
		broker.Close()

		err := broker.Publish(context.Background(), delivery("m1"))
		assert.ErrorIs(t, err, ErrClosed)
	})

	t.Run("subscribe after close gets a closed channel", func(t *testing.T) {
		broker := NewBroker(zap.NewNop(), nil)
		broker.Close()

		_, ok := <-broker.Subscribe("late", 1)
		assert.False(t, ok)
	})

	t.Run("close is idempotent", func(t *testing.T) {
		broker := NewBroker(zap.NewNop(), nil)
		_ = broker.Subscribe("a", 1)
		broker.Close()
		assert.NotPanics(t, broker.Close)
	})
}
