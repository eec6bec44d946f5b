package consumer

import (
	"context"
	"errors"
	"fmt"

	"github.com/BLNCname/GMailSecretary/internal/bus"
	"github.com/BLNCname/GMailSecretary/internal/embedding"
	"github.com/BLNCname/GMailSecretary/internal/index"
	"github.com/BLNCname/GMailSecretary/internal/metrics"
	"github.com/BLNCname/GMailSecretary/internal/models"
	"github.com/BLNCname/GMailSecretary/internal/scheduler"
	"go.uber.org/zap"
)

// Classifier labels a message with an importance level.
type Classifier interface {
	Classify(ctx context.Context, msg models.Message) string
}

var _ scheduler.HistorySink = (*Indexer)(nil)

// Indexer enriches, embeds and stores messages in the document index.
type Indexer struct {
	index      *index.Index
	embedder   embedding.Embedder
	classifier Classifier
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

type IndexerOption func(*Indexer)

func WithClassifier(c Classifier) IndexerOption {
	return func(i *Indexer) {
		i.classifier = c
	}
}

func WithIndexMetrics(m *metrics.Metrics) IndexerOption {
	return func(i *Indexer) {
		i.metrics = m
	}
}

// NewIndexer fails when the embedder and the index disagree on dimensions.
func NewIndexer(ix *index.Index, embedder embedding.Embedder, logger *zap.Logger, opts ...IndexerOption) (*Indexer, error) {
	if embedder.Dimensions() != ix.Dimensions() {
		return nil, fmt.Errorf("%w: embedder produces %d, index expects %d",
			index.ErrDimensionMismatch, embedder.Dimensions(), ix.Dimensions())
	}

	i := &Indexer{
		index:    ix,
		embedder: embedder,
		logger:   logger.Named("indexer"),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Run indexes deliveries until the channel closes or ctx ends. A dimension
// mismatch is returned immediately; any other per-message problem is logged.
func (i *Indexer) Run(ctx context.Context, deliveries <-chan bus.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			if _, err := i.Index(ctx, d.Message); err != nil {
				return err
			}
		}
	}
}

// Backfill indexes bootstrap history in the given order.
func (i *Indexer) Backfill(ctx context.Context, msgs []models.Message) error {
	for _, msg := range msgs {
		if _, err := i.Index(ctx, msg); err != nil {
			return err
		}
	}
	i.logger.Info("History indexed", zap.Int("messages", len(msgs)))
	return nil
}

// Index stores one message. Only a dimension mismatch is returned as an error.
func (i *Indexer) Index(ctx context.Context, msg models.Message) (models.IndexEntry, error) {
	if i.classifier != nil && msg.Importance == "" {
		msg.Importance = i.classifier.Classify(ctx, msg)
	}

	vec, err := i.embedder.Embed(ctx, msg.Content())
	if err != nil {
		if errors.Is(err, embedding.ErrBadDimensions) {
			return models.IndexEntry{}, fmt.Errorf("%w: %w", index.ErrDimensionMismatch, err)
		}
		i.logger.Warn("Embedding failed, indexing without a vector",
			zap.String("user_id", msg.UserID),
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		vec = nil
	}

	entry, err := i.index.Add(msg, vec)
	if err != nil {
		return models.IndexEntry{}, fmt.Errorf("failed to index message %s: %w", msg.ID, err)
	}

	if i.metrics != nil {
		i.metrics.IndexSize.Set(float64(i.index.Len()))
	}
	i.logger.Debug("Message indexed",
		zap.String("user_id", msg.UserID),
		zap.String("message_id", msg.ID),
		zap.Int("seq", entry.Seq),
	)
	return entry, nil
}
