package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/BLNCname/GMailSecretary/internal/api"
	"github.com/BLNCname/GMailSecretary/internal/auth"
	"github.com/BLNCname/GMailSecretary/internal/bus"
	"github.com/BLNCname/GMailSecretary/internal/config"
	"github.com/BLNCname/GMailSecretary/internal/consumer"
	"github.com/BLNCname/GMailSecretary/internal/credential"
	"github.com/BLNCname/GMailSecretary/internal/embedding"
	"github.com/BLNCname/GMailSecretary/internal/index"
	"github.com/BLNCname/GMailSecretary/internal/llm"
	"github.com/BLNCname/GMailSecretary/internal/mailbox"
	"github.com/BLNCname/GMailSecretary/internal/metrics"
	"github.com/BLNCname/GMailSecretary/internal/modelapi"
	"github.com/BLNCname/GMailSecretary/internal/retrieval"
	"github.com/BLNCname/GMailSecretary/internal/scheduler"
	ws "github.com/BLNCname/GMailSecretary/internal/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	subscriberBuffer    = 64
	maxSocketsPerUser   = 10
	shutdownGracePeriod = 10 * time.Second
	llmTemperature      = 0.2
	llmMaxTokens        = 200
)

// App is one assembled engine: ingestion, indexing, notification and the HTTP surface.
// Every component is owned by the App; nothing is global.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	metrics   *metrics.Metrics
	broker    *bus.Broker
	index     *index.Index
	scheduler *scheduler.Scheduler
	indexer   *consumer.Indexer
	notifier  *consumer.Notifier
	relay     *bus.AMQPRelay
	retrieval *retrieval.Service
	handler   http.Handler

	indexed  <-chan bus.Delivery
	notified <-chan bus.Delivery
	relayed  <-chan bus.Delivery
}

// New wires the engine around a credential store and a mailbox client.
func New(cfg *config.Config, repo credential.Repository, client mailbox.Client, logger *zap.Logger) (*App, error) {
	tokens, err := cfg.APITokens()
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.New(),
		index:   index.New(cfg.EmbeddingDimensions),
	}
	a.broker = bus.NewBroker(logger, a.metrics)

	embedder := newEmbedder(cfg, logger)

	var summarizer api.Summarizer
	indexerOpts := []consumer.IndexerOption{consumer.WithIndexMetrics(a.metrics)}
	if cfg.LLMURL != "" {
		model := llm.NewChatModel(modelapi.New("llm", cfg.LLMURL, cfg.LLMAPIKey, logger), cfg.LLMModel, llmTemperature, llmMaxTokens)
		summarizer = llm.NewSummarizer(model)
		indexerOpts = append(indexerOpts, consumer.WithClassifier(llm.NewClassifier(model, logger)))
	}

	a.indexer, err = consumer.NewIndexer(a.index, embedder, logger, indexerOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create indexer: %w", err)
	}

	a.retrieval, err = retrieval.NewService(a.index, embedder, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create retrieval service: %w", err)
	}

	if cfg.AMQPURL != "" {
		a.relay, err = bus.DialAMQPRelay(cfg.AMQPURL, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect relay: %w", err)
		}
		a.relayed = a.broker.Subscribe("amqp", subscriberBuffer)
	}
	a.indexed = a.broker.Subscribe("indexer", subscriberBuffer)
	a.notified = a.broker.Subscribe("notifier", subscriberBuffer)

	hub := ws.NewHub(maxSocketsPerUser, logger)
	a.notifier = consumer.NewNotifier(hub, logger)

	provider := credential.NewProvider(repo,
		credential.NewGoogleOAuthConfig(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL),
		logger)

	a.scheduler = scheduler.New(schedulerConfig(cfg), provider, client, a.broker, logger,
		scheduler.WithHistory(a.indexer),
		scheduler.WithMetrics(a.metrics),
	)

	validator := auth.StaticTokens(tokens)
	a.handler = NewServer(Handlers{
		Retrieval: api.NewRetrievalHandler(a.retrieval, summarizer, logger),
		Auth:      api.NewAuthHandler(provider, logger),
		WebSocket: api.NewWebSocketHandler(validator, hub, logger),
		Metrics:   a.metrics.Handler(),
	}, validator, logger)

	return a, nil
}

// Handler returns the HTTP surface.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Index returns the document index.
func (a *App) Index() *index.Index {
	return a.index
}

// Run serves HTTP on cfg.Port and runs ingestion until ctx is cancelled or a
// component fails fatally.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.indexer.Run(ctx, a.indexed) })
	g.Go(func() error { return a.notifier.Run(ctx, a.notified) })
	if a.relay != nil {
		g.Go(func() error { return a.relay.Run(ctx, a.relayed) })
	}
	g.Go(func() error { return a.scheduler.Run(ctx) })

	server := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		a.logger.Info("HTTP server starting", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	a.broker.Close()
	if a.relay != nil {
		if closeErr := a.relay.Close(); closeErr != nil {
			a.logger.Warn("Failed to close relay", zap.Error(closeErr))
		}
	}
	return err
}

func newEmbedder(cfg *config.Config, logger *zap.Logger) embedding.Embedder {
	if cfg.EmbeddingURL == "" {
		return embedding.NewHashingEmbedder(cfg.EmbeddingDimensions)
	}
	client := modelapi.New("embedding", cfg.EmbeddingURL, cfg.EmbeddingAPIKey, logger)
	return embedding.NewHTTPEmbedder(client, cfg.EmbeddingModel, cfg.EmbeddingDimensions)
}

func schedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{
		BootstrapCount:    cfg.BootstrapCount,
		BootstrapPageSize: cfg.BootstrapPageSize,
		PollCount:         cfg.PollCount,
		PollPageSize:      cfg.PollPageSize,
		Interval:          cfg.PollInterval,
		TickDeadline:      cfg.TickDeadline,
		CallTimeout:       cfg.CallTimeout,
		BackfillTimeout:   cfg.BackfillTimeout,
		PublishTimeout:    cfg.PublishTimeout,
	}
}
