package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/BLNCname/GMailSecretary/internal/bus"
	"github.com/BLNCname/GMailSecretary/internal/credential"
	"github.com/BLNCname/GMailSecretary/internal/mailbox"
	"github.com/BLNCname/GMailSecretary/internal/metrics"
	"github.com/BLNCname/GMailSecretary/internal/models"
	"github.com/BLNCname/GMailSecretary/internal/parser"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Config controls polling cadence and batch sizes.
type Config struct {
	BootstrapCount    int
	BootstrapPageSize int
	PollCount         int
	PollPageSize      int
	Interval          time.Duration
	// TickDeadline bounds one whole tick across all users.
	TickDeadline time.Duration
	// CallTimeout bounds one user's credential load and, separately, one
	// mailbox call. Bootstrap gets one CallTimeout per page.
	CallTimeout time.Duration
	// BackfillTimeout bounds handing one user's history to the sink. It is
	// not charged to the tick deadline.
	BackfillTimeout time.Duration
	// PublishTimeout bounds publishing one message. It is not charged to the
	// tick deadline.
	PublishTimeout time.Duration
}

// DefaultConfig returns the production cadence.
func DefaultConfig() Config {
	return Config{
		BootstrapCount:    50,
		BootstrapPageSize: 50,
		PollCount:         5,
		PollPageSize:      5,
		Interval:          5 * time.Second,
		TickDeadline:      4 * time.Second,
		CallTimeout:       2 * time.Second,
		BackfillTimeout:   2 * time.Minute,
		PublishTimeout:    5 * time.Second,
	}
}

// CredentialSource lists users and loads one user's valid credential.
type CredentialSource interface {
	UserIDs(ctx context.Context) ([]string, error)
	Load(ctx context.Context, userID string) (*models.Credential, error)
}

// Publisher receives newly discovered messages.
type Publisher interface {
	Publish(ctx context.Context, d bus.Delivery) error
}

// HistorySink receives the mailbox history read during bootstrap, oldest
// first. History is never published.
type HistorySink interface {
	Backfill(ctx context.Context, msgs []models.Message) error
}

// ErrHistorySink wraps a history sink failure. It stops Run.
var ErrHistorySink = errors.New("history sink failed")

var _ CredentialSource = (*credential.Provider)(nil)
var _ Publisher = (*bus.Broker)(nil)

// Scheduler polls every user's mailbox and publishes messages it has not seen before.
// A single goroutine runs bootstrap and ticks, so it is the only writer of the SeenSet.
type Scheduler struct {
	cfg       Config
	creds     CredentialSource
	client    mailbox.Client
	publisher Publisher
	history   HistorySink
	seen      *SeenSet
	logger    *zap.Logger
	metrics   *metrics.Metrics
	// resumeFrom is the first user the previous tick skipped at its deadline.
	resumeFrom string
}

type Option func(*Scheduler)

// WithHistory sends bootstrap history to h.
func WithHistory(h HistorySink) Option {
	return func(s *Scheduler) {
		s.history = h
	}
}

// WithMetrics records poll outcomes in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// WithSeenSet shares an existing SeenSet.
func WithSeenSet(seen *SeenSet) Option {
	return func(s *Scheduler) {
		s.seen = seen
	}
}

func New(cfg Config, creds CredentialSource, client mailbox.Client, publisher Publisher, logger *zap.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		cfg:       cfg,
		creds:     creds,
		client:    client,
		publisher: publisher,
		seen:      NewSeenSet(),
		logger:    logger.Named("scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seen exposes the scheduler's SeenSet.
func (s *Scheduler) Seen() *SeenSet {
	return s.seen
}

// Run bootstraps and then ticks every Interval until ctx is cancelled.
// Ticks never overlap. Run returns after the running tick, if any, has finished.
// A history sink failure stops polling and is returned.
func (s *Scheduler) Run(ctx context.Context) error {
	if _, err := s.Bootstrap(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	cronLog := newCronLogger(s.logger)
	c := cron.New(cron.WithLogger(cronLog), cron.WithChain(
		cron.Recover(cronLog),
		cron.SkipIfStillRunning(cronLog),
	))

	_, err := c.AddFunc(fmt.Sprintf("@every %s", s.cfg.Interval), func() {
		if ctx.Err() != nil {
			return
		}
		_, err := s.Tick(ctx)
		switch {
		case err == nil || ctx.Err() != nil:
		case errors.Is(err, ErrHistorySink):
			cancel(err)
		default:
			s.logger.Error("Tick failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule poll: %w", err)
	}

	s.logger.Info("Polling started", zap.Duration("interval", s.cfg.Interval))
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()

	s.logger.Info("Polling stopped")
	if err := context.Cause(ctx); errors.Is(err, ErrHistorySink) {
		return err
	}
	return nil
}

// Bootstrap reads each user's recent history and marks it seen without
// publishing it. It returns how many messages were seeded. A per-user failure
// is logged and skipped; that user is bootstrapped on a later tick instead.
// Only a failure to list users or a history sink error is returned.
func (s *Scheduler) Bootstrap(ctx context.Context) (int, error) {
	users, err := s.userIDs(ctx)
	if err != nil {
		return 0, err
	}

	seeded := 0
	for _, userID := range users {
		if ctx.Err() != nil {
			break
		}
		cred, err := s.loadCredential(ctx, userID)
		if err != nil {
			s.userFailed(userID, "credential", err)
			continue
		}

		n, err := s.bootstrapUser(ctx, ctx, cred)
		if err != nil {
			if errors.Is(err, ErrHistorySink) {
				return seeded, err
			}
			s.userFailed(userID, "bootstrap", err)
			continue
		}
		seeded += n
	}

	s.logger.Info("Bootstrap finished", zap.Int("users", len(users)), zap.Int("seeded", seeded))
	return seeded, nil
}

// bootstrapUser fetches under ctx and backfills under parent, so a tick
// deadline on ctx never cuts the sink short.
func (s *Scheduler) bootstrapUser(ctx, parent context.Context, cred *models.Credential) (int, error) {
	pages := 1
	if s.cfg.BootstrapPageSize > 0 {
		pages = max((s.cfg.BootstrapCount+s.cfg.BootstrapPageSize-1)/s.cfg.BootstrapPageSize, 1)
	}
	callCtx, cancel := context.WithTimeout(ctx, time.Duration(pages)*s.cfg.CallTimeout)
	defer cancel()

	raws, err := s.client.ListRecent(callCtx, cred, s.cfg.BootstrapCount, s.cfg.BootstrapPageSize)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch history: %w", err)
	}

	ids := make([]string, len(raws))
	for i, raw := range raws {
		ids[i] = raw.ID
	}
	s.seen.Seed(cred.UserID, ids...)

	if s.history != nil && len(raws) > 0 {
		msgs := make([]models.Message, 0, len(raws))
		for i := len(raws) - 1; i >= 0; i-- {
			msgs = append(msgs, s.parse(cred.UserID, raws[i]))
		}
		backfillCtx, cancel := withOptionalTimeout(parent, s.cfg.BackfillTimeout)
		err := s.history.Backfill(backfillCtx, msgs)
		cancel()
		if err != nil {
			return 0, fmt.Errorf("%w: user %s: %w", ErrHistorySink, cred.UserID, err)
		}
	}

	s.logger.Debug("User bootstrapped", zap.String("user_id", cred.UserID), zap.Int("seeded", len(raws)))
	return len(raws), nil
}

// Tick polls every user once, sequentially, and publishes new messages oldest
// first. It returns how many messages were published. Users the SeenSet does
// not know yet are bootstrapped instead of polled. When the deadline cuts a
// tick short, the next tick starts with the first user it skipped.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, s.cfg.TickDeadline)
	defer cancel()

	users, err := s.userIDs(ctx)
	if err != nil {
		return 0, err
	}
	users = rotateFrom(users, s.resumeFrom)
	s.resumeFrom = ""

	dispatched := 0
	for i, userID := range users {
		if ctx.Err() != nil {
			s.resumeFrom = userID
			s.logger.Warn("Tick deadline reached, skipping remaining users",
				zap.Int("skipped", len(users)-i),
				zap.String("resume_from", userID),
			)
			s.countPolls(metrics.OutcomeSkipped, len(users)-i)
			break
		}

		cred, err := s.loadCredential(ctx, userID)
		if err != nil {
			s.userFailed(userID, "credential", err)
			s.countPolls(metrics.OutcomeFailed, 1)
			continue
		}

		if !s.seen.KnowsUser(userID) {
			if _, err := s.bootstrapUser(ctx, parent, cred); err != nil {
				if errors.Is(err, ErrHistorySink) {
					return dispatched, err
				}
				s.userFailed(userID, "bootstrap", err)
				s.countPolls(metrics.OutcomeFailed, 1)
				continue
			}
			s.countPolls(metrics.OutcomeOK, 1)
			continue
		}

		n, err := s.pollUser(ctx, parent, cred)
		dispatched += n
		if err != nil {
			s.userFailed(userID, "poll", err)
			s.countPolls(metrics.OutcomeFailed, 1)
			continue
		}
		s.countPolls(metrics.OutcomeOK, 1)
	}

	if dispatched > 0 {
		s.logger.Info("Tick dispatched new messages", zap.Int("count", dispatched))
	}
	return dispatched, nil
}

func (s *Scheduler) userIDs(ctx context.Context) ([]string, error) {
	users, err := s.creds.UserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	users = slices.Clone(users)
	slices.Sort(users)
	return users, nil
}

func (s *Scheduler) loadCredential(ctx context.Context, userID string) (*models.Credential, error) {
	loadCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	return s.creds.Load(loadCtx, userID)
}

// rotateFrom returns sorted users starting at the first id not below from.
func rotateFrom(users []string, from string) []string {
	if from == "" {
		return users
	}
	i, _ := slices.BinarySearch(users, from)
	if i == 0 || i == len(users) {
		return users
	}
	return append(slices.Clone(users[i:]), users[:i]...)
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// pollUser fetches under ctx and publishes under parent. Once an id is marked
// seen its publish is no longer charged to the tick deadline.
func (s *Scheduler) pollUser(ctx, parent context.Context, cred *models.Credential) (int, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	raws, err := s.client.ListRecent(callCtx, cred, s.cfg.PollCount, s.cfg.PollPageSize)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch recent messages: %w", err)
	}

	// Newest first: everything before the first known id is new.
	var fresh []mailbox.RawMessage
	for _, raw := range raws {
		if s.seen.Contains(cred.UserID, raw.ID) {
			break
		}
		fresh = append(fresh, raw)
	}

	published := 0
	for i := len(fresh) - 1; i >= 0; i-- {
		raw := fresh[i]
		if !s.seen.Add(cred.UserID, raw.ID) {
			continue
		}

		msg := s.parse(cred.UserID, raw)
		publishCtx, cancel := withOptionalTimeout(parent, s.cfg.PublishTimeout)
		err := s.publisher.Publish(publishCtx, bus.NewDelivery(msg))
		cancel()
		if err != nil {
			return published, fmt.Errorf("failed to publish message %s: %w", raw.ID, err)
		}
		published++
		if s.metrics != nil {
			s.metrics.Dispatched.Inc()
		}
	}

	return published, nil
}

func (s *Scheduler) parse(userID string, raw mailbox.RawMessage) models.Message {
	msg, err := parser.Parse(raw.Raw, raw.ID)
	if err != nil {
		s.logger.Warn("Message parsed with degraded content",
			zap.String("user_id", userID),
			zap.String("message_id", raw.ID),
			zap.Error(err),
		)
	}
	msg.UserID = userID
	return *msg
}

func (s *Scheduler) userFailed(userID, stage string, err error) {
	s.logger.Warn("Skipping user for this round",
		zap.String("user_id", userID),
		zap.String("stage", stage),
		zap.Error(err),
	)
	if s.metrics != nil {
		s.metrics.UserFailures.WithLabelValues(stage).Inc()
	}
}

func (s *Scheduler) countPolls(outcome string, n int) {
	if s.metrics != nil {
		s.metrics.Polls.WithLabelValues(outcome).Add(float64(n))
	}
}
