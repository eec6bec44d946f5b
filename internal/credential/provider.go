package credential

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/BLNCname/GMailSecretary/internal/models"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// ErrUnrefreshable marks a credential that expired and cannot be renewed.
var ErrUnrefreshable = errors.New("credential cannot be refreshed")

// UserCredential is one entry of a batch load. Exactly one of Credential and Err is set.
type UserCredential struct {
	UserID     string
	Credential *models.Credential
	Err        error
}

// DefaultRefreshTimeout bounds one token refresh including persisting it.
const DefaultRefreshTimeout = 15 * time.Second

// Provider hands out valid credentials, refreshing and persisting expired ones.
// Each user is loaded independently so one broken credential never affects another.
type Provider struct {
	repo           Repository
	oauth          *oauth2.Config
	logger         *zap.Logger
	group          singleflight.Group
	refreshTimeout time.Duration
	httpClient     *http.Client
}

type ProviderOption func(*Provider)

// WithRefreshTimeout bounds each shared load and its token endpoint call.
func WithRefreshTimeout(d time.Duration) ProviderOption {
	return func(p *Provider) {
		p.refreshTimeout = d
	}
}

func NewProvider(repo Repository, oauthConfig *oauth2.Config, logger *zap.Logger, opts ...ProviderOption) *Provider {
	p := &Provider{
		repo:           repo,
		oauth:          oauthConfig,
		logger:         logger.Named("credential"),
		refreshTimeout: DefaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.httpClient = &http.Client{Timeout: p.refreshTimeout}
	return p
}

// UserIDs lists every user with a stored credential, sorted.
func (p *Provider) UserIDs(ctx context.Context) ([]string, error) {
	ids, err := p.repo.UserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return ids, nil
}

// ForAllUsers loads every stored user's credential, each under its own
// refresh timeout. The error is non-nil only when the user list itself
// cannot be read.
func (p *Provider) ForAllUsers(ctx context.Context) ([]UserCredential, error) {
	ids, err := p.UserIDs(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]UserCredential, 0, len(ids))
	for _, id := range ids {
		loadCtx, cancel := context.WithTimeout(ctx, p.refreshTimeout)
		cred, err := p.Load(loadCtx, id)
		cancel()
		if err != nil {
			p.logger.Warn("Skipping user with unusable credential", zap.String("user_id", id), zap.Error(err))
		}
		result = append(result, UserCredential{UserID: id, Credential: cred, Err: err})
	}

	return result, nil
}

// Load returns a valid credential for the user or ErrNotFound.
// Concurrent loads for the same user share one refresh. The shared refresh
// runs under its own timeout, and each caller stops waiting when its ctx ends.
func (p *Provider) Load(ctx context.Context, userID string) (*models.Credential, error) {
	ch := p.group.DoChan(userID, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.refreshTimeout)
		defer cancel()
		return p.load(loadCtx, userID)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		cred := copyCredential(*res.Val.(*models.Credential))
		return &cred, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("failed to load credential for user %s: %w", userID, ctx.Err())
	}
}

func (p *Provider) load(ctx context.Context, userID string) (*models.Credential, error) {
	cred, err := p.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if cred.Token == nil {
		return nil, fmt.Errorf("user %s has an empty token: %w", userID, ErrUnrefreshable)
	}

	if cred.Token.Valid() {
		return cred, nil
	}

	if cred.Token.RefreshToken == "" {
		return nil, fmt.Errorf("token for user %s expired without a refresh token: %w", userID, ErrUnrefreshable)
	}

	refreshCtx := context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	refreshed, err := p.oauth.TokenSource(refreshCtx, cred.Token).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token for user %s: %w: %w", userID, ErrUnrefreshable, err)
	}

	// Google omits the refresh token on refresh responses.
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = cred.Token.RefreshToken
	}

	cred.Token = refreshed
	if err := p.repo.Save(ctx, cred); err != nil {
		return nil, fmt.Errorf("failed to persist refreshed token for user %s: %w", userID, err)
	}

	p.logger.Info("Refreshed credential", zap.String("user_id", userID))
	return cred, nil
}
