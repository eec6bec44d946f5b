package mailbox

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/BLNCname/GMailSecretary/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const gmailUser = "me"

// GmailClient reads mailboxes through the Gmail REST API.
type GmailClient struct {
	endpoint string
	limiter  *rate.Limiter
}

// GmailOption configures a GmailClient.
type GmailOption func(*GmailClient)

// WithEndpoint points the client at a different API root, e.g. a local fake.
func WithEndpoint(endpoint string) GmailOption {
	return func(c *GmailClient) {
		if endpoint != "" && !strings.HasSuffix(endpoint, "/") {
			endpoint += "/"
		}
		c.endpoint = endpoint
	}
}

// WithRateLimit caps API calls per second across all users.
func WithRateLimit(perSecond float64, burst int) GmailOption {
	return func(c *GmailClient) {
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func NewGmailClient(opts ...GmailOption) *GmailClient {
	c := &GmailClient{limiter: rate.NewLimiter(rate.Inf, 1)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListRecent pages through users.messages.list and fetches each message in raw form.
func (c *GmailClient) ListRecent(ctx context.Context, cred *models.Credential, desiredCount, pageSize int) ([]RawMessage, error) {
	srv, err := c.service(ctx, cred)
	if err != nil {
		return nil, err
	}

	var ids []string
	pageToken := ""
	for page := 0; page < pageCount(desiredCount, pageSize); page++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		call := srv.Users.Messages.List(gmailUser).MaxResults(int64(pageSize)).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("failed to list messages: %w", err)
		}

		if len(resp.Messages) == 0 {
			break
		}

		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	if len(ids) > desiredCount {
		ids = ids[:desiredCount]
	}

	result := make([]RawMessage, 0, len(ids))
	for _, id := range ids {
		raw, err := c.fetchRaw(ctx, srv, id)
		if err != nil {
			return nil, err
		}
		result = append(result, RawMessage{ID: id, Raw: raw})
	}

	return result, nil
}

func (c *GmailClient) service(ctx context.Context, cred *models.Credential) (*gmail.Service, error) {
	if cred == nil || cred.Token == nil {
		return nil, fmt.Errorf("credential is nil")
	}

	opts := []option.ClientOption{
		option.WithHTTPClient(oauth2.NewClient(ctx, oauth2.StaticTokenSource(cred.Token))),
	}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}

	srv, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return srv, nil
}

func (c *GmailClient) fetchRaw(ctx context.Context, srv *gmail.Service, id string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	msg, err := srv.Users.Messages.Get(gmailUser, id).Format("raw").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}

	raw, err := decodeRaw(msg.Raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode message %s: %w", id, err)
	}

	return raw, nil
}

// decodeRaw accepts base64url with or without padding.
func decodeRaw(data string) ([]byte, error) {
	if strings.HasSuffix(data, "=") {
		return base64.URLEncoding.DecodeString(data)
	}
	return base64.RawURLEncoding.DecodeString(data)
}
