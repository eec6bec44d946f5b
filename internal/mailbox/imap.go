package mailbox

import (
	"context"
	"fmt"
	"io"
	"net"
	"sort"
	"strconv"
	"time"

	"github.com/BLNCname/GMailSecretary/internal/models"
	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-sasl"
)

const inbox = "INBOX"

// IMAPClient reads a user's INBOX over IMAP. Message ids are UIDs.
type IMAPClient struct {
	server string
	useTLS bool
	// plainLogin sends the access token as a LOGIN password instead of OAUTHBEARER.
	plainLogin  bool
	dialTimeout time.Duration
}

func NewIMAPClient(server string, useTLS, plainLogin bool) *IMAPClient {
	return &IMAPClient{
		server:      server,
		useTLS:      useTLS,
		plainLogin:  plainLogin,
		dialTimeout: 5 * time.Second,
	}
}

// ListRecent walks INBOX backwards from the highest sequence number, one page at a time.
func (c *IMAPClient) ListRecent(ctx context.Context, cred *models.Credential, desiredCount, pageSize int) ([]RawMessage, error) {
	if cred == nil || cred.Token == nil {
		return nil, fmt.Errorf("credential is nil")
	}

	conn, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Logout() }()

	// Unblock in-flight commands when the caller gives up.
	stop := context.AfterFunc(ctx, func() { _ = conn.Terminate() })
	defer stop()

	if err := c.authenticate(conn, cred); err != nil {
		return nil, err
	}

	status, err := conn.Select(inbox, true)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", inbox, err)
	}

	var result []RawMessage
	top := status.Messages
	for page := 0; page < pageCount(desiredCount, pageSize) && top > 0; page++ {
		bottom := uint32(1)
		if top > uint32(pageSize) {
			bottom = top - uint32(pageSize) + 1
		}

		messages, err := fetchRange(conn, bottom, top)
		if err != nil {
			return nil, err
		}
		if len(messages) == 0 {
			break
		}

		result = append(result, messages...)
		top = bottom - 1
	}

	if len(result) > desiredCount {
		result = result[:desiredCount]
	}

	return result, nil
}

func (c *IMAPClient) connect(ctx context.Context) (*client.Client, error) {
	dialer := &net.Dialer{Timeout: c.dialTimeout}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}

	var (
		conn *client.Client
		err  error
	)
	if c.useTLS {
		conn, err = client.DialWithDialerTLS(dialer, c.server, nil)
	} else {
		conn, err = client.DialWithDialer(dialer, c.server)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", c.server, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.Timeout = time.Until(deadline)
	}

	return conn, nil
}

func (c *IMAPClient) authenticate(conn *client.Client, cred *models.Credential) error {
	if c.plainLogin {
		if err := conn.Login(cred.Email, cred.Token.AccessToken); err != nil {
			return fmt.Errorf("failed to authenticate: %w", err)
		}
		return nil
	}

	auth := sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
		Username: cred.Email,
		Token:    cred.Token.AccessToken,
	})
	if err := conn.Authenticate(auth); err != nil {
		return fmt.Errorf("failed to authenticate: %w", err)
	}
	return nil
}

// fetchRange returns messages bottom..top (sequence numbers) newest first.
func fetchRange(conn *client.Client, bottom, top uint32) ([]RawMessage, error) {
	seqSet := new(imap.SeqSet)
	seqSet.AddRange(bottom, top)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, top-bottom+1)
	done := make(chan error, 1)
	go func() {
		done <- conn.Fetch(seqSet, items, messages)
	}()

	var fetched []*imap.Message
	for msg := range messages {
		fetched = append(fetched, msg)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	sort.Slice(fetched, func(i, j int) bool {
		return fetched[i].SeqNum > fetched[j].SeqNum
	})

	result := make([]RawMessage, 0, len(fetched))
	for _, msg := range fetched {
		body := msg.GetBody(section)
		if body == nil {
			return nil, fmt.Errorf("server returned no body for UID %d", msg.Uid)
		}
		raw, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("failed to read body for UID %d: %w", msg.Uid, err)
		}
		result = append(result, RawMessage{ID: strconv.FormatUint(uint64(msg.Uid), 10), Raw: raw})
	}

	return result, nil
}
