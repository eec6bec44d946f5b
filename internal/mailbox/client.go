package mailbox

import (
	"context"

	"github.com/BLNCname/GMailSecretary/internal/models"
)

// RawMessage is one message as returned by the remote service.
type RawMessage struct {
	ID  string
	Raw []byte
}

// Client lists a user's most recent messages, newest first.
//
// ListRecent fetches at most ceil(desiredCount/pageSize) pages of pageSize
// messages, stops early on an empty page or when the mailbox is exhausted,
// and never returns more than desiredCount messages.
type Client interface {
	ListRecent(ctx context.Context, cred *models.Credential, desiredCount, pageSize int) ([]RawMessage, error)
}

var (
	_ Client = (*GmailClient)(nil)
	_ Client = (*IMAPClient)(nil)
)

// pageCount returns ceil(desired/pageSize).
func pageCount(desired, pageSize int) int {
	if desired <= 0 || pageSize <= 0 {
		return 0
	}
	return (desired + pageSize - 1) / pageSize
}
