package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/BLNCname/GMailSecretary/internal/models"
	"github.com/jhillyerd/enmime"
)

// DegradedError reports that a message could not be fully decoded.
// Parse still returns a usable record alongside it.
type DegradedError struct {
	ID  string
	Err error
}

func (e *DegradedError) Error() string {
	return fmt.Sprintf("message %s parsed with degraded content: %v", e.ID, e.Err)
}

func (e *DegradedError) Unwrap() error {
	return e.Err
}

// Parse decodes a raw RFC 822 message. It never rejects input: missing headers
// become empty strings and a message without a text/plain part has a nil body.
// The returned message is always non-nil.
func Parse(raw []byte, id string) (*models.Message, error) {
	msg := &models.Message{ID: id}

	envelope, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return msg, &DegradedError{ID: id, Err: err}
	}

	msg.Subject = envelope.GetHeader("Subject")
	msg.From = envelope.GetHeader("From")
	msg.To = envelope.GetHeader("To")
	msg.Date = envelope.GetHeader("Date")
	msg.Body = plainBody(envelope.Root)

	return msg, nil
}

// plainBody returns the first text/plain part of a multipart message, or the
// decoded payload of a single-part one.
func plainBody(root *enmime.Part) *string {
	if root == nil {
		return nil
	}

	if !strings.HasPrefix(root.ContentType, "multipart/") {
		body := string(root.Content)
		return &body
	}

	part := root.DepthMatchFirst(func(p *enmime.Part) bool {
		return p.ContentType == "text/plain" && p.Disposition != "attachment"
	})
	if part == nil {
		return nil
	}

	body := string(part.Content)
	return &body
}
