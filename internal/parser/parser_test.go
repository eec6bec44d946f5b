package parser

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const multipartAlternative = "From: Known Sender <known@example.com>\r\n" +
	"To: me@example.com\r\n" +
	"Subject: Quarterly report\r\n" +
	"Date: Mon, 02 Jan 2024 10:00:00 +0000\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/alternative; boundary=\"b1\"\r\n" +
	"\r\n" +
	"--b1\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Plain version\r\n" +
	"--b1\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>HTML version</p>\r\n" +
	"--b1--\r\n"

const nestedMixed = "From: a@example.com\r\n" +
	"Subject: Nested\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"outer\"\r\n" +
	"\r\n" +
	"--outer\r\n" +
	"Content-Type: multipart/alternative; boundary=\"inner\"\r\n" +
	"\r\n" +
	"--inner\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"First plain part\r\n" +
	"--inner\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<b>html</b>\r\n" +
	"--inner--\r\n" +
	"--outer\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Second plain part\r\n" +
	"--outer--\r\n"

const htmlOnlyMultipart = "From: a@example.com\r\n" +
	"Subject: Only HTML\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/alternative; boundary=\"b2\"\r\n" +
	"\r\n" +
	"--b2\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>Only HTML</p>\r\n" +
	"--b2--\r\n"

const attachmentFirst = "From: a@example.com\r\n" +
	"Subject: Attachment\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"b3\"\r\n" +
	"\r\n" +
	"--b3\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"Content-Disposition: attachment; filename=\"notes.txt\"\r\n" +
	"\r\n" +
	"attached notes\r\n" +
	"--b3\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Inline body\r\n" +
	"--b3--\r\n"

const singlePartQP = "From: b@example.com\r\n" +
	"To: me@example.com\r\n" +
	"Subject: =?UTF-8?B?0J/RgNC40LLQtdGC?=\r\n" +
	"Date: 02 Jan 2024 10:00:00 +0000\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"Content-Transfer-Encoding: quoted-printable\r\n" +
	"\r\n" +
	"caf=C3=A9 at noon\r\n"

func TestParse(t *testing.T) {
	t.Run("extracts headers and the text/plain alternative", func(t *testing.T) {
		msg, err := Parse([]byte(multipartAlternative), "id-1")
		require.NoError(t, err)

		assert.Equal(t, "id-1", msg.ID)
		assert.Equal(t, "Quarterly report", msg.Subject)
		assert.Equal(t, "Known Sender <known@example.com>", msg.From)
		assert.Equal(t, "me@example.com", msg.To)
		assert.Equal(t, "Mon, 02 Jan 2024 10:00:00 +0000", msg.Date)
		require.True(t, msg.HasBody())
		assert.Equal(t, "Plain version", strings.TrimSpace(msg.BodyText()))
	})

	t.Run("takes the first text/plain part in document order", func(t *testing.T) {
		msg, err := Parse([]byte(nestedMixed), "id-2")
		require.NoError(t, err)
		assert.Equal(t, "First plain part", strings.TrimSpace(msg.BodyText()))
	})

	t.Run("leaves the body absent without a text/plain part", func(t *testing.T) {
		msg, err := Parse([]byte(htmlOnlyMultipart), "id-3")
		require.NoError(t, err)
		assert.False(t, msg.HasBody())
		assert.Nil(t, msg.Body)
		assert.Equal(t, "Only HTML", msg.Subject)
	})

	t.Run("skips text/plain attachments", func(t *testing.T) {
		msg, err := Parse([]byte(attachmentFirst), "id-4")
		require.NoError(t, err)
		assert.Equal(t, "Inline body", strings.TrimSpace(msg.BodyText()))
	})

	t.Run("decodes a single-part payload and encoded subject", func(t *testing.T) {
		msg, err := Parse([]byte(singlePartQP), "id-5")
		require.NoError(t, err)
		assert.Equal(t, "Привет", msg.Subject)
		assert.Equal(t, "café at noon", strings.TrimSpace(msg.BodyText()))
		assert.Equal(t, "02 Jan 2024 10:00:00 +0000", msg.Date)
	})

	t.Run("maps missing headers to empty strings", func(t *testing.T) {
		raw := "Content-Type: text/plain\r\n\r\nbody only\r\n"
		msg, err := Parse([]byte(raw), "id-6")
		require.NoError(t, err)
		assert.Empty(t, msg.Subject)
		assert.Empty(t, msg.From)
		assert.Empty(t, msg.To)
		assert.Empty(t, msg.Date)
		assert.Equal(t, "body only", strings.TrimSpace(msg.BodyText()))
	})

	t.Run("always returns a record", func(t *testing.T) {
		msg, _ := Parse([]byte{0x00, 0xff, 0x00}, "id-7")
		require.NotNil(t, msg)
		assert.Equal(t, "id-7", msg.ID)
	})
}

func TestDegradedError(t *testing.T) {
	cause := errors.New("unexpected EOF")
	err := error(&DegradedError{ID: "m1", Err: cause})

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "m1")

	var degraded *DegradedError
	assert.True(t, errors.As(err, &degraded))
}
