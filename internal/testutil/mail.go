package testutil

import (
	"fmt"
	"strings"
)

// RawMail builds a minimal single-part text/plain RFC 822 message.
func RawMail(subject, from, to, date, body string) []byte {
	var b strings.Builder
	if date != "" {
		fmt.Fprintf(&b, "Date: %s\r\n", date)
	}
	if from != "" {
		fmt.Fprintf(&b, "From: %s\r\n", from)
	}
	if to != "" {
		fmt.Fprintf(&b, "To: %s\r\n", to)
	}
	if subject != "" {
		fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return []byte(b.String())
}
