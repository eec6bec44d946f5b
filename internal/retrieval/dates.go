package retrieval

import (
	"strings"
	"time"
)

// Recognized Date header layouts. "_2" accepts one- and two-digit days.
var dateLayouts = []string{
	"Mon, _2 Jan 2006 15:04:05 -0700",
	"_2 Jan 2006 15:04:05 -0700",
}

const dayLayout = "2006-01-02"

// NormalizeDate converts a raw Date header to YYYY-MM-DD in the header's own
// offset. It reports false for anything outside the recognized layouts,
// including a trailing "(UTC)" style comment.
func NormalizeDate(raw string) (string, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", false
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format(dayLayout), true
		}
	}
	return "", false
}

// parseDay validates a YYYY-MM-DD query value.
func parseDay(value string) (string, bool) {
	t, err := time.Parse(dayLayout, strings.TrimSpace(value))
	if err != nil {
		return "", false
	}
	return t.Format(dayLayout), true
}
