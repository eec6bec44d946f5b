package index

import (
	"strings"

	"github.com/BLNCname/GMailSecretary/internal/models"
)

// Predicate selects stored messages. Predicates apply to both query shapes.
type Predicate func(models.Message) bool

// All matches every message.
func All() Predicate {
	return func(models.Message) bool { return true }
}

// SenderEquals matches the From header exactly.
func SenderEquals(from string) Predicate {
	return func(m models.Message) bool { return m.From == from }
}

// DateEquals matches the raw Date header exactly.
func DateEquals(date string) Predicate {
	return func(m models.Message) bool { return m.Date == date }
}

// SubjectEquals matches the Subject header exactly.
func SubjectEquals(subject string) Predicate {
	return func(m models.Message) bool { return m.Subject == subject }
}

// SenderContains matches a case-insensitive substring of the From header.
func SenderContains(part string) Predicate {
	needle := strings.ToLower(part)
	return func(m models.Message) bool {
		return strings.Contains(strings.ToLower(m.From), needle)
	}
}

// ForUser restricts matches to one user's mailbox.
func ForUser(userID string) Predicate {
	return func(m models.Message) bool { return m.UserID == userID }
}

// ImportanceIs matches the classifier label.
func ImportanceIs(level string) Predicate {
	return func(m models.Message) bool { return m.Importance == level }
}

// DateIn matches when keep accepts the raw Date header.
func DateIn(keep func(rawDate string) bool) Predicate {
	return func(m models.Message) bool { return keep(m.Date) }
}

func And(preds ...Predicate) Predicate {
	return func(m models.Message) bool {
		for _, p := range preds {
			if p != nil && !p(m) {
				return false
			}
		}
		return true
	}
}

func Or(preds ...Predicate) Predicate {
	return func(m models.Message) bool {
		for _, p := range preds {
			if p != nil && p(m) {
				return true
			}
		}
		return false
	}
}

func Not(p Predicate) Predicate {
	return func(m models.Message) bool { return !p(m) }
}
