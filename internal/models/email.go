package models

// Importance levels assigned by the classifier.
const (
	ImportanceImportant = "important"
	ImportanceMedium    = "medium"
	ImportanceMinimal   = "minimal"
)

// Message is a parsed mail message. It is never mutated after construction;
// enrichment produces a copy.
type Message struct {
	ID      string `json:"id"`
	UserID  string `json:"user_id"`
	Subject string `json:"subject"`
	From    string `json:"from"`
	To      string `json:"to"`
	// Date is the raw Date header. It is normalized only at query time.
	Date string `json:"date"`
	// Body is nil when the message has no plain-text part.
	Body       *string `json:"body,omitempty"`
	Importance string  `json:"importance,omitempty"`
	Summary    string  `json:"summary,omitempty"`
}

// HasBody reports whether a plain-text body was found.
func (m Message) HasBody() bool {
	return m.Body != nil
}

// BodyText returns the body or an empty string.
func (m Message) BodyText() string {
	if m.Body == nil {
		return ""
	}
	return *m.Body
}

// Content is the text used for embeddings and model prompts.
func (m Message) Content() string {
	if m.Body == nil || *m.Body == "" {
		return m.Subject
	}
	if m.Subject == "" {
		return *m.Body
	}
	return m.Subject + "\n\n" + *m.Body
}

// IndexEntry is a stored message with its global, 1-based insertion sequence number.
type IndexEntry struct {
	Seq       int       `json:"seq"`
	Message   Message   `json:"message"`
	Embedding []float32 `json:"-"`
}
