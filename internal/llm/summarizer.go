package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/BLNCname/GMailSecretary/internal/models"
)

// MaxSummaryWords caps summary length.
const MaxSummaryWords = 50

const summarizePrompt = `Summarize the following email in at most %d words, keeping only the key information.

%s`

type Summarizer struct {
	model TextModel
}

func NewSummarizer(model TextModel) *Summarizer {
	return &Summarizer{model: model}
}

// Summarize returns a summary of at most MaxSummaryWords words.
func (s *Summarizer) Summarize(ctx context.Context, msg models.Message) (string, error) {
	answer, err := s.model.Complete(ctx, fmt.Sprintf(summarizePrompt, MaxSummaryWords, msg.Content()))
	if err != nil {
		return "", fmt.Errorf("failed to summarize message %s: %w", msg.ID, err)
	}
	return TruncateWords(answer, MaxSummaryWords), nil
}

// TruncateWords keeps the first n whitespace-separated words.
func TruncateWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}
