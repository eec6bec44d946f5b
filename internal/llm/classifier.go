package llm

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/BLNCname/GMailSecretary/internal/models"
	"go.uber.org/zap"
)

const classifyPrompt = `Classify the following email into exactly one category:
- important: urgent matters, deadlines, money, important meetings
- medium: ordinary work correspondence or discussion without urgency
- minimal: spam, newsletters, impersonal mail or mail that needs no answer

Email:
%s

Answer with one word: important, medium or minimal.`

// Classifier labels messages by importance.
type Classifier struct {
	model  TextModel
	logger *zap.Logger
}

func NewClassifier(model TextModel, logger *zap.Logger) *Classifier {
	return &Classifier{model: model, logger: logger.Named("classifier")}
}

// Classify returns important, medium or minimal. It never fails: model errors
// and unrecognized answers both yield medium.
func (c *Classifier) Classify(ctx context.Context, msg models.Message) string {
	answer, err := c.model.Complete(ctx, fmt.Sprintf(classifyPrompt, msg.Content()))
	if err != nil {
		c.logger.Warn("Classification failed, using default",
			zap.String("user_id", msg.UserID),
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		return models.ImportanceMedium
	}
	return ParseImportance(answer)
}

// ParseImportance picks the first importance label among the answer's words.
func ParseImportance(answer string) string {
	words := strings.FieldsFunc(strings.ToLower(answer), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, w := range words {
		switch w {
		case models.ImportanceImportant, models.ImportanceMedium, models.ImportanceMinimal:
			return w
		}
	}
	return models.ImportanceMedium
}
