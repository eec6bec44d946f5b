package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/BLNCname/GMailSecretary/internal/embedding"
	"github.com/BLNCname/GMailSecretary/internal/index"
	"github.com/BLNCname/GMailSecretary/internal/models"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// Criteria kinds.
const (
	KindSender     = "sender"
	KindDate       = "date"
	KindDateRange  = "date_range"
	KindImportance = "importance"
)

const (
	noSubject        = "(No Subject)"
	defaultSetsKept  = 256
	defaultSimilarK  = 5
	dateRangeDivider = ".."
)

var (
	ErrNotFound        = errors.New("message not found")
	ErrUnknownCriteria = errors.New("unknown criteria kind")
	ErrInvalidCriteria = errors.New("invalid criteria value")
)

// Criteria is a user-facing filter. An empty UserID searches every mailbox.
type Criteria struct {
	Kind   string
	Value  string
	UserID string
}

// Item is one numbered result. Number is local to its ResultSet (1..k);
// Seq is the global index sequence number accepted by FullRecord.
type Item struct {
	Number  int     `json:"number"`
	Seq     int     `json:"seq"`
	Subject string  `json:"subject"`
	Score   float64 `json:"score,omitempty"`
}

// ResultSet is a numbered result list with an identity a caller can pass back.
type ResultSet struct {
	ID    uuid.UUID `json:"id"`
	Items []Item    `json:"items"`
}

// Resolve maps a local number to its global sequence number.
func (r *ResultSet) Resolve(number int) (int, error) {
	if number < 1 || number > len(r.Items) {
		return 0, ErrNotFound
	}
	return r.Items[number-1].Seq, nil
}

// Service answers retrieval queries over the index. It is safe to use while
// ingestion is writing to the index.
type Service struct {
	index    *index.Index
	embedder embedding.Embedder
	sets     *lru.Cache[uuid.UUID, *ResultSet]
	logger   *zap.Logger
}

func NewService(ix *index.Index, embedder embedding.Embedder, logger *zap.Logger) (*Service, error) {
	sets, err := lru.New[uuid.UUID, *ResultSet](defaultSetsKept)
	if err != nil {
		return nil, fmt.Errorf("failed to create result set cache: %w", err)
	}

	return &Service{
		index:    ix,
		embedder: embedder,
		sets:     sets,
		logger:   logger.Named("retrieval"),
	}, nil
}

// Summaries returns every match for c in insertion order, numbered 1..k.
// No matches is an empty set, not an error.
func (s *Service) Summaries(ctx context.Context, c Criteria) (*ResultSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filter, err := criteriaFilter(c)
	if err != nil {
		return nil, err
	}
	if c.UserID != "" {
		filter = index.And(index.ForUser(c.UserID), filter)
	}

	matches, err := s.index.Search(index.Query{Filter: filter})
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}

	set := s.remember(matches, false)
	s.logger.Debug("Summaries served",
		zap.String("kind", c.Kind),
		zap.String("user_id", c.UserID),
		zap.Int("matches", len(set.Items)),
	)
	return set, nil
}

// Similar embeds text and returns the k nearest messages, best first.
func (s *Service) Similar(ctx context.Context, text, userID string, k int) (*ResultSet, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty query text", ErrInvalidCriteria)
	}
	if k <= 0 {
		k = defaultSimilarK
	}

	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	q := index.Query{Vector: vec, Limit: k}
	if userID != "" {
		q.Filter = index.ForUser(userID)
	}

	matches, err := s.index.Search(q)
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}
	return s.remember(matches, true), nil
}

// FullRecord returns the message with the given global sequence number.
func (s *Service) FullRecord(seq int) (*models.Message, error) {
	entry, err := s.index.Get(seq)
	if err != nil {
		if errors.Is(err, index.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &entry.Message, nil
}

// Lookup resolves a local number from a previously returned set. Sets are kept
// for a bounded number of recent queries.
func (s *Service) Lookup(setID uuid.UUID, number int) (*models.Message, error) {
	set, ok := s.sets.Get(setID)
	if !ok {
		return nil, ErrNotFound
	}

	seq, err := set.Resolve(number)
	if err != nil {
		return nil, err
	}
	return s.FullRecord(seq)
}

func (s *Service) remember(matches []index.Match, withScore bool) *ResultSet {
	set := &ResultSet{
		ID:    uuid.New(),
		Items: make([]Item, 0, len(matches)),
	}

	for i, m := range matches {
		subject := m.Entry.Message.Subject
		if subject == "" {
			subject = noSubject
		}
		item := Item{Number: i + 1, Seq: m.Entry.Seq, Subject: subject}
		if withScore {
			item.Score = m.Score
		}
		set.Items = append(set.Items, item)
	}

	s.sets.Add(set.ID, set)
	return set
}

func criteriaFilter(c Criteria) (index.Predicate, error) {
	switch c.Kind {
	case KindSender:
		if strings.TrimSpace(c.Value) == "" {
			return nil, fmt.Errorf("%w: empty sender", ErrInvalidCriteria)
		}
		return index.SenderContains(strings.TrimSpace(c.Value)), nil

	case KindDate:
		day, ok := parseDay(c.Value)
		if !ok {
			return nil, fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInvalidCriteria, c.Value)
		}
		return index.DateIn(func(raw string) bool {
			got, ok := NormalizeDate(raw)
			return ok && got == day
		}), nil

	case KindDateRange:
		from, to, ok := strings.Cut(c.Value, dateRangeDivider)
		if !ok {
			return nil, fmt.Errorf("%w: range %q is not FROM..TO", ErrInvalidCriteria, c.Value)
		}
		start, okStart := parseDay(from)
		end, okEnd := parseDay(to)
		if !okStart || !okEnd || start > end {
			return nil, fmt.Errorf("%w: range %q", ErrInvalidCriteria, c.Value)
		}
		return index.DateIn(func(raw string) bool {
			got, ok := NormalizeDate(raw)
			return ok && got >= start && got <= end
		}), nil

	case KindImportance:
		level := strings.ToLower(strings.TrimSpace(c.Value))
		switch level {
		case models.ImportanceImportant, models.ImportanceMedium, models.ImportanceMinimal:
			return index.ImportanceIs(level), nil
		}
		return nil, fmt.Errorf("%w: importance %q", ErrInvalidCriteria, c.Value)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCriteria, c.Kind)
	}
}
