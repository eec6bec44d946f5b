package index

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/BLNCname/GMailSecretary/internal/models"
)

var (
	// ErrDimensionMismatch means the embedding provider and the index disagree on
	// vector length. It is a configuration error, not a transient one.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrNotFound          = errors.New("index entry not found")
)

// Query selects entries. Without a Vector, matches come back in insertion
// order. With one, the Limit nearest embedded matches come back by cosine
// similarity, ties broken by sequence number. A zero Limit means no limit.
type Query struct {
	Filter Predicate
	Vector []float32
	Limit  int
}

// Match is one query result.
type Match struct {
	Entry models.IndexEntry
	// Score is the cosine similarity for vector queries and 0 otherwise.
	Score float64
}

type key struct {
	userID string
	id     string
}

// Index is an in-memory document store with global 1-based sequence numbers.
// Sequence numbers follow insertion order and are never reused.
type Index struct {
	mu      sync.RWMutex
	dim     int
	entries []models.IndexEntry
	byKey   map[key]int
}

// New creates an index for vectors of dim dimensions.
func New(dim int) *Index {
	return &Index{
		dim:   dim,
		byKey: make(map[key]int),
	}
}

func (ix *Index) Dimensions() int {
	return ix.dim
}

// Add stores msg with an optional embedding and returns its entry. Adding a
// message already stored for the same user returns the existing entry.
func (ix *Index) Add(msg models.Message, embedding []float32) (models.IndexEntry, error) {
	if embedding != nil && len(embedding) != ix.dim {
		return models.IndexEntry{}, fmt.Errorf("%w: got %d, index expects %d", ErrDimensionMismatch, len(embedding), ix.dim)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	k := key{userID: msg.UserID, id: msg.ID}
	if pos, ok := ix.byKey[k]; ok {
		return copyEntry(ix.entries[pos]), nil
	}

	entry := copyEntry(models.IndexEntry{
		Seq:       len(ix.entries) + 1,
		Message:   msg,
		Embedding: embedding,
	})

	ix.byKey[k] = len(ix.entries)
	ix.entries = append(ix.entries, entry)
	return copyEntry(entry), nil
}

// Get returns the entry with the given global sequence number.
func (ix *Index) Get(seq int) (models.IndexEntry, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if seq < 1 || seq > len(ix.entries) {
		return models.IndexEntry{}, ErrNotFound
	}
	return copyEntry(ix.entries[seq-1]), nil
}

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	return len(ix.entries)
}

// All returns every entry in insertion order.
func (ix *Index) All() []models.IndexEntry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make([]models.IndexEntry, len(ix.entries))
	for i, e := range ix.entries {
		out[i] = copyEntry(e)
	}
	return out
}

// Search runs q against a consistent view of the index.
func (ix *Index) Search(q Query) ([]Match, error) {
	if q.Vector != nil && len(q.Vector) != ix.dim {
		return nil, fmt.Errorf("%w: query has %d, index expects %d", ErrDimensionMismatch, len(q.Vector), ix.dim)
	}

	filter := q.Filter
	if filter == nil {
		filter = All()
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if q.Vector == nil {
		var out []Match
		for _, e := range ix.entries {
			if q.Limit > 0 && len(out) >= q.Limit {
				break
			}
			if filter(e.Message) {
				out = append(out, Match{Entry: copyEntry(e)})
			}
		}
		return out, nil
	}

	var out []Match
	for _, e := range ix.entries {
		if e.Embedding == nil || !filter(e.Message) {
			continue
		}
		out = append(out, Match{Entry: copyEntry(e), Score: cosine(q.Vector, e.Embedding)})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Entry.Seq < out[j].Entry.Seq
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func copyEntry(e models.IndexEntry) models.IndexEntry {
	if e.Embedding != nil {
		e.Embedding = append([]float32(nil), e.Embedding...)
	}
	if e.Message.Body != nil {
		body := *e.Message.Body
		e.Message.Body = &body
	}
	return e
}
