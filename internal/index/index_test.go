package index

import (
	"fmt"
	"sync"
	"testing"

	"github.com/BLNCname/GMailSecretary/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msg(id, from, date, subject string) models.Message {
	body := "body of " + id
	return models.Message{ID: id, UserID: "alice", From: from, Date: date, Subject: subject, Body: &body}
}

func TestAdd(t *testing.T) {
	t.Run("assigns 1-based sequence numbers in insertion order", func(t *testing.T) {
		ix := New(2)

		first, err := ix.Add(msg("m1", "a@example.com", "", "one"), nil)
		require.NoError(t, err)
		second, err := ix.Add(msg("m2", "b@example.com", "", "two"), []float32{1, 0})
		require.NoError(t, err)

		assert.Equal(t, 1, first.Seq)
		assert.Equal(t, 2, second.Seq)
		assert.Equal(t, 2, ix.Len())
	})

	t.Run("rejects an embedding of the wrong length", func(t *testing.T) {
		ix := New(3)

		_, err := ix.Add(msg("m1", "", "", ""), []float32{1, 2})
		assert.ErrorIs(t, err, ErrDimensionMismatch)
		assert.Equal(t, 0, ix.Len())
	})

	t.Run("returns the existing entry for a duplicate", func(t *testing.T) {
		ix := New(2)

		first, err := ix.Add(msg("m1", "a@example.com", "", "one"), nil)
		require.NoError(t, err)
		again, err := ix.Add(msg("m1", "a@example.com", "", "one"), nil)
		require.NoError(t, err)

		assert.Equal(t, first.Seq, again.Seq)
		assert.Equal(t, 1, ix.Len())
	})

	t.Run("the same id in another mailbox is a different message", func(t *testing.T) {
		ix := New(2)
		other := msg("m1", "a@example.com", "", "one")
		other.UserID = "bob"

		_, err := ix.Add(msg("m1", "a@example.com", "", "one"), nil)
		require.NoError(t, err)
		entry, err := ix.Add(other, nil)
		require.NoError(t, err)

		assert.Equal(t, 2, entry.Seq)
	})

	t.Run("stored entries are isolated from the caller", func(t *testing.T) {
		ix := New(2)
		vec := []float32{1, 0}
		m := msg("m1", "a@example.com", "", "one")

		_, err := ix.Add(m, vec)
		require.NoError(t, err)
		vec[0] = 42
		*m.Body = "changed"

		got, err := ix.Get(1)
		require.NoError(t, err)
		assert.Equal(t, []float32{1, 0}, got.Embedding)
		assert.Equal(t, "body of m1", got.Message.BodyText())
	})
}

func TestGet(t *testing.T) {
	ix := New(2)
	for i := 1; i <= 3; i++ {
		_, err := ix.Add(msg(fmt.Sprintf("m%d", i), "", "", ""), nil)
		require.NoError(t, err)
	}

	testCases := []struct {
		name    string
		seq     int
		wantID  string
		wantErr bool
	}{
		{"first", 1, "m1", false},
		{"last", 3, "m3", false},
		{"zero", 0, "", true},
		{"one past the end", 4, "", true},
		{"negative", -1, "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			entry, err := ix.Get(tc.seq)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantID, entry.Message.ID)
		})
	}
}

func TestSearchMetadata(t *testing.T) {
	ix := New(2)
	_, _ = ix.Add(msg("m1", "Known <known@example.com>", "Mon, 02 Jan 2024 10:00:00 +0000", "Hello"), nil)
	_, _ = ix.Add(msg("m2", "other@example.com", "Tue, 03 Jan 2024 10:00:00 +0000", "Hello"), nil)
	_, _ = ix.Add(msg("m3", "KNOWN@example.com", "Mon, 02 Jan 2024 10:00:00 +0000", "Later"), nil)

	ids := func(matches []Match) []string {
		out := make([]string, len(matches))
		for i, m := range matches {
			out[i] = m.Entry.Message.ID
		}
		return out
	}

	testCases := []struct {
		name  string
		query Query
		want  []string
	}{
		{"no filter returns everything in order", Query{}, []string{"m1", "m2", "m3"}},
		{"exact sender", Query{Filter: SenderEquals("other@example.com")}, []string{"m2"}},
		{"exact date", Query{Filter: DateEquals("Mon, 02 Jan 2024 10:00:00 +0000")}, []string{"m1", "m3"}},
		{"exact subject", Query{Filter: SubjectEquals("Hello")}, []string{"m1", "m2"}},
		{"sender substring ignores case", Query{Filter: SenderContains("Known@Example")}, []string{"m1", "m3"}},
		{"limit", Query{Filter: SubjectEquals("Hello"), Limit: 1}, []string{"m1"}},
		{"and", Query{Filter: And(SenderContains("known"), SubjectEquals("Later"))}, []string{"m3"}},
		{"or", Query{Filter: Or(SubjectEquals("Later"), SenderEquals("other@example.com"))}, []string{"m2", "m3"}},
		{"not", Query{Filter: Not(SubjectEquals("Hello"))}, []string{"m3"}},
		{"other user sees nothing", Query{Filter: ForUser("bob")}, []string{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			matches, err := ix.Search(tc.query)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ids(matches))
		})
	}
}

func TestSearchVector(t *testing.T) {
	ix := New(2)
	_, _ = ix.Add(msg("east", "a@example.com", "", ""), []float32{1, 0})
	_, _ = ix.Add(msg("north", "b@example.com", "", ""), []float32{0, 1})
	_, _ = ix.Add(msg("northeast", "a@example.com", "", ""), []float32{0.7, 0.7})
	_, _ = ix.Add(msg("no-vector", "a@example.com", "", ""), nil)
	_, _ = ix.Add(msg("east-again", "c@example.com", "", ""), []float32{2, 0})

	t.Run("ranks by cosine similarity with ties by sequence", func(t *testing.T) {
		matches, err := ix.Search(Query{Vector: []float32{1, 0}, Limit: 3})
		require.NoError(t, err)
		require.Len(t, matches, 3)

		assert.Equal(t, "east", matches[0].Entry.Message.ID)
		assert.Equal(t, "east-again", matches[1].Entry.Message.ID)
		assert.Equal(t, "northeast", matches[2].Entry.Message.ID)
		assert.InDelta(t, 1.0, matches[0].Score, 1e-9)
	})

	t.Run("filters before ranking", func(t *testing.T) {
		matches, err := ix.Search(Query{Vector: []float32{1, 0}, Filter: SenderEquals("a@example.com")})
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, "east", matches[0].Entry.Message.ID)
		assert.Equal(t, "northeast", matches[1].Entry.Message.ID)
	})

	t.Run("rejects a query vector of the wrong length", func(t *testing.T) {
		_, err := ix.Search(Query{Vector: []float32{1, 0, 0}})
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})
}

func TestConcurrentAddAndSearch(t *testing.T) {
	ix := New(2)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_, _ = ix.Add(msg(fmt.Sprintf("m%d", i), "a@example.com", "", ""), []float32{1, 0})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			matches, err := ix.Search(Query{})
			if err != nil {
				t.Error(err)
				return
			}
			for j, m := range matches {
				if m.Entry.Seq != j+1 {
					t.Errorf("sequence gap at %d: %d", j, m.Entry.Seq)
					return
				}
			}
		}
	}()
	wg.Wait()

	assert.Equal(t, 200, ix.Len())
	assert.Len(t, ix.All(), 200)
}
