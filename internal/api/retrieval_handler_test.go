package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BLNCname/GMailSecretary/internal/models"
	"github.com/BLNCname/GMailSecretary/internal/retrieval"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockSummarizer struct {
	mock.Mock
}

func (m *mockSummarizer) Summarize(ctx context.Context, msg models.Message) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}

func seededHandler(t *testing.T, summarizer Summarizer) *RetrievalHandler {
	t.Helper()

	svc := newTestService(t,
		testMessage("alice", "m1", "Bob <bob@example.com>", "Lunch", "Mon, 2 Jan 2006 15:04:05 +0000"),
		testMessage("carol", "m2", "Bob <bob@example.com>", "Other mailbox", "Mon, 2 Jan 2006 16:04:05 +0000"),
		testMessage("alice", "m3", "Dave <dave@example.com>", "", "3 Jan 2006 09:00:00 +0000"),
		testMessage("alice", "m4", "BOB <bob@example.com>", "Budget", "4 Jan 2006 09:00:00 +0000"),
	)
	return NewRetrievalHandler(svc, summarizer, zap.NewNop())
}

func decodeSet(t *testing.T, rr *httptest.ResponseRecorder) retrieval.ResultSet {
	t.Helper()
	var set retrieval.ResultSet
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&set))
	return set
}

func TestRetrievalHandler_GetSummaries(t *testing.T) {
	handler := seededHandler(t, nil)

	t.Run("returns 401 when no user id in context", func(t *testing.T) {
		verifyAuthCheck(t, handler.GetSummaries, "GET", "/api/v1/summaries?kind=sender&value=bob")
	})

	t.Run("numbers the caller's matches from 1", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.GetSummaries(rr, createRequestWithUser("GET", "/api/v1/summaries?kind=sender&value=bob", "alice"))

		require.Equal(t, http.StatusOK, rr.Code)
		set := decodeSet(t, rr)
		require.Len(t, set.Items, 2)
		assert.Equal(t, retrieval.Item{Number: 1, Seq: 1, Subject: "Lunch"}, set.Items[0])
		assert.Equal(t, retrieval.Item{Number: 2, Seq: 4, Subject: "Budget"}, set.Items[1])
	})

	t.Run("date match uses the subject fallback", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.GetSummaries(rr, createRequestWithUser("GET", "/api/v1/summaries?kind=date&value=2006-01-03", "alice"))

		require.Equal(t, http.StatusOK, rr.Code)
		set := decodeSet(t, rr)
		require.Len(t, set.Items, 1)
		assert.Equal(t, "(No Subject)", set.Items[0].Subject)
	})

	t.Run("no matches is an empty list", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.GetSummaries(rr, createRequestWithUser("GET", "/api/v1/summaries?kind=sender&value=nobody", "alice"))

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, decodeSet(t, rr).Items)
	})

	t.Run("unknown kind is a bad request", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.GetSummaries(rr, createRequestWithUser("GET", "/api/v1/summaries?kind=color&value=red", "alice"))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("malformed date is a bad request", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.GetSummaries(rr, createRequestWithUser("GET", "/api/v1/summaries?kind=date&value=yesterday", "alice"))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestRetrievalHandler_GetSimilar(t *testing.T) {
	handler := seededHandler(t, nil)

	t.Run("returns at most k of the caller's messages", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.GetSimilar(rr, createRequestWithUser("GET", "/api/v1/similar?q=lunch&k=2", "alice"))

		require.Equal(t, http.StatusOK, rr.Code)
		set := decodeSet(t, rr)
		require.Len(t, set.Items, 2)
		assert.Equal(t, 1, set.Items[0].Seq)
		assert.Equal(t, 1, set.Items[0].Number)
		assert.Equal(t, 2, set.Items[1].Number)
	})

	t.Run("invalid k", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.GetSimilar(rr, createRequestWithUser("GET", "/api/v1/similar?q=lunch&k=zero", "alice"))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("empty query", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.GetSimilar(rr, createRequestWithUser("GET", "/api/v1/similar", "alice"))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestRetrievalHandler_GetMessage(t *testing.T) {
	handler := seededHandler(t, nil)

	testCases := []struct {
		name     string
		seq      string
		wantCode int
		wantID   string
	}{
		{"own message by global seq", "4", http.StatusOK, "m4"},
		{"another user's message", "2", http.StatusNotFound, ""},
		{"zero", "0", http.StatusNotFound, ""},
		{"past the end", "5", http.StatusNotFound, ""},
		{"not a number", "abc", http.StatusNotFound, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := createRequestWithUser("GET", "/api/v1/messages/"+tc.seq, "alice")
			req.SetPathValue("seq", tc.seq)
			rr := httptest.NewRecorder()
			handler.GetMessage(rr, req)

			require.Equal(t, tc.wantCode, rr.Code)
			if tc.wantID != "" {
				var msg models.Message
				require.NoError(t, json.NewDecoder(rr.Body).Decode(&msg))
				assert.Equal(t, tc.wantID, msg.ID)
				assert.Equal(t, "Body of Budget", msg.BodyText())
			}
		})
	}
}

func TestRetrievalHandler_GetResultItem(t *testing.T) {
	handler := seededHandler(t, nil)

	rr := httptest.NewRecorder()
	handler.GetSummaries(rr, createRequestWithUser("GET", "/api/v1/summaries?kind=sender&value=bob", "alice"))
	require.Equal(t, http.StatusOK, rr.Code)
	set := decodeSet(t, rr)

	lookup := func(user, number string) *httptest.ResponseRecorder {
		req := createRequestWithUser("GET", "/api/v1/results/"+set.ID.String()+"/"+number, user)
		req.SetPathValue("id", set.ID.String())
		req.SetPathValue("number", number)
		rr := httptest.NewRecorder()
		handler.GetResultItem(rr, req)
		return rr
	}

	t.Run("resolves a local number", func(t *testing.T) {
		rr := lookup("alice", "2")
		require.Equal(t, http.StatusOK, rr.Code)
		var msg models.Message
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&msg))
		assert.Equal(t, "m4", msg.ID)
	})

	t.Run("k+1 is not found", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, lookup("alice", "3").Code)
	})

	t.Run("other users cannot read it", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, lookup("carol", "1").Code)
	})

	t.Run("malformed set id", func(t *testing.T) {
		req := createRequestWithUser("GET", "/api/v1/results/nope/1", "alice")
		req.SetPathValue("id", "nope")
		req.SetPathValue("number", "1")
		rr := httptest.NewRecorder()
		handler.GetResultItem(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestRetrievalHandler_GetMessageSummary(t *testing.T) {
	summaryRequest := func(user, seq string) *http.Request {
		req := createRequestWithUser("GET", "/api/v1/messages/"+seq+"/summary", user)
		req.SetPathValue("seq", seq)
		return req
	}

	t.Run("summarizes the caller's message", func(t *testing.T) {
		summarizer := &mockSummarizer{}
		summarizer.On("Summarize", mock.Anything, mock.MatchedBy(func(m models.Message) bool { return m.ID == "m1" })).
			Return("Bob proposes lunch.", nil).Once()
		handler := seededHandler(t, summarizer)

		rr := httptest.NewRecorder()
		handler.GetMessageSummary(rr, summaryRequest("alice", "1"))

		require.Equal(t, http.StatusOK, rr.Code)
		var resp summaryResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, summaryResponse{ID: 1, Summary: "Bob proposes lunch."}, resp)
		summarizer.AssertExpectations(t)
	})

	t.Run("model failure is a bad gateway", func(t *testing.T) {
		summarizer := &mockSummarizer{}
		summarizer.On("Summarize", mock.Anything, mock.Anything).Return("", errors.New("model down"))
		handler := seededHandler(t, summarizer)

		rr := httptest.NewRecorder()
		handler.GetMessageSummary(rr, summaryRequest("alice", "1"))
		assert.Equal(t, http.StatusBadGateway, rr.Code)
	})

	t.Run("another user's message is never summarized", func(t *testing.T) {
		summarizer := &mockSummarizer{}
		handler := seededHandler(t, summarizer)

		rr := httptest.NewRecorder()
		handler.GetMessageSummary(rr, summaryRequest("alice", "2"))
		assert.Equal(t, http.StatusNotFound, rr.Code)
		summarizer.AssertNotCalled(t, "Summarize", mock.Anything, mock.Anything)
	})

	t.Run("unconfigured", func(t *testing.T) {
		handler := seededHandler(t, nil)

		rr := httptest.NewRecorder()
		handler.GetMessageSummary(rr, summaryRequest("alice", "1"))
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})
}
