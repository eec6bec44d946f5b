package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BLNCname/GMailSecretary/internal/auth"
	"github.com/BLNCname/GMailSecretary/internal/embedding"
	"github.com/BLNCname/GMailSecretary/internal/index"
	"github.com/BLNCname/GMailSecretary/internal/models"
	"github.com/BLNCname/GMailSecretary/internal/retrieval"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newTestService indexes msgs in order with the hashing embedder.
func newTestService(t *testing.T, msgs ...models.Message) *retrieval.Service {
	t.Helper()

	embedder := embedding.NewHashingEmbedder(64)
	ix := index.New(embedder.Dimensions())
	for _, msg := range msgs {
		vec, err := embedder.Embed(context.Background(), msg.Content())
		require.NoError(t, err)
		_, err = ix.Add(msg, vec)
		require.NoError(t, err)
	}

	svc, err := retrieval.NewService(ix, embedder, zap.NewNop())
	require.NoError(t, err)
	return svc
}

func testMessage(userID, id, from, subject, date string) models.Message {
	body := "Body of " + subject
	return models.Message{ID: id, UserID: userID, From: from, Subject: subject, Date: date, Body: &body}
}

// createRequestWithUser creates a request carrying an authenticated user id.
func createRequestWithUser(method, url, userID string) *http.Request {
	req := httptest.NewRequest(method, url, nil)
	return req.WithContext(auth.WithUserID(req.Context(), userID))
}

// verifyAuthCheck asserts that the handler answers 401 without a user in context.
func verifyAuthCheck(t *testing.T, handlerFunc http.HandlerFunc, method, url string) {
	t.Helper()
	rr := httptest.NewRecorder()
	handlerFunc(rr, httptest.NewRequest(method, url, nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code, "Expected status 401 when no user id in context")
}
