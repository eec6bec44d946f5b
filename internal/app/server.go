package app

import (
	"fmt"
	"net/http"

	"github.com/BLNCname/GMailSecretary/internal/api"
	"github.com/BLNCname/GMailSecretary/internal/auth"
	"go.uber.org/zap"
)

// Handlers groups the HTTP handlers mounted by NewServer.
type Handlers struct {
	Retrieval *api.RetrievalHandler
	Auth      *api.AuthHandler
	WebSocket *api.WebSocketHandler
	Metrics   http.Handler
}

// NewServer creates the HTTP handler for the secretary API.
func NewServer(h Handlers, validator auth.TokenValidator, logger *zap.Logger) http.Handler {
	requireAuth := auth.RequireAuth(validator, logger)
	protected := func(fn http.HandlerFunc) http.Handler {
		return requireAuth(fn)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", handleRoot)
	mux.Handle("GET /metrics", h.Metrics)

	mux.Handle("GET /api/v1/summaries", protected(h.Retrieval.GetSummaries))
	mux.Handle("GET /api/v1/similar", protected(h.Retrieval.GetSimilar))
	mux.Handle("GET /api/v1/messages/{seq}", protected(h.Retrieval.GetMessage))
	mux.Handle("GET /api/v1/messages/{seq}/summary", protected(h.Retrieval.GetMessageSummary))
	mux.Handle("GET /api/v1/results/{id}/{number}", protected(h.Retrieval.GetResultItem))

	mux.Handle("GET /api/v1/auth/url", protected(h.Auth.GetAuthURL))
	// The OAuth provider redirects the browser here without our bearer token.
	mux.HandleFunc("GET /api/v1/auth/callback", h.Auth.Callback)

	// Authenticates itself; browsers cannot set headers on WebSocket requests.
	mux.HandleFunc("GET /api/v1/ws", h.WebSocket.Handle)

	return mux
}

func handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Secretary API is running")
}
