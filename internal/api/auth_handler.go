package api

import (
	"context"
	"net/http"
	"net/mail"
	"sync"
	"time"

	"github.com/BLNCname/GMailSecretary/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const consentTTL = 10 * time.Minute

// Authorizer runs the OAuth consent flow that produces mailbox credentials.
type Authorizer interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, userID, email, code string) (*models.Credential, error)
}

type pendingConsent struct {
	userID  string
	email   string
	expires time.Time
}

// AuthHandler links a mailbox to the authenticated user. The state parameter
// is a one-time random value tied to the user who requested the consent URL.
type AuthHandler struct {
	authorizer Authorizer
	logger     *zap.Logger
	now        func() time.Time

	mu      sync.Mutex
	pending map[string]pendingConsent
}

func NewAuthHandler(authorizer Authorizer, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authorizer: authorizer,
		logger:     logger.Named("api.auth"),
		now:        time.Now,
		pending:    make(map[string]pendingConsent),
	}
}

type authURLResponse struct {
	URL string `json:"url"`
}

type authLinkedResponse struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// GetAuthURL handles GET /api/v1/auth/url?email=.
func (h *AuthHandler) GetAuthURL(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	email := r.URL.Query().Get("email")
	if _, err := mail.ParseAddress(email); err != nil {
		writeError(w, http.StatusBadRequest, "a valid email is required")
		return
	}

	state := uuid.NewString()
	h.mu.Lock()
	h.prune()
	h.pending[state] = pendingConsent{userID: userID, email: email, expires: h.now().Add(consentTTL)}
	h.mu.Unlock()

	writeJSON(w, h.logger, http.StatusOK, authURLResponse{URL: h.authorizer.AuthURL(state)})
}

// Callback handles GET /api/v1/auth/callback?state=&code=, the OAuth redirect target.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if errParam := query.Get("error"); errParam != "" {
		h.logger.Info("Consent denied", zap.String("reason", errParam))
		writeError(w, http.StatusBadRequest, "consent denied")
		return
	}

	consent, ok := h.take(query.Get("state"))
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown or expired state")
		return
	}

	code := query.Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	cred, err := h.authorizer.Exchange(r.Context(), consent.userID, consent.email, code)
	if err != nil {
		h.logger.Error("Failed to link mailbox", zap.String("user_id", consent.userID), zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to link mailbox")
		return
	}

	h.logger.Info("Mailbox linked", zap.String("user_id", cred.UserID))
	writeJSON(w, h.logger, http.StatusOK, authLinkedResponse{UserID: cred.UserID, Email: cred.Email})
}

// take removes and returns a live pending consent.
func (h *AuthHandler) take(state string) (pendingConsent, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	consent, ok := h.pending[state]
	if !ok {
		return pendingConsent{}, false
	}
	delete(h.pending, state)
	return consent, h.now().Before(consent.expires)
}

// prune drops expired consents. Callers hold h.mu.
func (h *AuthHandler) prune() {
	now := h.now()
	for state, consent := range h.pending {
		if !now.Before(consent.expires) {
			delete(h.pending, state)
		}
	}
}
