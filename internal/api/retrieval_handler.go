package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/BLNCname/GMailSecretary/internal/models"
	"github.com/BLNCname/GMailSecretary/internal/retrieval"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Summarizer produces a short summary of one message.
type Summarizer interface {
	Summarize(ctx context.Context, msg models.Message) (string, error)
}

// RetrievalHandler serves numbered result sets and full records to the
// authenticated user. Other users' messages answer 404.
type RetrievalHandler struct {
	service    *retrieval.Service
	summarizer Summarizer
	logger     *zap.Logger
}

// NewRetrievalHandler creates a handler. summarizer may be nil, in which case
// the summary endpoint answers 503.
func NewRetrievalHandler(service *retrieval.Service, summarizer Summarizer, logger *zap.Logger) *RetrievalHandler {
	return &RetrievalHandler{
		service:    service,
		summarizer: summarizer,
		logger:     logger.Named("api.retrieval"),
	}
}

type summaryResponse struct {
	ID      int    `json:"id"`
	Summary string `json:"summary"`
}

// GetSummaries handles GET /api/v1/summaries?kind=&value=.
func (h *RetrievalHandler) GetSummaries(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	set, err := h.service.Summaries(r.Context(), retrieval.Criteria{
		Kind:   query.Get("kind"),
		Value:  query.Get("value"),
		UserID: userID,
	})
	if err != nil {
		h.queryFailed(w, userID, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, set)
}

// GetSimilar handles GET /api/v1/similar?q=&k=.
func (h *RetrievalHandler) GetSimilar(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	k := 0
	if raw := query.Get("k"); raw != "" {
		if k, ok = positiveIntParam(raw); !ok {
			writeError(w, http.StatusBadRequest, "k must be a positive integer")
			return
		}
	}

	set, err := h.service.Similar(r.Context(), query.Get("q"), userID, k)
	if err != nil {
		h.queryFailed(w, userID, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, set)
}

// GetMessage handles GET /api/v1/messages/{seq}, where seq is the global
// sequence number from a result item.
func (h *RetrievalHandler) GetMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	msg, ok := h.ownedRecord(w, r, userID)
	if !ok {
		return
	}
	writeJSON(w, h.logger, http.StatusOK, msg)
}

// GetMessageSummary handles GET /api/v1/messages/{seq}/summary.
func (h *RetrievalHandler) GetMessageSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	if h.summarizer == nil {
		writeError(w, http.StatusServiceUnavailable, "summaries are not configured")
		return
	}

	msg, ok := h.ownedRecord(w, r, userID)
	if !ok {
		return
	}

	summary, err := h.summarizer.Summarize(r.Context(), *msg)
	if err != nil {
		h.logger.Warn("Failed to summarize message", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusBadGateway, "summary unavailable")
		return
	}

	seq, _ := positiveIntParam(r.PathValue("seq"))
	writeJSON(w, h.logger, http.StatusOK, summaryResponse{ID: seq, Summary: summary})
}

// GetResultItem handles GET /api/v1/results/{id}/{number}, resolving a local
// number from an earlier result set.
func (h *RetrievalHandler) GetResultItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	setID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid result set id")
		return
	}
	number, ok := positiveIntParam(r.PathValue("number"))
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	msg, err := h.service.Lookup(setID, number)
	if err != nil || msg.UserID != userID {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, msg)
}

func (h *RetrievalHandler) ownedRecord(w http.ResponseWriter, r *http.Request, userID string) (*models.Message, bool) {
	seq, ok := positiveIntParam(r.PathValue("seq"))
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return nil, false
	}

	msg, err := h.service.FullRecord(seq)
	if err != nil || msg.UserID != userID {
		writeError(w, http.StatusNotFound, "not found")
		return nil, false
	}
	return msg, true
}

func (h *RetrievalHandler) queryFailed(w http.ResponseWriter, userID string, err error) {
	switch {
	case errors.Is(err, retrieval.ErrUnknownCriteria), errors.Is(err, retrieval.ErrInvalidCriteria):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("Query failed", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
