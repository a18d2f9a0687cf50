package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/flicker/match-app/internal/apperr"
	"github.com/flicker/match-app/internal/matching"
	"github.com/flicker/match-app/internal/models"
)

// Matcher is the swipe and discovery surface.
type Matcher interface {
	SwipeRight(ctx context.Context, actor, target string) (*matching.SwipeResult, error)
	SwipeLeft(ctx context.Context, actor, target string) (*models.User, error)
	Matches(ctx context.Context, actor string) ([]models.Summary, error)
	Candidates(ctx context.Context, actor string, limit int) ([]models.User, error)
}

// Messenger is the direct message surface.
type Messenger interface {
	SendMessage(ctx context.Context, sender, receiver, content string) (models.Message, error)
	Conversation(ctx context.Context, actor, other string) ([]models.Message, error)
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	matcher   Matcher
	messenger Messenger
	log       zerolog.Logger
}

// NewHandler creates a Handler.
func NewHandler(matcher Matcher, messenger Messenger, logger zerolog.Logger) *Handler {
	return &Handler{matcher: matcher, messenger: messenger, log: logger}
}

type sendMessageRequest struct {
	ReceiverID string `json:"receiverId"`
	Content    string `json:"content"`
}

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 16 << 10

func (h *Handler) SwipeRight(w http.ResponseWriter, r *http.Request) {
	res, err := h.matcher.SwipeRight(r.Context(), UserID(r.Context()), chi.URLParam(r, "userID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"user":    res.User,
		"matched": res.Matched,
	})
}

func (h *Handler) SwipeLeft(w http.ResponseWriter, r *http.Request) {
	user, err := h.matcher.SwipeLeft(r.Context(), UserID(r.Context()), chi.URLParam(r, "userID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "user": user})
}

func (h *Handler) Matches(w http.ResponseWriter, r *http.Request) {
	matches, err := h.matcher.Matches(r.Context(), UserID(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "matches": matches})
}

func (h *Handler) Profiles(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.fail(w, r, apperr.InvalidAction("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	users, err := h.matcher.Candidates(r.Context(), UserID(r.Context()), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "users": users})
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.fail(w, r, apperr.InvalidAction("invalid request body"))
		return
	}
	if req.ReceiverID == "" {
		h.fail(w, r, apperr.InvalidAction("receiverId is required"))
		return
	}

	msg, err := h.messenger.SendMessage(r.Context(), UserID(r.Context()), req.ReceiverID, req.Content)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"success": true, "message": msg})
}

func (h *Handler) Conversation(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.messenger.Conversation(r.Context(), UserID(r.Context()), chi.URLParam(r, "userID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "messages": msgs})
}

// fail maps err to a status and a client-safe message. Server-side
// failures are logged with their cause.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.Status(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", r.URL.Path).Str("user_id", UserID(r.Context())).Msg("request failed")
	}
	writeJSON(w, status, errorBody(apperr.PublicMessage(err)))
}

func errorBody(message string) map[string]interface{} {
	return map[string]interface{}{"success": false, "message": message}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
