package chat

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hesabyar/hesabyar/internal/engine"
	"github.com/hesabyar/hesabyar/internal/store"
	"github.com/hesabyar/hesabyar/pkg/utils"
)

// Handler serves the chat and session endpoints.
type Handler struct {
	engine *engine.Engine
	store  store.Store
}

// New creates the chat handler.
func New(eng *engine.Engine, st store.Store) *Handler {
	return &Handler{engine: eng, store: st}
}

// RegisterRoutes mounts the chat routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
	r.Post("/session", h.handleCreateSession)
	r.Delete("/session/{sessionID}", h.handleClearSession)
	r.Get("/session/{sessionID}/history", h.handleHistory)
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Message   string `json:"message"`
		SessionID string `json:"session_id"`
		UserID    string `json:"user_id"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Message == "" {
		utils.RespondError(w, http.StatusBadRequest, "message is required")
		return
	}

	sessionID := payload.SessionID
	if sessionID == "" {
		sessionID = h.store.CreateSession(r.Context(), "")
	}

	reply := h.engine.HandleMessage(r.Context(), payload.UserID, sessionID, payload.Message)

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"response":   reply.Response,
		"intent":     reply.Intent,
		"tool_used":  reply.ToolUsed,
		"degraded":   reply.Degraded,
		"session_id": sessionID,
	})
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SessionID string `json:"session_id"`
	}
	// An empty body is fine: a fresh id is allocated.
	_ = json.NewDecoder(r.Body).Decode(&payload)

	id := h.store.CreateSession(r.Context(), payload.SessionID)
	utils.RespondJSON(w, http.StatusCreated, map[string]any{
		"success":    true,
		"session_id": id,
	})
}

func (h *Handler) handleClearSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	h.store.ClearSession(r.Context(), sessionID)
	utils.RespondJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			utils.RespondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	history := h.store.GetHistory(r.Context(), sessionID, limit)
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"history": history,
	})
}
