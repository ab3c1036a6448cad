package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mentorlink/realtime/internal/api/middleware"
	"github.com/mentorlink/realtime/internal/models"
)

// MessagesResponse is the response from fetching chat history.
type MessagesResponse struct {
	ChatID   string               `json:"chatId"`
	Messages []models.LiveMessage `json:"messages"`
}

// GetChatMessages returns stored history for a chat, oldest first.
// Clients hydrate a conversation from here before attaching live.
func (h *Handler) GetChatMessages(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	chatID := chi.URLParam(r, "id")
	if chatID == "" {
		h.Error(w, http.StatusBadRequest, "chat ID required")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	var before int64
	if v := r.URL.Query().Get("before"); v != "" {
		before, _ = strconv.ParseInt(v, 10, 64)
	}

	messages, err := h.history.GetChatMessages(r.Context(), chatID, limit, before)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to fetch messages")
		return
	}

	h.JSON(w, http.StatusOK, MessagesResponse{ChatID: chatID, Messages: messages})
}

// ServeWS authenticates the upgrade request and hands it to the hub.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	h.hub.ServeWS(w, r, user)
}
