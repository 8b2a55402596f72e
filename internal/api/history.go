package api

import (
	"log/slog"
	"net/http"

	"github.com/ashureev/kido-tutor/internal/identity"
	"github.com/ashureev/kido-tutor/internal/persist"
	"github.com/go-chi/chi/v5"
)

// HistoryHandler serves the learner's completed-lesson history.
type HistoryHandler struct {
	gateway *persist.Gateway
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(gateway *persist.Gateway) *HistoryHandler {
	return &HistoryHandler{gateway: gateway}
}

// RegisterRoutes registers history routes.
func (h *HistoryHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/history", h.GetHistory)
}

// GetHistory returns all completed lessons for a user, newest first.
func (h *HistoryHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID := identity.SanitizeUserID(r.URL.Query().Get("user_id"))
	if userID == "" {
		Error(w, http.StatusBadRequest, "missing or invalid user_id")
		return
	}

	lessons, err := h.gateway.ListCompletedLessons(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to list completed lessons", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"user_id": userID,
		"count":   len(lessons),
		"lessons": lessons,
	})
}
