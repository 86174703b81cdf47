package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/JsotoSoftware/watch-party-backend/internal/storage"
)

type AdminHandlers struct {
	Store AuthStore
}

func NewAdminHandlers(store AuthStore) *AdminHandlers {
	return &AdminHandlers{Store: store}
}

// DeleteUser removes a user. Sessions, memberships, messages and owned rooms
// go with it.
func (h *AdminHandlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	adminID, _ := UserIDFromContext(r.Context())
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "missing id", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Store.DeleteUser(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("user_id", id).Msg("delete user failed")
		http.Error(w, "failed", http.StatusInternalServerError)
		return
	}

	log.Info().Str("user_id", id).Str("admin_id", adminID).Msg("user deleted")
	w.WriteHeader(http.StatusNoContent)
}
