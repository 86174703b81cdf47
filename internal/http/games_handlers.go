package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/JsotoSoftware/watch-party-backend/internal/sports"
)

const dateLayout = "2006-01-02"

type GamesHandlers struct {
	Games GameService
}

func NewGamesHandlers(games GameService) *GamesHandlers {
	return &GamesHandlers{Games: games}
}

// List serves the slate for ?date=YYYY-MM-DD (today in UTC when omitted).
// Scores stay hidden unless ?reveal=true.
func (h *GamesHandlers) List(w http.ResponseWriter, r *http.Request) {
	day := time.Now().UTC()
	if raw := r.URL.Query().Get("date"); raw != "" {
		d, err := time.Parse(dateLayout, raw)
		if err != nil {
			http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		day = d
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	games, err := h.Games.ListGames(ctx, day)
	if err != nil {
		log.Error().Err(err).Str("date", day.Format(dateLayout)).Msg("list games failed")
		http.Error(w, "sports provider unavailable", http.StatusBadGateway)
		return
	}

	if !reveal(r) {
		games = sports.RedactAll(games)
	}
	if games == nil {
		games = []sports.Game{}
	}
	writeJSON(w, games)
}

func (h *GamesHandlers) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	game, err := h.Games.GetGame(ctx, id)
	if err != nil {
		if errors.Is(err, sports.ErrGameNotFound) {
			http.Error(w, "game not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("game_id", id).Msg("get game failed")
		http.Error(w, "sports provider unavailable", http.StatusBadGateway)
		return
	}

	if !reveal(r) {
		game = game.Redacted()
	}
	writeJSON(w, game)
}

func reveal(r *http.Request) bool {
	return r.URL.Query().Get("reveal") == "true"
}
