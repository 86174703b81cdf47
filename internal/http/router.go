package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JsotoSoftware/watch-party-backend/internal/auth"
)

type RouterConfig struct {
	Store     Store
	Tokens    *auth.TokenMaker
	Games     GameService
	WSHandler http.Handler
	Closer    RoomCloser

	CookieSecure   bool
	CookieDomain   string
	PublicBaseURL  string
	AdminUserIDs   []string
	JoinsPerMinute int
}

func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	h := NewHandler(cfg.Store)

	r.Get("/healthz", h.healthCheck)
	r.Get("/readyz", h.readyCheck)

	// WebSocket handler
	if cfg.WSHandler != nil {
		r.Get("/ws", cfg.WSHandler.ServeHTTP)
	}

	// Auth handlers
	ah := NewAuthHandlers(cfg.Store, cfg.Tokens, cfg.CookieSecure, cfg.CookieDomain)
	r.Route("/v1/auth", func(r chi.Router) {
		r.Post("/guest", ah.Guest)
		r.Post("/refresh", ah.Refresh)
		r.Post("/logout", ah.Logout)
	})

	rh := NewRoomHandlers(cfg.Store, cfg.Games, cfg.Closer, cfg.PublicBaseURL, cfg.JoinsPerMinute)
	gh := NewGamesHandlers(cfg.Games)
	adh := NewAdminHandlers(cfg.Store)

	r.Route("/v1", func(r chi.Router) {
		// Public: the QR is scanned by devices that are not signed in yet.
		r.Get("/rooms/{code}/qr.png", rh.QR)

		// Protected
		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(cfg.Tokens))

			r.Get("/games", gh.List)
			r.Get("/games/{id}", gh.Get)

			r.Post("/rooms", rh.Create)
			r.Post("/rooms/join", rh.Join)
			r.Get("/rooms/{code}", rh.Get)
			r.Delete("/rooms/{code}", rh.Close)
			r.Get("/rooms/{code}/members", rh.Members)
			r.Get("/rooms/{code}/messages", rh.Messages)

			r.Route("/admin", func(r chi.Router) {
				r.Use(RequireAdmin(cfg.AdminUserIDs))
				r.Delete("/users/{id}", adh.DeleteUser)
			})
		})
	})

	return r
}
