package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/JsotoSoftware/watch-party-backend/internal/auth"
)

const (
	maxDisplayNameRunes = 40
	defaultDisplayName  = "Guest"
)

type AuthHandlers struct {
	Store        AuthStore
	Tokens       *auth.TokenMaker
	CookieSecure bool
	CookieDomain string
}

type tokenResp struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
	UserID      string    `json:"userId"`
}

type guestReq struct {
	DisplayName string `json:"displayName"`
}

func NewAuthHandlers(store AuthStore, tokens *auth.TokenMaker, cookieSecure bool, cookieDomain string) *AuthHandlers {
	return &AuthHandlers{
		Store:        store,
		Tokens:       tokens,
		CookieSecure: cookieSecure,
		CookieDomain: cookieDomain,
	}
}

func (h *AuthHandlers) Guest(w http.ResponseWriter, r *http.Request) {
	if _, err := r.Cookie(auth.RefreshCookieName); err == nil {
		h.Refresh(w, r)
		return
	}

	var req guestReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "bad request: invalid JSON", http.StatusBadRequest)
		return
	}
	name, ok := cleanDisplayName(req.DisplayName)
	if !ok {
		if strings.TrimSpace(req.DisplayName) != "" {
			http.Error(w, "displayName too long", http.StatusBadRequest)
			return
		}
		name = defaultDisplayName
	}

	refreshToken, err := auth.NewRefreshToken()
	if err != nil {
		http.Error(w, "failed", http.StatusInternalServerError)
		return
	}
	hash := auth.HashToken(refreshToken)

	expiresAt := time.Now().UTC().Add(auth.RefreshTokenTTL)
	ua := r.UserAgent()
	ip := clientIP(r)

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	userID, _, err := h.Store.CreateGuestUserAndSession(ctx, name, hash, expiresAt, ua, ip)
	if err != nil {
		log.Error().Err(err).Msg("create guest failed")
		http.Error(w, "failed", http.StatusInternalServerError)
		return
	}

	setRefreshCookie(w, refreshToken, expiresAt, h.CookieSecure, h.CookieDomain)
	h.writeAccessToken(w, userID)
}

func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(auth.RefreshCookieName)
	if err != nil || c.Value == "" {
		http.Error(w, "missing refresh", http.StatusUnauthorized)
		return
	}

	oldHash := auth.HashToken(c.Value)

	newToken, err := auth.NewRefreshToken()
	if err != nil {
		http.Error(w, "failed", http.StatusInternalServerError)
		return
	}

	newHash := auth.HashToken(newToken)
	newExpires := time.Now().UTC().Add(auth.RefreshTokenTTL)

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	_, userID, err := h.Store.RotateRefreshSession(ctx, oldHash, newHash, newExpires, r.UserAgent(), clientIP(r))
	if err != nil {
		log.Debug().Err(err).Msg("refresh rejected")
		http.Error(w, "invalid refresh", http.StatusUnauthorized)
		return
	}

	setRefreshCookie(w, newToken, newExpires, h.CookieSecure, h.CookieDomain)
	h.writeAccessToken(w, userID)
}

func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(auth.RefreshCookieName)
	if err == nil && c.Value != "" {
		hash := auth.HashToken(c.Value)
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		_ = h.Store.RevokeRefreshSession(ctx, hash)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.RefreshCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.CookieSecure,
		Domain:   h.CookieDomain,
	})

	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandlers) writeAccessToken(w http.ResponseWriter, userID string) {
	access, accessExp, err := h.Tokens.NewAccessToken(userID, auth.AccessTokenTTL)
	if err != nil {
		http.Error(w, "failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, tokenResp{AccessToken: access, ExpiresAt: accessExp, UserID: userID})
}

func setRefreshCookie(w http.ResponseWriter, token string, exp time.Time, secure bool, domain string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.RefreshCookieName,
		Value:    token,
		Path:     "/",
		Expires:  exp,
		MaxAge:   int(time.Until(exp).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
		Domain:   domain,
	})
}

// cleanDisplayName trims the name and reports whether it is non-empty and
// short enough.
func cleanDisplayName(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" || utf8.RuneCountInString(s) > maxDisplayNameRunes {
		return "", false
	}
	return s, true
}
