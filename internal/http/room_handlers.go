package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/JsotoSoftware/watch-party-backend/internal/sharecode"
	"github.com/JsotoSoftware/watch-party-backend/internal/sports"
	"github.com/JsotoSoftware/watch-party-backend/internal/storage"
)

const (
	maxCreateRetries = 5
	messagePageSize  = 200
	qrSizePx         = 320
)

type RoomsHandlers struct {
	Store         Store
	Games         GameService
	Closer        RoomCloser
	PublicBaseURL string
	// JoinsPerMinute caps join attempts per user. Zero disables the throttle.
	JoinsPerMinute int
}

type roomView struct {
	ID          string               `json:"id"`
	Code        string               `json:"code"`
	DisplayCode string               `json:"displayCode"`
	ShareURL    string               `json:"shareUrl"`
	GameID      string               `json:"gameId"`
	Title       string               `json:"title"`
	Status      string               `json:"status"`
	OwnerUserID string               `json:"ownerUserId"`
	Role        string               `json:"role,omitempty"`
	ProgressSec *int                 `json:"progressSec,omitempty"`
	Members     []storage.RoomMember `json:"members,omitempty"`
}

type createRoomReq struct {
	GameID      string `json:"gameId"`
	Title       string `json:"title"`
	DisplayName string `json:"displayName"`
}

type joinRoomReq struct {
	Code        string `json:"code"`
	DisplayName string `json:"displayName"`
}

func NewRoomHandlers(store Store, games GameService, closer RoomCloser, publicBaseURL string, joinsPerMinute int) *RoomsHandlers {
	return &RoomsHandlers{
		Store:          store,
		Games:          games,
		Closer:         closer,
		PublicBaseURL:  publicBaseURL,
		JoinsPerMinute: joinsPerMinute,
	}
}

func (h *RoomsHandlers) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req createRoomReq
	if !decodeBody(w, r, &req) {
		return
	}
	req.GameID = strings.TrimSpace(req.GameID)
	if req.GameID == "" {
		http.Error(w, "gameId required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	game, err := h.Games.GetGame(ctx, req.GameID)
	if err != nil {
		if errors.Is(err, sports.ErrGameNotFound) {
			http.Error(w, "game not found", http.StatusBadRequest)
			return
		}
		log.Error().Err(err).Str("game_id", req.GameID).Msg("game lookup failed")
		http.Error(w, "sports provider unavailable", http.StatusBadGateway)
		return
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = game.Title()
	}

	hostName, ok := h.displayNameFor(ctx, w, userID, req.DisplayName)
	if !ok {
		return
	}

	for i := 0; i < maxCreateRetries; i++ {
		room, err := h.Store.CreateRoom(ctx, storage.NewRoom{
			Code:             sharecode.Generate(),
			GameID:           game.ID,
			Title:            title,
			OwnerUserID:      userID,
			OwnerDisplayName: hostName,
		})
		if err == nil {
			view := h.view(room)
			view.Role = storage.RoleHost
			writeJSONStatus(w, http.StatusCreated, view)
			return
		}

		if !errors.Is(err, storage.ErrCodeTaken) {
			log.Error().Err(err).Msg("create room failed")
			http.Error(w, "failed to create room", http.StatusInternalServerError)
			return
		}

		log.Debug().Int("attempt", i+1).Msg("share code collision")
		if i < maxCreateRetries-1 {
			time.Sleep(time.Duration(i+1) * 10 * time.Millisecond)
		}
	}

	http.Error(w, "could not create room after retries", http.StatusInternalServerError)
}

func (h *RoomsHandlers) Join(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req joinRoomReq
	if !decodeBody(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if h.JoinsPerMinute > 0 {
		allowed, err := h.Store.AllowJoinAttempt(ctx, userID, h.JoinsPerMinute)
		if err != nil {
			log.Warn().Err(err).Msg("join throttle unavailable")
		} else if !allowed {
			w.Header().Set("Retry-After", "60")
			http.Error(w, "too many join attempts", http.StatusTooManyRequests)
			return
		}
	}

	code, valid := sharecode.Parse(req.Code)
	if !valid {
		http.Error(w, "invalid code", http.StatusBadRequest)
		return
	}

	room, err := h.Store.GetRoomByCode(ctx, code)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed", http.StatusInternalServerError)
		return
	}
	if room.Status != storage.RoomStatusActive {
		http.Error(w, "room closed", http.StatusGone)
		return
	}

	name, ok := h.displayNameFor(ctx, w, userID, req.DisplayName)
	if !ok {
		return
	}

	member, err := h.Store.JoinRoom(ctx, room.ID, userID, name)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrRoomClosed):
			http.Error(w, "room closed", http.StatusGone)
		case errors.Is(err, storage.ErrNotFound):
			http.Error(w, "room not found", http.StatusNotFound)
		default:
			log.Error().Err(err).Str("room_id", room.ID).Msg("join room failed")
			http.Error(w, "failed to join", http.StatusInternalServerError)
		}
		return
	}

	view := h.view(room)
	view.Role = member.Role
	view.ProgressSec = &member.ProgressSec
	writeJSON(w, view)
}

func (h *RoomsHandlers) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	room, member, ok := h.memberRoom(ctx, w, r)
	if !ok {
		return
	}

	members, err := h.Store.ListRoomMembers(ctx, room.ID)
	if err != nil {
		http.Error(w, "get members failed", http.StatusInternalServerError)
		return
	}

	view := h.view(room)
	view.Role = member.Role
	view.ProgressSec = &member.ProgressSec
	view.Members = members
	writeJSON(w, view)
}

func (h *RoomsHandlers) Members(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	room, _, ok := h.memberRoom(ctx, w, r)
	if !ok {
		return
	}

	members, err := h.Store.ListRoomMembers(ctx, room.ID)
	if err != nil {
		http.Error(w, "failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, members)
}

// Messages returns the backlog the caller can read without spoilers.
func (h *RoomsHandlers) Messages(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	room, member, ok := h.memberRoom(ctx, w, r)
	if !ok {
		return
	}

	msgs, err := h.Store.ListMessagesUpTo(ctx, room.ID, member.ProgressSec, messagePageSize)
	if err != nil {
		log.Error().Err(err).Str("room_id", room.ID).Msg("list messages failed")
		http.Error(w, "failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"progressSec": member.ProgressSec,
		"messages":    msgs,
	})
}

func (h *RoomsHandlers) Close(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	room, ok := h.roomFromPath(ctx, w, r)
	if !ok {
		return
	}
	if room.OwnerUserID != userID {
		http.Error(w, "host only", http.StatusForbidden)
		return
	}

	if room.Status != storage.RoomStatusClosed {
		if err := h.Store.CloseRoom(ctx, room.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			log.Error().Err(err).Str("room_id", room.ID).Msg("close room failed")
			http.Error(w, "failed", http.StatusInternalServerError)
			return
		}
	}

	if h.Closer != nil {
		h.Closer.CloseRoom(room.Code)
	}

	log.Info().Str("code", room.Code).Str("user_id", userID).Msg("room closed")
	w.WriteHeader(http.StatusNoContent)
}

// QR renders the room's share link as a PNG so a second screen can scan it.
func (h *RoomsHandlers) QR(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	room, ok := h.roomFromPath(ctx, w, r)
	if !ok {
		return
	}

	png, err := qrcode.Encode(shareURL(h.PublicBaseURL, room.Code), qrcode.Medium, qrSizePx)
	if err != nil {
		log.Error().Err(err).Str("code", room.Code).Msg("qr encode failed")
		http.Error(w, "failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (h *RoomsHandlers) view(room *storage.Room) roomView {
	return roomView{
		ID:          room.ID,
		Code:        room.Code,
		DisplayCode: sharecode.Format(room.Code),
		ShareURL:    shareURL(h.PublicBaseURL, room.Code),
		GameID:      room.GameID,
		Title:       room.Title,
		Status:      room.Status,
		OwnerUserID: room.OwnerUserID,
	}
}

// roomFromPath resolves the {code} URL param. Formatted input like
// "bea-rs7" is accepted.
func (h *RoomsHandlers) roomFromPath(ctx context.Context, w http.ResponseWriter, r *http.Request) (*storage.Room, bool) {
	code, valid := sharecode.Parse(chi.URLParam(r, "code"))
	if !valid {
		http.Error(w, "invalid code", http.StatusBadRequest)
		return nil, false
	}

	room, err := h.Store.GetRoomByCode(ctx, code)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "room not found", http.StatusNotFound)
			return nil, false
		}
		http.Error(w, "failed", http.StatusInternalServerError)
		return nil, false
	}
	return room, true
}

func (h *RoomsHandlers) memberRoom(ctx context.Context, w http.ResponseWriter, r *http.Request) (*storage.Room, *storage.RoomMember, bool) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, nil, false
	}

	room, ok := h.roomFromPath(ctx, w, r)
	if !ok {
		return nil, nil, false
	}

	member, err := h.Store.GetRoomMember(ctx, room.ID, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotRoomMember) {
			http.Error(w, "not a member", http.StatusForbidden)
			return nil, nil, false
		}
		http.Error(w, "failed", http.StatusInternalServerError)
		return nil, nil, false
	}
	return room, member, true
}

// displayNameFor validates a name from the request body, falling back to the
// name stored on the user.
func (h *RoomsHandlers) displayNameFor(ctx context.Context, w http.ResponseWriter, userID, requested string) (string, bool) {
	if name, ok := cleanDisplayName(requested); ok {
		return name, true
	}
	if strings.TrimSpace(requested) != "" {
		http.Error(w, "displayName too long", http.StatusBadRequest)
		return "", false
	}

	u, err := h.Store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return "", false
		}
		http.Error(w, "failed", http.StatusInternalServerError)
		return "", false
	}
	if u.DisplayName == "" {
		return defaultDisplayName, true
	}
	return u.DisplayName, true
}

func shareURL(base, code string) string {
	return strings.TrimRight(base, "/") + "/join/" + code
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	bodyBytes, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		log.Error().Err(err).Msg("failed to read request body")
		http.Error(w, "bad request: failed to read body", http.StatusBadRequest)
		return false
	}

	if len(bodyBytes) == 0 {
		http.Error(w, "bad request: empty body", http.StatusBadRequest)
		return false
	}

	if err := json.Unmarshal(bodyBytes, v); err != nil {
		log.Debug().Err(err).Msg("JSON decode failed")
		http.Error(w, "bad request: invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}
