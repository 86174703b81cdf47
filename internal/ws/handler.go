package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"

	"github.com/JsotoSoftware/watch-party-backend/internal/auth"
	"github.com/JsotoSoftware/watch-party-backend/internal/sharecode"
	"github.com/JsotoSoftware/watch-party-backend/internal/storage"
)

const (
	MaxMessageRunes = 500
	historyLimit    = 200
)

// Store is the slice of storage the chat socket needs.
type Store interface {
	GetRoomByCode(ctx context.Context, code string) (*storage.Room, error)
	GetRoomMember(ctx context.Context, roomID, userID string) (*storage.RoomMember, error)
	ListRoomMembers(ctx context.Context, roomID string) ([]storage.RoomMember, error)
	InsertMessage(ctx context.Context, m storage.Message) (*storage.Message, error)
	ListMessagesUpTo(ctx context.Context, roomID string, maxPos int, limit int) ([]storage.Message, error)
	ListMessagesBetween(ctx context.Context, roomID string, fromPos, toPos int, limit int) ([]storage.Message, error)
	SetMemberProgress(ctx context.Context, roomID, userID string, progressSec int) error
	TouchRoomActivity(ctx context.Context, roomID string) error
}

type TokenParser interface {
	ParseAccessToken(token string) (*auth.AccessClaims, error)
}

type Handler struct {
	Hub            *Hub
	Store          Store
	Tokens         TokenParser
	OriginPatterns []string
}

func NewHandler(hub *Hub, store Store, tokens TokenParser, originPatterns []string) *Handler {
	if len(originPatterns) == 0 {
		originPatterns = []string{"*"}
	}
	return &Handler{
		Hub:            hub,
		Store:          store,
		Tokens:         tokens,
		OriginPatterns: originPatterns,
	}
}

type Envelope struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type JoinPayload struct {
	Code string `json:"code"`
}

type ChatSendPayload struct {
	Body string `json:"body"`
}

type ProgressPayload struct {
	ProgressSec *int `json:"progressSec"`
}

// session is the per-socket state of one viewer.
type session struct {
	h      *Handler
	c      *websocket.Conn
	ctx    context.Context
	userID string

	room   *RoomHub
	conn   *WSConn
	roomID string
	member storage.RoomMember
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("access_token")
	if raw == "" {
		raw = r.URL.Query().Get("token")
	}
	if raw == "" {
		http.Error(w, "missing access_token", http.StatusUnauthorized)
		return
	}

	claims, err := h.Tokens.ParseAccessToken(raw)
	if err != nil || claims.UserID == "" {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	userID := claims.UserID

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.OriginPatterns,
	})
	if err != nil {
		log.Warn().Str("user", userID).Err(err).Msg("ws: failed to accept connection")
		return
	}
	defer c.Close(websocket.StatusInternalError, "server error")

	log.Info().Str("user", userID).Msg("ws: connection established")

	s := &session{h: h, c: c, ctx: r.Context(), userID: userID}
	s.run()
	s.leave()

	c.Close(websocket.StatusNormalClosure, "bye")
	log.Info().Str("user", userID).Str("room", s.code()).Msg("ws: connection closed")
}

func (s *session) run() {
	for {
		_, b, err := s.c.Read(s.ctx)
		if err != nil {
			log.Info().
				Str("user", s.userID).
				Str("room", s.code()).
				Err(err).
				Msg("ws: read error, closing connection")
			return
		}

		var env Envelope
		if err := json.Unmarshal(b, &env); err != nil {
			log.Warn().Str("user", s.userID).Str("room", s.code()).Err(err).Msg("ws: received invalid JSON")
			s.fail("bad json")
			continue
		}

		log.Debug().
			Str("user", s.userID).
			Str("room", s.code()).
			Str("type", env.Type).
			Int("payloadLen", len(env.Payload)).
			Msg("ws: message received")

		switch env.Type {
		case "room:join":
			s.handleJoin(env)
		case "chat:send":
			s.handleChat(env)
		case "progress:update":
			s.handleProgress(env)
		case "client:ping":
			s.reply(map[string]any{"type": "server:pong", "payload": map[string]any{"ts": time.Now().UnixMilli()}})
		default:
			log.Debug().Str("user", s.userID).Str("type", env.Type).Msg("ws: unknown message type, ignoring")
		}

		if s.conn != nil {
			s.conn.Touch()
		}
	}
}

func (s *session) code() string {
	if s.room == nil {
		return ""
	}
	return s.room.Code()
}

// reply goes through the write loop once joined and straight to the socket
// before that.
func (s *session) reply(v any) {
	if s.conn != nil {
		_ = s.conn.Send(v)
		return
	}
	_ = s.c.Write(s.ctx, websocket.MessageText, Marshal(v))
}

func (s *session) fail(message string) {
	s.reply(map[string]any{"type": "error", "payload": map[string]any{"message": message}})
}

func (s *session) dbCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(s.ctx, 3*time.Second)
}

func (s *session) handleJoin(env Envelope) {
	if s.room != nil {
		s.fail("already joined")
		return
	}

	var p JoinPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		s.fail("invalid join payload")
		return
	}
	code, ok := sharecode.Parse(p.Code)
	if !ok {
		s.fail("invalid code")
		return
	}

	ctx, cancel := s.dbCtx()
	defer cancel()

	room, err := s.h.Store.GetRoomByCode(ctx, code)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.fail("room not found")
		} else {
			s.fail("failed to load room")
		}
		return
	}
	if room.Status != storage.RoomStatusActive {
		s.fail("room closed")
		return
	}

	member, err := s.h.Store.GetRoomMember(ctx, room.ID, s.userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotRoomMember) {
			s.fail("join the room first")
		} else {
			s.fail("failed to join room")
		}
		return
	}

	members, err := s.h.Store.ListRoomMembers(ctx, room.ID)
	if err != nil {
		s.fail("failed to join room")
		return
	}
	history, err := s.h.Store.ListMessagesUpTo(ctx, room.ID, member.ProgressSec, historyLimit)
	if err != nil {
		s.fail("failed to load history")
		return
	}
	_ = s.h.Store.TouchRoomActivity(ctx, room.ID)

	s.roomID = room.ID
	s.member = *member
	s.conn = NewWSConn(s.c, s.userID, member.DisplayName)
	s.room = s.h.Hub.GetRoom(room.Code)
	s.room.SyncMembers(members)
	s.room.Register(s.conn)

	// A close that landed between the status check and Register found no
	// connection to kick; look again now that this one is reachable.
	if cur, err := s.h.Store.GetRoomByCode(ctx, room.Code); err == nil && cur.Status != storage.RoomStatusActive {
		s.h.Hub.CloseRoom(room.Code)
		return
	}

	s.reply(map[string]any{
		"type":      "room:joined",
		"requestId": env.RequestID,
		"payload": map[string]any{
			"code":        room.Code,
			"displayCode": sharecode.Format(room.Code),
			"roomId":      room.ID,
			"gameId":      room.GameID,
			"userId":      s.userID,
			"role":        member.Role,
			"progressSec": member.ProgressSec,
		},
	})
	s.reply(map[string]any{
		"type": "chat:history",
		"payload": map[string]any{
			"messages": history,
			"toSec":    member.ProgressSec,
		},
	})

	s.room.BroadcastPresence()
}

func (s *session) handleChat(env Envelope) {
	if s.room == nil {
		s.fail("must join first")
		return
	}

	var p ChatSendPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		s.fail("invalid payload")
		return
	}
	body := strings.TrimSpace(p.Body)
	if body == "" {
		s.fail("message is empty")
		return
	}
	if utf8.RuneCountInString(body) > MaxMessageRunes {
		s.fail("message too long")
		return
	}

	pos, _ := s.room.Progress(s.userID)

	ctx, cancel := s.dbCtx()
	defer cancel()

	room, err := s.h.Store.GetRoomByCode(ctx, s.code())
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.fail("failed to send message")
		return
	}
	if err != nil || room.Status != storage.RoomStatusActive {
		s.fail("room closed")
		s.h.Hub.CloseRoom(s.code())
		return
	}

	msg, err := s.h.Store.InsertMessage(ctx, storage.Message{
		RoomID:      s.roomID,
		UserID:      s.userID,
		DisplayName: s.member.DisplayName,
		Body:        body,
		PositionSec: pos,
	})
	if err != nil {
		log.Error().Err(err).Str("user", s.userID).Str("room", s.code()).Msg("ws: failed to store message")
		s.fail("failed to send message")
		return
	}

	_ = s.h.Store.TouchRoomActivity(ctx, s.roomID)

	n := s.room.BroadcastChat(*msg)
	log.Debug().Str("room", s.code()).Int("delivered", n).Int("positionSec", pos).Msg("ws: chat message delivered")
}

func (s *session) handleProgress(env Envelope) {
	if s.room == nil {
		s.fail("must join first")
		return
	}

	var p ProgressPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || p.ProgressSec == nil || *p.ProgressSec < 0 {
		s.fail("progressSec must be a non-negative integer")
		return
	}
	next := *p.ProgressSec

	ctx, cancel := s.dbCtx()
	defer cancel()

	if err := s.h.Store.SetMemberProgress(ctx, s.roomID, s.userID, next); err != nil {
		s.fail("failed to save progress")
		return
	}
	prev, _ := s.room.SetProgress(s.userID, next)

	if next > prev {
		unlocked, err := s.h.Store.ListMessagesBetween(ctx, s.roomID, prev, next, historyLimit)
		if err != nil {
			s.fail("failed to load history")
			return
		}
		// A message sent while this runs can arrive both here and live;
		// clients dedupe by message id.
		if len(unlocked) > 0 {
			s.room.SendTo(s.userID, map[string]any{
				"type": "chat:history",
				"payload": map[string]any{
					"messages": unlocked,
					"fromSec":  prev,
					"toSec":    next,
				},
			})
		}
	}

	s.room.BroadcastPresence()
}

func (s *session) leave() {
	if s.room != nil && s.conn != nil {
		if s.room.Unregister(s.conn) {
			s.room.BroadcastPresence()
		}
	}
	if s.conn != nil {
		_ = s.conn.Close()
	}
}
