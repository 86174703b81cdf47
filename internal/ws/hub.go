package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/JsotoSoftware/watch-party-backend/internal/sharecode"
	"github.com/JsotoSoftware/watch-party-backend/internal/storage"
)

type Conn interface {
	Send(v any) error
	Close() error
	UserID() string
	DisplayName() string
}

type Hub struct {
	mu    sync.Mutex
	rooms map[string]*RoomHub
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]*RoomHub)}
}

// RoomHub fans messages out to the live connections of one room, keyed by
// the room's canonical share code.
type RoomHub struct {
	code         string
	mu           sync.Mutex
	conns        map[string]Conn
	members      map[string]MemberState
	lastActivity time.Time
}

type MemberState struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
	ProgressSec int    `json:"progressSec"`
	Connected   bool   `json:"connected"`
}

func NewRoomHub(code string) *RoomHub {
	return &RoomHub{
		code:         code,
		conns:        map[string]Conn{},
		members:      map[string]MemberState{},
		lastActivity: time.Now(),
	}
}

func (h *Hub) GetRoom(code string) *RoomHub {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[code]
	if !ok {
		r = NewRoomHub(code)
		h.rooms[code] = r
	}
	return r
}

// CloseRoom tells every connection the room is gone and drops the hub.
func (h *Hub) CloseRoom(code string) {
	h.mu.Lock()
	r, ok := h.rooms[code]
	delete(h.rooms, code)
	h.mu.Unlock()
	if !ok {
		return
	}

	r.mu.Lock()
	conns := make([]Conn, 0, len(r.conns))
	for uid, c := range r.conns {
		conns = append(conns, c)
		delete(r.conns, uid)
	}
	r.mu.Unlock()

	for _, c := range conns {
		_ = c.Send(map[string]any{"type": "room:closed", "payload": map[string]any{"code": code}})
		_ = c.Close()
	}
}

func (r *RoomHub) Code() string { return r.code }

// SyncMembers replaces the member list with the stored one and recomputes
// who is connected.
func (r *RoomHub) SyncMembers(members []storage.RoomMember) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members = make(map[string]MemberState, len(members))
	for _, m := range members {
		_, connected := r.conns[m.UserID]
		r.members[m.UserID] = MemberState{
			UserID:      m.UserID,
			DisplayName: m.DisplayName,
			Role:        m.Role,
			ProgressSec: m.ProgressSec,
			Connected:   connected,
		}
	}
}

// setConnected flips a member's presence flag. r.mu must be held.
func (r *RoomHub) setConnected(userID string, connected bool) {
	m, ok := r.members[userID]
	if ok {
		m.Connected = connected
		r.members[userID] = m
	}
}

// SetProgress records a member's position and returns the previous one.
func (r *RoomHub) SetProgress(userID string, sec int) (prev int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[userID]
	if !ok {
		return 0, false
	}
	prev = m.ProgressSec
	m.ProgressSec = sec
	r.members[userID] = m
	r.lastActivity = time.Now()
	return prev, true
}

func (r *RoomHub) Progress(userID string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[userID]
	return m.ProgressSec, ok
}

func (r *RoomHub) Register(c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.conns[c.UserID()]; ok && old != c {
		_ = old.Close()
	}

	r.conns[c.UserID()] = c
	r.setConnected(c.UserID(), true)
	r.lastActivity = time.Now()
}

// Unregister removes c if it is still the live connection for its user. A
// reconnect may already have replaced it.
func (r *RoomHub) Unregister(c Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.conns[c.UserID()]
	if !ok || cur != c {
		return false
	}
	delete(r.conns, c.UserID())
	r.setConnected(c.UserID(), false)
	r.lastActivity = time.Now()
	return true
}

func (r *RoomHub) Members() []MemberState {
	r.mu.Lock()
	defer r.mu.Unlock()
	members := make([]MemberState, 0, len(r.members))
	for _, m := range r.members {
		members = append(members, m)
	}
	return members
}

func (r *RoomHub) BroadcastPresence() {
	members := r.Members()

	r.mu.Lock()
	conns := make([]Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	msg := map[string]any{
		"type": "room:presence",
		"payload": map[string]any{
			"code":        r.code,
			"displayCode": sharecode.Format(r.code),
			"members":     members,
		},
	}

	for _, c := range conns {
		_ = c.Send(msg)
	}

	r.Touch()
}

// BroadcastChat delivers m live to the sender and to every connection that
// has already watched past the message's position. Everyone else picks it up
// from history when they catch up.
func (r *RoomHub) BroadcastChat(m storage.Message) int {
	r.mu.Lock()
	targets := make([]Conn, 0, len(r.conns))
	for uid, c := range r.conns {
		if uid == m.UserID || r.members[uid].ProgressSec >= m.PositionSec {
			targets = append(targets, c)
		}
	}
	r.lastActivity = time.Now()
	r.mu.Unlock()

	msg := map[string]any{"type": "chat:message", "payload": m}
	for _, c := range targets {
		_ = c.Send(msg)
	}
	return len(targets)
}

// SendTo delivers msg to the user's live connection, if any.
func (r *RoomHub) SendTo(userID string, msg any) {
	r.mu.Lock()
	c := r.conns[userID]
	r.mu.Unlock()
	if c != nil {
		_ = c.Send(msg)
	}
}

func (h *Hub) RoomSnapshot() map[string]*RoomHub {
	h.mu.Lock()
	defer h.mu.Unlock()
	snap := make(map[string]*RoomHub, len(h.rooms))
	for k, v := range h.rooms {
		snap[k] = v
	}
	return snap
}

func (h *Hub) TryDeleteEmptyRoom(code string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[code]
	if !ok {
		return false
	}

	r.mu.Lock()
	empty := len(r.conns) == 0
	r.mu.Unlock()

	if empty {
		delete(h.rooms, code)
		return true
	}
	return false
}

func (r *RoomHub) Touch() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastActivity = time.Now()
}

func (r *RoomHub) ConnCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

func (r *RoomHub) LastActivity() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastActivity
}

func Marshal(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}
