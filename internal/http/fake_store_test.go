package http

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JsotoSoftware/watch-party-backend/internal/sports"
	"github.com/JsotoSoftware/watch-party-backend/internal/storage"
)

type fakeStore struct {
	mu sync.Mutex

	pingErr  error
	users    map[string]*storage.User
	sessions map[string]string // token hash -> user id
	rooms    map[string]*storage.Room
	members  map[string]map[string]*storage.RoomMember
	messages []storage.Message

	// codeTaken makes the next n CreateRoom calls collide.
	codeTaken    int
	createCalls  int
	joinAttempts map[string]int
	throttleErr  error
	seq          int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:        map[string]*storage.User{},
		sessions:     map[string]string{},
		rooms:        map[string]*storage.Room{},
		members:      map[string]map[string]*storage.RoomMember{},
		joinAttempts: map[string]int{},
	}
}

func (s *fakeStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *fakeStore) addUser(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = &storage.User{ID: id, DisplayName: name}
}

func (s *fakeStore) addRoom(r storage.Room, members ...storage.RoomMember) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.Status == "" {
		r.Status = storage.RoomStatusActive
	}
	s.rooms[r.Code] = &r
	s.members[r.ID] = map[string]*storage.RoomMember{}
	for _, m := range members {
		m := m
		s.members[r.ID][m.UserID] = &m
	}
}

func (s *fakeStore) room(code string) storage.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.rooms[code]
}

func (s *fakeStore) Ping(context.Context) error { return s.pingErr }
func (s *fakeStore) Close()                     {}

func (s *fakeStore) CreateGuestUserAndSession(_ context.Context, displayName string, hash []byte, _ time.Time, _, _ string) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID("user")
	s.users[id] = &storage.User{ID: id, DisplayName: displayName}
	s.sessions[string(hash)] = id
	return id, s.nextID("session"), nil
}

func (s *fakeStore) RotateRefreshSession(_ context.Context, oldHash, newHash []byte, _ time.Time, _, _ string) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.sessions[string(oldHash)]
	if !ok {
		return "", "", storage.ErrSessionGone
	}
	delete(s.sessions, string(oldHash))
	s.sessions[string(newHash)] = userID
	return s.nextID("session"), userID, nil
}

func (s *fakeStore) RevokeRefreshSession(_ context.Context, hash []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, string(hash))
	return nil
}

func (s *fakeStore) GetUser(_ context.Context, userID string) (*storage.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *fakeStore) DeleteUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return storage.ErrNotFound
	}
	delete(s.users, userID)
	return nil
}

func (s *fakeStore) CreateRoom(_ context.Context, nr storage.NewRoom) (*storage.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	if s.codeTaken > 0 {
		s.codeTaken--
		return nil, storage.ErrCodeTaken
	}
	if _, ok := s.rooms[nr.Code]; ok {
		return nil, storage.ErrCodeTaken
	}
	r := &storage.Room{
		ID:          s.nextID("room"),
		Code:        nr.Code,
		GameID:      nr.GameID,
		Title:       nr.Title,
		OwnerUserID: nr.OwnerUserID,
		Status:      storage.RoomStatusActive,
	}
	s.rooms[r.Code] = r
	s.members[r.ID] = map[string]*storage.RoomMember{
		nr.OwnerUserID: {UserID: nr.OwnerUserID, DisplayName: nr.OwnerDisplayName, Role: storage.RoleHost},
	}
	cp := *r
	return &cp, nil
}

func (s *fakeStore) GetRoomByCode(_ context.Context, code string) (*storage.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[code]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *fakeStore) roomByID(id string) *storage.Room {
	for _, r := range s.rooms {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func (s *fakeStore) JoinRoom(_ context.Context, roomID, userID, displayName string) (*storage.RoomMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.roomByID(roomID)
	if r == nil {
		return nil, storage.ErrNotFound
	}
	if r.Status != storage.RoomStatusActive {
		return nil, storage.ErrRoomClosed
	}
	m, ok := s.members[roomID][userID]
	if !ok {
		m = &storage.RoomMember{UserID: userID, Role: storage.RoleViewer}
		s.members[roomID][userID] = m
	}
	m.DisplayName = displayName
	cp := *m
	return &cp, nil
}

func (s *fakeStore) GetRoomMember(_ context.Context, roomID, userID string) (*storage.RoomMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[roomID][userID]
	if !ok {
		return nil, storage.ErrNotRoomMember
	}
	cp := *m
	return &cp, nil
}

func (s *fakeStore) ListRoomMembers(_ context.Context, roomID string) ([]storage.RoomMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []storage.RoomMember{}
	for _, m := range s.members[roomID] {
		out = append(out, *m)
	}
	return out, nil
}

func (s *fakeStore) ListMessagesUpTo(_ context.Context, roomID string, maxPos int, _ int) ([]storage.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []storage.Message{}
	for _, m := range s.messages {
		if m.RoomID == roomID && m.PositionSec <= maxPos {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeStore) CloseRoom(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.roomByID(roomID)
	if r == nil {
		return storage.ErrNotFound
	}
	r.Status = storage.RoomStatusClosed
	return nil
}

func (s *fakeStore) AllowJoinAttempt(_ context.Context, userID string, perMinute int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.throttleErr != nil {
		return false, s.throttleErr
	}
	s.joinAttempts[userID]++
	return s.joinAttempts[userID] <= perMinute, nil
}

type fakeGames struct {
	games map[string]sports.Game
	err   error
}

func (f *fakeGames) ListGames(_ context.Context, date time.Time) ([]sports.Game, error) {
	if f.err != nil {
		return nil, f.err
	}
	day := date.Format(dateLayout)
	var out []sports.Game
	for _, g := range f.games {
		if g.StartsAt.Format(dateLayout) == day {
			out = append(out, g)
		}
	}
	return out, nil
}

func (f *fakeGames) GetGame(_ context.Context, id string) (sports.Game, error) {
	if f.err != nil {
		return sports.Game{}, f.err
	}
	g, ok := f.games[id]
	if !ok {
		return sports.Game{}, sports.ErrGameNotFound
	}
	return g, nil
}

type fakeCloser struct {
	mu     sync.Mutex
	closed []string
}

func (f *fakeCloser) CloseRoom(code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, code)
}

var errUpstream = errors.New("upstream down")
