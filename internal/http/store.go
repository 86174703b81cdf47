package http

import (
	"context"
	"time"

	"github.com/JsotoSoftware/watch-party-backend/internal/sports"
	"github.com/JsotoSoftware/watch-party-backend/internal/storage"
)

type AuthStore interface {
	CreateGuestUserAndSession(ctx context.Context, displayName string, refreshTokenHash []byte, expiresAt time.Time, userAgent, ip string) (userID, sessionID string, err error)
	RotateRefreshSession(ctx context.Context, oldHash, newHash []byte, newExpiresAt time.Time, userAgent, ip string) (newSessionID, userID string, err error)
	RevokeRefreshSession(ctx context.Context, tokenHash []byte) error
	GetUser(ctx context.Context, userID string) (*storage.User, error)
	DeleteUser(ctx context.Context, userID string) error
}

type RoomStore interface {
	CreateRoom(ctx context.Context, nr storage.NewRoom) (*storage.Room, error)
	GetRoomByCode(ctx context.Context, code string) (*storage.Room, error)
	JoinRoom(ctx context.Context, roomID, userID, displayName string) (*storage.RoomMember, error)
	GetRoomMember(ctx context.Context, roomID, userID string) (*storage.RoomMember, error)
	ListRoomMembers(ctx context.Context, roomID string) ([]storage.RoomMember, error)
	ListMessagesUpTo(ctx context.Context, roomID string, maxPos int, limit int) ([]storage.Message, error)
	CloseRoom(ctx context.Context, roomID string) error
	AllowJoinAttempt(ctx context.Context, userID string, perMinute int) (bool, error)
}

// Store is everything the HTTP API reads and writes. *storage.Storage
// implements it.
type Store interface {
	storage.Repository
	AuthStore
	RoomStore
}

var _ Store = (*storage.Storage)(nil)

type GameService interface {
	ListGames(ctx context.Context, date time.Time) ([]sports.Game, error)
	GetGame(ctx context.Context, id string) (sports.Game, error)
}

// RoomCloser disconnects live viewers of a room.
type RoomCloser interface {
	CloseRoom(code string)
}
