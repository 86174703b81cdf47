package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JsotoSoftware/watch-party-backend/internal/sharecode"
	"github.com/JsotoSoftware/watch-party-backend/internal/sports"
)

func setupTestStorage(t *testing.T) *Storage {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set, skipping PostgreSQL integration test")
	}
	redisAddr := os.Getenv("TEST_REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	ctx := context.Background()
	s, err := New(ctx, dsn, redisAddr, "")
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	// a second run must be a no-op
	require.NoError(t, s.Migrate(ctx))

	_, err = s.PG.Exec(ctx, `TRUNCATE messages, room_members, rooms, refresh_sessions, users CASCADE`)
	require.NoError(t, err)

	t.Cleanup(s.Close)
	return s
}

func newGuest(t *testing.T, s *Storage, name string) string {
	t.Helper()
	uid, _, err := s.CreateGuestUserAndSession(context.Background(), name,
		[]byte(name+"-hash"), time.Now().Add(time.Hour), "test", "127.0.0.1")
	require.NoError(t, err)
	return uid
}

func TestStorage_RoomLifecycle(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()
	host := newGuest(t, s, "host")
	viewer := newGuest(t, s, "viewer")

	code := sharecode.Generate()
	room, err := s.CreateRoom(ctx, NewRoom{Code: code, GameID: "g1", Title: "Bears game", OwnerUserID: host, OwnerDisplayName: "Host"})
	require.NoError(t, err)
	assert.Equal(t, RoomStatusActive, room.Status)

	_, err = s.CreateRoom(ctx, NewRoom{Code: code, GameID: "g2", OwnerUserID: host, OwnerDisplayName: "Host"})
	assert.ErrorIs(t, err, ErrCodeTaken)

	got, err := s.GetRoomByCode(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, room.ID, got.ID)

	_, err = s.GetRoomByCode(ctx, sharecode.Format(code))
	assert.ErrorIs(t, err, ErrNotFound)

	m, err := s.JoinRoom(ctx, room.ID, viewer, "Viewer")
	require.NoError(t, err)
	assert.Equal(t, RoleViewer, m.Role)

	require.NoError(t, s.SetMemberProgress(ctx, room.ID, viewer, 120))
	m, err = s.JoinRoom(ctx, room.ID, viewer, "Renamed")
	require.NoError(t, err)
	assert.Equal(t, 120, m.ProgressSec)
	assert.Equal(t, "Renamed", m.DisplayName)

	members, err := s.ListRoomMembers(ctx, room.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)

	require.NoError(t, s.TouchRoomActivity(ctx, room.ID))
	touched, err := s.GetRoomByCode(ctx, code)
	require.NoError(t, err)
	assert.False(t, touched.LastActivityAt.Before(got.LastActivityAt))

	require.NoError(t, s.CloseRoom(ctx, room.ID))
	_, err = s.JoinRoom(ctx, room.ID, viewer, "Viewer")
	assert.ErrorIs(t, err, ErrRoomClosed)
}

func TestStorage_MessagesBySpoilerPosition(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()
	host := newGuest(t, s, "host")

	room, err := s.CreateRoom(ctx, NewRoom{Code: sharecode.Generate(), GameID: "g1", OwnerUserID: host, OwnerDisplayName: "Host"})
	require.NoError(t, err)

	for _, pos := range []int{10, 50, 90, 300} {
		_, err := s.InsertMessage(ctx, Message{RoomID: room.ID, UserID: host, DisplayName: "Host", Body: "hi", PositionSec: pos})
		require.NoError(t, err)
	}

	upTo, err := s.ListMessagesUpTo(ctx, room.ID, 90, 0)
	require.NoError(t, err)
	require.Len(t, upTo, 3)
	assert.Equal(t, 10, upTo[0].PositionSec)
	assert.Equal(t, 90, upTo[2].PositionSec)

	between, err := s.ListMessagesBetween(ctx, room.ID, 50, 300, 0)
	require.NoError(t, err)
	require.Len(t, between, 2)
	assert.Equal(t, 90, between[0].PositionSec)

	newest, err := s.ListMessagesUpTo(ctx, room.ID, 1000, 1)
	require.NoError(t, err)
	require.Len(t, newest, 1)
	assert.Equal(t, 300, newest[0].PositionSec)
}

func TestStorage_RotateAndDeleteUser(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()
	uid := newGuest(t, s, "alice")

	_, rotatedFor, err := s.RotateRefreshSession(ctx, []byte("alice-hash"), []byte("alice-hash-2"), time.Now().Add(time.Hour), "test", "")
	require.NoError(t, err)
	assert.Equal(t, uid, rotatedFor)

	_, _, err = s.RotateRefreshSession(ctx, []byte("alice-hash"), []byte("alice-hash-3"), time.Now().Add(time.Hour), "test", "")
	assert.ErrorIs(t, err, ErrSessionGone)

	require.NoError(t, s.DeleteUser(ctx, uid))
	assert.ErrorIs(t, s.DeleteUser(ctx, uid), ErrNotFound)
	_, err = s.GetUser(ctx, uid)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStorage_GamesCacheAndThrottle(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()
	if err := s.Redis.Ping(ctx).Err(); err != nil {
		t.Skip("redis not reachable")
	}
	day := "1999-01-01"
	s.Redis.Del(ctx, gamesKey(day))

	_, ok, err := s.CachedGames(ctx, day)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.CacheGames(ctx, day, []sports.Game{{ID: "g1"}}, time.Minute))
	games, ok, err := s.CachedGames(ctx, day)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "g1", games[0].ID)

	user := "throttle-" + sharecode.Generate()
	for range 3 {
		allowed, err := s.AllowJoinAttempt(ctx, user, 3)
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	allowed, err := s.AllowJoinAttempt(ctx, user, 3)
	require.NoError(t, err)
	assert.False(t, allowed)
}
