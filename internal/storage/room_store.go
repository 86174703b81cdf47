package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	RoomStatusActive = "active"
	RoomStatusClosed = "closed"

	RoleHost   = "host"
	RoleViewer = "viewer"
)

type Room struct {
	ID             string    `json:"id"`
	Code           string    `json:"code"`
	GameID         string    `json:"gameId"`
	Title          string    `json:"title"`
	OwnerUserID    string    `json:"ownerUserId"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

type RoomMember struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	Role        string    `json:"role"`
	ProgressSec int       `json:"progressSec"`
	JoinedAt    time.Time `json:"joinedAt"`
}

type NewRoom struct {
	Code             string
	GameID           string
	Title            string
	OwnerUserID      string
	OwnerDisplayName string
}

// CreateRoom inserts the room and its host membership. A clash on the share
// code comes back as ErrCodeTaken so the caller can draw a new code.
func (s *Storage) CreateRoom(ctx context.Context, nr NewRoom) (r *Room, err error) {
	tx, err := s.PG.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	r = &Room{}
	err = tx.QueryRow(ctx, `
		INSERT INTO rooms (id, code, game_id, title, owner_user_id, last_activity_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING id, code, game_id, title, owner_user_id, status, created_at, last_activity_at
	`, uuid.NewString(), nr.Code, nr.GameID, nr.Title, nr.OwnerUserID).Scan(
		&r.ID, &r.Code, &r.GameID, &r.Title, &r.OwnerUserID, &r.Status, &r.CreatedAt, &r.LastActivityAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			err = fmt.Errorf("create room %s: %w", nr.Code, ErrCodeTaken)
		}
		return nil, err
	}

	if _, err = tx.Exec(ctx, `
		INSERT INTO room_members (room_id, user_id, display_name, role)
		VALUES ($1, $2, $3, 'host')
		ON CONFLICT (room_id, user_id) DO NOTHING
	`, r.ID, nr.OwnerUserID, nr.OwnerDisplayName); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// GetRoomByCode matches the canonical code exactly.
func (s *Storage) GetRoomByCode(ctx context.Context, code string) (*Room, error) {
	var r Room
	err := s.PG.QueryRow(ctx, `
		SELECT id, code, game_id, title, owner_user_id, status, created_at, last_activity_at
		FROM rooms
		WHERE code = $1
	`, code).Scan(&r.ID, &r.Code, &r.GameID, &r.Title, &r.OwnerUserID, &r.Status, &r.CreatedAt, &r.LastActivityAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Storage) TouchRoomActivity(ctx context.Context, roomID string) error {
	_, err := s.PG.Exec(ctx, `UPDATE rooms SET last_activity_at = now() WHERE id = $1`, roomID)
	return err
}

// JoinRoom adds the user as a viewer. Rejoining keeps role and progress and
// only refreshes the display name.
func (s *Storage) JoinRoom(ctx context.Context, roomID string, userID string, displayName string) (m *RoomMember, err error) {
	tx, err := s.PG.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var status string
	if err = tx.QueryRow(ctx, `SELECT status FROM rooms WHERE id=$1 FOR UPDATE`, roomID).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = ErrNotFound
		}
		return nil, err
	}
	if status != RoomStatusActive {
		err = ErrRoomClosed
		return nil, err
	}

	m = &RoomMember{}
	if err = tx.QueryRow(ctx, `
		INSERT INTO room_members (room_id, user_id, display_name, role)
		VALUES ($1, $2, $3, 'viewer')
		ON CONFLICT (room_id, user_id) DO UPDATE SET display_name = EXCLUDED.display_name
		RETURNING user_id, display_name, role, progress_sec, joined_at
	`, roomID, userID, displayName).Scan(&m.UserID, &m.DisplayName, &m.Role, &m.ProgressSec, &m.JoinedAt); err != nil {
		return nil, err
	}

	if _, err = tx.Exec(ctx, `UPDATE rooms SET last_activity_at = now() WHERE id=$1`, roomID); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Storage) GetRoomMember(ctx context.Context, roomID, userID string) (*RoomMember, error) {
	var m RoomMember
	err := s.PG.QueryRow(ctx, `
		SELECT user_id, display_name, role, progress_sec, joined_at
		FROM room_members
		WHERE room_id = $1 AND user_id = $2
	`, roomID, userID).Scan(&m.UserID, &m.DisplayName, &m.Role, &m.ProgressSec, &m.JoinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotRoomMember
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Storage) ListRoomMembers(ctx context.Context, roomID string) ([]RoomMember, error) {
	rows, err := s.PG.Query(ctx, `
		SELECT user_id, display_name, role, progress_sec, joined_at
		FROM room_members
		WHERE room_id = $1
		ORDER BY joined_at ASC
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []RoomMember{}
	for rows.Next() {
		var m RoomMember
		if err := rows.Scan(&m.UserID, &m.DisplayName, &m.Role, &m.ProgressSec, &m.JoinedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Storage) CloseRoom(ctx context.Context, roomID string) error {
	tag, err := s.PG.Exec(ctx, `
		UPDATE rooms SET status = 'closed', last_activity_at = now()
		WHERE id = $1
	`, roomID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
