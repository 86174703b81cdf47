package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const maxMessagePage = 200

type Message struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"roomId"`
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	Body        string    `json:"body"`
	PositionSec int       `json:"positionSec"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (s *Storage) InsertMessage(ctx context.Context, m Message) (*Message, error) {
	m.ID = uuid.NewString()
	err := s.PG.QueryRow(ctx, `
		INSERT INTO messages (id, room_id, user_id, display_name, body, position_sec)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, m.ID, m.RoomID, m.UserID, m.DisplayName, m.Body, m.PositionSec).Scan(&m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMessagesUpTo returns the newest messages a viewer at maxPos may see,
// oldest first.
func (s *Storage) ListMessagesUpTo(ctx context.Context, roomID string, maxPos int, limit int) ([]Message, error) {
	return s.listMessages(ctx, roomID, -1, maxPos, limit)
}

// ListMessagesBetween returns messages with fromPos < position <= toPos,
// oldest first. Used when a viewer moves forward.
func (s *Storage) ListMessagesBetween(ctx context.Context, roomID string, fromPos, toPos int, limit int) ([]Message, error) {
	if toPos <= fromPos {
		return []Message{}, nil
	}
	return s.listMessages(ctx, roomID, fromPos, toPos, limit)
}

func (s *Storage) listMessages(ctx context.Context, roomID string, fromExclusive, toInclusive, limit int) ([]Message, error) {
	if limit <= 0 || limit > maxMessagePage {
		limit = maxMessagePage
	}

	rows, err := s.PG.Query(ctx, `
		SELECT id, room_id, user_id, display_name, body, position_sec, created_at
		FROM (
			SELECT id, room_id, user_id, display_name, body, position_sec, created_at
			FROM messages
			WHERE room_id = $1 AND position_sec > $2 AND position_sec <= $3
			ORDER BY position_sec DESC, created_at DESC
			LIMIT $4
		) newest
		ORDER BY position_sec ASC, created_at ASC
	`, roomID, fromExclusive, toInclusive, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.UserID, &m.DisplayName, &m.Body, &m.PositionSec, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Storage) SetMemberProgress(ctx context.Context, roomID, userID string, progressSec int) error {
	tag, err := s.PG.Exec(ctx, `
		UPDATE room_members SET progress_sec = $3
		WHERE room_id = $1 AND user_id = $2
	`, roomID, userID, progressSec)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotRoomMember
	}
	return nil
}
