package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type User struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	CreatedAt   time.Time `json:"createdAt"`
	LastSeenAt  time.Time `json:"lastSeenAt"`
}

func (s *Storage) CreateGuestUserAndSession(
	ctx context.Context,
	displayName string,
	refreshTokenHash []byte,
	expiresAt time.Time,
	userAgent string,
	ip string,
) (userID string, sessionID string, err error) {

	tx, err := s.PG.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", "", err
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	userID = uuid.NewString()
	if _, err = tx.Exec(ctx, `
		INSERT INTO users (id, display_name) VALUES ($1, $2)
	`, userID, displayName); err != nil {
		return "", "", err
	}

	sessionID = uuid.NewString()
	if _, err = tx.Exec(ctx, `
		INSERT INTO refresh_sessions (id, user_id, token_hash, expires_at, user_agent, ip)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, sessionID, userID, refreshTokenHash, expiresAt, userAgent, ip); err != nil {
		return "", "", err
	}

	if err = tx.Commit(ctx); err != nil {
		return "", "", err
	}

	return userID, sessionID, nil
}

func (s *Storage) GetUser(ctx context.Context, userID string) (*User, error) {
	var u User
	err := s.PG.QueryRow(ctx, `
		SELECT id, display_name, created_at, last_seen_at
		FROM users
		WHERE id = $1
	`, userID).Scan(&u.ID, &u.DisplayName, &u.CreatedAt, &u.LastSeenAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Storage) RotateRefreshSession(
	ctx context.Context,
	oldHash []byte,
	newHash []byte,
	newExpiresAt time.Time,
	userAgent string,
	ip string,
) (newSessionID string, userID string, err error) {

	tx, err := s.PG.Begin(ctx)
	if err != nil {
		return "", "", err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var expiresAt time.Time
	var revokedAt *time.Time
	if err = tx.QueryRow(ctx, `
		SELECT user_id, expires_at, revoked_at
		FROM refresh_sessions
		WHERE token_hash = $1
		FOR UPDATE
	`, oldHash).Scan(&userID, &expiresAt, &revokedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = ErrSessionGone
		}
		return "", "", err
	}

	now := time.Now().UTC()
	if revokedAt != nil || now.After(expiresAt) {
		err = ErrSessionGone
		return "", "", err
	}

	if _, err = tx.Exec(ctx, `
		UPDATE refresh_sessions
		SET revoked_at = now(), last_used_at = now()
		WHERE token_hash = $1
	`, oldHash); err != nil {
		return "", "", err
	}

	newSessionID = uuid.NewString()
	if _, err = tx.Exec(ctx, `
		INSERT INTO refresh_sessions (id, user_id, token_hash, expires_at, user_agent, ip, last_used_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
	`, newSessionID, userID, newHash, newExpiresAt, userAgent, ip); err != nil {
		return "", "", err
	}

	if _, err = tx.Exec(ctx, `UPDATE users SET last_seen_at = now() WHERE id = $1`, userID); err != nil {
		return "", "", err
	}

	if err = tx.Commit(ctx); err != nil {
		return "", "", err
	}

	return newSessionID, userID, nil
}

func (s *Storage) RevokeRefreshSession(ctx context.Context, tokenHash []byte) error {
	_, err := s.PG.Exec(ctx, `
		UPDATE refresh_sessions
		SET revoked_at = now()
		WHERE token_hash = $1 AND revoked_at IS NULL
	`, tokenHash)
	return err
}

// DeleteUser removes a user and, through ON DELETE CASCADE, their sessions,
// memberships, messages and owned rooms.
func (s *Storage) DeleteUser(ctx context.Context, userID string) error {
	tag, err := s.PG.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
