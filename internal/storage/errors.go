package storage

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrCodeTaken     = errors.New("share code already in use")
	ErrRoomClosed    = errors.New("room is closed")
	ErrNotRoomMember = errors.New("not a room member")
	ErrSessionGone   = errors.New("refresh session expired or revoked")
)

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
