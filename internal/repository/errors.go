package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/quocanhngo/talkcore/internal/apperr"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// notFoundOr maps gorm's missing-row error to a NotFound of the given entity
// and wraps anything else as internal.
func notFoundOr(err error, entity string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("%s not found", entity)
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperr.Internal(err, "load %s", entity)
}

// wrap passes typed errors through and marks driver failures as internal
func wrap(err error, op string) error {
	if err == nil {
		return nil
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperr.Internal(err, "%s", op)
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
