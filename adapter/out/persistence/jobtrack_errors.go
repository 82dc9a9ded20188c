package persistence

import (
	"errors"

	"jobtrack_server/core/port/out"

	"github.com/jackc/pgx/v5/pgconn"
)

// Common persistence errors. They alias the port sentinels so services can
// match them without importing this package.
var (
	ErrNotFound     = out.ErrNotFound
	ErrDuplicate    = out.ErrDuplicate
	ErrInvalidInput = errors.New("invalid input")
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
