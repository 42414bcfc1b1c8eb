package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// ErrVersionConflict means a compare-and-set update matched no row: the trip changed
	// since it was read, left the active state, or no longer has enough capacity.
	ErrVersionConflict = errors.New("version_conflict")
	// ErrDuplicateActive means the (request, trip) pair already has a pending or accepted match.
	ErrDuplicateActive = errors.New("duplicate_active_match")
)

func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == 1062 {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	return false
}
