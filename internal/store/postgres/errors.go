package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/wolfeidau/assetplane/internal/store"
)

// classifyConnError maps a connection/validation failure for a tenant store
// to the registry's retry taxonomy. Store-missing and privilege errors get
// the one-shot provision-and-retry path; everything else during dialing is
// treated as the store being unreachable.
func classifyConnError(err error, storeName string) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.InvalidCatalogName:
			// The physical database does not exist.
			return fmt.Errorf("%w: store %s does not exist", store.ErrStoreUnavailable, storeName)

		case pgerrcode.InvalidAuthorizationSpecification,
			pgerrcode.InvalidPassword,
			pgerrcode.InsufficientPrivilege:
			return fmt.Errorf("%w: store %s: %s", store.ErrAccessDenied, storeName, pgErr.Message)
		}
	}

	return fmt.Errorf("%w: store %s: %v", store.ErrStoreUnavailable, storeName, err)
}

// mapPostgresError maps PostgreSQL-specific errors raised by row operations
// to sentinel errors. Returns the original error if it's not a PostgreSQL
// error or doesn't match known patterns.
func mapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		return fmt.Errorf("unique constraint violation: %s: %w", pgErr.ConstraintName, err)

	case pgerrcode.UndefinedTable:
		return fmt.Errorf("%w: relation missing: %s", store.ErrStoreUnavailable, pgErr.Message)

	case pgerrcode.ConnectionException,
		pgerrcode.ConnectionDoesNotExist,
		pgerrcode.ConnectionFailure,
		pgerrcode.CannotConnectNow,
		pgerrcode.SQLClientUnableToEstablishSQLConnection:
		return fmt.Errorf("%w: %v", store.ErrStoreUnavailable, err)

	case pgerrcode.InsufficientPrivilege:
		return fmt.Errorf("%w: %s", store.ErrAccessDenied, pgErr.Message)

	case pgerrcode.QueryCanceled:
		return fmt.Errorf("query canceled: %w", err)

	default:
		return fmt.Errorf("postgres error [%s]: %s: %w", pgErr.Code, pgErr.Message, err)
	}
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// isDuplicateObject reports whether err is a duplicate database/type error,
// raised when two provisioning runs race on the same CREATE.
func isDuplicateObject(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgerrcode.DuplicateObject || pgErr.Code == pgerrcode.DuplicateDatabase || pgErr.Code == pgerrcode.DuplicateTable
}
