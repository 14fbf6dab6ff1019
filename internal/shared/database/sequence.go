package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	apperrors "github.com/sentinel-ops/casedesk/internal/shared/errors"
)

// Sequence names in casedesk.id_sequences
const (
	SequenceCases     = "cases"
	SequenceIncidents = "incidents"
	SequenceOperators = "operators"
)

// Advisory lock keys. The values are arbitrary but must not collide with
// other applications sharing the database.
const (
	LockMigrations int64 = 0x63617365_0001
	LockAuditChain int64 = 0x63617365_0002
)

// NextSequenceValue increments a named counter inside tx and returns the new
// value. The counter row stays locked until tx ends, so concurrent
// allocators queue behind each other and a rollback leaves no gap.
func NextSequenceValue(ctx context.Context, tx pgx.Tx, name string) (int64, error) {
	var value int64
	err := tx.QueryRow(ctx,
		`UPDATE casedesk.id_sequences SET value = value + 1 WHERE name = $1 RETURNING value`,
		name,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, apperrors.Invariant("sequence %q is not provisioned", name)
	}
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to allocate "+name+" id")
	}
	return value, nil
}

// IsUniqueViolation reports whether err is a PostgreSQL unique_violation
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
