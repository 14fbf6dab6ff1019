package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sentinel-ops/casedesk/internal/shared/database"
	apperrors "github.com/sentinel-ops/casedesk/internal/shared/errors"
)

const entryColumns = `sequence, event_id, timestamp, hash, prev_hash,
	actor, action, resource_type, resource_id, changes, correlation_id`

// PostgresRepository keeps the chain in casedesk.audit_entries so it
// survives restarts and is shared by every instance on the database.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a repository on pool
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Append links entry to the stored head under a transaction-scoped advisory
// lock. An event already recorded by another instance is skipped.
func (r *PostgresRepository) Append(ctx context.Context, entry *Entry) error {
	changes, err := json.Marshal(entry.Changes)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal changes")
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, database.LockAuditChain); err != nil {
			return apperrors.Wrap(err, "failed to lock audit chain")
		}

		var (
			prevSeq  int64
			prevHash string
		)
		err := tx.QueryRow(ctx, `
			SELECT sequence, hash FROM casedesk.audit_entries
			ORDER BY sequence DESC
			LIMIT 1`).Scan(&prevSeq, &prevHash)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return apperrors.Wrap(err, "failed to read audit chain head")
		}
		entry.chain(prevSeq, prevHash)

		_, err = tx.Exec(ctx, `
			INSERT INTO casedesk.audit_entries (`+entryColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (event_id) DO NOTHING`,
			entry.Sequence, entry.EventID, entry.Timestamp, entry.Hash, entry.PrevHash,
			entry.Actor, entry.Action, entry.ResourceType, entry.ResourceID, changes, entry.CorrelationID,
		)
		if err != nil {
			return apperrors.Wrap(err, "failed to append audit entry")
		}
		return nil
	})
}

// List returns matching entries, newest first
func (r *PostgresRepository) List(ctx context.Context, filter Filter) ([]Entry, error) {
	var conditions []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if filter.Actor != "" {
		add("actor", filter.Actor)
	}
	if filter.Action != "" {
		add("action", filter.Action)
	}
	if filter.ResourceType != "" {
		add("resource_type", filter.ResourceType)
	}
	if filter.ResourceID != "" {
		add("resource_id", filter.ResourceID)
	}

	query := `SELECT ` + entryColumns + ` FROM casedesk.audit_entries`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY sequence DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list audit entries")
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to list audit entries")
	}
	return out, nil
}

// Count returns the total number of entries
func (r *PostgresRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM casedesk.audit_entries`).Scan(&n); err != nil {
		return 0, apperrors.Wrap(err, "failed to count audit entries")
	}
	return n, nil
}

// VerifyChain streams the chain in sequence order and checks every link
func (r *PostgresRepository) VerifyChain(ctx context.Context) (VerifyResult, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM casedesk.audit_entries ORDER BY sequence`)
	if err != nil {
		return VerifyResult{}, apperrors.Wrap(err, "failed to query audit entries")
	}
	defer rows.Close()

	var v verifier
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return VerifyResult{}, err
		}
		if !v.check(e) {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return VerifyResult{}, apperrors.Wrap(err, "failed to verify audit chain")
	}
	return v.result(), nil
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var (
		e       Entry
		changes []byte
	)
	err := row.Scan(
		&e.Sequence, &e.EventID, &e.Timestamp, &e.Hash, &e.PrevHash,
		&e.Actor, &e.Action, &e.ResourceType, &e.ResourceID, &changes, &e.CorrelationID,
	)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to scan audit entry")
	}
	if len(changes) > 0 {
		if err := json.Unmarshal(changes, &e.Changes); err != nil {
			return nil, apperrors.Wrap(err, "failed to decode audit changes")
		}
	}
	e.Timestamp = e.Timestamp.UTC()
	return &e, nil
}
