package infrastructure

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/sentinel-ops/casedesk/internal/auth"
	"github.com/sentinel-ops/casedesk/internal/registry/domain"
	"github.com/sentinel-ops/casedesk/internal/shared/database"
	apperrors "github.com/sentinel-ops/casedesk/internal/shared/errors"
	"github.com/sentinel-ops/casedesk/internal/shared/types"
)

// PostgresRepository implements domain.Repository on one pgx transaction
type PostgresRepository struct {
	tx pgx.Tx
}

// NewPostgresRepository creates a new PostgreSQL operator repository
func NewPostgresRepository(tx pgx.Tx) *PostgresRepository {
	return &PostgresRepository{tx: tx}
}

// NextPosition reserves the next registration position. The sequence row
// lock serializes registrations until the transaction ends.
func (r *PostgresRepository) NextPosition(ctx context.Context) (int64, error) {
	return database.NextSequenceValue(ctx, r.tx, database.SequenceOperators)
}

// Save inserts a new operator profile
func (r *PostgresRepository) Save(ctx context.Context, p *domain.OperatorProfile) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO casedesk.operators (principal, name, role, position, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		p.Principal, p.Name, p.Role, p.Position, p.CreatedAt,
	)
	if database.IsUniqueViolation(err) {
		return apperrors.AlreadyExists("operator", p.Principal.String())
	}
	if err != nil {
		return apperrors.Wrap(err, "failed to save operator")
	}
	return nil
}

// FindByPrincipal finds an operator profile by principal
func (r *PostgresRepository) FindByPrincipal(ctx context.Context, principal types.Principal) (*domain.OperatorProfile, error) {
	p := &domain.OperatorProfile{}
	err := r.tx.QueryRow(ctx, `
		SELECT principal, name, role, position, created_at
		FROM casedesk.operators
		WHERE principal = $1`, principal,
	).Scan(&p.Principal, &p.Name, &p.Role, &p.Position, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("operator", principal.String())
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to find operator")
	}
	return p, nil
}

// List returns all operator profiles in registration order
func (r *PostgresRepository) List(ctx context.Context) ([]domain.OperatorProfile, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT principal, name, role, position, created_at
		FROM casedesk.operators
		ORDER BY position`)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list operators")
	}
	defer rows.Close()

	profiles := []domain.OperatorProfile{}
	for rows.Next() {
		var p domain.OperatorProfile
		if err := rows.Scan(&p.Principal, &p.Name, &p.Role, &p.Position, &p.CreatedAt); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan operator")
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to list operators")
	}
	return profiles, nil
}

// UpdateRole changes an operator's role
func (r *PostgresRepository) UpdateRole(ctx context.Context, principal types.Principal, role auth.Role) error {
	result, err := r.tx.Exec(ctx,
		`UPDATE casedesk.operators SET role = $2 WHERE principal = $1`,
		principal, role,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update operator role")
	}
	if result.RowsAffected() == 0 {
		return apperrors.NotFound("operator", principal.String())
	}
	return nil
}
