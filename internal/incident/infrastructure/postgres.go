package infrastructure

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/sentinel-ops/casedesk/internal/incident/domain"
	"github.com/sentinel-ops/casedesk/internal/shared/database"
	apperrors "github.com/sentinel-ops/casedesk/internal/shared/errors"
	"github.com/sentinel-ops/casedesk/internal/shared/types"
)

// PostgresRepository implements domain.Repository on one pgx transaction
type PostgresRepository struct {
	tx pgx.Tx
}

// NewPostgresRepository creates a new PostgreSQL incident repository
func NewPostgresRepository(tx pgx.Tx) *PostgresRepository {
	return &PostgresRepository{tx: tx}
}

const incidentColumns = `id, title, incident_type, description, affected_systems, severity, reporter_name, created_at, linked_case_id`

// NextID allocates the next incident id
func (r *PostgresRepository) NextID(ctx context.Context) (types.ID, error) {
	v, err := database.NextSequenceValue(ctx, r.tx, database.SequenceIncidents)
	return types.ID(v), err
}

// Save inserts an incident report
func (r *PostgresRepository) Save(ctx context.Context, report *domain.IncidentReport) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO casedesk.incidents (`+incidentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		report.ID, report.Title, report.Type, report.Description, report.AffectedSystems,
		report.Severity, report.ReporterName, report.CreatedAt, report.LinkedCaseID,
	)
	if database.IsUniqueViolation(err) {
		return apperrors.Invariant("incident %d or its case %d already recorded", report.ID, report.LinkedCaseID)
	}
	if err != nil {
		return apperrors.Wrap(err, "failed to save incident")
	}
	return nil
}

// FindByID finds an incident report by ID
func (r *PostgresRepository) FindByID(ctx context.Context, id types.ID) (*domain.IncidentReport, error) {
	report, err := scanIncident(r.tx.QueryRow(ctx,
		`SELECT `+incidentColumns+` FROM casedesk.incidents WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("incident", id.String())
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to find incident")
	}
	return report, nil
}

// List returns every incident report ordered by id
func (r *PostgresRepository) List(ctx context.Context) ([]domain.IncidentReport, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+incidentColumns+` FROM casedesk.incidents ORDER BY id`)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list incidents")
	}
	defer rows.Close()

	reports := []domain.IncidentReport{}
	for rows.Next() {
		report, err := scanIncident(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan incident")
		}
		reports = append(reports, *report)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to list incidents")
	}
	return reports, nil
}

func scanIncident(row pgx.Row) (*domain.IncidentReport, error) {
	report := &domain.IncidentReport{}
	err := row.Scan(
		&report.ID, &report.Title, &report.Type, &report.Description, &report.AffectedSystems,
		&report.Severity, &report.ReporterName, &report.CreatedAt, &report.LinkedCaseID,
	)
	if err != nil {
		return nil, err
	}
	return report, nil
}
