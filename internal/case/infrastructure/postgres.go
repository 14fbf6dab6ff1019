package infrastructure

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/sentinel-ops/casedesk/internal/case/domain"
	"github.com/sentinel-ops/casedesk/internal/shared/database"
	apperrors "github.com/sentinel-ops/casedesk/internal/shared/errors"
	"github.com/sentinel-ops/casedesk/internal/shared/types"
)

// PostgresRepository implements domain.Repository on one pgx transaction
type PostgresRepository struct {
	tx        pgx.Tx
	forUpdate bool
}

// NewPostgresRepository creates a repository bound to tx. With forUpdate set,
// FindByID locks the case row until the transaction ends.
func NewPostgresRepository(tx pgx.Tx, forUpdate bool) *PostgresRepository {
	return &PostgresRepository{tx: tx, forUpdate: forUpdate}
}

const caseColumns = `id, title, description, severity, status, reporter, assigned_analyst, created_at, updated_at`

// NextID allocates the next case id
func (r *PostgresRepository) NextID(ctx context.Context) (types.ID, error) {
	v, err := database.NextSequenceValue(ctx, r.tx, database.SequenceCases)
	return types.ID(v), err
}

// Save inserts a new case with its notes
func (r *PostgresRepository) Save(ctx context.Context, c *domain.Case) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO casedesk.cases (`+caseColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.Title, c.Description, c.Severity, c.Status,
		c.Reporter, c.AssignedAnalyst, c.CreatedAt, c.UpdatedAt,
	)
	if database.IsUniqueViolation(err) {
		return apperrors.Invariant("case id %d already in use", c.ID)
	}
	if err != nil {
		return apperrors.Wrap(err, "failed to save case")
	}

	for i, n := range c.Notes {
		if err := r.insertNote(ctx, c.ID, i+1, n); err != nil {
			return err
		}
	}
	return nil
}

// FindByID finds a case by ID with its notes
func (r *PostgresRepository) FindByID(ctx context.Context, id types.ID) (*domain.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM casedesk.cases WHERE id = $1`
	if r.forUpdate {
		query += ` FOR UPDATE`
	}

	c, err := scanCase(r.tx.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("case", id.String())
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to find case")
	}

	notes, err := r.getNotes(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Notes = notes

	return c, nil
}

// List returns every case ordered by id
func (r *PostgresRepository) List(ctx context.Context) ([]domain.Case, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+caseColumns+` FROM casedesk.cases ORDER BY id`)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list cases")
	}
	defer rows.Close()

	cases := []domain.Case{}
	index := make(map[types.ID]int)
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan case")
		}
		c.Notes = []domain.Note{}
		index[c.ID] = len(cases)
		cases = append(cases, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to list cases")
	}

	noteRows, err := r.tx.Query(ctx, `
		SELECT case_id, content, author, created_at
		FROM casedesk.case_notes
		ORDER BY case_id, position`)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list notes")
	}
	defer noteRows.Close()

	for noteRows.Next() {
		var caseID types.ID
		var n domain.Note
		if err := noteRows.Scan(&caseID, &n.Content, &n.Author, &n.Timestamp); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan note")
		}
		if i, ok := index[caseID]; ok {
			cases[i].Notes = append(cases[i].Notes, n)
		}
	}
	if err := noteRows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to list notes")
	}

	return cases, nil
}

// Update persists status, assignee and updatedAt
func (r *PostgresRepository) Update(ctx context.Context, c *domain.Case) error {
	result, err := r.tx.Exec(ctx, `
		UPDATE casedesk.cases SET
			status = $2, assigned_analyst = $3, updated_at = $4
		WHERE id = $1`,
		c.ID, c.Status, c.AssignedAnalyst, c.UpdatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update case")
	}
	if result.RowsAffected() == 0 {
		return apperrors.NotFound("case", c.ID.String())
	}
	return nil
}

// AppendNote adds a note after the case's last note
func (r *PostgresRepository) AppendNote(ctx context.Context, id types.ID, note domain.Note) error {
	var position int
	err := r.tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(position), 0) + 1 FROM casedesk.case_notes WHERE case_id = $1`, id,
	).Scan(&position)
	if err != nil {
		return apperrors.Wrap(err, "failed to position note")
	}
	return r.insertNote(ctx, id, position, note)
}

// Delete deletes a case; notes go with it
func (r *PostgresRepository) Delete(ctx context.Context, id types.ID) error {
	result, err := r.tx.Exec(ctx, `DELETE FROM casedesk.cases WHERE id = $1`, id)
	if err != nil {
		return apperrors.Wrap(err, "failed to delete case")
	}
	if result.RowsAffected() == 0 {
		return apperrors.NotFound("case", id.String())
	}
	return nil
}

// --- Note operations ---

func (r *PostgresRepository) insertNote(ctx context.Context, caseID types.ID, position int, n domain.Note) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO casedesk.case_notes (case_id, position, content, author, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		caseID, position, n.Content, n.Author, n.Timestamp,
	)
	if database.IsUniqueViolation(err) {
		return apperrors.Invariant("note %d of case %d already written", position, caseID)
	}
	if err != nil {
		return apperrors.Wrap(err, "failed to save note")
	}
	return nil
}

func (r *PostgresRepository) getNotes(ctx context.Context, caseID types.ID) ([]domain.Note, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT content, author, created_at
		FROM casedesk.case_notes
		WHERE case_id = $1
		ORDER BY position`, caseID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get notes")
	}
	defer rows.Close()

	notes := []domain.Note{}
	for rows.Next() {
		var n domain.Note
		if err := rows.Scan(&n.Content, &n.Author, &n.Timestamp); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan note")
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to get notes")
	}
	return notes, nil
}

func scanCase(row pgx.Row) (*domain.Case, error) {
	c := &domain.Case{}
	err := row.Scan(
		&c.ID, &c.Title, &c.Description, &c.Severity, &c.Status,
		&c.Reporter, &c.AssignedAnalyst, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}
