package domain

import (
	"context"

	"github.com/sentinel-ops/casedesk/internal/shared/types"
)

// Repository defines the interface for case persistence. Implementations are
// bound to one store transaction.
type Repository interface {
	// NextID allocates the next case id. Allocation rolls back with the
	// transaction, so committed ids have no gaps.
	NextID(ctx context.Context) (types.ID, error)

	// Save inserts a new case with its notes
	Save(ctx context.Context, c *Case) error

	// FindByID returns the case or errors.NotFound. Inside a write
	// transaction the case stays locked until commit.
	FindByID(ctx context.Context, id types.ID) (*Case, error)

	// List returns all cases ordered by id
	List(ctx context.Context) ([]Case, error)

	// Update persists status, assignee and updatedAt
	Update(ctx context.Context, c *Case) error

	// AppendNote adds a note to the end of the case's log
	AppendNote(ctx context.Context, id types.ID, note Note) error

	// Delete removes the case and its notes or returns errors.NotFound
	Delete(ctx context.Context, id types.ID) error
}
