package domain

import (
	"context"

	"github.com/sentinel-ops/casedesk/internal/shared/types"
)

// Repository defines the interface for incident report persistence
type Repository interface {
	// NextID allocates the next incident id, independent of case ids
	NextID(ctx context.Context) (types.ID, error)
	Save(ctx context.Context, r *IncidentReport) error
	FindByID(ctx context.Context, id types.ID) (*IncidentReport, error)
	List(ctx context.Context) ([]IncidentReport, error)
}
