package domain

import (
	"context"

	"github.com/sentinel-ops/casedesk/internal/auth"
	"github.com/sentinel-ops/casedesk/internal/shared/types"
)

// Repository defines the interface for operator profile persistence
type Repository interface {
	// NextPosition reserves the next registration position. Concurrent
	// registrations are serialized on it.
	NextPosition(ctx context.Context) (int64, error)

	// Save inserts a profile or returns errors.AlreadyExists
	Save(ctx context.Context, p *OperatorProfile) error

	// FindByPrincipal returns the profile or errors.NotFound
	FindByPrincipal(ctx context.Context, principal types.Principal) (*OperatorProfile, error)

	// List returns all profiles in registration order
	List(ctx context.Context) ([]OperatorProfile, error)

	// UpdateRole changes a profile's role or returns errors.NotFound
	UpdateRole(ctx context.Context, principal types.Principal, role auth.Role) error
}
