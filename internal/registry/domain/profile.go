package domain

import (
	"context"

	"github.com/sentinel-ops/casedesk/internal/auth"
	"github.com/sentinel-ops/casedesk/internal/shared/errors"
	"github.com/sentinel-ops/casedesk/internal/shared/types"
)

// OperatorProfile is a registered operator. Only Role ever changes after
// registration.
type OperatorProfile struct {
	Principal types.Principal `json:"principal"`
	Name      string          `json:"name"`
	Role      auth.Role       `json:"role"`
	CreatedAt types.Timestamp `json:"created_at"`

	// Position is the 1-based registration order
	Position int64 `json:"-"`
}

// NewOperatorProfile creates the profile for a self-registration. The
// operator holding position 1 bootstraps the registry as admin.
func NewOperatorProfile(principal types.Principal, name string, position int64, now types.Timestamp) (*OperatorProfile, error) {
	if principal.IsZero() {
		return nil, errors.Unauthenticated("anonymous caller")
	}
	if name == "" {
		return nil, errors.InvalidArgument("name", "name is required")
	}
	if position < 1 {
		return nil, errors.Invariant("registration position %d out of range", position)
	}

	role := auth.RoleAnalyst
	if position == 1 {
		role = auth.RoleAdmin
	}

	return &OperatorProfile{
		Principal: principal,
		Name:      name,
		Role:      role,
		CreatedAt: now,
		Position:  position,
	}, nil
}

// ChangeRole sets a new role and returns the previous one
func (p *OperatorProfile) ChangeRole(role auth.Role) (auth.Role, error) {
	if !role.IsValid() {
		return "", errors.InvalidArgument("role", "unknown role "+string(role))
	}
	previous := p.Role
	p.Role = role
	return previous, nil
}

// Caller builds the authorization view of this profile
func (p *OperatorProfile) Caller() auth.Caller {
	return auth.Caller{
		Principal:  p.Principal,
		Name:       p.Name,
		Role:       p.Role,
		Registered: true,
	}
}

// ResolveCaller looks up the principal's profile. Unregistered principals
// resolve to an unregistered caller, not an error.
func ResolveCaller(ctx context.Context, repo Repository, principal types.Principal) (auth.Caller, error) {
	if principal.IsZero() {
		return auth.Caller{}, nil
	}

	p, err := repo.FindByPrincipal(ctx, principal)
	if errors.Is(err, errors.ErrNotFound) {
		return auth.Caller{Principal: principal}, nil
	}
	if err != nil {
		return auth.Caller{}, err
	}
	return p.Caller(), nil
}
