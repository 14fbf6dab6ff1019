package domain

import (
	"context"

	"github.com/sentinel-ops/casedesk/internal/shared/errors"
	"github.com/sentinel-ops/casedesk/internal/shared/types"
)

// ReferenceValidator checks a principal that a mutation stores as a
// reference to another operator, such as a case assignee.
type ReferenceValidator interface {
	ValidateReference(ctx context.Context, repo Repository, principal types.Principal) error
}

// LenientReferences accepts any non-empty principal, registered or not.
type LenientReferences struct{}

func (LenientReferences) ValidateReference(_ context.Context, _ Repository, principal types.Principal) error {
	if principal.IsZero() {
		return errors.InvalidArgument("principal", "principal is required")
	}
	return nil
}

// StrictReferences requires the principal to have an operator profile.
type StrictReferences struct{}

func (StrictReferences) ValidateReference(ctx context.Context, repo Repository, principal types.Principal) error {
	if principal.IsZero() {
		return errors.InvalidArgument("principal", "principal is required")
	}
	if _, err := repo.FindByPrincipal(ctx, principal); err != nil {
		return err
	}
	return nil
}

// ReferenceValidatorFor returns the strict validator when strict is set
func ReferenceValidatorFor(strict bool) ReferenceValidator {
	if strict {
		return StrictReferences{}
	}
	return LenientReferences{}
}
