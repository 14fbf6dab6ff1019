package service

import (
	"context"
	"log/slog"

	"github.com/sentinel-ops/casedesk/internal/auth"
	"github.com/sentinel-ops/casedesk/internal/registry/domain"
	apperrors "github.com/sentinel-ops/casedesk/internal/shared/errors"
	"github.com/sentinel-ops/casedesk/internal/shared/events"
	"github.com/sentinel-ops/casedesk/internal/shared/metrics"
	"github.com/sentinel-ops/casedesk/internal/shared/types"
	"github.com/sentinel-ops/casedesk/internal/store"
)

// Service manages operator registration and roles
type Service struct {
	store store.Store
	clock *types.Clock
	bus   events.Publisher
	log   *slog.Logger
}

// NewService creates a registry service. bus may be nil.
func NewService(st store.Store, clock *types.Clock, bus events.Publisher, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store: st,
		clock: clock,
		bus:   bus,
		log:   log.With("service", "registry"),
	}
}

// RegisterSelf creates the caller's operator profile. The first operator
// ever registered becomes admin.
func (s *Service) RegisterSelf(ctx context.Context, principal types.Principal, name string) (*domain.OperatorProfile, error) {
	if err := auth.Enforce(auth.Caller{Principal: principal}, auth.OpRegisterSelf, auth.Target{}); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, apperrors.InvalidArgument("name", "name is required")
	}

	var profile *domain.OperatorProfile
	err := s.store.Update(ctx, func(tx store.Tx) error {
		repo := tx.Operators()

		position, err := repo.NextPosition(ctx)
		if err != nil {
			return err
		}

		// Checked after NextPosition so the lookup runs behind the
		// registration lock.
		if _, err := repo.FindByPrincipal(ctx, principal); err == nil {
			return apperrors.AlreadyExists("operator", principal.String())
		} else if !apperrors.Is(err, apperrors.ErrNotFound) {
			return err
		}

		profile, err = domain.NewOperatorProfile(principal, name, position, s.clock.Now())
		if err != nil {
			return err
		}
		return repo.Save(ctx, profile)
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordOperatorRegistered(string(profile.Role))
	s.log.InfoContext(ctx, "operator registered", "principal", principal, "role", profile.Role)
	events.PublishAll(ctx, s.bus, s.log, []events.Event{
		events.NewEvent(events.TypeOperatorJoined, "registry", profile.CreatedAt, map[string]any{
			"principal": principal,
			"role":      profile.Role,
		}).WithActor(principal),
	})
	return profile, nil
}

// GetProfile returns the target's profile and true, or false when the target
// is not registered. Callers may read their own profile; admins any profile.
func (s *Service) GetProfile(ctx context.Context, principal, target types.Principal) (*domain.OperatorProfile, bool, error) {
	var found *domain.OperatorProfile
	err := s.store.View(ctx, func(tx store.Tx) error {
		repo := tx.Operators()
		caller, err := domain.ResolveCaller(ctx, repo, principal)
		if err != nil {
			return err
		}
		if err := auth.Enforce(caller, auth.OpProfileRead, auth.Target{Owner: target}); err != nil {
			return err
		}

		p, err := repo.FindByPrincipal(ctx, target)
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		found = p
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return found, found != nil, nil
}

// MyProfile returns the caller's own profile
func (s *Service) MyProfile(ctx context.Context, principal types.Principal) (*domain.OperatorProfile, bool, error) {
	return s.GetProfile(ctx, principal, principal)
}

// ResolveCaller loads the caller's profile into an auth.Caller. Anonymous and
// unregistered principals resolve without error and are not Registered.
func (s *Service) ResolveCaller(ctx context.Context, principal types.Principal) (auth.Caller, error) {
	var caller auth.Caller
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		caller, err = domain.ResolveCaller(ctx, tx.Operators(), principal)
		return err
	})
	return caller, err
}

// CallerRole classifies the caller as admin, user or guest. Anonymous and
// unregistered callers are guests.
func (s *Service) CallerRole(ctx context.Context, principal types.Principal) (auth.AccessRole, error) {
	caller, err := s.ResolveCaller(ctx, principal)
	if err != nil {
		return "", err
	}
	return caller.AccessRole(), nil
}

// IsAdmin reports whether the caller is a registered admin
func (s *Service) IsAdmin(ctx context.Context, principal types.Principal) (bool, error) {
	role, err := s.CallerRole(ctx, principal)
	return role == auth.AccessAdmin, err
}

// ListProfiles returns every profile in registration order. Admin only.
func (s *Service) ListProfiles(ctx context.Context, principal types.Principal) ([]domain.OperatorProfile, error) {
	var profiles []domain.OperatorProfile
	err := s.store.View(ctx, func(tx store.Tx) error {
		repo := tx.Operators()
		caller, err := domain.ResolveCaller(ctx, repo, principal)
		if err != nil {
			return err
		}
		if err := auth.Enforce(caller, auth.OpProfileList, auth.Target{}); err != nil {
			return err
		}
		profiles, err = repo.List(ctx)
		return err
	})
	return profiles, err
}

// SetRole changes the target's role. Admin only. Admins may demote
// themselves, including the last admin.
func (s *Service) SetRole(ctx context.Context, principal, target types.Principal, role auth.Role) error {
	var previous auth.Role
	err := s.store.Update(ctx, func(tx store.Tx) error {
		repo := tx.Operators()
		caller, err := domain.ResolveCaller(ctx, repo, principal)
		if err != nil {
			return err
		}
		if err := auth.Enforce(caller, auth.OpRoleSet, auth.Target{Owner: target}); err != nil {
			return err
		}

		p, err := repo.FindByPrincipal(ctx, target)
		if err != nil {
			return err
		}
		previous, err = p.ChangeRole(role)
		if err != nil {
			return err
		}
		return repo.UpdateRole(ctx, target, role)
	})
	if err != nil {
		return err
	}

	metrics.RecordRoleChange(string(previous), string(role))
	if principal == target && previous == auth.RoleAdmin && role != auth.RoleAdmin {
		s.log.WarnContext(ctx, "admin demoted themselves", "principal", principal, "role", role)
	}
	events.PublishAll(ctx, s.bus, s.log, []events.Event{
		events.NewEvent(events.TypeOperatorRoleSet, "registry", s.clock.Now(), map[string]any{
			"principal": target,
			"previous":  previous,
			"role":      role,
		}).WithActor(principal),
	})
	return nil
}
