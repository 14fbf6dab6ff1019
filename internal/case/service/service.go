// Package service implements the case store operations on top of the
// transactional store.
package service

import (
	"context"
	"log/slog"

	"github.com/sentinel-ops/casedesk/internal/auth"
	"github.com/sentinel-ops/casedesk/internal/case/domain"
	registrydomain "github.com/sentinel-ops/casedesk/internal/registry/domain"
	apperrors "github.com/sentinel-ops/casedesk/internal/shared/errors"
	"github.com/sentinel-ops/casedesk/internal/shared/events"
	"github.com/sentinel-ops/casedesk/internal/shared/metrics"
	"github.com/sentinel-ops/casedesk/internal/shared/types"
	"github.com/sentinel-ops/casedesk/internal/store"
)

// Case creation sources for metrics
const (
	SourceDirect   = "direct"
	SourceIncident = "incident"
)

// Service runs case operations for a calling principal
type Service struct {
	store store.Store
	clock *types.Clock
	bus   events.Publisher
	refs  registrydomain.ReferenceValidator
	log   *slog.Logger
}

// Option configures a Service
type Option func(*Service)

// WithPublisher publishes case events after each commit
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.bus = p }
}

// WithReferenceValidator sets the check applied to assignees
func WithReferenceValidator(v registrydomain.ReferenceValidator) Option {
	return func(s *Service) { s.refs = v }
}

// WithLogger sets the service logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// NewService creates a case service
func NewService(st store.Store, clock *types.Clock, opts ...Option) *Service {
	s := &Service{
		store: st,
		clock: clock,
		refs:  registrydomain.LenientReferences{},
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("service", "case")
	return s
}

// CreateCase opens a new case reported by the caller and returns its id
func (s *Service) CreateCase(ctx context.Context, principal types.Principal, title, description string, severity domain.Severity) (types.ID, error) {
	var created *domain.Case
	err := s.store.Update(ctx, func(tx store.Tx) error {
		caller, err := registrydomain.ResolveCaller(ctx, tx.Operators(), principal)
		if err != nil {
			return err
		}
		created, err = s.CreateInTx(ctx, tx, caller, title, description, severity)
		return err
	})
	if err != nil {
		return 0, err
	}

	metrics.RecordCaseCreated(string(severity), SourceDirect)
	s.publish(ctx, created)
	return created.ID, nil
}

// CreateInTx creates a case inside a caller-owned transaction. Events stay
// pending on the returned case until the caller publishes them with
// CaseEvents after commit.
func (s *Service) CreateInTx(ctx context.Context, tx store.Tx, caller auth.Caller, title, description string, severity domain.Severity) (*domain.Case, error) {
	if err := auth.Enforce(caller, auth.OpCaseCreate, auth.Target{}); err != nil {
		return nil, err
	}
	if err := domain.ValidateDraft(title, description, severity); err != nil {
		return nil, err
	}

	id, err := tx.Cases().NextID(ctx)
	if err != nil {
		return nil, err
	}

	c, err := domain.NewCase(id, title, description, severity, caller.Principal, s.clock.Now())
	if err != nil {
		return nil, err
	}

	if err := tx.Cases().Save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// GetCaseByID returns the case and true, or false when no case has the id
func (s *Service) GetCaseByID(ctx context.Context, principal types.Principal, id types.ID) (*domain.Case, bool, error) {
	var found *domain.Case
	err := s.store.View(ctx, func(tx store.Tx) error {
		if err := s.authorize(ctx, tx, principal, auth.OpCaseRead); err != nil {
			return err
		}
		c, err := tx.Cases().FindByID(ctx, id)
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		found = c
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return found, found != nil, nil
}

// GetAllCases returns every case ordered by id
func (s *Service) GetAllCases(ctx context.Context, principal types.Principal) ([]domain.Case, error) {
	var cases []domain.Case
	err := s.store.View(ctx, func(tx store.Tx) error {
		if err := s.authorize(ctx, tx, principal, auth.OpCaseRead); err != nil {
			return err
		}
		var err error
		cases, err = tx.Cases().List(ctx)
		return err
	})
	return cases, err
}

// UpdateCaseStatus moves a case to any status
func (s *Service) UpdateCaseStatus(ctx context.Context, principal types.Principal, id types.ID, status domain.CaseStatus) error {
	var (
		c    *domain.Case
		from domain.CaseStatus
	)
	err := s.store.Update(ctx, func(tx store.Tx) error {
		if err := s.authorize(ctx, tx, principal, auth.OpCaseStatus); err != nil {
			return err
		}

		var err error
		c, err = s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		from = c.Status

		if err := c.UpdateStatus(status, principal, s.clock.Now()); err != nil {
			return err
		}
		return tx.Cases().Update(ctx, c)
	})
	if err != nil {
		return err
	}

	metrics.RecordCaseStatusChange(string(from), string(status))
	s.publish(ctx, c)
	return nil
}

// AssignCase sets the analyst working a case. Admin only.
func (s *Service) AssignCase(ctx context.Context, principal types.Principal, id types.ID, analyst types.Principal) error {
	var c *domain.Case
	err := s.store.Update(ctx, func(tx store.Tx) error {
		if err := s.authorize(ctx, tx, principal, auth.OpCaseAssign); err != nil {
			return err
		}
		if err := s.refs.ValidateReference(ctx, tx.Operators(), analyst); err != nil {
			return err
		}

		var err error
		c, err = s.load(ctx, tx, id)
		if err != nil {
			return err
		}

		if err := c.Assign(analyst, principal, s.clock.Now()); err != nil {
			return err
		}
		return tx.Cases().Update(ctx, c)
	})
	if err != nil {
		return err
	}

	s.publish(ctx, c)
	return nil
}

// AddNoteToCase appends a note authored under the caller's display name
func (s *Service) AddNoteToCase(ctx context.Context, principal types.Principal, id types.ID, content string) error {
	var c *domain.Case
	err := s.store.Update(ctx, func(tx store.Tx) error {
		caller, err := registrydomain.ResolveCaller(ctx, tx.Operators(), principal)
		if err != nil {
			return err
		}
		if err := auth.Enforce(caller, auth.OpCaseNote, auth.Target{}); err != nil {
			return err
		}

		c, err = s.load(ctx, tx, id)
		if err != nil {
			return err
		}

		note, err := c.AddNote(content, caller.Name, principal, s.clock.Now())
		if err != nil {
			return err
		}
		if err := tx.Cases().AppendNote(ctx, id, note); err != nil {
			return err
		}
		return tx.Cases().Update(ctx, c)
	})
	if err != nil {
		return err
	}

	metrics.RecordCaseNoteAdded()
	s.publish(ctx, c)
	return nil
}

// DeleteCase removes a case and its notes. Admin only.
func (s *Service) DeleteCase(ctx context.Context, principal types.Principal, id types.ID) error {
	var c *domain.Case
	err := s.store.Update(ctx, func(tx store.Tx) error {
		if err := s.authorize(ctx, tx, principal, auth.OpCaseDelete); err != nil {
			return err
		}

		var err error
		c, err = s.load(ctx, tx, id)
		if err != nil {
			return err
		}

		c.MarkDeleted(principal, s.clock.Now())
		return tx.Cases().Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	metrics.RecordCaseDeleted()
	s.publish(ctx, c)
	return nil
}

// CaseEvents drains the pending domain events of c as bus events
func CaseEvents(c *domain.Case) []events.Event {
	pending := c.GetDomainEvents()
	out := make([]events.Event, 0, len(pending))
	for _, e := range pending {
		data := map[string]any{"case_id": e.CaseID}
		for k, v := range e.Data {
			data[k] = v
		}
		out = append(out, events.NewEvent("case."+string(e.Type), "case", e.Timestamp, data).WithActor(e.Actor))
	}
	return out
}

func (s *Service) authorize(ctx context.Context, tx store.Tx, principal types.Principal, op auth.Operation) error {
	caller, err := registrydomain.ResolveCaller(ctx, tx.Operators(), principal)
	if err != nil {
		return err
	}
	return auth.Enforce(caller, op, auth.Target{})
}

// load fetches a case for mutation and moves the clock past its last update
func (s *Service) load(ctx context.Context, tx store.Tx, id types.ID) (*domain.Case, error) {
	c, err := tx.Cases().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.clock.Observe(c.UpdatedAt)
	return c, nil
}

func (s *Service) publish(ctx context.Context, c *domain.Case) {
	if c == nil {
		return
	}
	events.PublishAll(ctx, s.bus, s.log, CaseEvents(c))
}
