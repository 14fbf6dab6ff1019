package service

import (
	"context"
	"log/slog"

	"github.com/sentinel-ops/casedesk/internal/auth"
	casedomain "github.com/sentinel-ops/casedesk/internal/case/domain"
	caseservice "github.com/sentinel-ops/casedesk/internal/case/service"
	"github.com/sentinel-ops/casedesk/internal/incident/domain"
	registrydomain "github.com/sentinel-ops/casedesk/internal/registry/domain"
	apperrors "github.com/sentinel-ops/casedesk/internal/shared/errors"
	"github.com/sentinel-ops/casedesk/internal/shared/events"
	"github.com/sentinel-ops/casedesk/internal/shared/metrics"
	"github.com/sentinel-ops/casedesk/internal/shared/types"
	"github.com/sentinel-ops/casedesk/internal/store"
)

// Receipt identifies the incident and the case opened for it
type Receipt struct {
	IncidentID types.ID `json:"incident_id"`
	CaseID     types.ID `json:"case_id"`
}

// Service records incident reports
type Service struct {
	store store.Store
	cases *caseservice.Service
	clock *types.Clock
	bus   events.Publisher
	log   *slog.Logger
}

// NewService creates an incident intake service. cases creates the linked
// case inside the intake transaction; bus may be nil.
func NewService(st store.Store, cases *caseservice.Service, clock *types.Clock, bus events.Publisher, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store: st,
		cases: cases,
		clock: clock,
		bus:   bus,
		log:   log.With("service", "incident"),
	}
}

// SubmitIncidentReport records the report and opens its case atomically.
// Either both are persisted or neither is.
func (s *Service) SubmitIncidentReport(ctx context.Context, principal types.Principal, sub domain.Submission) (Receipt, error) {
	var (
		linked *casedomain.Case
		report *domain.IncidentReport
	)
	err := s.store.Update(ctx, func(tx store.Tx) error {
		caller, err := registrydomain.ResolveCaller(ctx, tx.Operators(), principal)
		if err != nil {
			return err
		}
		if err := auth.Enforce(caller, auth.OpIncidentSubmit, auth.Target{}); err != nil {
			return err
		}
		if err := sub.Validate(); err != nil {
			return err
		}

		linked, err = s.cases.CreateInTx(ctx, tx, caller, sub.Title, sub.Description, sub.Severity)
		if err != nil {
			return err
		}

		id, err := tx.Incidents().NextID(ctx)
		if err != nil {
			return err
		}

		report, err = domain.NewIncidentReport(id, sub, linked.ID, s.clock.Now())
		if err != nil {
			return err
		}
		return tx.Incidents().Save(ctx, report)
	})
	if err != nil {
		return Receipt{}, err
	}

	metrics.RecordCaseCreated(string(sub.Severity), caseservice.SourceIncident)
	metrics.RecordIncidentSubmitted(string(sub.Type), string(sub.Severity))

	evts := caseservice.CaseEvents(linked)
	evts = append(evts, events.NewEvent(events.TypeIncidentSubmitted, "incident", report.CreatedAt, map[string]any{
		"incident_id":    report.ID,
		"linked_case_id": report.LinkedCaseID,
		"incident_type":  report.Type,
		"severity":       report.Severity,
	}).WithActor(principal))
	events.PublishAll(ctx, s.bus, s.log, evts)

	return Receipt{IncidentID: report.ID, CaseID: linked.ID}, nil
}

// GetAllIncidentReports returns every report ordered by id
func (s *Service) GetAllIncidentReports(ctx context.Context, principal types.Principal) ([]domain.IncidentReport, error) {
	var reports []domain.IncidentReport
	err := s.store.View(ctx, func(tx store.Tx) error {
		if err := s.authorize(ctx, tx, principal); err != nil {
			return err
		}
		var err error
		reports, err = tx.Incidents().List(ctx)
		return err
	})
	return reports, err
}

// GetIncidentReportByID returns the report and true, or false when absent
func (s *Service) GetIncidentReportByID(ctx context.Context, principal types.Principal, id types.ID) (*domain.IncidentReport, bool, error) {
	var found *domain.IncidentReport
	err := s.store.View(ctx, func(tx store.Tx) error {
		if err := s.authorize(ctx, tx, principal); err != nil {
			return err
		}
		r, err := tx.Incidents().FindByID(ctx, id)
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		found = r
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return found, found != nil, nil
}

func (s *Service) authorize(ctx context.Context, tx store.Tx, principal types.Principal) error {
	caller, err := registrydomain.ResolveCaller(ctx, tx.Operators(), principal)
	if err != nil {
		return err
	}
	return auth.Enforce(caller, auth.OpIncidentRead, auth.Target{})
}
