package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	casedomain "github.com/sentinel-ops/casedesk/internal/case/domain"
	caseservice "github.com/sentinel-ops/casedesk/internal/case/service"
	"github.com/sentinel-ops/casedesk/internal/incident/domain"
	registryservice "github.com/sentinel-ops/casedesk/internal/registry/service"
	apperrors "github.com/sentinel-ops/casedesk/internal/shared/errors"
	"github.com/sentinel-ops/casedesk/internal/shared/events"
	"github.com/sentinel-ops/casedesk/internal/shared/types"
	"github.com/sentinel-ops/casedesk/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDiskFull = errors.New("disk full")

// faultyStore fails incident saves while failSave is set
type faultyStore struct {
	store.Store
	mu       sync.Mutex
	failSave bool
}

func (s *faultyStore) setFail(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSave = v
}

func (s *faultyStore) Update(ctx context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	fail := s.failSave
	s.mu.Unlock()
	return s.Store.Update(ctx, func(tx store.Tx) error {
		return fn(faultyTx{Tx: tx, fail: fail})
	})
}

type faultyTx struct {
	store.Tx
	fail bool
}

func (tx faultyTx) Incidents() domain.Repository {
	return faultyIncidents{Repository: tx.Tx.Incidents(), fail: tx.fail}
}

type faultyIncidents struct {
	domain.Repository
	fail bool
}

func (r faultyIncidents) Save(ctx context.Context, report *domain.IncidentReport) error {
	if r.fail {
		return apperrors.Wrap(errDiskFull, "failed to save incident")
	}
	return r.Repository.Save(ctx, report)
}

type fixture struct {
	ctx       context.Context
	store     *faultyStore
	registry  *registryservice.Service
	cases     *caseservice.Service
	incidents *Service
	mu        sync.Mutex
	published []string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := &faultyStore{Store: store.NewMemoryStore()}
	clock := types.NewClock()
	bus := events.NewMemoryBus(log)

	f := &fixture{
		ctx:      context.Background(),
		store:    st,
		registry: registryservice.NewService(st, clock, nil, log),
		cases:    caseservice.NewService(st, clock, caseservice.WithPublisher(bus), caseservice.WithLogger(log)),
	}
	f.incidents = NewService(st, f.cases, clock, bus, log)

	require.NoError(t, bus.Subscribe(f.ctx, "*", "test", func(_ context.Context, e events.Event) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.published = append(f.published, e.Type)
		return nil
	}))

	_, err := f.registry.RegisterSelf(f.ctx, "alice", "Alice")
	require.NoError(t, err)
	_, err = f.registry.RegisterSelf(f.ctx, "bob", "Bob")
	require.NoError(t, err)
	return f
}

func phish() domain.Submission {
	return domain.Submission{
		Title:           "Phish",
		Type:            domain.IncidentTypePhishing,
		Description:     "Credential harvesting mail",
		AffectedSystems: "mail gateway",
		Severity:        casedomain.SeverityMedium,
		ReporterName:    "Bob",
	}
}

func TestSubmitIncidentReportCreatesLinkedCase(t *testing.T) {
	f := newFixture(t)

	receipt, err := f.incidents.SubmitIncidentReport(f.ctx, "bob", phish())
	require.NoError(t, err)
	assert.Equal(t, Receipt{IncidentID: 1, CaseID: 1}, receipt)

	c, ok, err := f.cases.GetCaseByID(f.ctx, "bob", receipt.CaseID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Phish", c.Title)
	assert.Equal(t, "Credential harvesting mail", c.Description)
	assert.Equal(t, casedomain.SeverityMedium, c.Severity)
	assert.Equal(t, types.Principal("bob"), c.Reporter)

	report, ok, err := f.incidents.GetIncidentReportByID(f.ctx, "bob", receipt.IncidentID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.ID(1), report.LinkedCaseID)
	assert.Equal(t, "Bob", report.ReporterName)
	assert.Equal(t, domain.IncidentTypePhishing, report.Type)

	assert.Equal(t, []string{events.TypeCaseCreated, events.TypeIncidentSubmitted}, f.published)
}

func TestIncidentAndCaseSequencesAreIndependent(t *testing.T) {
	f := newFixture(t)

	_, err := f.cases.CreateCase(f.ctx, "bob", "direct", "direct case", casedomain.SeverityLow)
	require.NoError(t, err)

	receipt, err := f.incidents.SubmitIncidentReport(f.ctx, "bob", phish())
	require.NoError(t, err)
	assert.Equal(t, Receipt{IncidentID: 1, CaseID: 2}, receipt)
}

func TestSubmitIncidentReportValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		mutate func(*domain.Submission)
	}{
		{"empty title", func(s *domain.Submission) { s.Title = "" }},
		{"empty description", func(s *domain.Submission) { s.Description = "" }},
		{"empty affected systems", func(s *domain.Submission) { s.AffectedSystems = "" }},
		{"empty reporter name", func(s *domain.Submission) { s.ReporterName = "" }},
		{"unknown type", func(s *domain.Submission) { s.Type = "worm" }},
		{"unknown severity", func(s *domain.Submission) { s.Severity = "severe" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := phish()
			tt.mutate(&sub)
			_, err := f.incidents.SubmitIncidentReport(f.ctx, "bob", sub)
			assert.True(t, apperrors.Is(err, apperrors.ErrInvalidArgument), "got %v", err)
		})
	}

	cases, err := f.cases.GetAllCases(f.ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, cases)
}

func TestSubmitIncidentReportRequiresRegistration(t *testing.T) {
	f := newFixture(t)

	_, err := f.incidents.SubmitIncidentReport(f.ctx, "mallory", phish())
	assert.True(t, apperrors.Is(err, apperrors.ErrUnauthenticated))

	_, err = f.incidents.GetAllIncidentReports(f.ctx, "mallory")
	assert.True(t, apperrors.Is(err, apperrors.ErrUnauthenticated))

	_, _, err = f.incidents.GetIncidentReportByID(f.ctx, "mallory", 1)
	assert.True(t, apperrors.Is(err, apperrors.ErrUnauthenticated))
}

func TestSubmitIncidentReportAuthorizesBeforeValidating(t *testing.T) {
	f := newFixture(t)

	sub := phish()
	sub.Title = ""
	_, err := f.incidents.SubmitIncidentReport(f.ctx, "mallory", sub)
	assert.True(t, apperrors.Is(err, apperrors.ErrUnauthenticated), "got %v", err)

	_, err = f.incidents.SubmitIncidentReport(f.ctx, "", sub)
	assert.True(t, apperrors.Is(err, apperrors.ErrUnauthenticated), "got %v", err)

	_, err = f.cases.CreateCase(f.ctx, "mallory", "", "", casedomain.SeverityLow)
	assert.True(t, apperrors.Is(err, apperrors.ErrUnauthenticated), "got %v", err)
}

func TestSubmitIncidentReportIsAtomic(t *testing.T) {
	f := newFixture(t)

	f.store.setFail(true)
	_, err := f.incidents.SubmitIncidentReport(f.ctx, "bob", phish())
	require.Error(t, err)
	assert.ErrorIs(t, err, errDiskFull)
	assert.True(t, apperrors.Is(err, apperrors.ErrInternal))

	cases, err := f.cases.GetAllCases(f.ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, cases, "linked case must roll back with the incident")

	reports, err := f.incidents.GetAllIncidentReports(f.ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, reports)
	assert.Empty(t, f.published)

	f.store.setFail(false)
	receipt, err := f.incidents.SubmitIncidentReport(f.ctx, "bob", phish())
	require.NoError(t, err)
	assert.Equal(t, Receipt{IncidentID: 1, CaseID: 1}, receipt, "rolled back ids are reused")
}

func TestGetIncidentReports(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 3; i++ {
		_, err := f.incidents.SubmitIncidentReport(f.ctx, "alice", phish())
		require.NoError(t, err)
	}

	reports, err := f.incidents.GetAllIncidentReports(f.ctx, "bob")
	require.NoError(t, err)
	require.Len(t, reports, 3)
	for i, r := range reports {
		assert.Equal(t, types.ID(i+1), r.ID)
		assert.Equal(t, types.ID(i+1), r.LinkedCaseID)
	}

	_, ok, err := f.incidents.GetIncidentReportByID(f.ctx, "bob", 42)
	require.NoError(t, err)
	assert.False(t, ok)
}
