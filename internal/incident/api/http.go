package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	casedomain "github.com/sentinel-ops/casedesk/internal/case/domain"
	"github.com/sentinel-ops/casedesk/internal/incident/domain"
	"github.com/sentinel-ops/casedesk/internal/incident/service"
	"github.com/sentinel-ops/casedesk/internal/shared/errors"
	"github.com/sentinel-ops/casedesk/internal/shared/httpjson"
	"github.com/sentinel-ops/casedesk/internal/shared/identity"
	"github.com/sentinel-ops/casedesk/internal/shared/types"
)

// Handler provides HTTP handlers for incident intake
type Handler struct {
	svc *service.Service
	log *slog.Logger
}

// NewHandler creates a new incident handler
func NewHandler(svc *service.Service, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Routes registers the incident routes. submit wraps only report intake.
func (h *Handler) Routes(submit ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListIncidents)
	r.With(submit...).Post("/", h.SubmitIncident)
	r.Get("/{incidentID}", h.GetIncident)

	return r
}

// SubmitIncidentRequest carries an incident report as entered by the reporter
type SubmitIncidentRequest struct {
	Title           string `json:"title" validate:"required"`
	IncidentType    string `json:"incident_type" validate:"required"`
	Description     string `json:"description" validate:"required"`
	AffectedSystems string `json:"affected_systems" validate:"required"`
	Severity        string `json:"severity" validate:"required"`
	ReporterName    string `json:"reporter_name" validate:"required"`
}

func (req SubmitIncidentRequest) submission() (domain.Submission, error) {
	incidentType, err := domain.ParseIncidentType(req.IncidentType)
	if err != nil {
		return domain.Submission{}, err
	}
	severity, err := casedomain.ParseSeverity(req.Severity)
	if err != nil {
		return domain.Submission{}, err
	}
	return domain.Submission{
		Title:           req.Title,
		Type:            incidentType,
		Description:     req.Description,
		AffectedSystems: req.AffectedSystems,
		Severity:        severity,
		ReporterName:    req.ReporterName,
	}, nil
}

func (h *Handler) SubmitIncident(w http.ResponseWriter, r *http.Request) {
	var req SubmitIncidentRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.WriteError(w, r, h.log, err)
		return
	}

	sub, err := req.submission()
	if err != nil {
		httpjson.WriteError(w, r, h.log, err)
		return
	}

	receipt, err := h.svc.SubmitIncidentReport(r.Context(), identity.PrincipalFrom(r.Context()), sub)
	if err != nil {
		httpjson.WriteError(w, r, h.log, err)
		return
	}

	httpjson.WriteJSON(w, http.StatusCreated, receipt)
}

func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	reports, err := h.svc.GetAllIncidentReports(r.Context(), identity.PrincipalFrom(r.Context()))
	if err != nil {
		httpjson.WriteError(w, r, h.log, err)
		return
	}

	httpjson.WriteJSON(w, http.StatusOK, reports)
}

func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "incidentID"))
	if err != nil {
		httpjson.WriteError(w, r, h.log, errors.InvalidArgument("incidentID", "invalid incident ID"))
		return
	}

	report, found, err := h.svc.GetIncidentReportByID(r.Context(), identity.PrincipalFrom(r.Context()), id)
	if err != nil {
		httpjson.WriteError(w, r, h.log, err)
		return
	}
	if !found {
		httpjson.WriteError(w, r, h.log, errors.NotFound("incident", id.String()))
		return
	}

	httpjson.WriteJSON(w, http.StatusOK, report)
}
