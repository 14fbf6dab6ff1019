package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sentinel-ops/casedesk/internal/case/domain"
	"github.com/sentinel-ops/casedesk/internal/case/service"
	"github.com/sentinel-ops/casedesk/internal/shared/errors"
	"github.com/sentinel-ops/casedesk/internal/shared/httpjson"
	"github.com/sentinel-ops/casedesk/internal/shared/identity"
	"github.com/sentinel-ops/casedesk/internal/shared/types"
)

// Handler provides HTTP handlers for the case module
type Handler struct {
	svc *service.Service
	log *slog.Logger
}

// NewHandler creates a new case handler
func NewHandler(svc *service.Service, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Routes registers the case routes. create wraps only case creation.
func (h *Handler) Routes(create ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListCases)
	r.With(create...).Post("/", h.CreateCase)

	r.Route("/{caseID}", func(r chi.Router) {
		r.Get("/", h.GetCase)
		r.Delete("/", h.DeleteCase)

		r.Put("/status", h.UpdateStatus)
		r.Put("/assignee", h.AssignCase)
		r.Post("/notes", h.AddNote)
	})

	return r
}

// --- Request/Response types ---

type CreateCaseRequest struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description" validate:"required"`
	Severity    string `json:"severity" validate:"required"`
}

type CreateCaseResponse struct {
	ID types.ID `json:"id"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type AssignCaseRequest struct {
	Analyst string `json:"analyst" validate:"required"`
}

type AddNoteRequest struct {
	Content string `json:"content" validate:"required"`
}

// --- Handlers ---

func (h *Handler) ListCases(w http.ResponseWriter, r *http.Request) {
	cases, err := h.svc.GetAllCases(r.Context(), identity.PrincipalFrom(r.Context()))
	if err != nil {
		httpjson.WriteError(w, r, h.log, err)
		return
	}

	httpjson.WriteJSON(w, http.StatusOK, cases)
}

func (h *Handler) GetCase(w http.ResponseWriter, r *http.Request) {
	id, ok := h.caseID(w, r)
	if !ok {
		return
	}

	c, found, err := h.svc.GetCaseByID(r.Context(), identity.PrincipalFrom(r.Context()), id)
	if err != nil {
		httpjson.WriteError(w, r, h.log, err)
		return
	}
	if !found {
		httpjson.WriteError(w, r, h.log, errors.NotFound("case", id.String()))
		return
	}

	httpjson.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) CreateCase(w http.ResponseWriter, r *http.Request) {
	var req CreateCaseRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.WriteError(w, r, h.log, err)
		return
	}

	severity, err := domain.ParseSeverity(req.Severity)
	if err != nil {
		httpjson.WriteError(w, r, h.log, err)
		return
	}

	id, err := h.svc.CreateCase(r.Context(), identity.PrincipalFrom(r.Context()), req.Title, req.Description, severity)
	if err != nil {
		httpjson.WriteError(w, r, h.log, err)
		return
	}

	httpjson.WriteJSON(w, http.StatusCreated, CreateCaseResponse{ID: id})
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.caseID(w, r)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.WriteError(w, r, h.log, err)
		return
	}

	status, err := domain.ParseCaseStatus(req.Status)
	if err != nil {
		httpjson.WriteError(w, r, h.log, err)
		return
	}

	if err := h.svc.UpdateCaseStatus(r.Context(), identity.PrincipalFrom(r.Context()), id, status); err != nil {
		httpjson.WriteError(w, r, h.log, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AssignCase(w http.ResponseWriter, r *http.Request) {
	id, ok := h.caseID(w, r)
	if !ok {
		return
	}

	var req AssignCaseRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.WriteError(w, r, h.log, err)
		return
	}

	analyst := types.Principal(req.Analyst)
	if err := h.svc.AssignCase(r.Context(), identity.PrincipalFrom(r.Context()), id, analyst); err != nil {
		httpjson.WriteError(w, r, h.log, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AddNote(w http.ResponseWriter, r *http.Request) {
	id, ok := h.caseID(w, r)
	if !ok {
		return
	}

	var req AddNoteRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.WriteError(w, r, h.log, err)
		return
	}

	if err := h.svc.AddNoteToCase(r.Context(), identity.PrincipalFrom(r.Context()), id, req.Content); err != nil {
		httpjson.WriteError(w, r, h.log, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteCase(w http.ResponseWriter, r *http.Request) {
	id, ok := h.caseID(w, r)
	if !ok {
		return
	}

	if err := h.svc.DeleteCase(r.Context(), identity.PrincipalFrom(r.Context()), id); err != nil {
		httpjson.WriteError(w, r, h.log, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) caseID(w http.ResponseWriter, r *http.Request) (types.ID, bool) {
	id, err := types.ParseID(chi.URLParam(r, "caseID"))
	if err != nil {
		httpjson.WriteError(w, r, h.log, errors.InvalidArgument("caseID", "invalid case ID"))
		return 0, false
	}
	return id, true
}
