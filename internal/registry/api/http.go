package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sentinel-ops/casedesk/internal/auth"
	"github.com/sentinel-ops/casedesk/internal/registry/service"
	"github.com/sentinel-ops/casedesk/internal/shared/errors"
	"github.com/sentinel-ops/casedesk/internal/shared/httpjson"
	"github.com/sentinel-ops/casedesk/internal/shared/identity"
	"github.com/sentinel-ops/casedesk/internal/shared/types"
)

// Handler provides HTTP handlers for the operator registry
type Handler struct {
	svc *service.Service
	log *slog.Logger
}

// NewHandler creates a new registry handler
func NewHandler(svc *service.Service, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Routes registers the operator routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListProfiles)
	r.Post("/register", h.Register)

	r.Route("/me", func(r chi.Router) {
		r.Get("/", h.GetMyProfile)
		r.Get("/role", h.GetMyRole)
	})

	r.Route("/{principal}", func(r chi.Router) {
		r.Get("/", h.GetProfile)
		r.Put("/role", h.SetRole)
	})

	return r
}

// --- Request/Response types ---

type RegisterRequest struct {
	Name string `json:"name" validate:"required"`
}

type SetRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

type RoleResponse struct {
	Role    auth.AccessRole `json:"role"`
	IsAdmin bool            `json:"is_admin"`
}

// --- Handlers ---

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.WriteError(w, r, h.log, err)
		return
	}

	profile, err := h.svc.RegisterSelf(r.Context(), identity.PrincipalFrom(r.Context()), req.Name)
	if err != nil {
		httpjson.WriteError(w, r, h.log, err)
		return
	}

	httpjson.WriteJSON(w, http.StatusCreated, profile)
}

func (h *Handler) GetMyProfile(w http.ResponseWriter, r *http.Request) {
	h.writeProfile(w, r, identity.PrincipalFrom(r.Context()))
}

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	h.writeProfile(w, r, types.Principal(chi.URLParam(r, "principal")))
}

func (h *Handler) GetMyRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.svc.CallerRole(r.Context(), identity.PrincipalFrom(r.Context()))
	if err != nil {
		httpjson.WriteError(w, r, h.log, err)
		return
	}

	httpjson.WriteJSON(w, http.StatusOK, RoleResponse{Role: role, IsAdmin: role == auth.AccessAdmin})
}

func (h *Handler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.svc.ListProfiles(r.Context(), identity.PrincipalFrom(r.Context()))
	if err != nil {
		httpjson.WriteError(w, r, h.log, err)
		return
	}

	httpjson.WriteJSON(w, http.StatusOK, profiles)
}

func (h *Handler) SetRole(w http.ResponseWriter, r *http.Request) {
	var req SetRoleRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.WriteError(w, r, h.log, err)
		return
	}

	role, err := auth.ParseRole(req.Role)
	if err != nil {
		httpjson.WriteError(w, r, h.log, err)
		return
	}

	target := types.Principal(chi.URLParam(r, "principal"))
	if err := h.svc.SetRole(r.Context(), identity.PrincipalFrom(r.Context()), target, role); err != nil {
		httpjson.WriteError(w, r, h.log, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeProfile(w http.ResponseWriter, r *http.Request, target types.Principal) {
	profile, ok, err := h.svc.GetProfile(r.Context(), identity.PrincipalFrom(r.Context()), target)
	if err != nil {
		httpjson.WriteError(w, r, h.log, err)
		return
	}
	if !ok {
		httpjson.WriteError(w, r, h.log, errors.NotFound("operator", target.String()))
		return
	}

	httpjson.WriteJSON(w, http.StatusOK, profile)
}
