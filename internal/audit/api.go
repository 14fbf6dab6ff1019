package audit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sentinel-ops/casedesk/internal/auth"
	"github.com/sentinel-ops/casedesk/internal/shared/errors"
	"github.com/sentinel-ops/casedesk/internal/shared/httpjson"
	"github.com/sentinel-ops/casedesk/internal/shared/identity"
	"github.com/sentinel-ops/casedesk/internal/shared/types"
)

const maxListLimit = 1000

// CallerResolver loads the operator behind a principal
type CallerResolver interface {
	ResolveCaller(ctx context.Context, principal types.Principal) (auth.Caller, error)
}

// Handler provides HTTP handlers for the audit trail
type Handler struct {
	repo    Repository
	callers CallerResolver
	log     *slog.Logger
}

// NewHandler creates a new audit handler
func NewHandler(repo Repository, callers CallerResolver, log *slog.Logger) *Handler {
	return &Handler{repo: repo, callers: callers, log: log}
}

// Routes registers the audit routes. Every route requires audit.read.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.authorize)

	r.Get("/", h.ListEntries)
	r.Get("/verify", h.VerifyChain)

	return r
}

// ListEntries lists entries, newest first
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := Filter{
		Actor:        types.Principal(q.Get("actor")),
		Action:       q.Get("action"),
		ResourceType: q.Get("resource_type"),
		ResourceID:   q.Get("resource_id"),
		Limit:        100,
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 || n > maxListLimit {
			httpjson.WriteError(w, r, h.log, errors.InvalidArgument("limit", "limit must be between 1 and 1000"))
			return
		}
		filter.Limit = n
	}

	entries, err := h.repo.List(r.Context(), filter)
	if err != nil {
		httpjson.WriteError(w, r, h.log, err)
		return
	}
	total, err := h.repo.Count(r.Context())
	if err != nil {
		httpjson.WriteError(w, r, h.log, err)
		return
	}

	httpjson.WriteJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"total":   total,
	})
}

// VerifyChain checks the integrity of the whole trail
func (h *Handler) VerifyChain(w http.ResponseWriter, r *http.Request) {
	result, err := h.repo.VerifyChain(r.Context())
	if err != nil {
		httpjson.WriteError(w, r, h.log, err)
		return
	}
	httpjson.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, err := h.callers.ResolveCaller(r.Context(), identity.PrincipalFrom(r.Context()))
		if err == nil {
			err = auth.Enforce(caller, auth.OpAuditRead, auth.Target{})
		}
		if err != nil {
			httpjson.WriteError(w, r, h.log, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}
