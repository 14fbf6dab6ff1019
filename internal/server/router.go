package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sentinel-ops/casedesk/internal/audit"
	caseapi "github.com/sentinel-ops/casedesk/internal/case/api"
	incidentapi "github.com/sentinel-ops/casedesk/internal/incident/api"
	registryapi "github.com/sentinel-ops/casedesk/internal/registry/api"
	"github.com/sentinel-ops/casedesk/internal/shared/httpjson"
	"github.com/sentinel-ops/casedesk/internal/shared/idempotency"
	"github.com/sentinel-ops/casedesk/internal/shared/identity"
	"github.com/sentinel-ops/casedesk/internal/shared/metrics"
	secmiddleware "github.com/sentinel-ops/casedesk/internal/shared/middleware"
)

const (
	requestTimeout  = 60 * time.Second
	maxBodyBytes    = 1 << 20
	cleanupInterval = time.Minute
)

// Router builds the HTTP handler. Everything under /api/v1 requires a
// bearer token; health, readiness and metrics do not.
func (a *App) Router() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(secmiddleware.RequestLogger(a.Log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(secmiddleware.CORS(secmiddleware.DefaultCORSConfig()))
	r.Use(metrics.Middleware)

	if rl := a.Config.RateLimit; rl.Enabled && rl.RequestsPerSecond > 0 {
		a.limiter = secmiddleware.NewIPRateLimiter(rl.RequestsPerSecond, rl.Burst)
		r.Use(a.limiter.Middleware)
	}

	// Health checks (unauthenticated)
	r.Get("/health", a.healthHandler)
	r.Get("/ready", a.readyHandler)
	r.Handle("/metrics", metrics.Handler())

	var creation []func(http.Handler) http.Handler
	if a.Idempotency != nil {
		creation = append(creation, idempotency.Middleware(a.Idempotency, a.Config.Idempotency.TTL, a.Log))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(secmiddleware.BodyLimit(maxBodyBytes))
		r.Use(identity.Middleware(a.Config.Auth))

		r.Mount("/operators", registryapi.NewHandler(a.Registry, a.Log).Routes())
		r.Mount("/cases", caseapi.NewHandler(a.Cases, a.Log).Routes(creation...))
		r.Mount("/incidents", incidentapi.NewHandler(a.Incidents, a.Log).Routes(creation...))
		if a.Audit != nil {
			r.Mount("/audit", audit.NewHandler(a.Audit, a.Registry, a.Log).Routes())
		}
	})

	return r
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	httpjson.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func (a *App) readyHandler(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{
		"server": "ready",
	}

	if err := a.Store.Health(r.Context()); err != nil {
		checks["store"] = "not ready: " + err.Error()
	} else {
		checks["store"] = "ready"
	}

	if a.Bus != nil {
		if err := a.Bus.Health(); err != nil {
			checks["events"] = "not ready: " + err.Error()
		} else {
			checks["events"] = "ready"
		}
	} else {
		checks["events"] = "not configured"
	}

	allReady := true
	for _, status := range checks {
		if status != "ready" && status != "not configured" {
			allReady = false
			break
		}
	}

	status := http.StatusOK
	if !allReady {
		status = http.StatusServiceUnavailable
	}

	httpjson.WriteJSON(w, status, map[string]any{
		"status": map[bool]string{true: "ready", false: "not ready"}[allReady],
		"checks": checks,
	})
}

// RunCleanup drops idle rate limiter entries until ctx is done
func (a *App) RunCleanup(ctx context.Context) {
	if a.limiter == nil {
		return
	}
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.limiter.Cleanup()
		}
	}
}
