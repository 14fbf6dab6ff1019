package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Business metrics
	casesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cases_created_total",
			Help: "Total number of cases created",
		},
		[]string{"severity", "source"},
	)

	casesStatusChanged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cases_status_changed_total",
			Help: "Total number of case status changes",
		},
		[]string{"from_status", "to_status"},
	)

	caseNotesAdded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "case_notes_added_total",
			Help: "Total number of notes appended to cases",
		},
	)

	casesDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cases_deleted_total",
			Help: "Total number of cases deleted",
		},
	)

	incidentsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "incidents_submitted_total",
			Help: "Total number of incident reports submitted",
		},
		[]string{"type", "severity"},
	)

	operatorsRegistered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "operators_registered_total",
			Help: "Total number of operator registrations",
		},
		[]string{"role"},
	)

	roleChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "operator_role_changes_total",
			Help: "Total number of operator role changes",
		},
		[]string{"from_role", "to_role"},
	)

	authorizationDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authorization_decisions_total",
			Help: "Total number of authorization decisions",
		},
		[]string{"resource_type", "action", "decision"},
	)

	idempotentReplays = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "idempotent_replays_total",
			Help: "Total number of responses replayed for a repeated idempotency key",
		},
	)

	eventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Total number of domain events published",
		},
		[]string{"type", "status"},
	)

	// Store metrics
	storeTxDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_transaction_duration_seconds",
			Help:    "Store unit-of-work duration in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"driver", "mode", "outcome"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware creates HTTP metrics middleware
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizePath collapses numeric ids and operator principals so label
// cardinality stays bounded
func normalizePath(path string) string {
	if len(path) > 100 {
		return "/api/..."
	}

	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		if _, err := strconv.ParseInt(seg, 10, 64); err == nil {
			segments[i] = "{id}"
			continue
		}
		if i > 0 && segments[i-1] == "operators" && seg != "me" && seg != "register" {
			segments[i] = "{principal}"
		}
	}
	return strings.Join(segments, "/")
}

// --- Business metric helpers ---

// RecordCaseCreated records a case creation; source is "direct" or "incident"
func RecordCaseCreated(severity, source string) {
	casesCreated.WithLabelValues(severity, source).Inc()
}

// RecordCaseStatusChange records a case status change
func RecordCaseStatusChange(fromStatus, toStatus string) {
	casesStatusChanged.WithLabelValues(fromStatus, toStatus).Inc()
}

// RecordCaseNoteAdded records a note append
func RecordCaseNoteAdded() {
	caseNotesAdded.Inc()
}

// RecordCaseDeleted records a case deletion
func RecordCaseDeleted() {
	casesDeleted.Inc()
}

// RecordIncidentSubmitted records an incident submission
func RecordIncidentSubmitted(incidentType, severity string) {
	incidentsSubmitted.WithLabelValues(incidentType, severity).Inc()
}

// RecordOperatorRegistered records a self-registration
func RecordOperatorRegistered(role string) {
	operatorsRegistered.WithLabelValues(role).Inc()
}

// RecordRoleChange records a role reassignment
func RecordRoleChange(fromRole, toRole string) {
	roleChanges.WithLabelValues(fromRole, toRole).Inc()
}

// RecordAuthorizationDecision records an authorization decision
func RecordAuthorizationDecision(resourceType, action string, allowed bool) {
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	authorizationDecisions.WithLabelValues(resourceType, action, decision).Inc()
}

// RecordIdempotentReplay records a replayed response
func RecordIdempotentReplay() {
	idempotentReplays.Inc()
}

// RecordEventPublished records a domain event publish attempt
func RecordEventPublished(eventType string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	eventsPublished.WithLabelValues(eventType, status).Inc()
}

// RecordStoreTx records a store transaction duration
func RecordStoreTx(driver, mode string, err error, duration time.Duration) {
	outcome := "commit"
	if err != nil {
		outcome = "rollback"
	}
	storeTxDuration.WithLabelValues(driver, mode, outcome).Observe(duration.Seconds())
}
