package events

import (
	"context"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sentinel-ops/casedesk/internal/shared/types"
)

// Event types published by the engine
const (
	TypeCaseCreated       = "case.created"
	TypeCaseStatusChanged = "case.status_changed"
	TypeCaseAssigned      = "case.assigned"
	TypeCaseNoteAdded     = "case.note_added"
	TypeCaseDeleted       = "case.deleted"
	TypeIncidentSubmitted = "incident.submitted"
	TypeOperatorJoined    = "operator.registered"
	TypeOperatorRoleSet   = "operator.role_changed"
)

// Event represents a domain event
type Event struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Source        string    `json:"source"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`

	// Actor is the principal whose call produced the event
	Actor types.Principal `json:"actor,omitempty"`

	Data any `json:"data"`
}

// NewEvent creates a new event with generated ID and the given engine time
func NewEvent(eventType, source string, at types.Timestamp, data any) Event {
	return Event{
		ID:        types.NewEventID(),
		Type:      eventType,
		Source:    source,
		Timestamp: at.Time(),
		Data:      data,
	}
}

// WithActor sets the acting principal
func (e Event) WithActor(actor types.Principal) Event {
	e.Actor = actor
	return e
}

// WithCorrelation sets the correlation ID for request tracing
func (e Event) WithCorrelation(correlationID string) Event {
	e.CorrelationID = correlationID
	return e
}

// Handler is a function that handles an event
type Handler func(ctx context.Context, event Event) error

// matchesPattern checks if an event type matches a wildcard pattern.
// "case.*" matches "case.created"; "*" and ">" match everything.
func matchesPattern(eventType, pattern string) bool {
	if pattern == "*" || pattern == ">" {
		return true
	}

	patternParts := strings.Split(pattern, ".")
	typeParts := strings.Split(eventType, ".")

	for i, pp := range patternParts {
		if pp == "*" {
			return true
		}
		if i >= len(typeParts) || pp != typeParts[i] {
			return false
		}
	}

	return len(patternParts) == len(typeParts)
}

// CorrelationID returns the request id carried by ctx, if any
func CorrelationID(ctx context.Context) string {
	return middleware.GetReqID(ctx)
}
