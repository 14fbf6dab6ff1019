package domain

import (
	"github.com/sentinel-ops/casedesk/internal/shared/types"
)

// Note is an annotation in a case's investigation log. Author is the display
// name of the operator at the time of writing.
type Note struct {
	Content   string          `json:"content"`
	Author    string          `json:"author"`
	Timestamp types.Timestamp `json:"timestamp"`
}

// CaseEventType defines types of case events
type CaseEventType string

const (
	CaseEventTypeCreated       CaseEventType = "created"
	CaseEventTypeStatusChanged CaseEventType = "status_changed"
	CaseEventTypeAssigned      CaseEventType = "assigned"
	CaseEventTypeNoteAdded     CaseEventType = "note_added"
	CaseEventTypeDeleted       CaseEventType = "deleted"
)

// Event is a domain event for publishing
type Event struct {
	Type      CaseEventType   `json:"type"`
	CaseID    types.ID        `json:"case_id"`
	Actor     types.Principal `json:"actor"`
	Data      map[string]any  `json:"data,omitempty"`
	Timestamp types.Timestamp `json:"timestamp"`
}
