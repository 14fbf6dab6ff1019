package domain

import (
	"fmt"
	"slices"

	"github.com/sentinel-ops/casedesk/internal/shared/errors"
	"github.com/sentinel-ops/casedesk/internal/shared/types"
)

// Severity defines case and incident severity
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Severities lists every valid severity.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// ParseSeverity converts a wire value into a Severity
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(s)
	if !sev.IsValid() {
		return "", errors.InvalidArgument("severity", fmt.Sprintf("unknown severity %q", s))
	}
	return sev, nil
}

// IsValid reports whether s is a known severity
func (s Severity) IsValid() bool {
	return slices.Contains(Severities, s)
}

// CaseStatus defines the status of a case
type CaseStatus string

const (
	CaseStatusOpen       CaseStatus = "open"
	CaseStatusInProgress CaseStatus = "inProgress"
	CaseStatusResolved   CaseStatus = "resolved"
	CaseStatusClosed     CaseStatus = "closed"
)

// CaseStatuses lists every valid status.
var CaseStatuses = []CaseStatus{CaseStatusOpen, CaseStatusInProgress, CaseStatusResolved, CaseStatusClosed}

// ParseCaseStatus converts a wire value into a CaseStatus
func ParseCaseStatus(s string) (CaseStatus, error) {
	st := CaseStatus(s)
	if !st.IsValid() {
		return "", errors.InvalidArgument("status", fmt.Sprintf("unknown status %q", s))
	}
	return st, nil
}

// IsValid reports whether s is a known status
func (s CaseStatus) IsValid() bool {
	switch s {
	case CaseStatusOpen, CaseStatusInProgress, CaseStatusResolved, CaseStatusClosed:
		return true
	}
	return false
}

// statusTransitions is the case workflow. Every status may move to every
// status, including itself and re-opening a closed case.
var statusTransitions = map[CaseStatus][]CaseStatus{
	CaseStatusOpen:       CaseStatuses,
	CaseStatusInProgress: CaseStatuses,
	CaseStatusResolved:   CaseStatuses,
	CaseStatusClosed:     CaseStatuses,
}

// CanTransition reports whether a case may move from one status to another
func CanTransition(from, to CaseStatus) bool {
	for _, s := range statusTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Case is the aggregate root for case management
type Case struct {
	ID          types.ID   `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Severity    Severity   `json:"severity"`
	Status      CaseStatus `json:"status"`

	Reporter        types.Principal  `json:"reporter"`
	AssignedAnalyst *types.Principal `json:"assigned_analyst,omitempty"`

	Notes []Note `json:"notes"`

	CreatedAt types.Timestamp `json:"created_at"`
	UpdatedAt types.Timestamp `json:"updated_at"`

	// Domain events (not persisted, published after commit)
	domainEvents []Event
}

// NewCase creates a new open case with validation
func NewCase(id types.ID, title, description string, severity Severity, reporter types.Principal, now types.Timestamp) (*Case, error) {
	if err := ValidateDraft(title, description, severity); err != nil {
		return nil, err
	}
	if id.IsZero() {
		return nil, errors.Invariant("case id must be allocated before creation")
	}
	if reporter.IsZero() {
		return nil, errors.InvalidArgument("reporter", "reporter is required")
	}

	c := &Case{
		ID:          id,
		Title:       title,
		Description: description,
		Severity:    severity,
		Status:      CaseStatusOpen,
		Reporter:    reporter,
		Notes:       []Note{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	c.addEvent(CaseEventTypeCreated, reporter, now, map[string]any{
		"title":    title,
		"severity": severity,
	})

	return c, nil
}

// ValidateDraft checks the caller-supplied fields of a new case
func ValidateDraft(title, description string, severity Severity) error {
	if title == "" {
		return errors.InvalidArgument("title", "title is required")
	}
	if description == "" {
		return errors.InvalidArgument("description", "description is required")
	}
	if !severity.IsValid() {
		return errors.InvalidArgument("severity", fmt.Sprintf("unknown severity %q", severity))
	}
	return nil
}

// UpdateStatus moves the case to a new status
func (c *Case) UpdateStatus(status CaseStatus, actor types.Principal, now types.Timestamp) error {
	if !status.IsValid() {
		return errors.InvalidArgument("status", fmt.Sprintf("unknown status %q", status))
	}
	if !CanTransition(c.Status, status) {
		return errors.InvalidArgument("status", fmt.Sprintf("cannot move case from %s to %s", c.Status, status))
	}

	oldStatus := c.Status
	c.Status = status
	c.touch(now)

	c.addEvent(CaseEventTypeStatusChanged, actor, now, map[string]any{
		"old_status": oldStatus,
		"new_status": status,
	})

	return nil
}

// Assign sets the analyst working the case
func (c *Case) Assign(analyst types.Principal, actor types.Principal, now types.Timestamp) error {
	if analyst.IsZero() {
		return errors.InvalidArgument("analyst", "analyst is required")
	}

	var previous types.Principal
	if c.AssignedAnalyst != nil {
		previous = *c.AssignedAnalyst
	}

	assigned := analyst
	c.AssignedAnalyst = &assigned
	c.touch(now)

	c.addEvent(CaseEventTypeAssigned, actor, now, map[string]any{
		"analyst":  analyst,
		"previous": previous,
	})

	return nil
}

// AddNote appends an immutable note authored under the given display name
func (c *Case) AddNote(content, authorName string, actor types.Principal, now types.Timestamp) (Note, error) {
	if content == "" {
		return Note{}, errors.InvalidArgument("content", "note content is required")
	}

	note := Note{
		Content:   content,
		Author:    authorName,
		Timestamp: now,
	}

	c.Notes = append(c.Notes, note)
	c.touch(now)

	c.addEvent(CaseEventTypeNoteAdded, actor, now, map[string]any{
		"position": len(c.Notes),
		"author":   authorName,
	})

	return note, nil
}

// MarkDeleted records the deletion event; the store removes the case
func (c *Case) MarkDeleted(actor types.Principal, now types.Timestamp) {
	c.addEvent(CaseEventTypeDeleted, actor, now, map[string]any{
		"notes": len(c.Notes),
	})
}

// Clone returns a deep copy without pending domain events
func (c *Case) Clone() *Case {
	out := *c
	out.domainEvents = nil
	if c.AssignedAnalyst != nil {
		assigned := *c.AssignedAnalyst
		out.AssignedAnalyst = &assigned
	}
	out.Notes = make([]Note, len(c.Notes))
	copy(out.Notes, c.Notes)
	return &out
}

// GetDomainEvents returns and clears domain events
func (c *Case) GetDomainEvents() []Event {
	events := c.domainEvents
	c.domainEvents = nil
	return events
}

func (c *Case) touch(now types.Timestamp) {
	if now > c.UpdatedAt {
		c.UpdatedAt = now
	}
}

func (c *Case) addEvent(eventType CaseEventType, actor types.Principal, now types.Timestamp, data map[string]any) {
	c.domainEvents = append(c.domainEvents, Event{
		Type:      eventType,
		CaseID:    c.ID,
		Actor:     actor,
		Data:      data,
		Timestamp: now,
	})
}
