package domain

import (
	"fmt"

	casedomain "github.com/sentinel-ops/casedesk/internal/case/domain"
	"github.com/sentinel-ops/casedesk/internal/shared/errors"
	"github.com/sentinel-ops/casedesk/internal/shared/types"
)

// IncidentType classifies a reported incident
type IncidentType string

const (
	IncidentTypePhishing           IncidentType = "phishing"
	IncidentTypeMalware            IncidentType = "malware"
	IncidentTypeDDoS               IncidentType = "ddos"
	IncidentTypeDataBreach         IncidentType = "dataBreach"
	IncidentTypeUnauthorizedAccess IncidentType = "unauthorizedAccess"
	IncidentTypeOther              IncidentType = "other"
)

// IncidentTypes lists every valid incident type.
var IncidentTypes = []IncidentType{
	IncidentTypePhishing, IncidentTypeMalware, IncidentTypeDDoS,
	IncidentTypeDataBreach, IncidentTypeUnauthorizedAccess, IncidentTypeOther,
}

// ParseIncidentType converts a wire value into an IncidentType
func ParseIncidentType(s string) (IncidentType, error) {
	t := IncidentType(s)
	if !t.IsValid() {
		return "", errors.InvalidArgument("incident_type", fmt.Sprintf("unknown incident type %q", s))
	}
	return t, nil
}

// IsValid reports whether t is a known incident type
func (t IncidentType) IsValid() bool {
	for _, known := range IncidentTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Submission holds the reporter-supplied fields of an incident report
type Submission struct {
	Title           string              `json:"title"`
	Type            IncidentType        `json:"incident_type"`
	Description     string              `json:"description"`
	AffectedSystems string              `json:"affected_systems"`
	Severity        casedomain.Severity `json:"severity"`
	ReporterName    string              `json:"reporter_name"`
}

// Validate checks every field before anything is written
func (s Submission) Validate() error {
	required := []struct {
		field string
		value string
	}{
		{"title", s.Title},
		{"description", s.Description},
		{"affected_systems", s.AffectedSystems},
		{"reporter_name", s.ReporterName},
	}
	for _, r := range required {
		if r.value == "" {
			return errors.InvalidArgument(r.field, r.field+" is required")
		}
	}
	if !s.Type.IsValid() {
		return errors.InvalidArgument("incident_type", fmt.Sprintf("unknown incident type %q", s.Type))
	}
	if !s.Severity.IsValid() {
		return errors.InvalidArgument("severity", fmt.Sprintf("unknown severity %q", s.Severity))
	}
	return nil
}

// IncidentReport is an as-reported incident. It never changes after intake.
type IncidentReport struct {
	ID              types.ID            `json:"id"`
	Title           string              `json:"title"`
	Type            IncidentType        `json:"incident_type"`
	Description     string              `json:"description"`
	AffectedSystems string              `json:"affected_systems"`
	Severity        casedomain.Severity `json:"severity"`
	ReporterName    string              `json:"reporter_name"`
	CreatedAt       types.Timestamp     `json:"created_at"`
	LinkedCaseID    types.ID            `json:"linked_case_id"`
}

// NewIncidentReport creates a report linked to the case opened for it
func NewIncidentReport(id types.ID, s Submission, linkedCaseID types.ID, now types.Timestamp) (*IncidentReport, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if id.IsZero() || linkedCaseID.IsZero() {
		return nil, errors.Invariant("incident %d created without allocated ids (case %d)", id, linkedCaseID)
	}

	return &IncidentReport{
		ID:              id,
		Title:           s.Title,
		Type:            s.Type,
		Description:     s.Description,
		AffectedSystems: s.AffectedSystems,
		Severity:        s.Severity,
		ReporterName:    s.ReporterName,
		CreatedAt:       now,
		LinkedCaseID:    linkedCaseID,
	}, nil
}
