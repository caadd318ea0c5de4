package domain

import (
	"fmt"
	"time"
)

// IncidentStatus represents the lifecycle stage of an incident.
type IncidentStatus string

// Incident statuses. RESOLVED is terminal.
const (
	IncidentStatusInvestigating IncidentStatus = "INVESTIGATING"
	IncidentStatusIdentified    IncidentStatus = "IDENTIFIED"
	IncidentStatusMonitoring    IncidentStatus = "MONITORING"
	IncidentStatusResolved      IncidentStatus = "RESOLVED"
)

// IsValid checks if the incident status is valid.
func (s IncidentStatus) IsValid() bool {
	switch s {
	case IncidentStatusInvestigating, IncidentStatusIdentified,
		IncidentStatusMonitoring, IncidentStatusResolved:
		return true
	}
	return false
}

// IsActive reports whether an incident in this status contributes to service status.
func (s IncidentStatus) IsActive() bool {
	return s != IncidentStatusResolved
}

// IncidentImpact represents how badly an incident affects its service.
type IncidentImpact string

// Incident impacts.
const (
	IncidentImpactMinor    IncidentImpact = "MINOR"
	IncidentImpactMajor    IncidentImpact = "MAJOR"
	IncidentImpactCritical IncidentImpact = "CRITICAL"
)

// impactRank is the severity order MINOR < MAJOR < CRITICAL.
var impactRank = map[IncidentImpact]int{
	IncidentImpactMinor:    1,
	IncidentImpactMajor:    2,
	IncidentImpactCritical: 3,
}

// impactServiceStatus maps an impact to the service status it implies.
var impactServiceStatus = map[IncidentImpact]ServiceStatus{
	IncidentImpactMinor:    ServiceStatusDegraded,
	IncidentImpactMajor:    ServiceStatusPartialOutage,
	IncidentImpactCritical: ServiceStatusMajorOutage,
}

// Impacts returns every known impact in ascending severity.
func Impacts() []IncidentImpact {
	return []IncidentImpact{IncidentImpactMinor, IncidentImpactMajor, IncidentImpactCritical}
}

// IsValid checks if the impact is valid.
func (i IncidentImpact) IsValid() bool {
	_, ok := impactRank[i]
	return ok
}

// Rank returns the severity rank of the impact.
func (i IncidentImpact) Rank() (int, error) {
	rank, ok := impactRank[i]
	if !ok {
		return 0, fmt.Errorf("unknown incident impact %q", i)
	}
	return rank, nil
}

// ServiceStatus returns the service status implied by the impact.
func (i IncidentImpact) ServiceStatus() (ServiceStatus, error) {
	status, ok := impactServiceStatus[i]
	if !ok {
		return "", fmt.Errorf("unknown incident impact %q", i)
	}
	return status, nil
}

// Incident represents a disruption affecting a single service.
type Incident struct {
	ID             string           `json:"id"`
	OrganizationID string           `json:"organization_id"`
	ServiceID      string           `json:"service_id"`
	Title          string           `json:"title"`
	Description    string           `json:"description"`
	Status         IncidentStatus   `json:"status"`
	Impact         IncidentImpact   `json:"impact"`
	ResolvedAt     *time.Time       `json:"resolved_at"`
	CreatedBy      string           `json:"created_by"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	Updates        []IncidentUpdate `json:"updates,omitempty"`
}

// IsActive reports whether the incident contributes to its service's status.
func (i *Incident) IsActive() bool {
	return i.Status.IsActive()
}

// IncidentUpdate is an immutable entry in an incident's timeline.
type IncidentUpdate struct {
	ID         string         `json:"id"`
	IncidentID string         `json:"incident_id"`
	Message    string         `json:"message"`
	Status     IncidentStatus `json:"status"`
	CreatedBy  string         `json:"created_by"`
	CreatedAt  time.Time      `json:"created_at"`
}
