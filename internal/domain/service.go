package domain

import (
	"fmt"
	"time"
)

// ServiceStatus represents the operational status of a service.
type ServiceStatus string

// Service statuses, ordered from healthy to worst.
const (
	ServiceStatusOperational   ServiceStatus = "OPERATIONAL"
	ServiceStatusDegraded      ServiceStatus = "DEGRADED"
	ServiceStatusPartialOutage ServiceStatus = "PARTIAL_OUTAGE"
	ServiceStatusMajorOutage   ServiceStatus = "MAJOR_OUTAGE"
)

// serviceStatusRank is the total order used to compare service statuses.
var serviceStatusRank = map[ServiceStatus]int{
	ServiceStatusOperational:   0,
	ServiceStatusDegraded:      1,
	ServiceStatusPartialOutage: 2,
	ServiceStatusMajorOutage:   3,
}

// serviceStatusLabels are human-readable summaries for the public page.
var serviceStatusLabels = map[ServiceStatus]string{
	ServiceStatusOperational:   "All Systems Operational",
	ServiceStatusDegraded:      "Degraded Performance",
	ServiceStatusPartialOutage: "Partial System Outage",
	ServiceStatusMajorOutage:   "Major System Outage",
}

// IsValid checks if the service status is valid.
func (s ServiceStatus) IsValid() bool {
	_, ok := serviceStatusRank[s]
	return ok
}

// Rank returns the position of the status in the severity order.
func (s ServiceStatus) Rank() (int, error) {
	rank, ok := serviceStatusRank[s]
	if !ok {
		return 0, fmt.Errorf("unknown service status %q", s)
	}
	return rank, nil
}

// Label returns a human-readable summary of the status.
func (s ServiceStatus) Label() string {
	if label, ok := serviceStatusLabels[s]; ok {
		return label
	}
	return string(s)
}

// WorstServiceStatus reduces a set of statuses to the most severe one.
// An empty set is OPERATIONAL.
func WorstServiceStatus(statuses []ServiceStatus) (ServiceStatus, error) {
	worst := ServiceStatusOperational
	worstRank := 0
	for _, s := range statuses {
		rank, err := s.Rank()
		if err != nil {
			return "", err
		}
		if rank > worstRank {
			worst, worstRank = s, rank
		}
	}
	return worst, nil
}

// Service represents a monitored service owned by an organization.
// Status is a projection of the service's active incidents and is only
// written by status recomputation.
type Service struct {
	ID             string        `json:"id"`
	OrganizationID string        `json:"organization_id"`
	Name           string        `json:"name"`
	Slug           string        `json:"slug"`
	Description    string        `json:"description"`
	Status         ServiceStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// ServiceStatusLogEntry represents a single derived status change in the audit log.
type ServiceStatusLogEntry struct {
	ID         string        `json:"id"`
	ServiceID  string        `json:"service_id"`
	OldStatus  ServiceStatus `json:"old_status"`
	NewStatus  ServiceStatus `json:"new_status"`
	IncidentID *string       `json:"incident_id,omitempty"`
	Reason     string        `json:"reason"`
	CreatedBy  string        `json:"created_by"`
	CreatedAt  time.Time     `json:"created_at"`
}
