package domain

import "time"

// MaintenanceStatus represents the state of a scheduled maintenance window.
type MaintenanceStatus string

// Maintenance statuses.
const (
	MaintenanceStatusScheduled  MaintenanceStatus = "SCHEDULED"
	MaintenanceStatusInProgress MaintenanceStatus = "IN_PROGRESS"
	MaintenanceStatusCompleted  MaintenanceStatus = "COMPLETED"
	MaintenanceStatusCancelled  MaintenanceStatus = "CANCELLED"
)

// IsValid checks if the maintenance status is valid.
func (s MaintenanceStatus) IsValid() bool {
	switch s {
	case MaintenanceStatusScheduled, MaintenanceStatusInProgress,
		MaintenanceStatusCompleted, MaintenanceStatusCancelled:
		return true
	}
	return false
}

// IsUpcoming reports whether the window is still relevant to visitors.
func (s MaintenanceStatus) IsUpcoming() bool {
	return s == MaintenanceStatusScheduled || s == MaintenanceStatusInProgress
}

// Maintenance is an informational maintenance window for a service.
// It never affects the service's derived status.
type Maintenance struct {
	ID             string            `json:"id"`
	OrganizationID string            `json:"organization_id"`
	ServiceID      string            `json:"service_id"`
	Title          string            `json:"title"`
	Description    string            `json:"description"`
	Status         MaintenanceStatus `json:"status"`
	StartTime      time.Time         `json:"start_time"`
	EndTime        time.Time         `json:"end_time"`
	CreatedBy      string            `json:"created_by"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}
