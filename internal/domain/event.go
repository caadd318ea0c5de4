package domain

import "time"

// EventName identifies a change notification. The set is closed.
type EventName string

// Event names.
const (
	EventIncidentCreated    EventName = "incident-created"
	EventIncidentUpdated    EventName = "incident-updated"
	EventIncidentDeleted    EventName = "incident-deleted"
	EventMaintenanceCreated EventName = "maintenance-created"
	EventMaintenanceUpdated EventName = "maintenance-updated"
	EventMaintenanceDeleted EventName = "maintenance-deleted"
)

// IsValid checks if the event name belongs to the closed set.
func (e EventName) IsValid() bool {
	switch e {
	case EventIncidentCreated, EventIncidentUpdated, EventIncidentDeleted,
		EventMaintenanceCreated, EventMaintenanceUpdated, EventMaintenanceDeleted:
		return true
	}
	return false
}

// EventPayload is a small invalidation descriptor. Observers re-fetch
// authoritative state instead of applying it.
type EventPayload struct {
	IncidentID        string          `json:"incident_id,omitempty"`
	MaintenanceID     string          `json:"maintenance_id,omitempty"`
	ServiceID         string          `json:"service_id"`
	PreviousServiceID string          `json:"previous_service_id,omitempty"`
	Status            string          `json:"status,omitempty"`
	Impact            IncidentImpact  `json:"impact,omitempty"`
	Update            *UpdateSnapshot `json:"update,omitempty"`
}

// UpdateSnapshot describes a freshly appended incident update.
type UpdateSnapshot struct {
	ID        string         `json:"id"`
	Message   string         `json:"message"`
	Status    IncidentStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
}

// OrganizationChannel returns the broadcast channel name for an organization.
func OrganizationChannel(organizationID string) string {
	return "organization-" + organizationID
}
