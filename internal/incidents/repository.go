package incidents

import (
	"context"
	"time"

	"github.com/ayerhssb/status-page/internal/domain"
)

// Repository defines the interface for incident storage.
type Repository interface {
	// RunInTx executes fn in a single atomic unit. If fn returns an error
	// nothing it wrote is kept. Serialization failures detected by the
	// store are reported as domain.ErrConflict.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetIncident(ctx context.Context, organizationID, id string) (*domain.Incident, error)
	ListIncidents(ctx context.Context, filter IncidentFilter) ([]domain.Incident, error)
	ListIncidentUpdates(ctx context.Context, incidentID string) ([]domain.IncidentUpdate, error)
	// ListUpdatesByIncidents returns the timelines of several incidents,
	// oldest first, keyed by incident ID. Incidents without updates are absent.
	ListUpdatesByIncidents(ctx context.Context, incidentIDs []string) (map[string][]domain.IncidentUpdate, error)
	ListServiceRefs(ctx context.Context, organizationID string) ([]ServiceRef, error)
}

// ServiceRef identifies a service and its owning organization.
type ServiceRef struct {
	ID             string
	OrganizationID string
}

// Tx is the set of store operations available inside an atomic unit.
//
// Every unit of work locks the services it touches first, with one
// LockServices call, before reading or writing incidents of those services.
// Locks are held until the unit ends.
type Tx interface {
	// LockServices takes exclusive locks on the given services of the
	// organization, in id order. An empty organizationID matches any
	// organization. Returns ErrServiceNotFound if any of them is missing.
	LockServices(ctx context.Context, organizationID string, serviceIDs ...string) error

	GetIncident(ctx context.Context, organizationID, id string) (*domain.Incident, error)
	LockIncident(ctx context.Context, organizationID, id string) (*domain.Incident, error)
	GetActiveIncidentsByService(ctx context.Context, serviceID string) ([]domain.Incident, error)

	CreateIncident(ctx context.Context, incident *domain.Incident, initial *domain.IncidentUpdate) error
	UpdateIncident(ctx context.Context, incident *domain.Incident) error
	DeleteIncident(ctx context.Context, organizationID, id string) error
	AppendIncidentUpdate(ctx context.Context, update *domain.IncidentUpdate) error

	GetServiceStatus(ctx context.Context, serviceID string) (domain.ServiceStatus, error)
	SetServiceStatus(ctx context.Context, serviceID string, status domain.ServiceStatus) error
	CreateStatusLogEntry(ctx context.Context, entry *domain.ServiceStatusLogEntry) error
}

// IncidentFilter holds filter options for listing incidents.
type IncidentFilter struct {
	OrganizationID string
	ServiceID      *string
	Status         *domain.IncidentStatus
	ActiveOnly     bool
	CreatedSince   *time.Time
	Limit          int
	Offset         int
}
