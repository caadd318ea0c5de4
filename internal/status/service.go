// Package status builds the public status page of an organization.
package status

import (
	"context"
	"fmt"
	"time"

	"github.com/ayerhssb/status-page/internal/domain"
	"github.com/ayerhssb/status-page/internal/incidents"
	"github.com/ayerhssb/status-page/internal/maintenance"
)

const (
	// RecentIncidentWindow bounds the incidents shown on the page.
	RecentIncidentWindow = 7 * 24 * time.Hour
	// RecentIncidentLimit caps how many of them are returned, newest first.
	RecentIncidentLimit = 50
)

// ServiceLister lists the services of an organization.
type ServiceLister interface {
	ListServices(ctx context.Context, organizationID string) ([]domain.Service, error)
}

// IncidentLister lists incidents with their timelines.
type IncidentLister interface {
	ListIncidents(ctx context.Context, filter incidents.IncidentFilter) ([]domain.Incident, error)
}

// MaintenanceLister lists maintenance windows.
type MaintenanceLister interface {
	List(ctx context.Context, filter maintenance.Filter) ([]domain.Maintenance, error)
}

// Summary is the public view of an organization.
type Summary struct {
	OrganizationID string               `json:"organization_id"`
	Status         domain.ServiceStatus `json:"status"`
	Description    string               `json:"description"`
	Services       []domain.Service     `json:"services"`
	Incidents      []domain.Incident    `json:"incidents"`
	Maintenance    []domain.Maintenance `json:"maintenance"`
	GeneratedAt    time.Time            `json:"generated_at"`
}

// Service assembles status summaries.
type Service struct {
	services    ServiceLister
	incidents   IncidentLister
	maintenance MaintenanceLister
	now         func() time.Time
}

// NewService creates a new status service.
func NewService(services ServiceLister, incidents IncidentLister, maintenance MaintenanceLister) *Service {
	return &Service{
		services:    services,
		incidents:   incidents,
		maintenance: maintenance,
		now:         time.Now,
	}
}

// Summary returns the organization's services with their derived status,
// the overall status, incidents of the last week and upcoming maintenance.
// Statuses are read as stored; nothing is recomputed here.
func (s *Service) Summary(ctx context.Context, organizationID string) (*Summary, error) {
	now := s.now().UTC()

	services, err := s.services.ListServices(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}

	statuses := make([]domain.ServiceStatus, 0, len(services))
	for _, svc := range services {
		statuses = append(statuses, svc.Status)
	}
	overall, err := domain.WorstServiceStatus(statuses)
	if err != nil {
		return nil, fmt.Errorf("overall status: %w", err)
	}

	since := now.Add(-RecentIncidentWindow)
	recent, err := s.incidents.ListIncidents(ctx, incidents.IncidentFilter{
		OrganizationID: organizationID,
		CreatedSince:   &since,
		Limit:          RecentIncidentLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("list recent incidents: %w", err)
	}

	upcoming, err := s.maintenance.List(ctx, maintenance.Filter{
		OrganizationID: organizationID,
		UpcomingOnly:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("list maintenance: %w", err)
	}

	return &Summary{
		OrganizationID: organizationID,
		Status:         overall,
		Description:    overall.Label(),
		Services:       services,
		Incidents:      recent,
		Maintenance:    upcoming,
		GeneratedAt:    now,
	}, nil
}
