// Package maintenance manages scheduled maintenance windows. Maintenance is
// informational and never changes a service's derived status.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ayerhssb/status-page/internal/domain"
	"github.com/ayerhssb/status-page/internal/pkg/ctxlog"
)

// ServiceLookup resolves a service within an organization.
type ServiceLookup interface {
	GetService(ctx context.Context, organizationID, id string) (*domain.Service, error)
}

// EventPublisher emits change notifications after a write succeeded.
type EventPublisher interface {
	Publish(ctx context.Context, organizationID string, name domain.EventName, payload domain.EventPayload) error
}

// Service implements maintenance business logic.
type Service struct {
	repo      Repository
	services  ServiceLookup
	publisher EventPublisher
}

// NewService creates a new maintenance service. publisher may be nil.
func NewService(repo Repository, services ServiceLookup, publisher EventPublisher) *Service {
	return &Service{
		repo:      repo,
		services:  services,
		publisher: publisher,
	}
}

// Input holds the full state of a maintenance window.
type Input struct {
	ServiceID   string
	Title       string
	Description string
	Status      domain.MaintenanceStatus
	StartTime   time.Time
	EndTime     time.Time
}

func (in Input) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return ErrTitleRequired
	}
	if strings.TrimSpace(in.Description) == "" {
		return ErrDescriptionRequired
	}
	if !in.Status.IsValid() {
		return ErrInvalidStatus
	}
	if !in.EndTime.After(in.StartTime) {
		return ErrInvalidTimeRange
	}
	return nil
}

// Create schedules a maintenance window.
func (s *Service) Create(ctx context.Context, caller domain.Caller, input Input) (*domain.Maintenance, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	if err := s.checkService(ctx, caller.OrganizationID, input.ServiceID); err != nil {
		return nil, err
	}

	m := &domain.Maintenance{
		OrganizationID: caller.OrganizationID,
		ServiceID:      input.ServiceID,
		Title:          input.Title,
		Description:    input.Description,
		Status:         input.Status,
		StartTime:      input.StartTime.UTC(),
		EndTime:        input.EndTime.UTC(),
		CreatedBy:      caller.UserID,
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("create maintenance: %w", err)
	}

	s.publish(ctx, domain.EventMaintenanceCreated, m)
	return m, nil
}

// Get returns a maintenance window of the organization.
func (s *Service) Get(ctx context.Context, organizationID, id string) (*domain.Maintenance, error) {
	return s.repo.Get(ctx, organizationID, id)
}

// List returns maintenance windows ordered by start time, latest first.
func (s *Service) List(ctx context.Context, filter Filter) ([]domain.Maintenance, error) {
	list, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list maintenance: %w", err)
	}
	return list, nil
}

// Update replaces a maintenance window.
func (s *Service) Update(ctx context.Context, caller domain.Caller, id string, input Input) (*domain.Maintenance, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	m, err := s.repo.Get(ctx, caller.OrganizationID, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkService(ctx, caller.OrganizationID, input.ServiceID); err != nil {
		return nil, err
	}

	m.ServiceID = input.ServiceID
	m.Title = input.Title
	m.Description = input.Description
	m.Status = input.Status
	m.StartTime = input.StartTime.UTC()
	m.EndTime = input.EndTime.UTC()

	if err := s.repo.Update(ctx, m); err != nil {
		return nil, err
	}

	s.publish(ctx, domain.EventMaintenanceUpdated, m)
	return m, nil
}

// Delete removes a maintenance window.
func (s *Service) Delete(ctx context.Context, caller domain.Caller, id string) error {
	m, err := s.repo.Get(ctx, caller.OrganizationID, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, caller.OrganizationID, id); err != nil {
		return err
	}

	s.publish(ctx, domain.EventMaintenanceDeleted, m)
	return nil
}

func (s *Service) checkService(ctx context.Context, organizationID, serviceID string) error {
	if _, err := s.services.GetService(ctx, organizationID, serviceID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ErrUnknownService
		}
		return fmt.Errorf("get service: %w", err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, name domain.EventName, m *domain.Maintenance) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.Publish(ctx, m.OrganizationID, name, domain.EventPayload{
		MaintenanceID: m.ID,
		ServiceID:     m.ServiceID,
		Status:        string(m.Status),
	})
	if err != nil {
		ctxlog.FromContext(ctx).Warn("failed to publish event",
			"event", name,
			"organization_id", m.OrganizationID,
			"maintenance_id", m.ID,
			"error", err,
		)
	}
}
