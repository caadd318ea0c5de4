// Package catalog manages the services an organization exposes on its status page.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/ayerhssb/status-page/internal/domain"
	"github.com/ayerhssb/status-page/internal/incidents"
)

// StatusRecomputer re-derives a service status from its incidents.
type StatusRecomputer interface {
	RecomputeService(ctx context.Context, organizationID, serviceID, actor string) (*incidents.RecomputeResult, error)
}

// Service implements catalog business logic.
type Service struct {
	repo       Repository
	recomputer StatusRecomputer
}

// NewService creates a new catalog service.
func NewService(repo Repository, recomputer StatusRecomputer) *Service {
	return &Service{
		repo:       repo,
		recomputer: recomputer,
	}
}

// CreateServiceInput holds data for creating a service.
type CreateServiceInput struct {
	Name        string
	Slug        string
	Description string
}

// UpdateServiceInput holds a partial update; nil fields are left unchanged.
type UpdateServiceInput struct {
	Name        *string
	Slug        *string
	Description *string
}

// CreateService creates a service. New services start OPERATIONAL and the
// slug defaults to one derived from the name.
func (s *Service) CreateService(ctx context.Context, caller domain.Caller, input CreateServiceInput) (*domain.Service, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, ErrNameRequired
	}

	slug := strings.TrimSpace(input.Slug)
	if slug == "" {
		slug = Slugify(name)
	}
	if !ValidSlug(slug) {
		return nil, ErrInvalidSlug
	}

	service := &domain.Service{
		OrganizationID: caller.OrganizationID,
		Name:           name,
		Slug:           slug,
		Description:    input.Description,
		Status:         domain.ServiceStatusOperational,
	}
	if err := s.repo.CreateService(ctx, service); err != nil {
		return nil, err
	}
	return service, nil
}

// GetService returns a service of the organization.
func (s *Service) GetService(ctx context.Context, organizationID, id string) (*domain.Service, error) {
	return s.repo.GetService(ctx, organizationID, id)
}

// ListServices returns all services of the organization ordered by name.
func (s *Service) ListServices(ctx context.Context, organizationID string) ([]domain.Service, error) {
	services, err := s.repo.ListServices(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	return services, nil
}

// UpdateService changes the descriptive fields of a service.
func (s *Service) UpdateService(ctx context.Context, organizationID, id string, input UpdateServiceInput) (*domain.Service, error) {
	service, err := s.repo.GetService(ctx, organizationID, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, ErrNameRequired
		}
		service.Name = name
	}
	if input.Slug != nil {
		slug := strings.TrimSpace(*input.Slug)
		if !ValidSlug(slug) {
			return nil, ErrInvalidSlug
		}
		service.Slug = slug
	}
	if input.Description != nil {
		service.Description = *input.Description
	}

	if err := s.repo.UpdateService(ctx, service); err != nil {
		return nil, err
	}
	return service, nil
}

// DeleteService deletes a service. Services with active incidents are kept.
func (s *Service) DeleteService(ctx context.Context, organizationID, id string) error {
	return s.repo.DeleteService(ctx, organizationID, id)
}

// ListStatusLog returns a page of derived status changes, newest first, with the total count.
func (s *Service) ListStatusLog(ctx context.Context, organizationID, serviceID string, limit, offset int) ([]domain.ServiceStatusLogEntry, int, error) {
	if _, err := s.repo.GetService(ctx, organizationID, serviceID); err != nil {
		return nil, 0, err
	}

	entries, err := s.repo.ListStatusLog(ctx, serviceID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list status log: %w", err)
	}

	total, err := s.repo.CountStatusLog(ctx, serviceID)
	if err != nil {
		return nil, 0, fmt.Errorf("count status log: %w", err)
	}

	return entries, total, nil
}

// RecomputeStatus re-derives the service status on behalf of the caller.
func (s *Service) RecomputeStatus(ctx context.Context, caller domain.Caller, serviceID string) (*incidents.RecomputeResult, error) {
	if _, err := s.repo.GetService(ctx, caller.OrganizationID, serviceID); err != nil {
		return nil, err
	}
	return s.recomputer.RecomputeService(ctx, caller.OrganizationID, serviceID, caller.UserID)
}
