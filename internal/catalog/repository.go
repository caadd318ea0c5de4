package catalog

import (
	"context"

	"github.com/ayerhssb/status-page/internal/domain"
)

// Repository defines the interface for catalog data operations.
// Service status is never written here; it belongs to status recomputation.
type Repository interface {
	CreateService(ctx context.Context, service *domain.Service) error
	GetService(ctx context.Context, organizationID, id string) (*domain.Service, error)
	ListServices(ctx context.Context, organizationID string) ([]domain.Service, error)
	UpdateService(ctx context.Context, service *domain.Service) error
	// DeleteService removes a service unless it has active incidents.
	DeleteService(ctx context.Context, organizationID, id string) error

	ListStatusLog(ctx context.Context, serviceID string, limit, offset int) ([]domain.ServiceStatusLogEntry, error)
	CountStatusLog(ctx context.Context, serviceID string) (int, error)
}
