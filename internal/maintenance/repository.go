package maintenance

import (
	"context"

	"github.com/ayerhssb/status-page/internal/domain"
)

// Repository defines the interface for maintenance data operations.
type Repository interface {
	Create(ctx context.Context, m *domain.Maintenance) error
	Get(ctx context.Context, organizationID, id string) (*domain.Maintenance, error)
	List(ctx context.Context, filter Filter) ([]domain.Maintenance, error)
	Update(ctx context.Context, m *domain.Maintenance) error
	Delete(ctx context.Context, organizationID, id string) error
}

// Filter represents filter criteria for listing maintenance windows.
type Filter struct {
	OrganizationID string
	ServiceID      *string
	// UpcomingOnly keeps SCHEDULED and IN_PROGRESS windows.
	UpcomingOnly bool
}
