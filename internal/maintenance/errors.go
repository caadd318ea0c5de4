package maintenance

import "github.com/ayerhssb/status-page/internal/domain"

// Domain errors for the maintenance module.
var (
	ErrMaintenanceNotFound = domain.NewError(domain.ErrNotFound, "maintenance not found")
	ErrTitleRequired       = domain.NewError(domain.ErrValidation, "title is required")
	ErrDescriptionRequired = domain.NewError(domain.ErrValidation, "description is required")
	ErrInvalidStatus       = domain.NewError(domain.ErrValidation, "invalid maintenance status")
	ErrInvalidTimeRange    = domain.NewError(domain.ErrValidation, "end_time must be after start_time")
	ErrUnknownService      = domain.NewError(domain.ErrValidation, "service does not belong to organization")
)
