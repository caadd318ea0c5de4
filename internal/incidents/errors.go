package incidents

import "github.com/ayerhssb/status-page/internal/domain"

// Lookup errors.
var (
	ErrIncidentNotFound = domain.NewError(domain.ErrNotFound, "incident not found")
	ErrServiceNotFound  = domain.NewError(domain.ErrNotFound, "service not found")
)

// Validation errors.
var (
	ErrTitleRequired       = domain.NewError(domain.ErrValidation, "title is required")
	ErrDescriptionRequired = domain.NewError(domain.ErrValidation, "description is required")
	ErrMessageRequired     = domain.NewError(domain.ErrValidation, "message is required")
	ErrServiceRequired     = domain.NewError(domain.ErrValidation, "service is required")
	ErrInvalidStatus       = domain.NewError(domain.ErrValidation, "invalid incident status")
	ErrInvalidImpact       = domain.NewError(domain.ErrValidation, "invalid incident impact")
	ErrUnknownService      = domain.NewError(domain.ErrValidation, "service does not belong to organization")
	ErrIncidentResolved    = domain.NewError(domain.ErrValidation, "incident is resolved and cannot be reopened")
)

// ErrConcurrentModification is returned when a concurrent writer changed
// the rows an operation locked. The controller retries it.
var ErrConcurrentModification = domain.NewError(domain.ErrConflict, "incident was modified concurrently")
