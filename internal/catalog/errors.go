package catalog

import "github.com/ayerhssb/status-page/internal/domain"

// Domain errors for the catalog module.
var (
	ErrServiceNotFound           = domain.NewError(domain.ErrNotFound, "service not found")
	ErrNameRequired              = domain.NewError(domain.ErrValidation, "name is required")
	ErrInvalidSlug               = domain.NewError(domain.ErrValidation, "slug must contain only lowercase letters, digits and single hyphens")
	ErrStatusNotWritable         = domain.NewError(domain.ErrValidation, "status is derived from incidents and cannot be set")
	ErrSlugExists                = domain.NewError(domain.ErrConflict, "slug already exists")
	ErrServiceHasActiveIncidents = domain.NewError(domain.ErrConflict, "service has active incidents")
)
