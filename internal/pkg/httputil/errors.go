package httputil

import (
	"context"
	"errors"
	"net/http"

	"github.com/ayerhssb/status-page/internal/domain"
	"github.com/ayerhssb/status-page/internal/pkg/ctxlog"
)

// ErrorMapping defines how a domain error maps to an HTTP response.
type ErrorMapping struct {
	Error   error
	Status  int
	Message string // if empty, uses err.Error()
}

// HandleError maps a domain error to an HTTP response using provided mappings.
// If no mapping matches, logs the error and returns 500 Internal Server Error.
func HandleError(ctx context.Context, w http.ResponseWriter, err error, mappings []ErrorMapping) {
	for _, m := range mappings {
		if errors.Is(err, m.Error) {
			msg := m.Message
			if msg == "" {
				msg = err.Error()
			}
			Error(w, m.Status, msg)
			return
		}
	}
	ctxlog.FromContext(ctx).Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, "internal error")
}

// DomainErrorMappings maps the shared domain error classes. Handlers append
// them after their package-specific mappings.
var DomainErrorMappings = []ErrorMapping{
	{Error: domain.ErrValidation, Status: http.StatusBadRequest},
	{Error: domain.ErrNotFound, Status: http.StatusNotFound},
	{Error: domain.ErrConflict, Status: http.StatusConflict, Message: "concurrent modification, please retry"},
}

// WithDomainMappings returns mappings followed by DomainErrorMappings.
func WithDomainMappings(mappings ...ErrorMapping) []ErrorMapping {
	out := make([]ErrorMapping, 0, len(mappings)+len(DomainErrorMappings))
	out = append(out, mappings...)
	return append(out, DomainErrorMappings...)
}
