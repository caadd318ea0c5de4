package status

import (
	"net/http"

	"github.com/ayerhssb/status-page/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
)

// Handler serves the public status page.
type Handler struct {
	service *Service
}

// NewHandler creates a new status handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers public status routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/status/{orgID}", h.Summary)
}

// Summary handles GET /status/{orgID}.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Summary(r.Context(), chi.URLParam(r, httputil.OrganizationParam))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}

	w.Header().Set("Cache-Control", "no-cache")
	httputil.Success(w, http.StatusOK, summary)
}
