package catalog

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ayerhssb/status-page/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Pagination constants.
const (
	DefaultStatusLogLimit = 50
	MaxStatusLogLimit     = 100
)

var errorMappings = httputil.WithDomainMappings(
	httputil.ErrorMapping{Error: ErrSlugExists, Status: http.StatusConflict},
	httputil.ErrorMapping{Error: ErrServiceHasActiveIncidents, Status: http.StatusConflict},
)

// Handler handles HTTP requests for the catalog module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new catalog handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers service routes under an {orgID} scope.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/services", func(r chi.Router) {
		r.Get("/", h.ListServices)
		r.Post("/", h.CreateService)
		r.Get("/{serviceID}", h.GetService)
		r.Patch("/{serviceID}", h.UpdateService)
		r.Delete("/{serviceID}", h.DeleteService)
		r.Get("/{serviceID}/status-log", h.GetServiceStatusLog)
		r.Post("/{serviceID}/recompute", h.RecomputeServiceStatus)
	})
}

// CreateServiceRequest represents the request body for creating a service.
type CreateServiceRequest struct {
	Name        string  `json:"name" validate:"required,min=1,max=255"`
	Slug        string  `json:"slug" validate:"omitempty,max=255"`
	Description string  `json:"description"`
	Status      *string `json:"status,omitempty"`
}

// UpdateServiceRequest represents the request body for updating a service.
type UpdateServiceRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=255"`
	Slug        *string `json:"slug" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description"`
	Status      *string `json:"status,omitempty"`
}

// CreateService handles POST /services.
func (h *Handler) CreateService(w http.ResponseWriter, r *http.Request) {
	var req CreateServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if req.Status != nil {
		httputil.Error(w, http.StatusBadRequest, ErrStatusNotWritable.Error())
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	service, err := h.service.CreateService(r.Context(), httputil.GetCaller(r.Context()), CreateServiceInput{
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, service)
}

// ListServices handles GET /services.
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.service.ListServices(r.Context(), chi.URLParam(r, httputil.OrganizationParam))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, services)
}

// GetService handles GET /services/{serviceID}.
func (h *Handler) GetService(w http.ResponseWriter, r *http.Request) {
	serviceID, ok := serviceIDParam(w, r)
	if !ok {
		return
	}

	service, err := h.service.GetService(r.Context(), chi.URLParam(r, httputil.OrganizationParam), serviceID)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, service)
}

// UpdateService handles PATCH /services/{serviceID}.
func (h *Handler) UpdateService(w http.ResponseWriter, r *http.Request) {
	serviceID, ok := serviceIDParam(w, r)
	if !ok {
		return
	}

	var req UpdateServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if req.Status != nil {
		httputil.Error(w, http.StatusBadRequest, ErrStatusNotWritable.Error())
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	service, err := h.service.UpdateService(r.Context(), chi.URLParam(r, httputil.OrganizationParam), serviceID, UpdateServiceInput{
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, service)
}

// DeleteService handles DELETE /services/{serviceID}.
func (h *Handler) DeleteService(w http.ResponseWriter, r *http.Request) {
	serviceID, ok := serviceIDParam(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteService(r.Context(), chi.URLParam(r, httputil.OrganizationParam), serviceID); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetServiceStatusLog handles GET /services/{serviceID}/status-log.
func (h *Handler) GetServiceStatusLog(w http.ResponseWriter, r *http.Request) {
	serviceID, ok := serviceIDParam(w, r)
	if !ok {
		return
	}

	limit := DefaultStatusLogLimit
	offset := 0

	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			httputil.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, MaxStatusLogLimit)
	}

	if o := r.URL.Query().Get("offset"); o != "" {
		parsed, err := strconv.Atoi(o)
		if err != nil || parsed < 0 {
			httputil.Error(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		offset = parsed
	}

	entries, total, err := h.service.ListStatusLog(r.Context(), chi.URLParam(r, httputil.OrganizationParam), serviceID, limit, offset)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

// RecomputeServiceStatus handles POST /services/{serviceID}/recompute.
func (h *Handler) RecomputeServiceStatus(w http.ResponseWriter, r *http.Request) {
	serviceID, ok := serviceIDParam(w, r)
	if !ok {
		return
	}

	result, err := h.service.RecomputeStatus(r.Context(), httputil.GetCaller(r.Context()), serviceID)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, result)
}

func serviceIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "serviceID")
	if _, err := uuid.Parse(id); err != nil {
		httputil.Error(w, http.StatusNotFound, ErrServiceNotFound.Error())
		return "", false
	}
	return id, true
}
