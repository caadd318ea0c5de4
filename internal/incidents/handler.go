package incidents

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ayerhssb/status-page/internal/domain"
	"github.com/ayerhssb/status-page/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Pagination constants.
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

var errorMappings = httputil.WithDomainMappings()

// Handler handles HTTP requests for the incidents module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new incidents handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers incident routes. They expect an {orgID} route
// parameter and an authenticated caller scoped to it.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/incidents", func(r chi.Router) {
		r.Get("/", h.ListIncidents)
		r.Post("/", h.CreateIncident)
		r.Get("/{incidentID}", h.GetIncident)
		r.Patch("/{incidentID}", h.UpdateIncident)
		r.Delete("/{incidentID}", h.DeleteIncident)
		r.Get("/{incidentID}/updates", h.ListIncidentUpdates)
		r.Post("/{incidentID}/updates", h.AddIncidentUpdate)
	})
}

// CreateIncidentRequest represents the request body for creating an incident.
type CreateIncidentRequest struct {
	ServiceID   string `json:"service_id" validate:"required,uuid"`
	Title       string `json:"title" validate:"required,min=1,max=255"`
	Description string `json:"description" validate:"required"`
	Status      string `json:"status" validate:"required,oneof=INVESTIGATING IDENTIFIED MONITORING RESOLVED"`
	Impact      string `json:"impact" validate:"required,oneof=MINOR MAJOR CRITICAL"`
}

// UpdateIncidentRequest represents the request body for updating an incident.
// All fields are required: the incident is replaced as a whole.
type UpdateIncidentRequest struct {
	ServiceID   string `json:"service_id" validate:"required,uuid"`
	Title       string `json:"title" validate:"required,min=1,max=255"`
	Description string `json:"description" validate:"required"`
	Status      string `json:"status" validate:"required,oneof=INVESTIGATING IDENTIFIED MONITORING RESOLVED"`
	Impact      string `json:"impact" validate:"required,oneof=MINOR MAJOR CRITICAL"`
}

// AddIncidentUpdateRequest represents the request body for appending an update.
type AddIncidentUpdateRequest struct {
	Message string `json:"message" validate:"required"`
	Status  string `json:"status" validate:"required,oneof=INVESTIGATING IDENTIFIED MONITORING RESOLVED"`
}

// CreateIncident handles POST /incidents.
func (h *Handler) CreateIncident(w http.ResponseWriter, r *http.Request) {
	var req CreateIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	incident, err := h.service.CreateIncident(r.Context(), httputil.GetCaller(r.Context()), CreateIncidentInput{
		ServiceID:   req.ServiceID,
		Title:       req.Title,
		Description: req.Description,
		Status:      domain.IncidentStatus(req.Status),
		Impact:      domain.IncidentImpact(req.Impact),
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, incident)
}

// ListIncidents handles GET /incidents.
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := IncidentFilter{
		OrganizationID: chi.URLParam(r, httputil.OrganizationParam),
		Limit:          DefaultListLimit,
	}

	if serviceID := query.Get("service_id"); serviceID != "" {
		if _, err := uuid.Parse(serviceID); err != nil {
			httputil.Error(w, http.StatusBadRequest, "invalid service_id")
			return
		}
		filter.ServiceID = &serviceID
	}

	if status := query.Get("status"); status != "" {
		s := domain.IncidentStatus(status)
		if !s.IsValid() {
			httputil.Error(w, http.StatusBadRequest, "invalid status")
			return
		}
		filter.Status = &s
	}

	if query.Get("active") == "true" {
		filter.ActiveOnly = true
	}

	if v := query.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			httputil.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = min(limit, MaxListLimit)
	}

	if v := query.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			httputil.Error(w, http.StatusBadRequest, "invalid offset")
			return
		}
		filter.Offset = offset
	}

	list, err := h.service.ListIncidents(r.Context(), filter)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, list)
}

// GetIncident handles GET /incidents/{incidentID}.
func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	incidentID, ok := incidentIDParam(w, r)
	if !ok {
		return
	}

	incident, err := h.service.GetIncident(r.Context(), chi.URLParam(r, httputil.OrganizationParam), incidentID)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, incident)
}

// UpdateIncident handles PATCH /incidents/{incidentID}.
func (h *Handler) UpdateIncident(w http.ResponseWriter, r *http.Request) {
	incidentID, ok := incidentIDParam(w, r)
	if !ok {
		return
	}

	var req UpdateIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	incident, err := h.service.UpdateIncident(r.Context(), httputil.GetCaller(r.Context()), incidentID, UpdateIncidentInput{
		ServiceID:   req.ServiceID,
		Title:       req.Title,
		Description: req.Description,
		Status:      domain.IncidentStatus(req.Status),
		Impact:      domain.IncidentImpact(req.Impact),
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, incident)
}

// DeleteIncident handles DELETE /incidents/{incidentID}.
func (h *Handler) DeleteIncident(w http.ResponseWriter, r *http.Request) {
	incidentID, ok := incidentIDParam(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteIncident(r.Context(), httputil.GetCaller(r.Context()), incidentID); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListIncidentUpdates handles GET /incidents/{incidentID}/updates.
func (h *Handler) ListIncidentUpdates(w http.ResponseWriter, r *http.Request) {
	incidentID, ok := incidentIDParam(w, r)
	if !ok {
		return
	}

	updates, err := h.service.ListIncidentUpdates(r.Context(), chi.URLParam(r, httputil.OrganizationParam), incidentID)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, updates)
}

// AddIncidentUpdate handles POST /incidents/{incidentID}/updates.
func (h *Handler) AddIncidentUpdate(w http.ResponseWriter, r *http.Request) {
	incidentID, ok := incidentIDParam(w, r)
	if !ok {
		return
	}

	var req AddIncidentUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	update, err := h.service.AddIncidentUpdate(r.Context(), httputil.GetCaller(r.Context()), incidentID, AddUpdateInput{
		Message: req.Message,
		Status:  domain.IncidentStatus(req.Status),
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, update)
}

// incidentIDParam reads the incident id; ids that are not UUIDs cannot exist.
func incidentIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "incidentID")
	if _, err := uuid.Parse(id); err != nil {
		httputil.Error(w, http.StatusNotFound, ErrIncidentNotFound.Error())
		return "", false
	}
	return id, true
}
