package maintenance

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ayerhssb/status-page/internal/domain"
	"github.com/ayerhssb/status-page/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var errorMappings = httputil.WithDomainMappings()

// Handler handles HTTP requests for the maintenance module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new maintenance handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers maintenance routes under an {orgID} scope.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/maintenance", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/{maintenanceID}", h.Get)
		r.Patch("/{maintenanceID}", h.Update)
		r.Delete("/{maintenanceID}", h.Delete)
	})
}

// MaintenanceRequest is the request body for creating or replacing a maintenance window.
type MaintenanceRequest struct {
	ServiceID   string    `json:"service_id" validate:"required,uuid"`
	Title       string    `json:"title" validate:"required,min=1,max=255"`
	Description string    `json:"description" validate:"required"`
	Status      string    `json:"status" validate:"required,oneof=SCHEDULED IN_PROGRESS COMPLETED CANCELLED"`
	StartTime   time.Time `json:"start_time" validate:"required"`
	EndTime     time.Time `json:"end_time" validate:"required,gtfield=StartTime"`
}

func (r MaintenanceRequest) toInput() Input {
	return Input{
		ServiceID:   r.ServiceID,
		Title:       r.Title,
		Description: r.Description,
		Status:      domain.MaintenanceStatus(r.Status),
		StartTime:   r.StartTime,
		EndTime:     r.EndTime,
	}
}

// Create handles POST /maintenance.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	m, err := h.service.Create(r.Context(), httputil.GetCaller(r.Context()), req.toInput())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, m)
}

// List handles GET /maintenance.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter := Filter{OrganizationID: chi.URLParam(r, httputil.OrganizationParam)}

	if serviceID := r.URL.Query().Get("service_id"); serviceID != "" {
		if _, err := uuid.Parse(serviceID); err != nil {
			httputil.Error(w, http.StatusBadRequest, "invalid service_id")
			return
		}
		filter.ServiceID = &serviceID
	}
	if r.URL.Query().Get("upcoming") == "true" {
		filter.UpcomingOnly = true
	}

	list, err := h.service.List(r.Context(), filter)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, list)
}

// Get handles GET /maintenance/{maintenanceID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := maintenanceIDParam(w, r)
	if !ok {
		return
	}

	m, err := h.service.Get(r.Context(), chi.URLParam(r, httputil.OrganizationParam), id)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, m)
}

// Update handles PATCH /maintenance/{maintenanceID}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := maintenanceIDParam(w, r)
	if !ok {
		return
	}

	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	m, err := h.service.Update(r.Context(), httputil.GetCaller(r.Context()), id, req.toInput())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, m)
}

// Delete handles DELETE /maintenance/{maintenanceID}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := maintenanceIDParam(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), httputil.GetCaller(r.Context()), id); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (MaintenanceRequest, bool) {
	var req MaintenanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return req, false
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return req, false
	}
	return req, true
}

func maintenanceIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "maintenanceID")
	if _, err := uuid.Parse(id); err != nil {
		httputil.Error(w, http.StatusNotFound, ErrMaintenanceNotFound.Error())
		return "", false
	}
	return id, true
}
