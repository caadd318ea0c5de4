package incidents

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ayerhssb/status-page/internal/domain"
	"github.com/ayerhssb/status-page/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handlerEnv struct {
	router    http.Handler
	store     *fakeStore
	serviceID string
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()
	svc, store, _ := newTestService(t)

	r := chi.NewRouter()
	r.Route("/organizations/{orgID}", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(httputil.WithCaller(req.Context(), testCaller)))
			})
		})
		NewHandler(svc).RegisterRoutes(r)
	})

	return &handlerEnv{router: r, store: store, serviceID: store.addService(testOrg)}
}

func (e *handlerEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, "/organizations/"+testOrg+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var resp struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Data
}

func decodeErrorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error.Message
}

func (e *handlerEnv) createIncident(t *testing.T, impact string) domain.Incident {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/incidents", CreateIncidentRequest{
		ServiceID:   e.serviceID,
		Title:       "API errors",
		Description: "Elevated 5xx",
		Status:      "INVESTIGATING",
		Impact:      impact,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeData[domain.Incident](t, rec)
}

func TestHandler_CreateIncident(t *testing.T) {
	env := newHandlerEnv(t)

	inc := env.createIncident(t, "MAJOR")

	assert.NotEmpty(t, inc.ID)
	assert.Equal(t, env.serviceID, inc.ServiceID)
	assert.Equal(t, domain.IncidentImpactMajor, inc.Impact)
	assert.Len(t, inc.Updates, 1)
	assert.Equal(t, domain.ServiceStatusPartialOutage, env.store.serviceStatus(env.serviceID))
}

func TestHandler_CreateIncident_BadRequests(t *testing.T) {
	env := newHandlerEnv(t)

	tests := []struct {
		name string
		body any
	}{
		{"invalid json", "not an object"},
		{"missing title", map[string]string{
			"service_id": env.serviceID, "description": "d", "status": "INVESTIGATING", "impact": "MINOR",
		}},
		{"lowercase status", map[string]string{
			"service_id": env.serviceID, "title": "t", "description": "d", "status": "investigating", "impact": "MINOR",
		}},
		{"unknown impact", map[string]string{
			"service_id": env.serviceID, "title": "t", "description": "d", "status": "INVESTIGATING", "impact": "SEVERE",
		}},
		{"service id not uuid", map[string]string{
			"service_id": "abc", "title": "t", "description": "d", "status": "INVESTIGATING", "impact": "MINOR",
		}},
		{"service of no organization", map[string]string{
			"service_id": uuid.NewString(), "title": "t", "description": "d", "status": "INVESTIGATING", "impact": "MINOR",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/incidents", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}

	assert.Equal(t, 0, env.store.incidentCount())
}

func TestHandler_GetIncident(t *testing.T) {
	env := newHandlerEnv(t)
	inc := env.createIncident(t, "MINOR")

	rec := env.do(t, http.MethodGet, "/incidents/"+inc.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeData[domain.Incident](t, rec)
	assert.Equal(t, inc.ID, got.ID)

	rec = env.do(t, http.MethodGet, "/incidents/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "incident not found", decodeErrorMessage(t, rec))

	rec = env.do(t, http.MethodGet, "/incidents/not-a-uuid", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_ListIncidents(t *testing.T) {
	env := newHandlerEnv(t)
	env.createIncident(t, "MINOR")
	resolved := env.createIncident(t, "MAJOR")
	rec := env.do(t, http.MethodPost, "/incidents/"+resolved.ID+"/updates", AddIncidentUpdateRequest{
		Message: "fixed", Status: "RESOLVED",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodGet, "/incidents", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeData[[]domain.Incident](t, rec), 2)

	rec = env.do(t, http.MethodGet, "/incidents?active=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeData[[]domain.Incident](t, rec), 1)

	rec = env.do(t, http.MethodGet, "/incidents?status=RESOLVED", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeData[[]domain.Incident](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, resolved.ID, list[0].ID)

	rec = env.do(t, http.MethodGet, "/incidents?limit=1&offset=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeData[[]domain.Incident](t, rec), 1)

	for _, query := range []string{"?status=done", "?limit=0", "?offset=-1", "?service_id=abc"} {
		rec = env.do(t, http.MethodGet, "/incidents"+query, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}

func TestHandler_UpdateIncident(t *testing.T) {
	env := newHandlerEnv(t)
	inc := env.createIncident(t, "CRITICAL")

	rec := env.do(t, http.MethodPatch, "/incidents/"+inc.ID, UpdateIncidentRequest{
		ServiceID:   env.serviceID,
		Title:       "API errors",
		Description: "Rolled back",
		Status:      "RESOLVED",
		Impact:      "CRITICAL",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeData[domain.Incident](t, rec)
	assert.Equal(t, domain.IncidentStatusResolved, updated.Status)
	assert.NotNil(t, updated.ResolvedAt)
	assert.Equal(t, domain.ServiceStatusOperational, env.store.serviceStatus(env.serviceID))

	rec = env.do(t, http.MethodPatch, "/incidents/"+inc.ID, UpdateIncidentRequest{
		ServiceID:   env.serviceID,
		Title:       "API errors",
		Description: "Reopen",
		Status:      "INVESTIGATING",
		Impact:      "CRITICAL",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ErrIncidentResolved.Error(), decodeErrorMessage(t, rec))
}

func TestHandler_IncidentUpdates(t *testing.T) {
	env := newHandlerEnv(t)
	inc := env.createIncident(t, "MAJOR")

	rec := env.do(t, http.MethodPost, "/incidents/"+inc.ID+"/updates", AddIncidentUpdateRequest{
		Message: "Root cause found", Status: "IDENTIFIED",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	update := decodeData[domain.IncidentUpdate](t, rec)
	assert.Equal(t, "Root cause found", update.Message)

	rec = env.do(t, http.MethodPost, "/incidents/"+inc.ID+"/updates", map[string]string{"status": "IDENTIFIED"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/incidents/"+inc.ID+"/updates", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	updates := decodeData[[]domain.IncidentUpdate](t, rec)
	require.Len(t, updates, 2)
	assert.Equal(t, update.ID, updates[1].ID)
}

func TestHandler_DeleteIncident(t *testing.T) {
	env := newHandlerEnv(t)
	inc := env.createIncident(t, "MAJOR")

	rec := env.do(t, http.MethodDelete, "/incidents/"+inc.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, domain.ServiceStatusOperational, env.store.serviceStatus(env.serviceID))

	rec = env.do(t, http.MethodDelete, "/incidents/"+inc.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_ConflictMapsTo409(t *testing.T) {
	env := newHandlerEnv(t)
	env.store.conflicts = 100

	rec := env.do(t, http.MethodPost, "/incidents", CreateIncidentRequest{
		ServiceID:   env.serviceID,
		Title:       "API errors",
		Description: "Elevated 5xx",
		Status:      "INVESTIGATING",
		Impact:      "MINOR",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "concurrent modification, please retry", decodeErrorMessage(t, rec))
}
