//go:build integration

package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/ayerhssb/status-page/internal/domain"
	"github.com/ayerhssb/status-page/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func maintenanceBody(serviceID string, status domain.MaintenanceStatus, start time.Time) map[string]interface{} {
	return map[string]interface{}{
		"service_id":  serviceID,
		"title":       "Database upgrade",
		"description": "Upgrading to the next major version",
		"status":      status,
		"start_time":  start.UTC().Format(time.RFC3339),
		"end_time":    start.Add(2 * time.Hour).UTC().Format(time.RFC3339),
	}
}

func TestMaintenance_Lifecycle(t *testing.T) {
	tn := newTenant(t)
	svc := tn.createService(t, "Primary DB")
	start := time.Now().Add(24 * time.Hour).Truncate(time.Second)

	resp, err := tn.Client.POST(tn.path("/maintenance"), maintenanceBody(svc.ID, domain.MaintenanceStatusScheduled, start))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var m domain.Maintenance
	testutil.DecodeData(t, resp, &m)
	assert.True(t, start.Equal(m.StartTime))
	webhooks.waitForEvent(t, tn.OrgID, domain.EventMaintenanceCreated, func(p domain.EventPayload) bool {
		return p.MaintenanceID == m.ID
	})

	// Maintenance is informational and never changes the derived status.
	assert.Equal(t, domain.ServiceStatusOperational, tn.serviceStatus(t, svc.ID))

	resp, err = tn.Client.PATCH(tn.path("/maintenance/%s", m.ID), maintenanceBody(svc.ID, domain.MaintenanceStatusInProgress, start))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	testutil.DecodeData(t, resp, &m)
	assert.Equal(t, domain.MaintenanceStatusInProgress, m.Status)
	webhooks.waitForEvent(t, tn.OrgID, domain.EventMaintenanceUpdated, func(p domain.EventPayload) bool {
		return p.MaintenanceID == m.ID && p.Status == string(domain.MaintenanceStatusInProgress)
	})
	assert.Equal(t, domain.ServiceStatusOperational, tn.serviceStatus(t, svc.ID))

	resp, err = tn.Client.GET(tn.path("/maintenance?upcoming=true"))
	require.NoError(t, err)
	var upcoming []domain.Maintenance
	testutil.DecodeData(t, resp, &upcoming)
	require.Len(t, upcoming, 1)

	resp, err = tn.Client.DELETE(tn.path("/maintenance/%s", m.ID))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	_ = resp.Body.Close()
	webhooks.waitForEvent(t, tn.OrgID, domain.EventMaintenanceDeleted, func(p domain.EventPayload) bool {
		return p.MaintenanceID == m.ID
	})

	resp, err = tn.Client.GET(tn.path("/maintenance/%s", m.ID))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestMaintenance_Validation(t *testing.T) {
	tn := newTenant(t)
	svc := tn.createService(t, "Cache")
	foreign := newTenant(t).createService(t, "Foreign cache")
	client := tn.Client.WithoutValidation()
	start := time.Now().Add(time.Hour)

	inverted := maintenanceBody(svc.ID, domain.MaintenanceStatusScheduled, start)
	inverted["end_time"] = start.Add(-time.Hour).UTC().Format(time.RFC3339)

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"end before start", inverted},
		{"unknown status", maintenanceBody(svc.ID, "PLANNED", start)},
		{"service of another organization", maintenanceBody(foreign.ID, domain.MaintenanceStatusScheduled, start)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := client.POST(tn.path("/maintenance"), tt.body)
			require.NoError(t, err)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			_ = resp.Body.Close()
		})
	}
}
