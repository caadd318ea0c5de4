package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncidentImpact_TablesCoverEveryImpact(t *testing.T) {
	for _, impact := range Impacts() {
		t.Run(string(impact), func(t *testing.T) {
			_, err := impact.Rank()
			require.NoError(t, err)

			status, err := impact.ServiceStatus()
			require.NoError(t, err)
			assert.True(t, status.IsValid())
		})
	}
}

func TestIncidentImpact_RankIsStrictlyIncreasing(t *testing.T) {
	impacts := Impacts()
	for i := 1; i < len(impacts); i++ {
		prev, err := impacts[i-1].Rank()
		require.NoError(t, err)
		cur, err := impacts[i].Rank()
		require.NoError(t, err)
		assert.Less(t, prev, cur, "%s should be less severe than %s", impacts[i-1], impacts[i])
	}
}

func TestIncidentImpact_ServiceStatus(t *testing.T) {
	tests := []struct {
		impact   IncidentImpact
		expected ServiceStatus
	}{
		{IncidentImpactMinor, ServiceStatusDegraded},
		{IncidentImpactMajor, ServiceStatusPartialOutage},
		{IncidentImpactCritical, ServiceStatusMajorOutage},
	}

	for _, tt := range tests {
		t.Run(string(tt.impact), func(t *testing.T) {
			status, err := tt.impact.ServiceStatus()
			require.NoError(t, err)
			assert.Equal(t, tt.expected, status)
		})
	}
}

func TestIncidentImpact_Unknown(t *testing.T) {
	impact := IncidentImpact("CATASTROPHIC")

	assert.False(t, impact.IsValid())
	_, err := impact.Rank()
	assert.Error(t, err)
	_, err = impact.ServiceStatus()
	assert.Error(t, err)
}

func TestIncidentStatus_IsActive(t *testing.T) {
	assert.True(t, IncidentStatusInvestigating.IsActive())
	assert.True(t, IncidentStatusIdentified.IsActive())
	assert.True(t, IncidentStatusMonitoring.IsActive())
	assert.False(t, IncidentStatusResolved.IsActive())
	assert.False(t, IncidentStatus("resolved").IsValid())
}

func TestWorstServiceStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []ServiceStatus
		expected ServiceStatus
	}{
		{"empty", nil, ServiceStatusOperational},
		{"all operational", []ServiceStatus{ServiceStatusOperational, ServiceStatusOperational}, ServiceStatusOperational},
		{"one degraded", []ServiceStatus{ServiceStatusOperational, ServiceStatusDegraded}, ServiceStatusDegraded},
		{"mixed", []ServiceStatus{ServiceStatusPartialOutage, ServiceStatusMajorOutage, ServiceStatusDegraded}, ServiceStatusMajorOutage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, err := WorstServiceStatus(tt.statuses)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, status)
		})
	}

	_, err := WorstServiceStatus([]ServiceStatus{"BROKEN"})
	assert.Error(t, err)
}

func TestServiceStatus_Label(t *testing.T) {
	assert.Equal(t, "Major System Outage", ServiceStatusMajorOutage.Label())
	assert.Equal(t, "All Systems Operational", ServiceStatusOperational.Label())
}

func TestEventName_IsValid(t *testing.T) {
	assert.True(t, EventIncidentDeleted.IsValid())
	assert.True(t, EventMaintenanceUpdated.IsValid())
	assert.False(t, EventName("service-created").IsValid())
}

func TestCaller_CanAccess(t *testing.T) {
	caller := Caller{UserID: "u1", OrganizationID: "org_1"}

	assert.True(t, caller.CanAccess("org_1"))
	assert.False(t, caller.CanAccess("org_2"))
	assert.False(t, Caller{}.CanAccess(""))
}

func TestError_Class(t *testing.T) {
	err := NewError(ErrNotFound, "incident not found")

	assert.Equal(t, "incident not found", err.Error())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrValidation)
}
