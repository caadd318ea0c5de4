package incidents

import (
	"testing"

	"github.com/ayerhssb/status-page/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func incidentWith(impact domain.IncidentImpact, status domain.IncidentStatus) domain.Incident {
	return domain.Incident{ID: string(impact) + "-" + string(status), Impact: impact, Status: status}
}

func TestDeriveServiceStatus(t *testing.T) {
	tests := []struct {
		name      string
		incidents []domain.Incident
		expected  domain.ServiceStatus
	}{
		{"no incidents", nil, domain.ServiceStatusOperational},
		{
			"only resolved incidents",
			[]domain.Incident{
				incidentWith(domain.IncidentImpactCritical, domain.IncidentStatusResolved),
				incidentWith(domain.IncidentImpactMinor, domain.IncidentStatusResolved),
			},
			domain.ServiceStatusOperational,
		},
		{
			"single minor",
			[]domain.Incident{incidentWith(domain.IncidentImpactMinor, domain.IncidentStatusInvestigating)},
			domain.ServiceStatusDegraded,
		},
		{
			"single major",
			[]domain.Incident{incidentWith(domain.IncidentImpactMajor, domain.IncidentStatusIdentified)},
			domain.ServiceStatusPartialOutage,
		},
		{
			"single critical",
			[]domain.Incident{incidentWith(domain.IncidentImpactCritical, domain.IncidentStatusMonitoring)},
			domain.ServiceStatusMajorOutage,
		},
		{
			"most severe active wins",
			[]domain.Incident{
				incidentWith(domain.IncidentImpactMinor, domain.IncidentStatusInvestigating),
				incidentWith(domain.IncidentImpactMajor, domain.IncidentStatusMonitoring),
			},
			domain.ServiceStatusPartialOutage,
		},
		{
			"resolved critical is ignored",
			[]domain.Incident{
				incidentWith(domain.IncidentImpactCritical, domain.IncidentStatusResolved),
				incidentWith(domain.IncidentImpactMinor, domain.IncidentStatusIdentified),
			},
			domain.ServiceStatusDegraded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, err := DeriveServiceStatus(tt.incidents)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, status)
		})
	}
}

func TestDeriveServiceStatus_OrderIndependent(t *testing.T) {
	a := incidentWith(domain.IncidentImpactMinor, domain.IncidentStatusInvestigating)
	b := incidentWith(domain.IncidentImpactCritical, domain.IncidentStatusIdentified)
	c := incidentWith(domain.IncidentImpactMajor, domain.IncidentStatusMonitoring)
	d := incidentWith(domain.IncidentImpactCritical, domain.IncidentStatusResolved)

	orders := [][]domain.Incident{
		{a, b, c, d},
		{d, c, b, a},
		{b, a, d, c},
		{c, d, a, b},
	}
	for _, order := range orders {
		status, err := DeriveServiceStatus(order)
		require.NoError(t, err)
		assert.Equal(t, domain.ServiceStatusMajorOutage, status)
	}
}

func TestDeriveServiceStatus_ResolvingMostSevereLowersStatus(t *testing.T) {
	incidents := []domain.Incident{
		incidentWith(domain.IncidentImpactMajor, domain.IncidentStatusMonitoring),
		incidentWith(domain.IncidentImpactCritical, domain.IncidentStatusInvestigating),
	}

	status, err := DeriveServiceStatus(incidents)
	require.NoError(t, err)
	assert.Equal(t, domain.ServiceStatusMajorOutage, status)

	incidents[1].Status = domain.IncidentStatusResolved
	status, err = DeriveServiceStatus(incidents)
	require.NoError(t, err)
	assert.Equal(t, domain.ServiceStatusPartialOutage, status)

	incidents[0].Status = domain.IncidentStatusResolved
	status, err = DeriveServiceStatus(incidents)
	require.NoError(t, err)
	assert.Equal(t, domain.ServiceStatusOperational, status)
}

func TestDeriveServiceStatus_UnknownImpact(t *testing.T) {
	_, err := DeriveServiceStatus([]domain.Incident{
		incidentWith(domain.IncidentImpactMinor, domain.IncidentStatusInvestigating),
		{ID: "bogus", Impact: "CATASTROPHIC", Status: domain.IncidentStatusInvestigating},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CATASTROPHIC")
}

func TestDeriveServiceStatus_UnknownImpactOnResolvedIncidentIgnored(t *testing.T) {
	status, err := DeriveServiceStatus([]domain.Incident{
		{ID: "old", Impact: "CATASTROPHIC", Status: domain.IncidentStatusResolved},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ServiceStatusOperational, status)
}
