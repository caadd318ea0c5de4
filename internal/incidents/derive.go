package incidents

import (
	"fmt"

	"github.com/ayerhssb/status-page/internal/domain"
)

// DeriveServiceStatus reduces a service's incidents to its status: the most
// severe impact among active incidents, or OPERATIONAL if there are none.
// Resolved incidents are ignored. The result does not depend on input order.
func DeriveServiceStatus(incidents []domain.Incident) (domain.ServiceStatus, error) {
	maxRank := 0
	var worst domain.IncidentImpact

	for _, inc := range incidents {
		if !inc.IsActive() {
			continue
		}
		rank, err := inc.Impact.Rank()
		if err != nil {
			return "", fmt.Errorf("incident %s: %w", inc.ID, err)
		}
		if rank > maxRank {
			maxRank = rank
			worst = inc.Impact
		}
	}

	if maxRank == 0 {
		return domain.ServiceStatusOperational, nil
	}
	return worst.ServiceStatus()
}
