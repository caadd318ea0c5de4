package realtime

import (
	"time"

	"github.com/ayerhssb/status-page/internal/domain"
	"github.com/google/uuid"
)

// Envelope is the wire form of a published event.
type Envelope struct {
	ID          string              `json:"id"`
	Channel     string              `json:"channel"`
	Event       domain.EventName    `json:"event"`
	Data        domain.EventPayload `json:"data"`
	PublishedAt time.Time           `json:"published_at"`
}

// NewEnvelope addresses an event to the organization's channel.
func NewEnvelope(organizationID string, name domain.EventName, payload domain.EventPayload, at time.Time) Envelope {
	return Envelope{
		ID:          uuid.NewString(),
		Channel:     domain.OrganizationChannel(organizationID),
		Event:       name,
		Data:        payload,
		PublishedAt: at.UTC(),
	}
}
