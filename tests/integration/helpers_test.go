//go:build integration

package integration

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ayerhssb/status-page/internal/domain"
	"github.com/ayerhssb/status-page/internal/realtime"
	"github.com/ayerhssb/status-page/internal/realtime/webhook"
	"github.com/ayerhssb/status-page/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const webhookSecret = "webhook-test-secret"

// tenant is an isolated organization with an authenticated client.
type tenant struct {
	OrgID  string
	Caller domain.Caller
	Client *testutil.Client
}

// newTenant creates a fresh organization so tests never share state.
func newTenant(t *testing.T) *tenant {
	t.Helper()

	caller := domain.Caller{UserID: "user-" + uuid.NewString()[:8], OrganizationID: "org-" + uuid.NewString()}
	return &tenant{
		OrgID:  caller.OrganizationID,
		Caller: caller,
		Client: newTestClient(t).WithToken(testutil.MintToken(t, caller)),
	}
}

func (tn *tenant) path(format string, args ...interface{}) string {
	return "/api/v1/organizations/" + tn.OrgID + fmt.Sprintf(format, args...)
}

func (tn *tenant) createService(t *testing.T, name string) domain.Service {
	t.Helper()

	resp, err := tn.Client.POST(tn.path("/services"), map[string]interface{}{
		"name":        name,
		"description": name + " service",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var svc domain.Service
	testutil.DecodeData(t, resp, &svc)
	return svc
}

func (tn *tenant) getService(t *testing.T, id string) domain.Service {
	t.Helper()

	resp, err := tn.Client.GET(tn.path("/services/%s", id))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var svc domain.Service
	testutil.DecodeData(t, resp, &svc)
	return svc
}

func (tn *tenant) serviceStatus(t *testing.T, id string) domain.ServiceStatus {
	t.Helper()
	return tn.getService(t, id).Status
}

func (tn *tenant) createIncident(t *testing.T, serviceID string, impact domain.IncidentImpact, status domain.IncidentStatus) domain.Incident {
	t.Helper()

	resp, err := tn.Client.POST(tn.path("/incidents"), map[string]interface{}{
		"service_id":  serviceID,
		"title":       "Incident " + uuid.NewString()[:8],
		"description": "Something is wrong",
		"status":      status,
		"impact":      impact,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode, "create incident")

	var incident domain.Incident
	testutil.DecodeData(t, resp, &incident)
	return incident
}

func (tn *tenant) addUpdate(t *testing.T, incidentID string, status domain.IncidentStatus) domain.IncidentUpdate {
	t.Helper()

	resp, err := tn.Client.POST(tn.path("/incidents/%s/updates", incidentID), map[string]interface{}{
		"message": "Status changed to " + string(status),
		"status":  status,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode, "add update")

	var update domain.IncidentUpdate
	testutil.DecodeData(t, resp, &update)
	return update
}

func (tn *tenant) getIncident(t *testing.T, id string) domain.Incident {
	t.Helper()

	resp, err := tn.Client.GET(tn.path("/incidents/%s", id))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var incident domain.Incident
	testutil.DecodeData(t, resp, &incident)
	return incident
}

// webhookRecorder is the webhook target configured for the application.
type webhookRecorder struct {
	server *httptest.Server

	mu        sync.Mutex
	envelopes []realtime.Envelope
	badSigs   int
}

func newWebhookRecorder() *webhookRecorder {
	rec := &webhookRecorder{}
	rec.server = httptest.NewServer(http.HandlerFunc(rec.handle))
	return rec
}

func (rec *webhookRecorder) URL() string { return rec.server.URL }

func (rec *webhookRecorder) Close() { rec.server.Close() }

func (rec *webhookRecorder) handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if !webhook.Verify(webhookSecret, body, r.Header.Get(webhook.SignatureHeader)) {
		rec.badSigs++
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var env realtime.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	rec.envelopes = append(rec.envelopes, env)
	w.WriteHeader(http.StatusNoContent)
}

// forChannel returns the envelopes received for an organization channel.
func (rec *webhookRecorder) forChannel(orgID string) []realtime.Envelope {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	channel := domain.OrganizationChannel(orgID)
	var out []realtime.Envelope
	for _, env := range rec.envelopes {
		if env.Channel == channel {
			out = append(out, env)
		}
	}
	return out
}

// waitForEvent waits until an envelope matching name and match arrives on
// the organization channel.
func (rec *webhookRecorder) waitForEvent(t *testing.T, orgID string, name domain.EventName, match func(domain.EventPayload) bool) realtime.Envelope {
	t.Helper()

	var found realtime.Envelope
	require.Eventually(t, func() bool {
		for _, env := range rec.forChannel(orgID) {
			if env.Event == name && (match == nil || match(env.Data)) {
				found = env
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond, "event %s on %s", name, orgID)

	rec.mu.Lock()
	assert.Zero(t, rec.badSigs, "webhook deliveries with invalid signatures")
	rec.mu.Unlock()
	return found
}
