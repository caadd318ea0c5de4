package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ayerhssb/status-page/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHubServer(t *testing.T, config HubConfig) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(config)
	r := chi.NewRouter()
	r.Get("/status/{orgID}/ws", hub.ServeWS)
	server := httptest.NewServer(r)
	t.Cleanup(func() {
		hub.Close()
		server.Close()
	})
	return hub, server
}

func wsURL(server *httptest.Server, organizationID string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/status/" + organizationID + "/ws"
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestHub_DeliversToOrganizationChannel(t *testing.T) {
	hub, server := newHubServer(t, HubConfig{})
	conn := dial(t, wsURL(server, "org-1"), nil)

	require.Eventually(t, func() bool {
		return hub.SubscriberCount(domain.OrganizationChannel("org-1")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	other := NewEnvelope("org-2", domain.EventIncidentCreated, domain.EventPayload{ServiceID: "svc-2"}, time.Now())
	mine := NewEnvelope("org-1", domain.EventIncidentUpdated, domain.EventPayload{ServiceID: "svc-1", Status: "MONITORING"}, time.Now())
	require.NoError(t, hub.Deliver(context.Background(), other))
	require.NoError(t, hub.Deliver(context.Background(), mine))

	got := readEnvelope(t, conn)
	assert.Equal(t, mine.ID, got.ID)
	assert.Equal(t, "organization-org-1", got.Channel)
	assert.Equal(t, domain.EventIncidentUpdated, got.Event)
	assert.Equal(t, "svc-1", got.Data.ServiceID)
	assert.Equal(t, "MONITORING", got.Data.Status)

	next := NewEnvelope("org-1", domain.EventIncidentDeleted, domain.EventPayload{ServiceID: "svc-1"}, time.Now())
	require.NoError(t, hub.Deliver(context.Background(), next))
	assert.Equal(t, next.ID, readEnvelope(t, conn).ID)
}

func TestHub_DisconnectUnsubscribes(t *testing.T) {
	hub, server := newHubServer(t, HubConfig{})
	conn := dial(t, wsURL(server, "org-1"), nil)

	channel := domain.OrganizationChannel("org-1")
	require.Eventually(t, func() bool { return hub.SubscriberCount(channel) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.SubscriberCount(channel) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_CheckOrigin(t *testing.T) {
	_, server := newHubServer(t, HubConfig{AllowedOrigins: []string{"https://status.example.com"}})

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(server, "org-1"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	dial(t, wsURL(server, "org-1"), http.Header{"Origin": []string{"https://status.example.com"}})
}

func TestHub_CheckOrigin_SameHostByDefault(t *testing.T) {
	hub := NewHub(HubConfig{})

	r := httptest.NewRequest(http.MethodGet, "http://status.example.com/ws", nil)
	r.Header.Set("Origin", "http://status.example.com")
	assert.True(t, hub.checkOrigin(r))

	r.Header.Set("Origin", "http://other.example.com")
	assert.False(t, hub.checkOrigin(r))

	r.Header.Del("Origin")
	assert.True(t, hub.checkOrigin(r), "non-browser clients send no origin")

	wildcard := NewHub(HubConfig{AllowedOrigins: []string{"*"}})
	r.Header.Set("Origin", "http://other.example.com")
	assert.True(t, wildcard.checkOrigin(r))
}

func TestHub_DropsSlowSubscriber(t *testing.T) {
	hub := NewHub(HubConfig{SendBuffer: 1})
	s := &subscriber{
		id:      "slow",
		channel: domain.OrganizationChannel("org-1"),
		send:    make(chan []byte, 1),
		done:    make(chan struct{}),
	}
	require.True(t, hub.add(s))

	env := NewEnvelope("org-1", domain.EventIncidentUpdated, domain.EventPayload{}, time.Now())
	require.NoError(t, hub.Deliver(context.Background(), env))
	assert.Equal(t, 1, hub.SubscriberCount(s.channel))

	require.NoError(t, hub.Deliver(context.Background(), env))
	assert.Equal(t, 0, hub.SubscriberCount(s.channel))

	select {
	case <-s.done:
	default:
		t.Fatal("slow subscriber was not closed")
	}
}

func TestHub_Close(t *testing.T) {
	hub, server := newHubServer(t, HubConfig{})
	conn := dial(t, wsURL(server, "org-1"), nil)

	channel := domain.OrganizationChannel("org-1")
	require.Eventually(t, func() bool { return hub.SubscriberCount(channel) == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Close()
	assert.Equal(t, 0, hub.SubscriberCount(channel))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	s := &subscriber{channel: channel, send: make(chan []byte, 1), done: make(chan struct{})}
	assert.False(t, hub.add(s))
}
