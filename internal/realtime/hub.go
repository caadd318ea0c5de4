package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ayerhssb/status-page/internal/domain"
	"github.com/ayerhssb/status-page/internal/pkg/ctxlog"
	"github.com/ayerhssb/status-page/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const maxClientMessageSize = 512

// HubConfig contains websocket hub configuration.
type HubConfig struct {
	// AllowedOrigins lists browser origins allowed to subscribe. "*" allows
	// any origin; an empty list allows only same-host pages.
	AllowedOrigins []string
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	SendBuffer     int
}

// DefaultHubConfig returns default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
		SendBuffer:   64,
	}
}

// Hub is the websocket transport. Each connection subscribes to exactly one
// organization channel.
type Hub struct {
	config   HubConfig
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	channels map[string]map[*subscriber]struct{}
	closed   bool
}

type subscriber struct {
	id      string
	channel string
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
}

// NewHub creates a websocket hub.
func NewHub(config HubConfig) *Hub {
	d := DefaultHubConfig()
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = d.WriteTimeout
	}
	if config.PingInterval <= 0 {
		config.PingInterval = d.PingInterval
	}
	if config.SendBuffer <= 0 {
		config.SendBuffer = d.SendBuffer
	}

	h := &Hub{
		config:   config,
		channels: make(map[string]map[*subscriber]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Name returns the transport name.
func (h *Hub) Name() string {
	return "websocket"
}

// Deliver sends the envelope to every subscriber of its channel. Subscribers
// whose send buffer is full are disconnected; they reconnect and re-fetch.
func (h *Hub) Deliver(_ context.Context, env Envelope) error {
	msg, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.channels[env.Channel]))
	for s := range h.channels[env.Channel] {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	for _, s := range subs {
		select {
		case s.send <- msg:
		case <-s.done:
		default:
			slog.Warn("dropping slow websocket subscriber",
				"subscriber_id", s.id,
				"channel", s.channel,
			)
			h.remove(s)
		}
	}
	return nil
}

// ServeWS handles GET /status/{orgID}/ws.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	organizationID := chi.URLParam(r, httputil.OrganizationParam)
	if organizationID == "" {
		httputil.Error(w, http.StatusNotFound, "organization not found")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		ctxlog.FromContext(r.Context()).Warn("websocket upgrade failed", "error", err)
		return
	}

	s := &subscriber{
		id:      uuid.NewString(),
		channel: domain.OrganizationChannel(organizationID),
		conn:    conn,
		send:    make(chan []byte, h.config.SendBuffer),
		done:    make(chan struct{}),
	}
	if !h.add(s) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(h.config.WriteTimeout))
		_ = conn.Close()
		return
	}

	ctxlog.FromContext(r.Context()).Debug("websocket subscriber connected",
		"subscriber_id", s.id,
		"channel", s.channel,
	)

	go h.writePump(s)
	go h.readPump(s)
}

// SubscriberCount returns the number of subscribers on a channel.
func (h *Hub) SubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var subs []*subscriber
	for _, set := range h.channels {
		for s := range set {
			subs = append(subs, s)
		}
	}
	h.mu.Unlock()

	for _, s := range subs {
		h.remove(s)
	}
}

func (h *Hub) add(s *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	set, ok := h.channels[s.channel]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.channels[s.channel] = set
	}
	set[s] = struct{}{}
	subscribers.Inc()
	return true
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	if set, ok := h.channels[s.channel]; ok {
		if _, ok := set[s]; ok {
			delete(set, s)
			subscribers.Dec()
		}
		if len(set) == 0 {
			delete(h.channels, s.channel)
		}
	}
	h.mu.Unlock()

	s.once.Do(func() { close(s.done) })
}

// readPump discards client messages and notices disconnects.
func (h *Hub) readPump(s *subscriber) {
	defer h.remove(s)

	pongWait := 2 * h.config.PingInterval
	s.conn.SetReadLimit(maxClientMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("websocket subscriber read failed", "subscriber_id", s.id, "error", err)
			}
			return
		}
	}
}

// writePump is the only writer of data frames on the connection.
func (h *Hub) writePump(s *subscriber) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case msg := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				slog.Debug("websocket write failed", "subscriber_id", s.id, "error", err)
				h.remove(s)
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(s)
				return
			}
		case <-s.done:
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(h.config.WriteTimeout))
			return
		}
	}
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	for _, allowed := range h.config.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	if len(h.config.AllowedOrigins) > 0 {
		return false
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}
