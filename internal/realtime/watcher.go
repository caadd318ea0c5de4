package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Debouncer runs fn once after delay has passed without another Trigger.
// Calls to fn never overlap: a delay expiring while fn runs is folded into
// one more call after the current one returns.
type Debouncer struct {
	delay time.Duration
	fn    func()

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
	running bool
	rerun   bool
}

// NewDebouncer creates a trailing debouncer.
func NewDebouncer(delay time.Duration, fn func()) *Debouncer {
	return &Debouncer{delay: delay, fn: fn}
}

// Trigger (re)starts the delay.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fire)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	if d.running {
		d.rerun = true
		d.mu.Unlock()
		return
	}
	d.running = true
	d.mu.Unlock()

	for {
		d.fn()

		d.mu.Lock()
		if !d.rerun || d.stopped {
			d.running = false
			d.rerun = false
			d.mu.Unlock()
			return
		}
		d.rerun = false
		d.mu.Unlock()
	}
}

// Stop cancels a pending call and ignores later triggers.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	d.rerun = false
	if d.timer != nil {
		d.timer.Stop()
	}
}

// WatcherConfig contains observer configuration.
type WatcherConfig struct {
	URL        string
	Header     http.Header
	Debounce   time.Duration
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// Watcher keeps a websocket subscription open and calls refresh whenever the
// observed state may have changed. Event payloads are not interpreted.
type Watcher struct {
	config  WatcherConfig
	refresh func(context.Context)
	dialer  *websocket.Dialer
}

// NewWatcher creates a watcher for a status websocket URL.
func NewWatcher(config WatcherConfig, refresh func(context.Context)) *Watcher {
	if config.Debounce <= 0 {
		config.Debounce = 250 * time.Millisecond
	}
	if config.MinBackoff <= 0 {
		config.MinBackoff = 500 * time.Millisecond
	}
	if config.MaxBackoff < config.MinBackoff {
		config.MaxBackoff = 30 * time.Second
	}
	return &Watcher{
		config:  config,
		refresh: refresh,
		dialer:  websocket.DefaultDialer,
	}
}

// Run watches until ctx is cancelled, reconnecting with capped exponential
// backoff. It always returns ctx.Err().
func (w *Watcher) Run(ctx context.Context) error {
	debouncer := NewDebouncer(w.config.Debounce, func() {
		if ctx.Err() == nil {
			w.refresh(ctx)
		}
	})
	defer debouncer.Stop()

	backoff := w.config.MinBackoff
	for {
		connected, err := w.watch(ctx, debouncer)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = w.config.MinBackoff
		}

		slog.Warn("status watcher disconnected",
			"url", w.config.URL,
			"retry_in", backoff,
			"error", err,
		)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		backoff *= 2
		if backoff > w.config.MaxBackoff {
			backoff = w.config.MaxBackoff
		}
	}
}

func (w *Watcher) watch(ctx context.Context, debouncer *Debouncer) (bool, error) {
	conn, resp, err := w.dialer.DialContext(ctx, w.config.URL, w.config.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	slog.Debug("status watcher connected", "url", w.config.URL)

	// Anything may have changed while disconnected.
	debouncer.Trigger()

	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return true, fmt.Errorf("read: %w", err)
		}
		slog.Debug("status watcher received event",
			"event", env.Event,
			"channel", env.Channel,
			"event_id", env.ID,
		)
		debouncer.Trigger()
	}
}
