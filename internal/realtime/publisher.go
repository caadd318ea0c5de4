// Package realtime fans committed changes out to observers. Publishing is
// fire-and-forget: events are queued in memory and delivered by background
// workers, so a slow or unavailable transport never fails the write that
// produced the event.
package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ayerhssb/status-page/internal/domain"
	"github.com/ayerhssb/status-page/internal/pkg/ctxlog"
)

// Transport delivers an envelope to observers of its channel.
type Transport interface {
	Name() string
	Deliver(ctx context.Context, env Envelope) error
}

// Config contains publisher configuration.
type Config struct {
	QueueSize         int
	NumWorkers        int
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	PublishTimeout    time.Duration
}

// DefaultConfig returns default publisher configuration.
func DefaultConfig() Config {
	return Config{
		QueueSize:         1024,
		NumWorkers:        4,
		MaxAttempts:       3,
		InitialBackoff:    200 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		PublishTimeout:    5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.NumWorkers <= 0 {
		c.NumWorkers = d.NumWorkers
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.BackoffMultiplier < 1 {
		c.BackoffMultiplier = d.BackoffMultiplier
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = d.PublishTimeout
	}
	return c
}

// Publisher queues events and delivers them to every transport.
type Publisher struct {
	config     Config
	transports []Transport
	queue      chan Envelope
	now        func() time.Time

	mu     sync.RWMutex
	closed bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPublisher creates a publisher. Zero config values fall back to defaults.
func NewPublisher(config Config, transports ...Transport) *Publisher {
	config = config.withDefaults()
	return &Publisher{
		config:     config,
		transports: transports,
		queue:      make(chan Envelope, config.QueueSize),
		now:        time.Now,
	}
}

// Publish enqueues an event for the organization's channel. It never blocks:
// when the queue is full the event is dropped and ErrQueueFull returned.
func (p *Publisher) Publish(ctx context.Context, organizationID string, name domain.EventName, payload domain.EventPayload) error {
	if !name.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}

	env := NewEnvelope(organizationID, name, payload, p.now())

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPublisherClosed
	}

	select {
	case p.queue <- env:
		queueDepth.Set(float64(len(p.queue)))
		recordEvent(name, "queued")
		ctxlog.FromContext(ctx).Debug("event queued",
			"event", name,
			"channel", env.Channel,
			"event_id", env.ID,
		)
		return nil
	default:
		recordEvent(name, "dropped")
		return ErrQueueFull
	}
}

// Start launches delivery workers.
func (p *Publisher) Start(ctx context.Context) {
	names := make([]string, 0, len(p.transports))
	for _, t := range p.transports {
		names = append(names, t.Name())
	}
	slog.Info("starting realtime publisher",
		"workers", p.config.NumWorkers,
		"queue_size", p.config.QueueSize,
		"transports", names,
	)

	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	for i := 0; i < p.config.NumWorkers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
}

// Stop rejects new events and waits for queued ones to be delivered.
// When ctx expires first, in-flight deliveries are cancelled and the rest
// of the queue is discarded.
func (p *Publisher) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	cancel := p.cancel
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		if cancel != nil {
			cancel()
		}
		<-done
		err = fmt.Errorf("drain publisher queue: %w", ctx.Err())
	}
	if cancel != nil {
		cancel()
	}

	slog.Info("realtime publisher stopped")
	return err
}

func (p *Publisher) run(ctx context.Context, workerID int) {
	defer p.wg.Done()

	for env := range p.queue {
		queueDepth.Set(float64(len(p.queue)))
		if ctx.Err() != nil {
			recordEvent(env.Event, "dropped")
			continue
		}
		p.deliver(ctx, workerID, env)
	}
}

func (p *Publisher) deliver(ctx context.Context, workerID int, env Envelope) {
	for _, t := range p.transports {
		if err := p.deliverTo(ctx, t, env); err != nil {
			slog.Warn("event delivery failed",
				"worker", workerID,
				"transport", t.Name(),
				"event", env.Event,
				"channel", env.Channel,
				"event_id", env.ID,
				"error", err,
			)
			recordEvent(env.Event, "failed")
			continue
		}
		recordEvent(env.Event, "delivered")
	}
}

func (p *Publisher) deliverTo(ctx context.Context, t Transport, env Envelope) error {
	var err error
	for attempt := 1; attempt <= p.config.MaxAttempts; attempt++ {
		err = p.attempt(ctx, t, env)
		if err == nil {
			return nil
		}
		err = &TransportError{Transport: t.Name(), Err: err}

		if !IsRetryable(err) || attempt == p.config.MaxAttempts {
			break
		}

		backoff := p.backoff(attempt)
		recordEvent(env.Event, "retry")
		slog.Debug("retrying event delivery",
			"transport", t.Name(),
			"event_id", env.ID,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}

func (p *Publisher) attempt(ctx context.Context, t Transport, env Envelope) error {
	ctx, cancel := context.WithTimeout(ctx, p.config.PublishTimeout)
	defer cancel()

	start := time.Now()
	err := t.Deliver(ctx, env)
	recordDeliveryDuration(t.Name(), time.Since(start))
	return err
}

func (p *Publisher) backoff(attempt int) time.Duration {
	backoff := float64(p.config.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= p.config.BackoffMultiplier
	}

	if backoff > float64(p.config.MaxBackoff) {
		backoff = float64(p.config.MaxBackoff)
	}

	return time.Duration(backoff)
}
