// Package webhook delivers realtime envelopes to HTTP endpoints.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/ayerhssb/status-page/internal/realtime"
	"golang.org/x/time/rate"
)

// Request headers.
const (
	SignatureHeader = "X-Statuspage-Signature"
	EventHeader     = "X-Statuspage-Event"
	DeliveryHeader  = "X-Statuspage-Delivery"
)

const (
	defaultTimeout  = 10 * time.Second
	maxErrorBody    = 1024
	signaturePrefix = "sha256="
)

// Config holds webhook sender configuration.
type Config struct {
	URLs    []string
	Secret  string
	Timeout time.Duration
	// RateLimit is the number of requests per second across all URLs.
	// Zero disables limiting.
	RateLimit float64
	Burst     int
}

// Sender posts every envelope to each configured URL.
type Sender struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewSender creates a new webhook sender.
func NewSender(config Config) (*Sender, error) {
	if len(config.URLs) == 0 {
		return nil, errors.New("webhook sender: at least one url is required")
	}
	for _, raw := range config.URLs {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("webhook sender: invalid url %q", raw)
		}
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if config.RateLimit > 0 {
		burst := config.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}

	slog.Info("webhook sender configured",
		"urls", len(config.URLs),
		"signed", config.Secret != "",
		"rate_limit", config.RateLimit,
	)

	return &Sender{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: limiter,
	}, nil
}

// Name returns the transport name.
func (s *Sender) Name() string {
	return "webhook"
}

// Deliver posts the envelope to every URL. A retry re-posts to all of them;
// receivers deduplicate by the delivery header.
func (s *Sender) Deliver(ctx context.Context, env realtime.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return &PermanentError{Message: fmt.Sprintf("marshal envelope: %v", err)}
	}

	var errs []error
	for _, target := range s.config.URLs {
		if err := s.post(ctx, target, env, body); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}

	joined := errors.Join(errs...)
	for _, err := range errs {
		if realtime.IsRetryable(err) {
			return &RetryableError{Message: joined.Error()}
		}
	}
	return &PermanentError{Message: joined.Error()}
}

func (s *Sender) post(ctx context.Context, target string, env realtime.Envelope, body []byte) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return &RetryableError{Message: fmt.Sprintf("rate limit wait: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return &PermanentError{Message: fmt.Sprintf("create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, string(env.Event))
	req.Header.Set(DeliveryHeader, env.ID)
	if s.config.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(s.config.Secret, body))
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &RetryableError{Message: fmt.Sprintf("send request: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp, target)
}

func handleResponse(resp *http.Response, target string) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return &RetryableError{Message: fmt.Sprintf("read response: %v", err)}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		slog.Debug("webhook delivered", "url", maskURL(target), "status", resp.StatusCode)
		return nil

	case resp.StatusCode == http.StatusTooManyRequests:
		return &RetryableError{Code: resp.StatusCode, Message: "rate limited"}

	case resp.StatusCode >= 500:
		return &RetryableError{
			Code:    resp.StatusCode,
			Message: fmt.Sprintf("server error: %s", string(body)),
		}

	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return &PermanentError{Code: resp.StatusCode, Message: "endpoint rejected credentials"}

	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusGone:
		return &PermanentError{Code: resp.StatusCode, Message: "endpoint not found"}

	default:
		return &PermanentError{
			Code:    resp.StatusCode,
			Message: fmt.Sprintf("unexpected status: %s", string(body)),
		}
	}
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature header value in constant time.
func Verify(secret string, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}

// maskURL hides the path and query, which often carry tokens.
func maskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid-url"
	}
	return u.Scheme + "://" + u.Host + "/..."
}

// PermanentError indicates a delivery failure that should not be retried.
type PermanentError struct {
	Code    int
	Message string
}

func (e *PermanentError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("webhook error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("webhook error: %s", e.Message)
}

// IsRetryable returns false as permanent errors should not be retried.
func (e *PermanentError) IsRetryable() bool { return false }

// RetryableError indicates a temporary delivery failure.
type RetryableError struct {
	Code    int
	Message string
}

func (e *RetryableError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("webhook error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("webhook error: %s", e.Message)
}

// IsRetryable returns true as these errors are temporary.
func (e *RetryableError) IsRetryable() bool { return true }
