package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"readquest/core"
)

// SignatureHeader carries the hex HMAC-SHA256 of the body when a secret is set.
const SignatureHeader = "X-Readquest-Signature"

// Sink posts domain events to configured HTTP endpoints.
// It is synchronous; register it on an async event bus to keep it off the request path.
type Sink struct {
	client    *http.Client
	endpoints []string
	secret    []byte
	types     map[core.EventType]struct{}
	logger    *slog.Logger
}

// Option configures a Sink.
type Option func(*Sink)

// WithClient overrides the HTTP client (defaults to 2s timeout).
func WithClient(c *http.Client) Option {
	return func(s *Sink) {
		if c != nil {
			s.client = c
		}
	}
}

// WithSecret signs every body with secret.
func WithSecret(secret string) Option {
	return func(s *Sink) { s.secret = []byte(secret) }
}

// WithEventTypes limits delivery to the given event types.
func WithEventTypes(types ...core.EventType) Option {
	return func(s *Sink) {
		if len(types) == 0 {
			return
		}
		s.types = make(map[core.EventType]struct{}, len(types))
		for _, t := range types {
			s.types[t] = struct{}{}
		}
	}
}

// WithLogger reports failed deliveries to l.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sink) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a webhook sink.
func New(endpoints []string, opts ...Option) *Sink {
	s := &Sink{
		client: &http.Client{Timeout: 2 * time.Second},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.endpoints = append([]string{}, endpoints...)
	return s
}

// Wants reports whether events of typ are delivered.
func (s *Sink) Wants(typ core.EventType) bool {
	if s.types == nil {
		return true
	}
	_, ok := s.types[typ]
	return ok
}

// OnEvent posts the event JSON to all endpoints. Failures are logged and not retried.
func (s *Sink) OnEvent(e core.Event) {
	s.Deliver(context.Background(), e)
}

// Deliver posts e and returns the number of endpoints that accepted it.
func (s *Sink) Deliver(ctx context.Context, e core.Event) int {
	if len(s.endpoints) == 0 || !s.Wants(e.Type) {
		return 0
	}
	body, err := json.Marshal(e)
	if err != nil {
		s.logger.Error("webhook marshal failed", "type", e.Type, "error", err)
		return 0
	}
	var signature string
	if len(s.secret) > 0 {
		mac := hmac.New(sha256.New, s.secret)
		mac.Write(body)
		signature = hex.EncodeToString(mac.Sum(nil))
	}

	delivered := 0
	for _, ep := range s.endpoints {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep, bytes.NewReader(body))
		if err != nil {
			s.logger.Warn("webhook request invalid", "endpoint", ep, "error", err)
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		if signature != "" {
			req.Header.Set(SignatureHeader, signature)
		}
		resp, err := s.client.Do(req)
		if err != nil {
			s.logger.Warn("webhook delivery failed", "endpoint", ep, "type", e.Type, "error", err)
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			s.logger.Warn("webhook rejected", "endpoint", ep, "type", e.Type, "status", resp.StatusCode)
			continue
		}
		delivered++
	}
	return delivered
}

// Verify checks a signature produced with secret over body.
func Verify(secret string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(signature))
}
