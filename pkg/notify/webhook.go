package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookSink POSTs notification envelopes to a single HTTP endpoint.
// When a secret is configured every request carries an HMAC-SHA256
// signature of the body in X-Warden-Signature.
type WebhookSink struct {
	url    string
	secret string
	client *http.Client
}

// NewWebhookSink builds a sink for the given endpoint. Pass an empty
// secret to skip signing. A nil client gets a 10 second default.
func NewWebhookSink(url, secret string, client *http.Client) *WebhookSink {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookSink{url: url, secret: secret, client: client}
}

func (s *WebhookSink) deliver(ctx context.Context, env *Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Warden-Event", env.EventType)
	req.Header.Set("X-Warden-Event-ID", env.ID)
	req.Header.Set("X-Warden-Delivery", time.Now().UTC().Format(time.RFC3339))
	if s.secret != "" {
		req.Header.Set("X-Warden-Signature", Sign(payload, s.secret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned non-2xx status: %d", resp.StatusCode)
	}
	return nil
}

func (s *WebhookSink) SendToUser(ctx context.Context, userID, eventType string, payload map[string]interface{}) error {
	return s.deliver(ctx, newEnvelope("user:"+userID, eventType, payload))
}

func (s *WebhookSink) SendToRole(ctx context.Context, role, eventType string, payload map[string]interface{}) error {
	return s.deliver(ctx, newEnvelope("role:"+role, eventType, payload))
}

func (s *WebhookSink) Broadcast(ctx context.Context, eventType string, payload map[string]interface{}) error {
	return s.deliver(ctx, newEnvelope("broadcast", eventType, payload))
}

func (s *WebhookSink) Close() error { return nil }

// Sign computes the signature header value for a payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received signature against the payload.
// Receivers use it to authenticate inbound deliveries.
func VerifySignature(payload []byte, signature, secret string) bool {
	return hmac.Equal([]byte(Sign(payload, secret)), []byte(signature))
}
