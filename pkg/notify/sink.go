package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Envelope is the wire form of a notification. Every sink serializes the
// same shape so receivers can switch channels without re-parsing.
type Envelope struct {
	ID        string                 `json:"id"`
	EventType string                 `json:"event_type"`
	Target    string                 `json:"target"` // "user:<id>", "role:<name>" or "broadcast"
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func newEnvelope(target, eventType string, payload map[string]interface{}) *Envelope {
	return &Envelope{
		ID:        uuid.New().String(),
		EventType: eventType,
		Target:    target,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// Sink is an outbound notification channel.
type Sink interface {
	// SendToUser delivers an event addressed to a single user.
	SendToUser(ctx context.Context, userID, eventType string, payload map[string]interface{}) error

	// SendToRole delivers an event addressed to everyone holding a role.
	SendToRole(ctx context.Context, role, eventType string, payload map[string]interface{}) error

	// Broadcast delivers an event to all listeners.
	Broadcast(ctx context.Context, eventType string, payload map[string]interface{}) error

	// Close releases any resources held by the sink.
	Close() error
}

// NoopSink discards all notifications.
type NoopSink struct{}

// NewNoopSink returns a sink that drops everything.
func NewNoopSink() *NoopSink { return &NoopSink{} }

func (s *NoopSink) SendToUser(ctx context.Context, userID, eventType string, payload map[string]interface{}) error {
	return nil
}

func (s *NoopSink) SendToRole(ctx context.Context, role, eventType string, payload map[string]interface{}) error {
	return nil
}

func (s *NoopSink) Broadcast(ctx context.Context, eventType string, payload map[string]interface{}) error {
	return nil
}

func (s *NoopSink) Close() error { return nil }

// MultiSink fans every send out to all member sinks. Errors are collected
// so one failing channel does not hide deliveries on the others.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink combines sinks into one. Nil members are skipped.
func NewMultiSink(sinks ...Sink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

func (m *MultiSink) SendToUser(ctx context.Context, userID, eventType string, payload map[string]interface{}) error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.SendToUser(ctx, userID, eventType, payload); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *MultiSink) SendToRole(ctx context.Context, role, eventType string, payload map[string]interface{}) error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.SendToRole(ctx, role, eventType, payload); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *MultiSink) Broadcast(ctx context.Context, eventType string, payload map[string]interface{}) error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Broadcast(ctx, eventType, payload); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *MultiSink) Close() error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
