package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const (
	userChannelPrefix = "warden:notify:user:"
	roleChannelPrefix = "warden:notify:role:"
	broadcastChannel  = "warden:notify:broadcast"
)

// RedisSink publishes notification envelopes on Redis pub/sub channels.
// Each user and each role gets its own channel so consumers subscribe to
// exactly the streams they care about.
type RedisSink struct {
	client *redis.Client
}

// NewRedisSink wraps an existing Redis client. The sink does not own the
// client and Close is a no-op.
func NewRedisSink(client *redis.Client) *RedisSink {
	return &RedisSink{client: client}
}

func (s *RedisSink) publish(ctx context.Context, channel string, env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := s.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

func (s *RedisSink) SendToUser(ctx context.Context, userID, eventType string, payload map[string]interface{}) error {
	env := newEnvelope("user:"+userID, eventType, payload)
	return s.publish(ctx, userChannelPrefix+userID, env)
}

func (s *RedisSink) SendToRole(ctx context.Context, role, eventType string, payload map[string]interface{}) error {
	env := newEnvelope("role:"+role, eventType, payload)
	return s.publish(ctx, roleChannelPrefix+role, env)
}

func (s *RedisSink) Broadcast(ctx context.Context, eventType string, payload map[string]interface{}) error {
	env := newEnvelope("broadcast", eventType, payload)
	return s.publish(ctx, broadcastChannel, env)
}

func (s *RedisSink) Close() error { return nil }

// UserChannel returns the pub/sub channel name for a user, for consumers
// that subscribe directly.
func UserChannel(userID string) string { return userChannelPrefix + userID }

// RoleChannel returns the pub/sub channel name for a role.
func RoleChannel(role string) string { return roleChannelPrefix + role }

// BroadcastChannel returns the shared broadcast channel name.
func BroadcastChannel() string { return broadcastChannel }
