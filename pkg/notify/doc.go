// Package notify delivers user-facing and operational notifications
// produced by the authorization and session layers.
//
// A Sink is an outbound channel. Three implementations ship:
//
//   - NoopSink discards everything. It is the default when no channel is
//     configured, so callers never need a nil check.
//   - RedisSink publishes JSON envelopes on Redis pub/sub channels, one
//     channel per user, one per role, plus a broadcast channel.
//   - WebhookSink POSTs envelopes to an HTTP endpoint with an HMAC-SHA256
//     signature header so receivers can authenticate the sender.
//
// MultiSink fans a single send out to several sinks. Delivery is best
// effort throughout: the audit emitter swallows sink errors so a dead
// notification channel can never block an authorization decision or a
// session mutation.
package notify
