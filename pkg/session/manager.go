package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wardenhq/warden/pkg/async"
	"github.com/wardenhq/warden/pkg/audit"
	"github.com/wardenhq/warden/pkg/observability"
)

// CreateInput carries everything needed to open a session.
type CreateInput struct {
	UserID           string
	AccessTokenHash  string
	RefreshTokenHash string
	Device           DeviceInfo
	Location         Location
	IPAddress        string
	TTL              time.Duration

	// MfaRequired starts the session in pending_mfa instead of active.
	MfaRequired bool
}

// Manager drives the session state machine. All mutations go through
// the Store's conditional single-row writes, so concurrent operations
// on the same session are serialized by the store, not by the manager.
type Manager struct {
	store   Store
	emitter *audit.Emitter
	logger  *observability.Logger
	metrics *observability.Metrics

	now func() time.Time
}

// NewManager builds a manager. emitter must be non-nil; metrics may be
// nil in tests.
func NewManager(store Store, emitter *audit.Emitter, logger *observability.Logger, metrics *observability.Metrics) *Manager {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Manager{
		store:   store,
		emitter: emitter,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

func (m *Manager) observe(op string, start time.Time, err error) {
	if m.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.metrics.SessionOperationsTotal.WithLabelValues(op, status).Inc()
	m.metrics.SessionOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// CreateSession opens a new session for a login. A prior active session
// for the same user raises a concurrent-login alert but never blocks
// the new session.
func (m *Manager) CreateSession(ctx context.Context, in CreateInput) (*Session, error) {
	start := m.now()
	if in.UserID == "" {
		return nil, errors.New("user id must not be empty")
	}
	if in.TTL <= 0 {
		return nil, errors.New("session ttl must be positive")
	}

	// Counted before the insert so the new session itself is excluded.
	others, err := m.store.CountActiveForUser(ctx, in.UserID)
	if err != nil {
		m.logger.WithError(err).WithField("user_id", in.UserID).
			Warn("concurrent-login check failed, continuing")
		others = 0
	}

	now := m.now().UTC()
	state := StateActive
	if in.MfaRequired {
		state = StatePendingMFA
	}
	sess := &Session{
		ID:               uuid.NewString(),
		UserID:           in.UserID,
		AccessTokenHash:  in.AccessTokenHash,
		RefreshTokenHash: in.RefreshTokenHash,
		State:            state,
		Device:           in.Device,
		Location:         in.Location,
		IPAddress:        in.IPAddress,
		MfaVerified:      false,
		LastActivity:     now,
		ExpiresAt:        now.Add(in.TTL),
		CreatedAt:        now,
	}
	if err := m.store.Insert(ctx, sess); err != nil {
		m.observe("create", start, err)
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	m.emitter.Record(ctx, &audit.Entry{
		Action:       audit.ActionSessionCreated,
		PerformedBy:  in.UserID,
		ResourceType: "session",
		ResourceID:   sess.ID,
		Status:       audit.StatusSuccess,
		Severity:     audit.SeverityLow,
		IPAddress:    in.IPAddress,
		Metadata: map[string]interface{}{
			"state":      string(state),
			"expires_at": sess.ExpiresAt,
		},
	})
	if others > 0 {
		m.emitter.Record(ctx, &audit.Entry{
			Action:         audit.ActionConcurrentLogin,
			PerformedBy:    in.UserID,
			ResourceType:   "session",
			ResourceID:     sess.ID,
			Status:         audit.StatusSuccess,
			Severity:       audit.SeverityMedium,
			IPAddress:      in.IPAddress,
			ChangesSummary: fmt.Sprintf("user has %d other active sessions", others),
		})
		// fire-and-forget: the alert must not slow down the login
		async.SafeGoNoError(async.Detached(ctx), 5*time.Second, "concurrent-login alert", func(ctx context.Context) {
			m.emitter.NotifyUser(ctx, in.UserID, string(audit.ActionConcurrentLogin), map[string]interface{}{
				"session_id":     sess.ID,
				"other_sessions": others,
				"ip_address":     in.IPAddress,
			})
		})
	}

	if m.metrics != nil {
		m.metrics.SessionsActive.Inc()
	}
	m.observe("create", start, nil)
	return sess, nil
}

// ValidateSession is the hot path: a single indexed lookup plus an
// advisory activity update. It fails closed: a missing session, a
// terminal state, a passed deadline or an unreachable store all come
// back as ErrSessionInvalid.
func (m *Manager) ValidateSession(ctx context.Context, sessionID string) (*Session, error) {
	start := m.now()
	sess, err := m.store.FindBySessionID(ctx, sessionID)
	if err != nil {
		m.observe("validate", start, err)
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: not found", ErrSessionInvalid)
		}
		// Store unreachable or deadline exceeded: deny rather than
		// retry indefinitely.
		return nil, fmt.Errorf("%w: lookup failed: %v", ErrSessionInvalid, err)
	}
	if !sess.Active() {
		m.observe("validate", start, ErrSessionInvalid)
		return nil, fmt.Errorf("%w: %s", ErrSessionInvalid, sess.State)
	}
	// Expiry is checked against the clock even if the stored state has
	// not been swept yet.
	if sess.ExpiredAt(m.now()) {
		m.observe("validate", start, ErrSessionInvalid)
		return nil, fmt.Errorf("%w: expired at %s", ErrSessionInvalid, sess.ExpiresAt.Format(time.RFC3339))
	}

	if err := m.store.UpdateActivity(ctx, sessionID, m.now().UTC()); err != nil {
		m.logger.WithError(err).WithField("session_id", sessionID).
			Warn("activity update failed")
	}
	m.observe("validate", start, nil)
	return sess, nil
}

// FindByTokenHash resolves a hashed bearer token to its session. It
// does not validate; callers follow up with ValidateSession.
func (m *Manager) FindByTokenHash(ctx context.Context, hash string) (*Session, error) {
	sess, err := m.store.FindByAccessTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown token", ErrSessionInvalid)
		}
		return nil, fmt.Errorf("%w: lookup failed: %v", ErrSessionInvalid, err)
	}
	return sess, nil
}

// MarkMfaVerified transitions pending_mfa to active.
func (m *Manager) MarkMfaVerified(ctx context.Context, sessionID string) error {
	start := m.now()
	err := m.store.MarkMfaVerified(ctx, sessionID)
	m.observe("mfa_verify", start, err)
	if err != nil {
		return err
	}
	m.emitter.Record(ctx, &audit.Entry{
		Action:       audit.ActionSessionMfaVerified,
		ResourceType: "session",
		ResourceID:   sessionID,
		Status:       audit.StatusSuccess,
		Severity:     audit.SeverityLow,
	})
	return nil
}

// Revoke terminates a session. Idempotent: revoking an already-terminal
// session is a no-op and preserves the first revocation's timestamp and
// reason.
func (m *Manager) Revoke(ctx context.Context, sessionID string, reason RevokeReason) error {
	start := m.now()
	changed, err := m.store.Revoke(ctx, sessionID, reason, m.now().UTC())
	m.observe("revoke", start, err)
	if err != nil {
		return err
	}
	if !changed {
		// Already terminal: the first revocation's audit entry and
		// gauge decrement stand.
		return nil
	}

	severity := audit.SeverityMedium
	if reason == ReasonSecurity {
		severity = audit.SeverityHigh
	}
	if reason == ReasonExpired || reason == ReasonInactive {
		severity = audit.SeverityLow
	}
	m.emitter.Record(ctx, &audit.Entry{
		Action:         audit.ActionSessionRevoked,
		ResourceType:   "session",
		ResourceID:     sessionID,
		Status:         audit.StatusSuccess,
		Severity:       severity,
		ChangesSummary: "revoked: " + string(reason),
	})
	if m.metrics != nil {
		m.metrics.SessionsActive.Dec()
	}
	return nil
}

// RevokeAllForUser is "log out everywhere". exceptSessionID, when
// non-empty, keeps the caller's current session alive.
func (m *Manager) RevokeAllForUser(ctx context.Context, userID, exceptSessionID string, reason RevokeReason) (int, error) {
	start := m.now()
	n, err := m.store.RevokeAllForUser(ctx, userID, exceptSessionID, reason, m.now().UTC())
	m.observe("revoke_all", start, err)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		severity := audit.SeverityMedium
		if reason == ReasonSecurity {
			severity = audit.SeverityHigh
		}
		m.emitter.Record(ctx, &audit.Entry{
			Action:         audit.ActionSessionRevoked,
			PerformedBy:    userID,
			ResourceType:   "user_sessions",
			ResourceID:     userID,
			Status:         audit.StatusSuccess,
			Severity:       severity,
			ChangesSummary: fmt.Sprintf("revoked %d sessions: %s", n, reason),
		})
		m.emitter.NotifyUser(ctx, userID, string(audit.ActionSessionRevoked), map[string]interface{}{
			"revoked": n,
			"reason":  string(reason),
		})
		if m.metrics != nil {
			m.metrics.SessionsActive.Sub(float64(n))
		}
	}
	return n, nil
}

// FlagSuspicious marks a session without revoking it. Suspicion is
// advisory: validation keeps succeeding until a policy acts on the flag.
func (m *Manager) FlagSuspicious(ctx context.Context, sessionID, evidence string) error {
	start := m.now()
	err := m.store.MarkSuspicious(ctx, sessionID)
	m.observe("flag_suspicious", start, err)
	if err != nil {
		return err
	}
	m.emitter.Record(ctx, &audit.Entry{
		Action:         audit.ActionSessionSuspicious,
		ResourceType:   "session",
		ResourceID:     sessionID,
		Status:         audit.StatusSuccess,
		Severity:       audit.SeverityHigh,
		ChangesSummary: evidence,
	})
	return nil
}

// DetectAnomaly compares a session's stored metadata against a new
// observation. Pure; callers decide whether to FlagSuspicious.
func (m *Manager) DetectAnomaly(sess *Session, device DeviceInfo, location Location) Anomaly {
	return Anomaly{
		DeviceChanged:   sess.Device != device,
		LocationChanged: sess.Location != location,
	}
}
