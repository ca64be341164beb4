package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by stores when no session matches the ID.
	ErrNotFound = errors.New("session not found")

	// ErrSessionInvalid is the terminal validation failure: missing,
	// revoked, expired or unreachable within the deadline. Callers must
	// force re-authentication.
	ErrSessionInvalid = errors.New("session invalid")

	// ErrInvalidState is returned for illegal state transitions, such
	// as verifying MFA on a session that is not pending MFA.
	ErrInvalidState = errors.New("invalid session state")
)

// Store is the persistence contract for sessions. Implementations must
// provide per-row atomic updates; the callers rely on conditional
// single-row writes, not on cross-row transactions.
type Store interface {
	// Insert persists a new session.
	Insert(ctx context.Context, s *Session) error

	// FindBySessionID returns the session or ErrNotFound.
	FindBySessionID(ctx context.Context, id string) (*Session, error)

	// FindByAccessTokenHash returns the session holding the hashed
	// bearer token, or ErrNotFound.
	FindByAccessTokenHash(ctx context.Context, hash string) (*Session, error)

	// UpdateActivity sets last_activity. Last write wins; the field is
	// advisory telemetry plus the inactivity-cleanup input.
	UpdateActivity(ctx context.Context, id string, at time.Time) error

	// MarkMfaVerified transitions pending_mfa to active atomically.
	// Returns ErrInvalidState if the session exists in any other state.
	MarkMfaVerified(ctx context.Context, id string) error

	// MarkSuspicious sets the suspicious flag without revoking.
	MarkSuspicious(ctx context.Context, id string) error

	// Revoke moves a non-terminal session to the reason's terminal
	// state. Revoking an already-terminal session is a no-op so the
	// first revoked_at and reason are preserved. The bool reports
	// whether this call performed the transition; callers must not
	// re-audit or re-count a revocation that returns false.
	Revoke(ctx context.Context, id string, reason RevokeReason, at time.Time) (bool, error)

	// RevokeAllForUser revokes every non-terminal session of a user,
	// skipping exceptID when non-empty. Returns the number revoked.
	RevokeAllForUser(ctx context.Context, userID, exceptID string, reason RevokeReason, at time.Time) (int, error)

	// CountActiveForUser counts the user's non-terminal sessions.
	CountActiveForUser(ctx context.Context, userID string) (int, error)

	// FindExpired returns up to limit non-terminal sessions whose
	// deadline has passed.
	FindExpired(ctx context.Context, now time.Time, limit int) ([]*Session, error)

	// FindInactive returns up to limit non-terminal sessions with
	// last_activity before the threshold.
	FindInactive(ctx context.Context, threshold time.Time, limit int) ([]*Session, error)

	// DeleteCreatedBefore hard-deletes up to limit sessions created
	// before the cutoff, regardless of state. Returns rows deleted.
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time, limit int) (int, error)

	// Close releases the store's resources.
	Close() error
}
