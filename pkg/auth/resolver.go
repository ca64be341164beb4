package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/wardenhq/warden/pkg/audit"
	"github.com/wardenhq/warden/pkg/observability"
	"github.com/wardenhq/warden/pkg/rbac"
	"github.com/wardenhq/warden/pkg/session"
)

// ErrNotAuthenticated means no valid principal could be resolved at
// all: missing or malformed token. Distinct from session.ErrSessionInvalid
// (a real token whose session is dead) and from a permission deny (a
// resolved principal lacking access).
var ErrNotAuthenticated = errors.New("not authenticated")

// RoleLookup resolves a user's current role, typically from the user
// directory. The resolver trusts its output once session validation
// has succeeded.
type RoleLookup func(ctx context.Context, userID string) (rbac.Role, error)

const (
	defaultCacheSize = 4096
	defaultCacheTTL  = 5 * time.Minute
)

// Resolver turns bearer tokens into Principals.
type Resolver struct {
	manager *session.Manager
	catalog *rbac.Catalog
	roles   RoleLookup
	tokens  *TokenGenerator
	emitter *audit.Emitter
	logger  *observability.Logger

	// sessionIDs caches token hash to session ID. The mapping never
	// changes for a live session, so staleness only costs a lookup for
	// deleted sessions, and validation still rejects those.
	sessionIDs *expirable.LRU[string, string]
}

// NewResolver builds a resolver. roles must be non-nil.
func NewResolver(manager *session.Manager, catalog *rbac.Catalog, roles RoleLookup, emitter *audit.Emitter, logger *observability.Logger) *Resolver {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Resolver{
		manager:    manager,
		catalog:    catalog,
		roles:      roles,
		tokens:     NewTokenGenerator(),
		emitter:    emitter,
		logger:     logger,
		sessionIDs: expirable.NewLRU[string, string](defaultCacheSize, nil, defaultCacheTTL),
	}
}

// Resolve validates a raw bearer token and builds the request's
// Principal. The returned session is the validated login the principal
// came from.
func (r *Resolver) Resolve(ctx context.Context, token string) (*rbac.Principal, *session.Session, error) {
	if token == "" {
		return nil, nil, fmt.Errorf("%w: no token", ErrNotAuthenticated)
	}
	if err := r.tokens.ValidateTokenFormat(token); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	}
	hash := r.tokens.HashToken(token)

	sessionID, ok := r.sessionIDs.Get(hash)
	if !ok {
		sess, err := r.manager.FindByTokenHash(ctx, hash)
		if err != nil {
			return nil, nil, err
		}
		sessionID = sess.ID
		r.sessionIDs.Add(hash, sessionID)
	}

	sess, err := r.manager.ValidateSession(ctx, sessionID)
	if err != nil {
		r.sessionIDs.Remove(hash)
		return nil, nil, err
	}
	// A login that has not finished its MFA step holds no principal yet.
	if sess.State == session.StatePendingMFA {
		return nil, nil, fmt.Errorf("%w: mfa not verified", session.ErrSessionInvalid)
	}

	role, err := r.roles(ctx, sess.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve role for user %s: %w", sess.UserID, err)
	}

	principal, err := r.catalog.BuildPrincipal(sess.UserID, role)
	if err != nil {
		if errors.Is(err, rbac.ErrUnknownRole) {
			// Configuration error: deny by default with an empty
			// permission set instead of failing the request pipeline.
			r.reportUnknownRole(ctx, sess, role)
			principal = &rbac.Principal{
				UserID:      sess.UserID,
				Role:        role,
				Permissions: rbac.NewPermissionSet(),
			}
		} else {
			return nil, nil, err
		}
	}
	principal.SessionID = sess.ID
	principal.IPAddress = sess.IPAddress
	return principal, sess, nil
}

// InvalidateToken drops a token's cached session mapping, for logout
// paths that want the next request to miss.
func (r *Resolver) InvalidateToken(token string) {
	r.sessionIDs.Remove(r.tokens.HashToken(token))
}

func (r *Resolver) reportUnknownRole(ctx context.Context, sess *session.Session, role rbac.Role) {
	r.logger.WithField("user_id", sess.UserID).WithField("role", string(role)).
		Error("user has a role outside the catalog, denying by default")
	if r.emitter != nil {
		r.emitter.Record(ctx, &audit.Entry{
			Action:         audit.ActionCatalogError,
			PerformedBy:    sess.UserID,
			ResourceType:   "role_catalog",
			ResourceID:     string(role),
			Status:         audit.StatusFailure,
			Severity:       audit.SeverityHigh,
			ChangesSummary: "role not in catalog, principal granted no permissions",
		})
	}
}
