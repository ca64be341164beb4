package rbac

import (
	"context"
	"strings"

	"github.com/wardenhq/warden/pkg/audit"
	"github.com/wardenhq/warden/pkg/observability"
)

// Reason is a stable code attached to every Decision. Callers map these
// to their own surfaces (HTTP status codes and so on).
type Reason string

const (
	ReasonSuperadmin       Reason = "superadmin_bypass"
	ReasonGranted          Reason = "permission_granted"
	ReasonOwner            Reason = "resource_owner"
	ReasonRoleAllowed      Reason = "role_allowed"
	ReasonNotAuthenticated Reason = "not_authenticated"
	ReasonPermissionDenied Reason = "permission_denied"
	ReasonOwnershipDenied  Reason = "ownership_denied"
	ReasonOwnershipError   Reason = "ownership_check_failed"
)

// Decision is the outcome of an authorization check. Expected denials
// are values, never errors.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason"`

	// Missing lists the permissions that were required but not held,
	// for deny decisions on permission checks.
	Missing []string `json:"missing,omitempty"`
}

// Allow builds an allowing decision.
func Allow(reason Reason) Decision {
	return Decision{Allowed: true, Reason: reason}
}

// Deny builds a denying decision.
func Deny(reason Reason, missing ...string) Decision {
	return Decision{Allowed: false, Reason: reason, Missing: missing}
}

// OwnershipCheck resolves whether the principal owns the target
// resource. It may perform I/O; an error fails closed.
type OwnershipCheck func(ctx context.Context, p *Principal) (bool, error)

// Engine evaluates authorization decisions over resolved principals.
// Decision functions are pure apart from deny reporting: every deny is
// recorded through the audit emitter before it is returned.
type Engine struct {
	emitter *audit.Emitter
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewEngine builds an engine. The emitter must be non-nil; metrics may
// be nil in tests.
func NewEngine(emitter *audit.Emitter, logger *observability.Logger, metrics *observability.Metrics) *Engine {
	return &Engine{emitter: emitter, logger: logger, metrics: metrics}
}

// RequirePermission allows if the principal is superadmin or holds the
// exact permission.
func (e *Engine) RequirePermission(ctx context.Context, p *Principal, perm string) Decision {
	const op = "require_permission"
	if p == nil {
		return e.finish(ctx, op, nil, Deny(ReasonNotAuthenticated), []string{perm})
	}
	if p.IsSuperadmin() {
		return e.finish(ctx, op, p, Allow(ReasonSuperadmin), nil)
	}
	if p.Permissions.Has(perm) {
		return e.finish(ctx, op, p, Allow(ReasonGranted), nil)
	}
	return e.finish(ctx, op, p, Deny(ReasonPermissionDenied, perm), []string{perm})
}

// RequireAny allows if the principal holds at least one of the listed
// permissions. An empty list denies: there is no permission that could
// satisfy the requirement.
func (e *Engine) RequireAny(ctx context.Context, p *Principal, perms []string) Decision {
	const op = "require_any"
	if p == nil {
		return e.finish(ctx, op, nil, Deny(ReasonNotAuthenticated), perms)
	}
	if p.IsSuperadmin() {
		return e.finish(ctx, op, p, Allow(ReasonSuperadmin), nil)
	}
	for _, perm := range perms {
		if p.Permissions.Has(perm) {
			return e.finish(ctx, op, p, Allow(ReasonGranted), nil)
		}
	}
	return e.finish(ctx, op, p, Deny(ReasonPermissionDenied, perms...), perms)
}

// RequireAll allows if the principal holds every listed permission. An
// empty list allows vacuously.
func (e *Engine) RequireAll(ctx context.Context, p *Principal, perms []string) Decision {
	const op = "require_all"
	if p == nil {
		return e.finish(ctx, op, nil, Deny(ReasonNotAuthenticated), perms)
	}
	if p.IsSuperadmin() {
		return e.finish(ctx, op, p, Allow(ReasonSuperadmin), nil)
	}
	var missing []string
	for _, perm := range perms {
		if !p.Permissions.Has(perm) {
			missing = append(missing, perm)
		}
	}
	if len(missing) > 0 {
		return e.finish(ctx, op, p, Deny(ReasonPermissionDenied, missing...), perms)
	}
	return e.finish(ctx, op, p, Allow(ReasonGranted), nil)
}

// RequireOwnerOrRole allows if the principal's role is in allowedRoles
// (no ownership check performed) or the ownership predicate resolves
// true. The predicate may block on I/O; a predicate error fails closed.
func (e *Engine) RequireOwnerOrRole(ctx context.Context, p *Principal, allowedRoles []Role, check OwnershipCheck) Decision {
	const op = "require_owner_or_role"
	if p == nil {
		return e.finish(ctx, op, nil, Deny(ReasonNotAuthenticated), nil)
	}
	if p.IsSuperadmin() {
		return e.finish(ctx, op, p, Allow(ReasonSuperadmin), nil)
	}
	for _, role := range allowedRoles {
		if p.Role == role {
			return e.finish(ctx, op, p, Allow(ReasonRoleAllowed), nil)
		}
	}
	if check == nil {
		return e.finish(ctx, op, p, Deny(ReasonOwnershipDenied), nil)
	}
	owns, err := check(ctx, p)
	if err != nil {
		if e.logger != nil {
			e.logger.WithError(err).WithField("user_id", p.UserID).Warn("ownership check failed, denying")
		}
		return e.finish(ctx, op, p, Deny(ReasonOwnershipError), nil)
	}
	if owns {
		return e.finish(ctx, op, p, Allow(ReasonOwner), nil)
	}
	return e.finish(ctx, op, p, Deny(ReasonOwnershipDenied), nil)
}

// RequireResourceAction builds "resource:action" and delegates to
// RequirePermission.
func (e *Engine) RequireResourceAction(ctx context.Context, p *Principal, resource Resource, action Action) Decision {
	return e.RequirePermission(ctx, p, Permission{Resource: resource, Action: action}.String())
}

// finish records metrics and, for denials, the audit entry. It returns
// the decision unchanged so call sites read as a single expression.
func (e *Engine) finish(ctx context.Context, op string, p *Principal, d Decision, required []string) Decision {
	if e.metrics != nil {
		outcome := "deny"
		if d.Allowed {
			outcome = "allow"
		}
		e.metrics.AuthzDecisionsTotal.WithLabelValues(op, outcome).Inc()
	}
	if d.Allowed {
		return d
	}
	e.auditDeny(ctx, op, p, d, required)
	return d
}

func (e *Engine) auditDeny(ctx context.Context, op string, p *Principal, d Decision, required []string) {
	if e.emitter == nil {
		return
	}
	entry := &audit.Entry{
		Action:   audit.ActionAccessDenied,
		Status:   audit.StatusFailure,
		Severity: audit.SeverityMedium,
		Metadata: map[string]interface{}{
			"operation": op,
			"reason":    string(d.Reason),
		},
	}
	if d.Reason == ReasonOwnershipDenied || d.Reason == ReasonOwnershipError {
		entry.Action = audit.ActionOwnershipDenied
	}
	if len(required) > 0 {
		entry.Metadata["required"] = required
		entry.ChangesSummary = "denied: " + strings.Join(required, ", ")
	}
	if p != nil {
		entry.PerformedBy = p.UserID
		entry.IPAddress = p.IPAddress
		entry.Metadata["role"] = string(p.Role)
		entry.Metadata["held"] = p.Permissions.List()
	}
	e.emitter.Record(ctx, entry)
}
