package middleware

import (
	"context"
	"net/http"

	"github.com/wardenhq/warden/pkg/rbac"
)

// Authorize gates handlers on engine decisions. It assumes Authenticate
// ran earlier in the chain; a missing principal denies with 401.
type Authorize struct {
	engine *rbac.Engine
}

// NewAuthorize builds the authorization middleware.
func NewAuthorize(engine *rbac.Engine) *Authorize {
	return &Authorize{engine: engine}
}

func (m *Authorize) gate(next http.Handler, decide func(r *http.Request, p *rbac.Principal) rbac.Decision) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := PrincipalFrom(r)
		d := decide(r, p)
		if d.Allowed {
			next.ServeHTTP(w, r)
			return
		}
		if d.Reason == rbac.ReasonNotAuthenticated {
			writeError(w, http.StatusUnauthorized, string(d.Reason), "authentication required")
			return
		}
		writeError(w, http.StatusForbidden, string(d.Reason), "insufficient permissions")
	})
}

// RequirePermission allows only principals holding the permission.
func (m *Authorize) RequirePermission(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return m.gate(next, func(r *http.Request, p *rbac.Principal) rbac.Decision {
			return m.engine.RequirePermission(r.Context(), p, perm)
		})
	}
}

// RequireAny allows principals holding at least one listed permission.
func (m *Authorize) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return m.gate(next, func(r *http.Request, p *rbac.Principal) rbac.Decision {
			return m.engine.RequireAny(r.Context(), p, perms)
		})
	}
}

// RequireAll allows principals holding every listed permission.
func (m *Authorize) RequireAll(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return m.gate(next, func(r *http.Request, p *rbac.Principal) rbac.Decision {
			return m.engine.RequireAll(r.Context(), p, perms)
		})
	}
}

// RequireResourceAction allows principals holding resource:action.
func (m *Authorize) RequireResourceAction(resource rbac.Resource, action rbac.Action) func(http.Handler) http.Handler {
	return m.RequirePermission(rbac.Permission{Resource: resource, Action: action}.String())
}

// RequireOwnerOrRole allows listed roles outright, otherwise consults
// the per-request ownership check.
func (m *Authorize) RequireOwnerOrRole(roles []rbac.Role, check func(r *http.Request, p *rbac.Principal) (bool, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return m.gate(next, func(r *http.Request, p *rbac.Principal) rbac.Decision {
			var oc rbac.OwnershipCheck
			if check != nil {
				oc = func(ctx context.Context, p *rbac.Principal) (bool, error) {
					return check(r, p)
				}
			}
			return m.engine.RequireOwnerOrRole(r.Context(), p, roles, oc)
		})
	}
}
