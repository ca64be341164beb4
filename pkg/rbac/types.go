package rbac

import (
	"fmt"
	"sort"
	"strings"
)

// Resource is a protected resource class in the admin backend.
type Resource string

const (
	ResourceUsers       Resource = "users"
	ResourceRoles       Resource = "roles"
	ResourcePermissions Resource = "permissions"
	ResourceSessions    Resource = "sessions"
	ResourceAudit       Resource = "audit"
	ResourceInvitations Resource = "invitations"
	ResourceReports     Resource = "reports"
	ResourceSettings    Resource = "settings"
)

// AllResources lists every resource class, in catalog order. Wildcard
// expansion iterates this slice, so adding a resource here is enough to
// make "*" cover it.
var AllResources = []Resource{
	ResourceUsers,
	ResourceRoles,
	ResourcePermissions,
	ResourceSessions,
	ResourceAudit,
	ResourceInvitations,
	ResourceReports,
	ResourceSettings,
}

// Action is an operation on a resource.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionRevoke Action = "revoke"
	ActionExport Action = "export"
	ActionInvite Action = "invite"
)

// AllActions lists every action, in catalog order.
var AllActions = []Action{
	ActionCreate,
	ActionRead,
	ActionUpdate,
	ActionDelete,
	ActionRevoke,
	ActionExport,
	ActionInvite,
}

// Permission is one resource:action capability.
type Permission struct {
	Resource Resource `json:"resource"`
	Action   Action   `json:"action"`
}

// String renders the canonical "resource:action" form.
func (p Permission) String() string {
	return string(p.Resource) + ":" + string(p.Action)
}

// ParsePermission parses a "resource:action" string. It validates shape
// only, not catalog membership, so custom roles can reference resources
// this build does not predefine.
func ParsePermission(s string) (Permission, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Permission{}, fmt.Errorf("malformed permission %q: want resource:action", s)
	}
	return Permission{Resource: Resource(parts[0]), Action: Action(parts[1])}, nil
}

// Role is a named bundle of permissions with a hierarchy level.
type Role string

// Built-in roles. Levels strictly order them; superadmin is always the
// maximum and bypasses explicit permission checks entirely.
const (
	RoleSuperadmin Role = "superadmin"
	RoleAdmin      Role = "admin"
	RoleSupport    Role = "support"
	RoleAnalyst    Role = "analyst"
	RoleViewer     Role = "viewer"
)

// PermissionSet is a deduplicated set of permission strings. Membership
// is exact-string and case-sensitive.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from permission strings, deduplicating.
func NewPermissionSet(perms ...string) PermissionSet {
	ps := make(PermissionSet, len(perms))
	for _, p := range perms {
		ps[p] = struct{}{}
	}
	return ps
}

// Has reports whether the exact permission string is in the set.
func (ps PermissionSet) Has(perm string) bool {
	_, ok := ps[perm]
	return ok
}

// Add inserts a permission string.
func (ps PermissionSet) Add(perm string) {
	ps[perm] = struct{}{}
}

// List returns the members sorted, for stable logging and audit output.
func (ps PermissionSet) List() []string {
	out := make([]string, 0, len(ps))
	for p := range ps {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Principal is the authenticated actor resolved for a request. The
// permission set is fully expanded; wildcards never reach the engine.
type Principal struct {
	UserID      string        `json:"user_id"`
	Role        Role          `json:"role"`
	Permissions PermissionSet `json:"-"`

	// SessionID ties the principal back to the login it was resolved
	// from, for audit context.
	SessionID string `json:"session_id,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
}

// IsSuperadmin reports whether the principal holds the universal-access role.
func (p *Principal) IsSuperadmin() bool {
	return p != nil && p.Role == RoleSuperadmin
}
