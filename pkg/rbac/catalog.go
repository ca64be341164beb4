package rbac

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrUnknownRole is returned for role names outside the catalog.
	// Callers treat it as a configuration error and deny by default.
	ErrUnknownRole = errors.New("unknown role")

	// ErrBuiltInRole is returned when an override tries to redefine a
	// built-in role.
	ErrBuiltInRole = errors.New("built-in roles are immutable")
)

type roleDef struct {
	level   int
	perms   []string // raw catalog entries, may contain wildcards
	builtin bool
}

// Catalog holds the closed role set: levels and permission assignments.
// Lookups are pure; Define is the only mutation and is guarded for
// concurrent readers.
type Catalog struct {
	mu    sync.RWMutex
	roles map[Role]roleDef
}

// NewCatalog returns a catalog seeded with the built-in roles.
func NewCatalog() *Catalog {
	return &Catalog{
		roles: map[Role]roleDef{
			RoleSuperadmin: {level: 100, builtin: true, perms: []string{"*"}},
			RoleAdmin: {level: 80, builtin: true, perms: []string{
				"users:*",
				"roles:read",
				"permissions:read",
				"sessions:*",
				"audit:read", "audit:export",
				"invitations:*",
				"reports:*",
				"settings:read", "settings:update",
			}},
			RoleSupport: {level: 60, builtin: true, perms: []string{
				"users:read", "users:update",
				"sessions:read", "sessions:revoke",
				"invitations:read", "invitations:invite",
				"reports:read",
			}},
			RoleAnalyst: {level: 40, builtin: true, perms: []string{
				"users:read",
				"sessions:read",
				"audit:read",
				"reports:read", "reports:export",
			}},
			RoleViewer: {level: 20, builtin: true, perms: []string{
				"users:read",
				"reports:read",
			}},
		},
	}
}

// RoleLevel returns the hierarchy level for a role.
func (c *Catalog) RoleLevel(role Role) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.roles[role]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	return def.level, nil
}

// CompareRoles returns a negative, zero or positive value as role a ranks
// below, equal to or above role b.
func (c *Catalog) CompareRoles(a, b Role) (int, error) {
	la, err := c.RoleLevel(a)
	if err != nil {
		return 0, err
	}
	lb, err := c.RoleLevel(b)
	if err != nil {
		return 0, err
	}
	return la - lb, nil
}

// RolePermissions returns the fully expanded permission set for a role.
// Wildcard entries are expanded here so the engine only ever sees
// concrete resource:action strings. An empty set is valid and means no
// default access.
func (c *Catalog) RolePermissions(role Role) (PermissionSet, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.roles[role]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	ps := make(PermissionSet)
	for _, raw := range def.perms {
		expandInto(ps, raw)
	}
	return ps, nil
}

func expandInto(ps PermissionSet, raw string) {
	if raw == "*" {
		for _, res := range AllResources {
			for _, act := range AllActions {
				ps.Add(Permission{Resource: res, Action: act}.String())
			}
		}
		return
	}
	if strings.HasSuffix(raw, ":*") {
		res := Resource(strings.TrimSuffix(raw, ":*"))
		for _, act := range AllActions {
			ps.Add(Permission{Resource: res, Action: act}.String())
		}
		return
	}
	ps.Add(raw)
}

// Define registers a custom role. Built-in names are rejected, and a
// custom role may not reach the superadmin level.
func (c *Catalog) Define(role Role, level int, perms []string) error {
	if role == "" {
		return errors.New("role name must not be empty")
	}
	if level >= 100 {
		return fmt.Errorf("role %q: level %d would rank at or above superadmin", role, level)
	}
	for _, raw := range perms {
		if raw == "*" || strings.HasSuffix(raw, ":*") {
			continue
		}
		if _, err := ParsePermission(raw); err != nil {
			return fmt.Errorf("role %q: %w", role, err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if def, ok := c.roles[role]; ok && def.builtin {
		return fmt.Errorf("%w: %q", ErrBuiltInRole, role)
	}
	c.roles[role] = roleDef{level: level, perms: append([]string(nil), perms...)}
	return nil
}

// IsBuiltIn reports whether the role is one of the immutable built-ins.
func (c *Catalog) IsBuiltIn(role Role) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.roles[role]
	return ok && def.builtin
}

// Roles lists all catalog roles ordered by descending level.
func (c *Catalog) Roles() []Role {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Role, 0, len(c.roles))
	for r := range c.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		li, lj := c.roles[out[i]].level, c.roles[out[j]].level
		if li != lj {
			return li > lj
		}
		return out[i] < out[j]
	})
	return out
}

// BuildPrincipal resolves a user's role into a Principal with the
// expanded permission set.
func (c *Catalog) BuildPrincipal(userID string, role Role) (*Principal, error) {
	perms, err := c.RolePermissions(role)
	if err != nil {
		return nil, err
	}
	return &Principal{UserID: userID, Role: role, Permissions: perms}, nil
}
