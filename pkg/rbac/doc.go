// Package rbac implements the role and permission model and the
// authorization decision engine.
//
// The role set is closed: catalog built-ins carry a fixed integer level
// (superadmin=100 down to viewer=20) and a static permission list.
// Deployments may add custom roles through YAML overrides, but the
// built-ins are immutable and superadmin always holds the maximum level.
//
// Permissions are "resource:action" strings. Wildcard catalog entries
// ("users:*", "*") are expanded into concrete permissions when a
// Principal is built; the engine itself only ever does exact-string
// membership checks.
//
// The Engine's Require* functions are decision functions, not error
// paths: every call returns a Decision with a stable reason code, and an
// expected deny is a value, never an error. Superadmin short-circuits
// every check. Each deny is reported to the audit emitter before the
// Decision is returned; audit delivery is best effort and cannot turn an
// Allow into a Deny or vice versa.
package rbac
