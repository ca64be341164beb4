// Package api exposes the admin backend's session, role and audit
// operations as a JSON REST API.
//
// The server is built on gorilla/mux. Every route runs behind bearer
// token authentication; authorization is enforced per route by the
// middleware package wrapping the rbac engine.
//
//	POST   /api/v1/sessions                   - open a session (login service)
//	POST   /api/v1/sessions/{id}/mfa          - complete the MFA step
//	GET    /api/v1/sessions/me                - current session
//	DELETE /api/v1/sessions/me                - log out
//	DELETE /api/v1/sessions/{id}              - revoke (owner or support staff)
//	POST   /api/v1/sessions/{id}/suspicious   - flag without revoking
//	DELETE /api/v1/users/{id}/sessions        - log out everywhere
//	GET    /api/v1/roles                      - role catalog
//	GET    /api/v1/audit                      - audit trail search
//
// Raw bearer tokens are returned exactly once, by session creation.
// Only their SHA-256 hashes are stored.
package api
