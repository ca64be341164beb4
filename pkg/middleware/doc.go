// Package middleware adapts the authorization core to net/http.
//
// The core returns typed decisions; these wrappers only translate them
// to the wire: resolution failures become 401, permission denials 403.
// Authenticate resolves the bearer token into a Principal and stores it
// on the request context; the Require* middlewares read it back and
// gate the handler on the engine's decision.
package middleware
