// Package httputil provides helpers for standardized JSON request and
// response handling across the admin API handlers.
//
// Response helpers:
//
//	httputil.WriteSuccess(w, data)
//	httputil.WriteCreated(w, resource)
//	httputil.WriteBadRequest(w, "user_id is required")
//
// Request parsing:
//
//	var req CreateSessionRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // error response already written
//	}
//	limit, err := httputil.ParseQueryInt(r, "limit", 50)
package httputil
