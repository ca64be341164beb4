package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/wardenhq/warden/pkg/httputil"
	"github.com/wardenhq/warden/pkg/middleware"
	"github.com/wardenhq/warden/pkg/observability"
	"github.com/wardenhq/warden/pkg/rbac"
	"github.com/wardenhq/warden/pkg/session"
)

// CreateSessionRequest opens a session after the login service has
// verified the user's credentials.
type CreateSessionRequest struct {
	UserID      string             `json:"user_id"`
	TTLSeconds  int                `json:"ttl_seconds,omitempty"`
	MfaRequired bool               `json:"mfa_required,omitempty"`
	Device      session.DeviceInfo `json:"device,omitempty"`
	Location    session.Location   `json:"location,omitempty"`
	IPAddress   string             `json:"ip_address,omitempty"`
}

// CreateSessionResponse carries the raw bearer token. This is the only
// place the token is ever returned; the store keeps just its hash.
type CreateSessionResponse struct {
	Session *session.Session `json:"session"`
	Token   string           `json:"token"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.UserID, "user_id") {
		return
	}

	token, tokenHash, err := s.tokens.GenerateToken()
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	ttl := s.defaultTTL
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}

	sess, err := s.manager.CreateSession(r.Context(), session.CreateInput{
		UserID:          req.UserID,
		AccessTokenHash: tokenHash,
		Device:          req.Device,
		Location:        req.Location,
		IPAddress:       req.IPAddress,
		TTL:             ttl,
		MfaRequired:     req.MfaRequired,
	})
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).
			WithField("user_id", req.UserID).Error("session creation failed")
		httputil.WriteInternalError(w, errors.New("failed to create session"))
		return
	}

	httputil.WriteCreated(w, CreateSessionResponse{Session: sess, Token: token})
}

func (s *Server) verifyMfa(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	err := s.manager.MarkMfaVerified(r.Context(), id)
	switch {
	case errors.Is(err, session.ErrNotFound):
		httputil.WriteNotFound(w, "session not found")
	case errors.Is(err, session.ErrInvalidState):
		httputil.WriteConflict(w, "session is not pending MFA")
	case err != nil:
		httputil.WriteInternalError(w, errors.New("failed to verify MFA"))
	default:
		httputil.WriteNoContent(w)
	}
}

func (s *Server) currentSession(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFrom(r)
	if sess == nil {
		httputil.WriteErrorMessage(w, http.StatusUnauthorized, "authentication required")
		return
	}
	httputil.WriteSuccess(w, sess)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFrom(r)
	if sess == nil {
		httputil.WriteErrorMessage(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if err := s.manager.Revoke(r.Context(), sess.ID, session.ReasonManual); err != nil {
		httputil.WriteInternalError(w, errors.New("failed to revoke session"))
		return
	}
	httputil.WriteNoContent(w)
}

// ownsSession is the ownership predicate for DELETE /sessions/{id}.
// An unknown session reads as not-owned; the route denies rather than
// leaking whether the id exists.
func (s *Server) ownsSession(r *http.Request, p *rbac.Principal) (bool, error) {
	id, err := httputil.ParsePathString(r, "id")
	if err != nil {
		return false, err
	}
	sess, err := s.store.FindBySessionID(r.Context(), id)
	if errors.Is(err, session.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return sess.UserID == p.UserID, nil
}

func (s *Server) revokeSession(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	err := s.manager.Revoke(r.Context(), id, session.ReasonManual)
	switch {
	case errors.Is(err, session.ErrNotFound):
		httputil.WriteNotFound(w, "session not found")
	case err != nil:
		httputil.WriteInternalError(w, errors.New("failed to revoke session"))
	default:
		httputil.WriteNoContent(w)
	}
}

// FlagSuspiciousRequest records why a session was flagged.
type FlagSuspiciousRequest struct {
	Evidence string `json:"evidence"`
}

func (s *Server) flagSuspicious(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var req FlagSuspiciousRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Evidence, "evidence") {
		return
	}

	err := s.manager.FlagSuspicious(r.Context(), id, req.Evidence)
	switch {
	case errors.Is(err, session.ErrNotFound):
		httputil.WriteNotFound(w, "session not found")
	case err != nil:
		httputil.WriteInternalError(w, errors.New("failed to flag session"))
	default:
		httputil.WriteNoContent(w)
	}
}

func (s *Server) revokeUserSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	reason := session.ReasonManual
	if httputil.ParseQueryString(r, "reason", "") == string(session.ReasonSecurity) {
		reason = session.ReasonSecurity
	}
	except := httputil.ParseQueryString(r, "except", "")

	n, err := s.manager.RevokeAllForUser(r.Context(), userID, except, reason)
	if err != nil {
		httputil.WriteInternalError(w, errors.New("failed to revoke sessions"))
		return
	}
	httputil.WriteSuccess(w, map[string]int{"revoked": n})
}
