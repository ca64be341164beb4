package middleware

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/wardenhq/warden/pkg/auth"
	"github.com/wardenhq/warden/pkg/contextkeys"
	"github.com/wardenhq/warden/pkg/observability"
	"github.com/wardenhq/warden/pkg/rbac"
	"github.com/wardenhq/warden/pkg/session"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorBody{Error: message, Code: code})
}

// Authenticate resolves the request's bearer token into a Principal and
// attaches it to the context. Missing or malformed credentials and dead
// sessions both map to 401.
type Authenticate struct {
	resolver *auth.Resolver
	logger   *observability.Logger
}

// NewAuthenticate builds the authentication middleware.
func NewAuthenticate(resolver *auth.Resolver, logger *observability.Logger) *Authenticate {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Authenticate{resolver: resolver, logger: logger}
}

// Handler wraps next with authentication.
func (m *Authenticate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		principal, sess, err := m.resolver.Resolve(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrNotAuthenticated):
				writeError(w, http.StatusUnauthorized, "not_authenticated", "missing or malformed credentials")
			case errors.Is(err, session.ErrSessionInvalid):
				writeError(w, http.StatusUnauthorized, "session_invalid", "session expired or revoked")
			default:
				m.logger.WithError(err).Error("principal resolution failed")
				writeError(w, http.StatusUnauthorized, "not_authenticated", "authentication failed")
			}
			return
		}

		ip := clientIP(r)
		principal.IPAddress = ip
		ctx := contextkeys.WithPrincipal(r.Context(), principal)
		ctx = contextkeys.WithSession(ctx, sess)
		ctx = contextkeys.WithClientIP(ctx, ip)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID stamps each request with a UUID for log correlation.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(contextkeys.WithRequestID(r.Context(), id)))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i > 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// PrincipalFrom reads the resolved principal off a request.
func PrincipalFrom(r *http.Request) *rbac.Principal {
	p, _ := r.Context().Value(contextkeys.PrincipalKey).(*rbac.Principal)
	return p
}

// SessionFrom reads the validated session off a request.
func SessionFrom(r *http.Request) *session.Session {
	s, _ := r.Context().Value(contextkeys.SessionKey).(*session.Session)
	return s
}
