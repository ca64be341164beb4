package middleware

import (
	"context"
	"database/sql"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/pkg/audit"
	"github.com/wardenhq/warden/pkg/auth"
	"github.com/wardenhq/warden/pkg/observability"
	"github.com/wardenhq/warden/pkg/rbac"
	"github.com/wardenhq/warden/pkg/session"
)

type fixture struct {
	manager  *session.Manager
	authn    *Authenticate
	authz    *Authorize
	roles    map[string]rbac.Role
	sessions map[string]string // userID -> sessionID
	tokens   map[string]string // userID -> raw token
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	store, err := session.NewSQLStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	emitter := audit.NewEmitter(audit.NewMemoryRecorder(100), nil, logger, nil)
	manager := session.NewManager(store, emitter, logger, nil)

	f := &fixture{
		manager:  manager,
		roles:    map[string]rbac.Role{},
		sessions: map[string]string{},
		tokens:   map[string]string{},
	}
	lookup := func(ctx context.Context, userID string) (rbac.Role, error) {
		return f.roles[userID], nil
	}
	resolver := auth.NewResolver(manager, rbac.NewCatalog(), lookup, emitter, logger)
	f.authn = NewAuthenticate(resolver, logger)
	f.authz = NewAuthorize(rbac.NewEngine(emitter, logger, nil))
	return f
}

func (f *fixture) login(t *testing.T, userID string, role rbac.Role) string {
	t.Helper()
	f.roles[userID] = role
	token, hash, err := auth.NewTokenGenerator().GenerateToken()
	require.NoError(t, err)
	sess, err := f.manager.CreateSession(context.Background(), session.CreateInput{
		UserID:          userID,
		AccessTokenHash: hash,
		TTL:             time.Hour,
	})
	require.NoError(t, err)
	f.sessions[userID] = sess.ID
	f.tokens[userID] = token
	return token
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
}

func (f *fixture) get(t *testing.T, handler http.Handler, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestAuthenticateRejectsMissingToken(t *testing.T) {
	f := newFixture(t)
	handler := f.authn.Handler(okHandler())

	rr := f.get(t, handler, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "not_authenticated")
}

func TestAuthenticateRejectsRevokedSession(t *testing.T) {
	f := newFixture(t)
	token := f.login(t, "u1", rbac.RoleViewer)
	handler := f.authn.Handler(okHandler())

	rr := f.get(t, handler, token)
	assert.Equal(t, http.StatusOK, rr.Code)

	require.NoError(t, f.manager.Revoke(context.Background(), f.sessions["u1"], session.ReasonSecurity))

	rr = f.get(t, handler, token)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "session_invalid")
}

func TestAuthenticateAttachesPrincipal(t *testing.T) {
	f := newFixture(t)
	token := f.login(t, "u1", rbac.RoleSupport)

	var got *rbac.Principal
	handler := f.authn.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = PrincipalFrom(r)
		require.NotNil(t, SessionFrom(r))
		w.WriteHeader(http.StatusOK)
	}))

	rr := f.get(t, handler, token)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, rbac.RoleSupport, got.Role)
}

func TestAuthorizeMapsDenyTo403(t *testing.T) {
	f := newFixture(t)
	token := f.login(t, "u1", rbac.RoleSupport)

	chain := f.authn.Handler(f.authz.RequirePermission("sessions:delete")(okHandler()))
	rr := f.get(t, chain, token)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), "permission_denied")

	chain = f.authn.Handler(f.authz.RequirePermission("sessions:read")(okHandler()))
	rr = f.get(t, chain, token)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestAuthorizeWithoutAuthenticateIs401(t *testing.T) {
	f := newFixture(t)

	// chain missing Authenticate: no principal on the context
	handler := f.authz.RequirePermission("users:read")(okHandler())
	rr := f.get(t, handler, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRequireAnyAndAll(t *testing.T) {
	f := newFixture(t)
	token := f.login(t, "u1", rbac.RoleAnalyst)

	rr := f.get(t, f.authn.Handler(f.authz.RequireAny("settings:update", "reports:read")(okHandler())), token)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = f.get(t, f.authn.Handler(f.authz.RequireAll("reports:read", "settings:update")(okHandler())), token)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestRequireOwnerOrRole(t *testing.T) {
	f := newFixture(t)
	adminToken := f.login(t, "boss", rbac.RoleAdmin)
	viewerToken := f.login(t, "owner-user", rbac.RoleViewer)
	otherToken := f.login(t, "stranger", rbac.RoleViewer)

	ownCheck := func(r *http.Request, p *rbac.Principal) (bool, error) {
		return p.UserID == "owner-user", nil
	}
	chain := func() http.Handler {
		return f.authn.Handler(f.authz.RequireOwnerOrRole([]rbac.Role{rbac.RoleAdmin}, ownCheck)(okHandler()))
	}

	assert.Equal(t, http.StatusOK, f.get(t, chain(), adminToken).Code)
	assert.Equal(t, http.StatusOK, f.get(t, chain(), viewerToken).Code)
	assert.Equal(t, http.StatusForbidden, f.get(t, chain(), otherToken).Code)
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = w.Header().Get("X-Request-ID")
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.NotEmpty(t, seen)

	// a caller-provided ID is preserved
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, "req-42", rr.Header().Get("X-Request-ID"))
}

func TestMuxRouterIntegration(t *testing.T) {
	f := newFixture(t)
	adminToken := f.login(t, "boss", rbac.RoleAdmin)
	viewerToken := f.login(t, "watcher", rbac.RoleViewer)

	router := mux.NewRouter()
	router.Use(RequestID, f.authn.Handler)
	admin := router.PathPrefix("/admin").Subrouter()
	admin.Use(f.authz.RequireResourceAction(rbac.ResourceUsers, rbac.ActionDelete))
	admin.Handle("/users", okHandler()).Methods(http.MethodDelete)

	do := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodDelete, "/admin/users", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	assert.Equal(t, http.StatusOK, do(adminToken).Code)
	assert.Equal(t, http.StatusForbidden, do(viewerToken).Code)
}

func TestBearerTokenParsing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, bearerToken(req))

	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	assert.Empty(t, bearerToken(req))

	req.Header.Set("Authorization", "Bearer wdn_abc")
	assert.Equal(t, "wdn_abc", bearerToken(req))

	req.Header.Set("Authorization", "bearer wdn_abc")
	assert.Equal(t, "wdn_abc", bearerToken(req), "scheme is case-insensitive")
}
