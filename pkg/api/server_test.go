package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/pkg/audit"
	"github.com/wardenhq/warden/pkg/auth"
	"github.com/wardenhq/warden/pkg/middleware"
	"github.com/wardenhq/warden/pkg/observability"
	"github.com/wardenhq/warden/pkg/rbac"
	"github.com/wardenhq/warden/pkg/session"
)

type fixture struct {
	server   *Server
	store    session.Store
	manager  *session.Manager
	recorder *audit.MemoryRecorder
	roles    map[string]rbac.Role
	tokens   *auth.TokenGenerator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store, err := session.NewSQLStore(db)
	require.NoError(t, err)

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	recorder := audit.NewMemoryRecorder(1000)
	emitter := audit.NewEmitter(recorder, nil, logger, nil)
	manager := session.NewManager(store, emitter, logger, nil)
	catalog := rbac.NewCatalog()
	engine := rbac.NewEngine(emitter, logger, nil)

	f := &fixture{
		store:    store,
		manager:  manager,
		recorder: recorder,
		roles: map[string]rbac.Role{
			"svc":   rbac.RoleAdmin,
			"alice": rbac.RoleViewer,
			"bob":   rbac.RoleViewer,
			"carol": rbac.RoleSupport,
		},
		tokens: auth.NewTokenGenerator(),
	}

	lookup := func(ctx context.Context, userID string) (rbac.Role, error) {
		role, ok := f.roles[userID]
		if !ok {
			return "", fmt.Errorf("unknown user %s", userID)
		}
		return role, nil
	}

	resolver := auth.NewResolver(manager, catalog, lookup, emitter, logger)
	f.server = NewServer(Deps{
		Store:             store,
		Manager:           manager,
		Catalog:           catalog,
		Recorder:          recorder,
		Authn:             middleware.NewAuthenticate(resolver, logger),
		Authz:             middleware.NewAuthorize(engine),
		Logger:            logger,
		DefaultSessionTTL: time.Hour,
	})
	return f
}

// login opens a session directly through the manager, the way the
// create endpoint would, and returns the raw bearer token.
func (f *fixture) login(t *testing.T, userID string) (string, *session.Session) {
	t.Helper()
	token, hash, err := f.tokens.GenerateToken()
	require.NoError(t, err)
	sess, err := f.manager.CreateSession(context.Background(), session.CreateInput{
		UserID:          userID,
		AccessTokenHash: hash,
		TTL:             time.Hour,
	})
	require.NoError(t, err)
	return token, sess
}

func (f *fixture) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func TestCreateSessionEndpoint(t *testing.T) {
	f := newFixture(t)
	svcToken, _ := f.login(t, "svc")

	rec := f.do(http.MethodPost, "/api/v1/sessions", svcToken, CreateSessionRequest{
		UserID:    "alice",
		IPAddress: "203.0.113.9",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp CreateSessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp.Token, "wdn_"))
	assert.Equal(t, session.StateActive, resp.Session.State)

	// the returned token authenticates as alice
	me := f.do(http.MethodGet, "/api/v1/sessions/me", resp.Token, nil)
	require.Equal(t, http.StatusOK, me.Code)
	var current session.Session
	require.NoError(t, json.Unmarshal(me.Body.Bytes(), &current))
	assert.Equal(t, resp.Session.ID, current.ID)
	assert.Equal(t, "alice", current.UserID)
}

func TestCreateSessionRequiresPermission(t *testing.T) {
	f := newFixture(t)
	aliceToken, _ := f.login(t, "alice")

	rec := f.do(http.MethodPost, "/api/v1/sessions", aliceToken, CreateSessionRequest{UserID: "bob"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// the deny left an audit trail
	entries, err := f.recorder.Search(context.Background(), audit.SearchFilter{
		Actions: []audit.Action{audit.ActionAccessDenied},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestCreateSessionValidation(t *testing.T) {
	f := newFixture(t)
	svcToken, _ := f.login(t, "svc")

	rec := f.do(http.MethodPost, "/api/v1/sessions", svcToken, CreateSessionRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnauthenticatedRequests(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/v1/sessions/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodGet, "/api/v1/sessions/me", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMfaFlow(t *testing.T) {
	f := newFixture(t)
	svcToken, _ := f.login(t, "svc")

	rec := f.do(http.MethodPost, "/api/v1/sessions", svcToken, CreateSessionRequest{
		UserID:      "alice",
		MfaRequired: true,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp CreateSessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, session.StatePendingMFA, resp.Session.State)

	// a pending session's token does not authenticate
	me := f.do(http.MethodGet, "/api/v1/sessions/me", resp.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, me.Code)

	verify := f.do(http.MethodPost, "/api/v1/sessions/"+resp.Session.ID+"/mfa", svcToken, nil)
	require.Equal(t, http.StatusNoContent, verify.Code)

	me = f.do(http.MethodGet, "/api/v1/sessions/me", resp.Token, nil)
	assert.Equal(t, http.StatusOK, me.Code)

	// verifying twice conflicts
	verify = f.do(http.MethodPost, "/api/v1/sessions/"+resp.Session.ID+"/mfa", svcToken, nil)
	assert.Equal(t, http.StatusConflict, verify.Code)
}

func TestMfaUnknownSession(t *testing.T) {
	f := newFixture(t)
	svcToken, _ := f.login(t, "svc")

	rec := f.do(http.MethodPost, "/api/v1/sessions/no-such-session/mfa", svcToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	aliceToken, _ := f.login(t, "alice")

	rec := f.do(http.MethodDelete, "/api/v1/sessions/me", aliceToken, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(http.MethodGet, "/api/v1/sessions/me", aliceToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRevokeSessionOwnership(t *testing.T) {
	f := newFixture(t)
	aliceToken, _ := f.login(t, "alice")
	_, aliceOther := f.login(t, "alice")
	_, bobSess := f.login(t, "bob")

	// a viewer can revoke their own other session
	rec := f.do(http.MethodDelete, "/api/v1/sessions/"+aliceOther.ID, aliceToken, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// but not someone else's
	rec = f.do(http.MethodDelete, "/api/v1/sessions/"+bobSess.ID, aliceToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// support staff can revoke anyone's
	carolToken, _ := f.login(t, "carol")
	rec = f.do(http.MethodDelete, "/api/v1/sessions/"+bobSess.ID, carolToken, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRevokeUserSessions(t *testing.T) {
	f := newFixture(t)
	svcToken, _ := f.login(t, "svc")
	aliceToken, _ := f.login(t, "alice")
	f.login(t, "alice")

	rec := f.do(http.MethodDelete, "/api/v1/users/alice/sessions?reason=security", svcToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp["revoked"])

	rec = f.do(http.MethodGet, "/api/v1/sessions/me", aliceToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestFlagSuspicious(t *testing.T) {
	f := newFixture(t)
	svcToken, _ := f.login(t, "svc")
	_, aliceSess := f.login(t, "alice")

	rec := f.do(http.MethodPost, "/api/v1/sessions/"+aliceSess.ID+"/suspicious", svcToken,
		FlagSuspiciousRequest{Evidence: "login from new country"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	stored, err := f.store.FindBySessionID(context.Background(), aliceSess.ID)
	require.NoError(t, err)
	assert.True(t, stored.Suspicious)

	rec = f.do(http.MethodPost, "/api/v1/sessions/"+aliceSess.ID+"/suspicious", svcToken,
		FlagSuspiciousRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListRoles(t *testing.T) {
	f := newFixture(t)
	svcToken, _ := f.login(t, "svc")

	rec := f.do(http.MethodGet, "/api/v1/roles", svcToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Roles []RoleInfo `json:"roles"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Roles, 5)
	// ordered by descending level
	assert.Equal(t, rbac.RoleSuperadmin, resp.Roles[0].Name)
	assert.Equal(t, rbac.RoleViewer, resp.Roles[4].Name)

	// viewers hold no roles:read
	aliceToken, _ := f.login(t, "alice")
	rec = f.do(http.MethodGet, "/api/v1/roles", aliceToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAuditSearchEndpoint(t *testing.T) {
	f := newFixture(t)
	svcToken, _ := f.login(t, "svc")
	f.login(t, "alice")

	rec := f.do(http.MethodGet, "/api/v1/audit?action=session.created&limit=10", svcToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Entries []*audit.Entry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Entries)
	for _, e := range resp.Entries {
		assert.Equal(t, audit.ActionSessionCreated, e.Action)
	}

	rec = f.do(http.MethodGet, "/api/v1/audit?start=not-a-time", svcToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	aliceToken, _ := f.login(t, "alice")
	rec = f.do(http.MethodGet, "/api/v1/audit", aliceToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
