package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wardenhq/warden/pkg/audit"
	"github.com/wardenhq/warden/pkg/auth"
	"github.com/wardenhq/warden/pkg/middleware"
	"github.com/wardenhq/warden/pkg/observability"
	"github.com/wardenhq/warden/pkg/rbac"
	"github.com/wardenhq/warden/pkg/session"
)

// Deps bundles everything the server needs. Recorder serves the audit
// search endpoint; the emitter and engine are reached indirectly
// through the manager and the authorization middleware.
type Deps struct {
	Store    session.Store
	Manager  *session.Manager
	Catalog  *rbac.Catalog
	Recorder audit.Recorder
	Authn    *middleware.Authenticate
	Authz    *middleware.Authorize
	Logger   *observability.Logger

	// DefaultSessionTTL applies when a create request omits ttl_seconds.
	DefaultSessionTTL time.Duration
}

// Server is the admin API server.
type Server struct {
	router     *mux.Router
	store      session.Store
	manager    *session.Manager
	catalog    *rbac.Catalog
	recorder   audit.Recorder
	tokens     *auth.TokenGenerator
	authz      *middleware.Authorize
	logger     *observability.Logger
	defaultTTL time.Duration
}

// NewServer creates the API server and sets up its routes.
func NewServer(deps Deps) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		store:      deps.Store,
		manager:    deps.Manager,
		catalog:    deps.Catalog,
		recorder:   deps.Recorder,
		tokens:     auth.NewTokenGenerator(),
		authz:      deps.Authz,
		logger:     deps.Logger,
		defaultTTL: deps.DefaultSessionTTL,
	}
	if s.defaultTTL <= 0 {
		s.defaultTTL = 24 * time.Hour
	}
	if s.logger == nil {
		s.logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	s.setupRoutes(deps.Authn)
	return s
}

func (s *Server) setupRoutes(authn *middleware.Authenticate) {
	s.router.Use(middleware.RequestID)
	s.router.Use(s.attachLogger)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(authn.Handler)

	// Session lifecycle. Creation and MFA completion belong to the
	// login service's principal, not the end user.
	api.Handle("/sessions",
		s.perm(rbac.ResourceSessions, rbac.ActionCreate, s.createSession)).Methods("POST")
	api.Handle("/sessions/{id}/mfa",
		s.perm(rbac.ResourceSessions, rbac.ActionCreate, s.verifyMfa)).Methods("POST")

	api.HandleFunc("/sessions/me", s.currentSession).Methods("GET")
	api.HandleFunc("/sessions/me", s.logout).Methods("DELETE")

	// A session can be revoked by its owner or by support staff.
	api.Handle("/sessions/{id}",
		s.authz.RequireOwnerOrRole(
			[]rbac.Role{rbac.RoleAdmin, rbac.RoleSupport},
			s.ownsSession,
		)(http.HandlerFunc(s.revokeSession))).Methods("DELETE")

	api.Handle("/sessions/{id}/suspicious",
		s.perm(rbac.ResourceSessions, rbac.ActionUpdate, s.flagSuspicious)).Methods("POST")
	api.Handle("/users/{id}/sessions",
		s.perm(rbac.ResourceSessions, rbac.ActionRevoke, s.revokeUserSessions)).Methods("DELETE")

	api.Handle("/roles",
		s.perm(rbac.ResourceRoles, rbac.ActionRead, s.listRoles)).Methods("GET")
	api.Handle("/audit",
		s.perm(rbac.ResourceAudit, rbac.ActionRead, s.searchAudit)).Methods("GET")
}

func (s *Server) perm(resource rbac.Resource, action rbac.Action, h http.HandlerFunc) http.Handler {
	return s.authz.RequireResourceAction(resource, action)(h)
}

// attachLogger puts the server logger in the request context so
// handlers pick up the request ID through observability.FromContext.
func (s *Server) attachLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(observability.WithLogger(r.Context(), s.logger)))
	})
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
