package api

import (
	"net/http"

	"github.com/wardenhq/warden/pkg/httputil"
	"github.com/wardenhq/warden/pkg/rbac"
)

// RoleInfo is one catalog entry in the roles listing.
type RoleInfo struct {
	Name        rbac.Role `json:"name"`
	Level       int       `json:"level"`
	Permissions []string  `json:"permissions"`
	BuiltIn     bool      `json:"built_in"`
}

func (s *Server) listRoles(w http.ResponseWriter, r *http.Request) {
	roles := s.catalog.Roles()
	out := make([]RoleInfo, 0, len(roles))
	for _, role := range roles {
		level, err := s.catalog.RoleLevel(role)
		if err != nil {
			continue // role removed between listing and lookup
		}
		perms, err := s.catalog.RolePermissions(role)
		if err != nil {
			continue
		}
		out = append(out, RoleInfo{
			Name:        role,
			Level:       level,
			Permissions: perms.List(),
			BuiltIn:     s.catalog.IsBuiltIn(role),
		})
	}
	httputil.WriteSuccess(w, map[string]interface{}{"roles": out})
}
