// Package api implements HTTP handlers and helpers for the freight
// scheduling service.
package api

import (
	"net/http"
	"strings"

	"freightsched/internal/auth"
)

// getPrincipal extracts tenant and role from a bearer token when present,
// falling back to headers for dev.
func (s *Server) getPrincipal(r *http.Request) auth.Principal {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") && s.Auth != nil {
		tok := strings.TrimSpace(authz[len("Bearer "):])
		if pr, err := s.Auth.Verify(tok); err == nil {
			return pr
		}
	}
	tenant := r.Header.Get("X-Tenant-Id")
	role := r.Header.Get("X-Role")
	if tenant == "" {
		tenant = "t_demo"
	}
	if role == "" {
		role = "admin"
	}
	return auth.Principal{Tenant: tenant, Role: role}
}
