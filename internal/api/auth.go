// Package api implements HTTP handlers and helpers for the visit-route service.
package api

import (
	"net/http"
	"strings"
)

type Principal struct {
	Role     string // admin, office, vendor
	VendorID string
}

// getPrincipal extracts role and vendor from JWT or headers.
// - If Authorization: Bearer is present, uses configured verifier (dev/hmac/jwks).
// - Else falls back to headers for dev.
func (s *Server) getPrincipal(r *http.Request) Principal {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") && s.Auth != nil {
		tok := strings.TrimSpace(authz[len("Bearer "):])
		if pr, err := s.Auth.Verify(tok); err == nil {
			return Principal{Role: pr.Role, VendorID: pr.VendorID}
		}
	}
	role := r.Header.Get("X-Role")
	vendorID := r.Header.Get("X-Vendor-Id")
	if role == "" {
		role = "office"
	}
	return Principal{Role: strings.ToLower(role), VendorID: vendorID}
}

// IsAdmin reports whether the principal has the admin role.
func (p Principal) IsAdmin() bool { return p.Role == "admin" }

// CanMutate reports whether the principal may edit the given vendor's route.
// Office and admin edit any route; a handheld edits only its own.
func (p Principal) CanMutate(vendor string) bool {
	switch p.Role {
	case "admin", "office":
		return true
	case "vendor":
		return p.VendorID != "" && p.VendorID == vendor
	}
	return false
}
