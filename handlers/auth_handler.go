package handlers

import (
	"net/http"

	"github.com/upb/policy-portal/auth"
	"github.com/upb/policy-portal/utils"
)

// AuthDeps provides auth handler for route wiring
type AuthDeps interface {
	AuthHandler() *auth.Handler
}

// AuthLoginHandler returns an http.HandlerFunc for the login endpoint
func AuthLoginHandler(deps AuthDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h := deps.AuthHandler(); h != nil {
			h.HandleLogin(w, r)
			return
		}
		_ = utils.WriteInternalServerError(w, "Authentication not configured")
	}
}

// AuthRefreshHandler returns an http.HandlerFunc for the token refresh endpoint
func AuthRefreshHandler(deps AuthDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h := deps.AuthHandler(); h != nil {
			h.HandleRefresh(w, r)
			return
		}
		_ = utils.WriteInternalServerError(w, "Authentication not configured")
	}
}

// AuthLogoutHandler returns an http.HandlerFunc for the logout endpoint
func AuthLogoutHandler(deps AuthDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h := deps.AuthHandler(); h != nil {
			h.HandleLogout(w, r)
			return
		}
		_ = utils.WriteInternalServerError(w, "Authentication not configured")
	}
}
