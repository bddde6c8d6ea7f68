package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/upb/policy-portal/internal/session"
	"github.com/upb/policy-portal/utils"
	"go.uber.org/zap"
)

// SessionOpener resolves session ids to stores. session.Manager implements it.
type SessionOpener interface {
	Open(ctx context.Context, id string) *session.Store
	Anonymous() *session.Store
}

// SessionMiddleware loads the browser session for each request.
type SessionMiddleware struct {
	opener     SessionOpener
	cookieName string
	secure     bool
	loginPath  string
	logger     *zap.Logger
}

// NewSessionMiddleware creates a SessionMiddleware.
func NewSessionMiddleware(opener SessionOpener, cookieName string, secure bool, loginPath string, logger *zap.Logger) *SessionMiddleware {
	return &SessionMiddleware{
		opener:     opener,
		cookieName: cookieName,
		secure:     secure,
		loginPath:  loginPath,
		logger:     logger,
	}
}

// LoadSession puts the session store named by the cookie into the request
// context. Requests without a cookie get an anonymous store; a cookie whose
// session no longer resolves is removed.
func (m *SessionMiddleware) LoadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		cookie, err := r.Cookie(m.cookieName)
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r.WithContext(WithSession(ctx, "", m.opener.Anonymous())))
			return
		}

		store := m.opener.Open(ctx, cookie.Value)
		if store.Current().State != session.StateAuthenticated {
			m.logger.Debug("stale session cookie",
				zap.String("request_id", GetRequestIDFromContext(ctx)))
			m.ClearCookie(w)
			next.ServeHTTP(w, r.WithContext(WithSession(ctx, "", store)))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithSession(ctx, cookie.Value, store)))
	})
}

// RequireSession sends anonymous requests to the login path: navigations are
// redirected with 303, anything else gets a 401.
func (m *SessionMiddleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if CurrentSnapshot(ctx).State == session.StateAuthenticated {
			next.ServeHTTP(w, r)
			return
		}

		m.logger.Debug("session required",
			zap.String("request_id", GetRequestIDFromContext(ctx)),
			zap.String("path", r.URL.Path))

		if isNavigation(r) {
			http.Redirect(w, r, m.loginPath, http.StatusSeeOther)
			return
		}
		_ = utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse{
			Error:   "unauthorized",
			Message: "Authentication required",
			Details: map[string]interface{}{"login": m.loginPath},
		})
	})
}

// SetCookie binds the browser to session id until expiresAt.
func (m *SessionMiddleware) SetCookie(w http.ResponseWriter, id string, expiresAt time.Time) {
	c := &http.Cookie{
		Name:     m.cookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if !expiresAt.IsZero() {
		c.Expires = expiresAt
	}
	http.SetCookie(w, c)
}

// ClearCookie removes the session cookie.
func (m *SessionMiddleware) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// isNavigation reports whether r is a page load rather than a data call.
func isNavigation(r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
