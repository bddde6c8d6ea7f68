package middleware

import (
	"net/http"
	"net/url"

	"github.com/upb/policy-portal/config"
	"github.com/upb/policy-portal/internal/access"
	"github.com/upb/policy-portal/models"
	"github.com/upb/policy-portal/utils"
	"go.uber.org/zap"
)

// FlashCookieName carries a one-shot notification to the next page.
const FlashCookieName = "portal_flash"

const flashMaxAge = 60

// ScreenResolver looks up the permission request of a screen.
type ScreenResolver interface {
	Request(name string) (access.PermissionRequest, error)
}

// AuditRecorder queues access events. audit.Service implements it.
type AuditRecorder interface {
	Record(log *models.AuditLog) error
}

// GuardMiddleware runs the access guard for guarded screens.
type GuardMiddleware struct {
	screens ScreenResolver
	opts    access.Options
	secure  bool
	audit   AuditRecorder
	logger  *zap.Logger
}

// NewGuardMiddleware creates a GuardMiddleware. audit may be nil.
func NewGuardMiddleware(screens ScreenResolver, cfg config.AccessConfig, secureCookies bool, audit AuditRecorder, logger *zap.Logger) *GuardMiddleware {
	return &GuardMiddleware{
		screens: screens,
		opts: access.Options{
			FallbackPath: cfg.FallbackPath,
			Notify:       cfg.NotifyOnDeny,
			Message:      cfg.DeniedMessage,
		},
		secure: secureCookies,
		audit:  audit,
		logger: logger,
	}
}

// RequirePermission guards next with the permission request of screen. The
// request is looked up on every call so a reloaded table applies at once. A
// screen missing from the table admits nobody.
func (m *GuardMiddleware) RequirePermission(screen string) func(http.Handler) http.Handler {
	if _, err := m.screens.Request(screen); err != nil {
		m.logger.Error("guarding unknown screen, denying all roles",
			zap.String("screen", screen), zap.Error(err))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := GetRequestIDFromContext(ctx)
			subject := CurrentSnapshot(ctx).Subject()

			req, err := m.screens.Request(screen)
			if err != nil {
				req = access.Allow()
			}

			effects := &deniedEffects{}
			guard := access.NewGuard(req, m.opts, effects, effects, m.logger.With(
				zap.String("request_id", requestID),
				zap.String("screen", screen)))

			switch guard.Observe(subject) {
			case access.DecisionAllowed:
				next.ServeHTTP(w, r)
				return
			case access.DecisionPending:
				m.logger.Warn("session unresolved at guard",
					zap.String("request_id", requestID),
					zap.String("screen", screen))
				_ = utils.WriteUnauthorized(w, "")
				return
			}

			if !subject.Authenticated {
				// Anonymous: the guard takes no action, the login boundary does.
				_ = utils.WriteUnauthorized(w, "")
				return
			}

			m.record(r, screen, subject.Role, req)
			m.respondDenied(w, r, effects)
		})
	}
}

func (m *GuardMiddleware) respondDenied(w http.ResponseWriter, r *http.Request, effects *deniedEffects) {
	if effects.notified {
		SetFlash(w, effects.message, m.secure)
	}

	target := effects.redirect
	if target == "" {
		target = m.opts.FallbackPath
	}
	if isNavigation(r) {
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}

	details := map[string]interface{}{"redirect": target}
	message := ""
	if effects.notified {
		message = effects.message
	}
	_ = utils.WriteJSON(w, http.StatusForbidden, utils.ErrorResponse{
		Error:   "forbidden",
		Message: message,
		Details: details,
	})
}

func (m *GuardMiddleware) record(r *http.Request, screen string, role access.Role, req access.PermissionRequest) {
	if m.audit == nil {
		return
	}
	snap := CurrentSnapshot(r.Context())
	identity, _ := snap.Identity()

	entry := models.NewAuditLog(identity.UserID, models.AuditActionAccessDenied).
		WithRole(role.String()).
		WithScreen(screen).
		WithDetails(map[string]string{"path": r.URL.Path, "allowed": req.String()}).
		WithRequest(GetRequestIDFromContext(r.Context()), r.RemoteAddr, r.UserAgent())
	if err := m.audit.Record(entry); err != nil {
		m.logger.Warn("failed to record access denial", zap.Error(err))
	}
}

// deniedEffects captures the guard's redirect and notification so the
// response is written once, after the flash cookie is set.
type deniedEffects struct {
	redirect string
	notified bool
	message  string
}

func (e *deniedEffects) Redirect(path string) { e.redirect = path }

func (e *deniedEffects) Notify(message string) {
	e.notified = true
	e.message = message
}

// SetFlash stores a one-shot message for the next page.
func SetFlash(w http.ResponseWriter, message string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     FlashCookieName,
		Value:    url.QueryEscape(message),
		Path:     "/",
		MaxAge:   flashMaxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// PopFlash returns the pending flash message and clears it.
func PopFlash(w http.ResponseWriter, r *http.Request, secure bool) string {
	c, err := r.Cookie(FlashCookieName)
	if err != nil || c.Value == "" {
		return ""
	}
	http.SetCookie(w, &http.Cookie{
		Name:     FlashCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	message, err := url.QueryUnescape(c.Value)
	if err != nil {
		return ""
	}
	return message
}
