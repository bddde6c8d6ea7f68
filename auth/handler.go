package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/upb/policy-portal/config"
	"github.com/upb/policy-portal/internal/session"
	"github.com/upb/policy-portal/middleware"
	"github.com/upb/policy-portal/models"
	"github.com/upb/policy-portal/services"
	"github.com/upb/policy-portal/utils"
	"go.uber.org/zap"
)

// Authenticator talks to the backend's auth endpoints. services.AuthService
// implements it.
type Authenticator interface {
	Login(ctx context.Context, req services.LoginRequest) (*session.Session, error)
	Refresh(ctx context.Context, sessionID string, store *session.Store) error
	Logout(ctx context.Context, store *session.Store) error
}

// SessionCreator stores new sessions. session.Manager implements it.
type SessionCreator interface {
	Create(ctx context.Context, sess session.Session) (string, *session.Store, error)
}

// CookieWriter sets and clears the session cookie.
type CookieWriter interface {
	SetCookie(w http.ResponseWriter, id string, expiresAt time.Time)
	ClearCookie(w http.ResponseWriter)
}

// UserResponse is the browser view of a session identity.
type UserResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
	Role        string `json:"role"`
}

// NewUserResponse converts an identity for the browser.
func NewUserResponse(id session.Identity) UserResponse {
	return UserResponse{
		ID:          id.UserID,
		DisplayName: id.DisplayName,
		Email:       id.Email,
		Role:        id.Role.String(),
	}
}

// SessionResponse answers login and refresh.
type SessionResponse struct {
	User      *UserResponse `json:"user,omitempty"`
	ExpiresAt *time.Time    `json:"expires_at,omitempty"`
	Redirect  string        `json:"redirect,omitempty"`
}

// Handler serves login, logout and refresh for browser sessions.
type Handler struct {
	cfg      *config.Config
	authn    Authenticator
	sessions SessionCreator
	cookies  CookieWriter
	audit    middleware.AuditRecorder
	logger   *zap.Logger
	now      func() time.Time
}

// NewHandler creates a new auth handler. audit may be nil.
func NewHandler(cfg *config.Config, authn Authenticator, sessions SessionCreator, cookies CookieWriter, audit middleware.AuditRecorder, logger *zap.Logger) *Handler {
	return &Handler{
		cfg:      cfg,
		authn:    authn,
		sessions: sessions,
		cookies:  cookies,
		audit:    audit,
		logger:   logger,
		now:      time.Now,
	}
}

// HandleLogin exchanges credentials for a session and sets the session cookie
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	var req services.LoginRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Validation failed", utils.FieldsDetails(utils.GetValidationFields(err)))
		return
	}

	sess, err := h.authn.Login(ctx, req)
	if err != nil {
		h.logger.Info("login rejected",
			zap.String("request_id", requestID),
			zap.Error(err))
		h.writeError(w, err)
		return
	}

	// A login replaces whatever session the browser held before.
	if previous := middleware.GetSessionFromContext(ctx); previous != nil && middleware.GetSessionIDFromContext(ctx) != "" {
		if err := previous.Logout(ctx); err != nil {
			h.logger.Warn("failed to clear previous session",
				zap.String("request_id", requestID),
				zap.Error(err))
		}
	}

	id, _, err := h.sessions.Create(ctx, *sess)
	if err != nil {
		h.logger.Error("failed to store session",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to establish session")
		return
	}

	h.cookies.SetCookie(w, id, h.cookieExpiry(sess.ExpiresAt))
	h.record(r, models.NewAuditLog(sess.Identity.UserID, models.AuditActionLogin).
		WithRole(sess.Identity.Role.String()))

	user := NewUserResponse(sess.Identity)
	_ = utils.WriteOK(w, SessionResponse{
		User:      &user,
		ExpiresAt: optionalTime(sess.ExpiresAt),
		Redirect:  h.cfg.Access.FallbackPath,
	})
}

// HandleLogout ends the session and clears the cookie
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	store := middleware.GetSessionFromContext(ctx)

	if identity, ok := middleware.CurrentSnapshot(ctx).Identity(); ok {
		if err := h.authn.Logout(ctx, store); err != nil {
			h.logger.Error("logout failed to clear session",
				zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
				zap.Error(err))
		}
		h.record(r, models.NewAuditLog(identity.UserID, models.AuditActionLogout).
			WithRole(identity.Role.String()))
	}

	h.cookies.ClearCookie(w)
	_ = utils.WriteOK(w, SessionResponse{Redirect: h.cfg.Access.LoginPath})
}

// HandleRefresh renews the backend credential of the current session
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	store := middleware.GetSessionFromContext(ctx)
	identity, ok := middleware.CurrentSnapshot(ctx).Identity()
	if !ok {
		h.writeError(w, services.ErrNotAuthenticated)
		return
	}

	if err := h.authn.Refresh(ctx, middleware.GetSessionIDFromContext(ctx), store); err != nil {
		if services.IsUnauthenticatedError(err) {
			h.cookies.ClearCookie(w)
			h.record(r, models.NewAuditLog(identity.UserID, models.AuditActionSessionExpired).
				WithRole(identity.Role.String()))
		}
		h.writeError(w, err)
		return
	}

	h.record(r, models.NewAuditLog(identity.UserID, models.AuditActionRefresh).
		WithRole(identity.Role.String()))

	snap := store.Current()
	resp := SessionResponse{}
	if snap.Session != nil {
		resp.ExpiresAt = optionalTime(snap.Session.ExpiresAt)
	}
	_ = utils.WriteOK(w, resp)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	details := services.GetErrorDetails(err)
	switch {
	case services.IsUnauthenticatedError(err):
		withLogin := map[string]interface{}{"login": h.cfg.Access.LoginPath}
		for k, v := range details {
			withLogin[k] = v
		}
		_ = utils.WriteError(w, http.StatusUnauthorized, messageOf(err), withLogin)
	case services.IsValidationError(err):
		_ = utils.WriteBadRequest(w, messageOf(err), details)
	case services.IsExternalError(err):
		_ = utils.WriteBadGateway(w, messageOf(err))
	default:
		h.logger.Error("auth request failed", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "")
	}
}

func (h *Handler) record(r *http.Request, entry *models.AuditLog) {
	if h.audit == nil {
		return
	}
	entry.WithRequest(middleware.GetRequestIDFromContext(r.Context()), r.RemoteAddr, r.UserAgent())
	if err := h.audit.Record(entry); err != nil {
		h.logger.Warn("failed to record auth event",
			zap.String("action", string(entry.Action)),
			zap.Error(err))
	}
}

// cookieExpiry bounds the cookie by the session TTL.
func (h *Handler) cookieExpiry(sessionExpiry time.Time) time.Time {
	limit := h.now().Add(h.cfg.Session.TTL)
	if sessionExpiry.IsZero() || sessionExpiry.After(limit) {
		return limit
	}
	return sessionExpiry
}

// messageOf returns the domain message without wrapped internals.
func messageOf(err error) string {
	var domainErr *services.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return err.Error()
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
