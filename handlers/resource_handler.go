package handlers

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/upb/policy-portal/internal/apiclient"
	"github.com/upb/policy-portal/middleware"
	"github.com/upb/policy-portal/models"
	"github.com/upb/policy-portal/services"
	"github.com/upb/policy-portal/utils"
	"go.uber.org/zap"
)

// Backend collections the portal forwards to.
const (
	ResourcePolicies     = "policies"
	ResourceLicenses     = "licenses"
	ResourceUsers        = "users"
	ResourceReports      = "reports"
	ResourceOrganization = "organization"
)

// maxForwardBody caps request bodies forwarded to the backend.
const maxForwardBody = 8 << 20

// CookieClearer removes the session cookie.
type CookieClearer interface {
	ClearCookie(w http.ResponseWriter)
}

// ResourceHandler forwards CRUD calls to the backend with the caller's
// session credential. Bodies are passed through verbatim in both directions.
type ResourceHandler struct {
	client    *apiclient.Client
	cookies   CookieClearer
	audit     middleware.AuditRecorder
	loginPath string
	logger    *zap.Logger
}

// NewResourceHandler creates a new ResourceHandler. audit may be nil.
func NewResourceHandler(client *apiclient.Client, cookies CookieClearer, audit middleware.AuditRecorder, loginPath string, logger *zap.Logger) *ResourceHandler {
	return &ResourceHandler{
		client:    client,
		cookies:   cookies,
		audit:     audit,
		loginPath: loginPath,
		logger:    logger,
	}
}

// Forward returns a handler for one backend collection. The optional {id}
// URL parameter selects a single item.
func (h *ResourceHandler) Forward(resource string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := middleware.GetRequestIDFromContext(ctx)

		path := resource
		if id := chi.URLParam(r, "id"); id != "" {
			if err := utils.ValidateResourceID(id); err != nil {
				HandleServiceError(w, services.ErrInvalidInput.Wrap(err).WithDetail("id", id), h.logger)
				return
			}
			path += "/" + url.PathEscape(id)
		}

		var body io.Reader
		if r.Body != nil && r.Body != http.NoBody {
			data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxForwardBody))
			if err != nil {
				HandleServiceError(w, services.ErrInvalidInput.Wrap(err).WithDetail("body", "request body too large"), h.logger)
				return
			}
			if len(data) > 0 {
				body = bytes.NewReader(data)
			}
		}

		store := middleware.GetSessionFromContext(ctx)
		if store == nil {
			HandleServiceError(w, h.sessionExpired(), h.logger)
			return
		}
		identity, _ := store.Current().Identity()

		resp, err := h.client.WithSession(store).
			Forward(ctx, r.Method, path, r.URL.Query(), body, r.Header.Get("Content-Type"))
		if err != nil {
			var apiErr *apiclient.APIError
			switch {
			case errors.Is(err, apiclient.ErrUnauthorized):
				h.logger.Info("backend rejected session",
					zap.String("request_id", requestID),
					zap.String("resource", resource))
				h.cookies.ClearCookie(w)
				h.recordExpired(r, identity.UserID, identity.Role.String())
				HandleServiceError(w, h.sessionExpired(), h.logger)
			case errors.As(err, &apiErr):
				_ = utils.WriteRaw(w, apiErr.StatusCode, apiErr.ContentType, apiErr.Body)
			default:
				h.logger.Error("backend call failed",
					zap.String("request_id", requestID),
					zap.String("resource", resource),
					zap.Error(err))
				HandleServiceError(w, services.ErrBackendUnavailable.Wrap(err), h.logger)
			}
			return
		}

		if err := utils.WriteRaw(w, resp.StatusCode, resp.Header.Get("Content-Type"), resp.Body); err != nil {
			h.logger.Error("failed to write backend response",
				zap.String("request_id", requestID),
				zap.Error(err))
		}
	}
}

func (h *ResourceHandler) sessionExpired() error {
	return services.ErrSessionExpired.Wrap(nil).WithDetail("login", h.loginPath)
}

func (h *ResourceHandler) recordExpired(r *http.Request, userID, role string) {
	if h.audit == nil || userID == "" {
		return
	}
	entry := models.NewAuditLog(userID, models.AuditActionSessionExpired).
		WithRole(role).
		WithRequest(middleware.GetRequestIDFromContext(r.Context()), r.RemoteAddr, r.UserAgent())
	if err := h.audit.Record(entry); err != nil {
		h.logger.Warn("failed to record session expiry", zap.Error(err))
	}
}
