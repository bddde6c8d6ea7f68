package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/upb/policy-portal/auth"
	"github.com/upb/policy-portal/internal/access"
	"github.com/upb/policy-portal/middleware"
	"github.com/upb/policy-portal/models"
	"github.com/upb/policy-portal/utils"
	"go.uber.org/zap"
)

// ScreenLister exposes the effective screen table.
type ScreenLister interface {
	Entries() []access.ScreenEntry
}

// ActivityLister reads a user's access events, newest first.
// repositories.AuditRepository implements it.
type ActivityLister interface {
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.AuditLog, error)
}

const (
	defaultActivityLimit = 20
	maxActivityLimit     = 100
)

// DashboardResponse is the view model of the landing screen.
type DashboardResponse struct {
	User    auth.UserResponse `json:"user"`
	Notice  string            `json:"notice,omitempty"`
	Screens []string          `json:"screens"`
}

// PortalHandler serves the identity-bearing screens of the portal
type PortalHandler struct {
	screens       ScreenLister
	activity      ActivityLister
	secureCookies bool
	logger        *zap.Logger
}

// NewPortalHandler creates a new PortalHandler
func NewPortalHandler(screens ScreenLister, activity ActivityLister, secureCookies bool, logger *zap.Logger) *PortalHandler {
	return &PortalHandler{
		screens:       screens,
		activity:      activity,
		secureCookies: secureCookies,
		logger:        logger,
	}
}

// HandleMe handles GET /api/me
func (h *PortalHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.CurrentSnapshot(r.Context()).Identity()
	if !ok {
		_ = utils.WriteUnauthorized(w, "")
		return
	}
	_ = utils.WriteOK(w, auth.NewUserResponse(identity))
}

// HandleDashboard handles GET /dashboard. It consumes the pending flash
// notice, so a denial message is shown exactly once.
func (h *PortalHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.CurrentSnapshot(r.Context()).Identity()
	if !ok {
		_ = utils.WriteUnauthorized(w, "")
		return
	}

	screens := make([]string, 0)
	for _, entry := range h.screens.Entries() {
		if entry.Request.Contains(identity.Role) {
			screens = append(screens, entry.Name)
		}
	}

	_ = utils.WriteOK(w, DashboardResponse{
		User:    auth.NewUserResponse(identity),
		Notice:  middleware.PopFlash(w, r, h.secureCookies),
		Screens: screens,
	})
}

// ActivityEntry is one access event in the browser view.
type ActivityEntry struct {
	Action    models.AuditAction `json:"action"`
	Screen    string             `json:"screen,omitempty"`
	Timestamp string             `json:"timestamp"`
}

// HandleActivity handles GET /api/me/activity
func (h *PortalHandler) HandleActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := middleware.CurrentSnapshot(ctx).Identity()
	if !ok {
		_ = utils.WriteUnauthorized(w, "")
		return
	}

	limit, err := queryInt(r, "limit", defaultActivityLimit)
	if err != nil || limit < 1 || limit > maxActivityLimit {
		_ = utils.WriteBadRequest(w, "limit must be between 1 and 100", nil)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		_ = utils.WriteBadRequest(w, "offset must be a non-negative integer", nil)
		return
	}

	logs, err := h.activity.ListByUser(ctx, identity.UserID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list activity",
			zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to load activity")
		return
	}

	entries := make([]ActivityEntry, 0, len(logs))
	for _, l := range logs {
		entries = append(entries, ActivityEntry{
			Action:    l.Action,
			Screen:    l.Screen,
			Timestamp: l.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	_ = utils.WriteOK(w, entries)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
