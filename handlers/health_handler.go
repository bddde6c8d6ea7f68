package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/upb/policy-portal/utils"
	"go.uber.org/zap"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// BackendPinger checks that the remote backend answers. apiclient.Client
// implements it.
type BackendPinger interface {
	Ping(ctx context.Context) error
}

// AuditQueue reports queued audit events. audit.Service implements it.
type AuditQueue interface {
	Pending() int
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	db      *sql.DB
	backend BackendPinger
	audit   AuditQueue
	logger  *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. db and backend may be nil.
func NewHealthHandler(db *sql.DB, backend BackendPinger, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:      db,
		backend: backend,
		logger:  logger,
	}
}

// WithAuditQueue makes readiness report the audit backlog. It does not
// affect the readiness status.
func (h *HealthHandler) WithAuditQueue(q AuditQueue) *HealthHandler {
	h.audit = q
	return h
}

// HandleHealth handles GET /healthz
// Basic health check - always returns 200 if service is running
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	_ = utils.WriteOK(w, response)
}

// HandleReadiness handles GET /readyz
// Readiness check - validates the database and the backend
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	if err := h.checkDatabase(ctx); err != nil {
		h.logger.Warn("database health check failed", zap.Error(err))
		checks["database"] = "unhealthy"
		allHealthy = false
	} else {
		checks["database"] = "healthy"
	}

	if err := h.checkBackend(ctx); err != nil {
		h.logger.Warn("backend health check failed", zap.Error(err))
		checks["backend"] = "unhealthy"
		allHealthy = false
	} else {
		checks["backend"] = "healthy"
	}

	if h.audit != nil {
		checks["audit_pending"] = strconv.Itoa(h.audit.Pending())
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	if err := utils.WriteJSON(w, httpStatus, utils.SuccessResponse{Data: response}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

// checkDatabase checks database connectivity
func (h *HealthHandler) checkDatabase(ctx context.Context) error {
	if h.db == nil {
		return nil
	}

	if err := h.db.PingContext(ctx); err != nil {
		return err
	}

	var result int
	return h.db.QueryRowContext(ctx, "SELECT 1").Scan(&result)
}

func (h *HealthHandler) checkBackend(ctx context.Context) error {
	if h.backend == nil {
		return nil
	}
	return h.backend.Ping(ctx)
}
