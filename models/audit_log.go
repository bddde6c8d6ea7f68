package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of access event being audited
type AuditAction string

const (
	AuditActionLogin          AuditAction = "login"
	AuditActionLogout         AuditAction = "logout"
	AuditActionRefresh        AuditAction = "token_refresh"
	AuditActionAccessDenied   AuditAction = "access_denied"
	AuditActionSessionExpired AuditAction = "session_expired"
)

// AuditLog represents an access audit trail entry
type AuditLog struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	UserID    string          `json:"user_id" db:"user_id"`
	Role      string          `json:"role,omitempty" db:"role"`
	Action    AuditAction     `json:"action" db:"action"`
	Screen    string          `json:"screen,omitempty" db:"screen"`
	Details   json.RawMessage `json:"details,omitempty" db:"details"`
	IPAddress string          `json:"ip_address" db:"ip_address"`
	UserAgent string          `json:"user_agent" db:"user_agent"`
	RequestID string          `json:"request_id" db:"request_id"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}

// TableName returns the table name for the AuditLog model
func (AuditLog) TableName() string {
	return "portal_audit_logs"
}

// NewAuditLog creates a new AuditLog instance
func NewAuditLog(userID string, action AuditAction) *AuditLog {
	return &AuditLog{
		ID:        uuid.New(),
		UserID:    userID,
		Action:    action,
		Timestamp: time.Now().UTC(),
	}
}

// WithRole sets the role the user held at the time of the event
func (a *AuditLog) WithRole(role string) *AuditLog {
	a.Role = role
	return a
}

// WithScreen sets the screen the event relates to
func (a *AuditLog) WithScreen(screen string) *AuditLog {
	a.Screen = screen
	return a
}

// WithDetails sets the details
func (a *AuditLog) WithDetails(details interface{}) *AuditLog {
	if data, err := json.Marshal(details); err == nil {
		a.Details = data
	}
	return a
}

// WithRequest sets request metadata
func (a *AuditLog) WithRequest(requestID, ipAddress, userAgent string) *AuditLog {
	a.RequestID = requestID
	a.IPAddress = ipAddress
	a.UserAgent = userAgent
	return a
}
