// Package session holds the portal's authenticated browser sessions.
//
// A Store owns one browser session: it resolves persisted state once, then
// serves concurrent reads while login, refresh and logout replace it.
package session

import (
	"time"

	"github.com/upb/policy-portal/internal/access"
)

// Identity is the authenticated user behind a session.
type Identity struct {
	UserID      string      `json:"user_id"`
	DisplayName string      `json:"display_name"`
	Email       string      `json:"email,omitempty"`
	Role        access.Role `json:"role"`
}

// Session is an authenticated identity plus the backend credential.
type Session struct {
	Identity     Identity
	Token        string
	RefreshToken string
	ExpiresAt    time.Time
}

// Expired reports whether the session is past its expiry. A zero expiry
// never expires.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

func (s *Session) valid() bool {
	return s.Identity.UserID != "" && s.Identity.Role.Valid() && s.Token != ""
}

// State is the resolution state of a Store.
type State int

const (
	StateLoading State = iota
	StateAnonymous
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Snapshot is a point-in-time copy of a Store.
type Snapshot struct {
	State   State
	Session *Session
}

// Subject converts the snapshot into access guard input.
func (s Snapshot) Subject() access.Subject {
	switch s.State {
	case StateAuthenticated:
		return access.Authenticated(s.Session.Identity.Role)
	case StateAnonymous:
		return access.Anonymous()
	default:
		return access.Pending()
	}
}

// Identity returns the session identity when authenticated.
func (s Snapshot) Identity() (Identity, bool) {
	if s.State != StateAuthenticated || s.Session == nil {
		return Identity{}, false
	}
	return s.Session.Identity, true
}

// Token returns the credential token, or "" without a session.
func (s Snapshot) Token() string {
	if s.State != StateAuthenticated || s.Session == nil {
		return ""
	}
	return s.Session.Token
}
