package middleware

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/upb/policy-portal/internal/session"
)

// Context key type to avoid collisions
type contextKey string

const (
	// SessionKey is the context key for the request's session store
	SessionKey contextKey = "session"

	// SessionIDKey is the context key for the session id from the cookie
	SessionIDKey contextKey = "session_id"
)

// GetRequestIDFromContext retrieves the request ID set by chi's RequestID middleware
func GetRequestIDFromContext(ctx context.Context) string {
	return chimw.GetReqID(ctx)
}

// WithSession adds the session store and its id to the context
func WithSession(ctx context.Context, id string, store *session.Store) context.Context {
	ctx = context.WithValue(ctx, SessionKey, store)
	return context.WithValue(ctx, SessionIDKey, id)
}

// GetSessionFromContext retrieves the session store from context
func GetSessionFromContext(ctx context.Context) *session.Store {
	if val := ctx.Value(SessionKey); val != nil {
		if store, ok := val.(*session.Store); ok {
			return store
		}
	}
	return nil
}

// GetSessionIDFromContext retrieves the session id, or "" for anonymous requests
func GetSessionIDFromContext(ctx context.Context) string {
	if val := ctx.Value(SessionIDKey); val != nil {
		if id, ok := val.(string); ok {
			return id
		}
	}
	return ""
}

// CurrentSnapshot returns the request's session snapshot. Requests without a
// store read as anonymous.
func CurrentSnapshot(ctx context.Context) session.Snapshot {
	if store := GetSessionFromContext(ctx); store != nil {
		return store.Current()
	}
	return session.Snapshot{State: session.StateAnonymous}
}
