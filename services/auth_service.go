package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/upb/policy-portal/internal/access"
	"github.com/upb/policy-portal/internal/apiclient"
	"github.com/upb/policy-portal/internal/session"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// LoginRequest is the credential pair posted to the backend
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=1,max=1024"`
}

// BackendUser is the user block of a backend token response
type BackendUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// TokenResponse is the backend answer to login and refresh
type TokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token,omitempty"`
	ExpiresIn    int          `json:"expires_in,omitempty"`
	User         *BackendUser `json:"user,omitempty"`
}

// refreshTimeout bounds a shared refresh call.
const refreshTimeout = 30 * time.Second

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenVerifier checks backend token signatures.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*session.TokenClaims, error)
}

// AuthService establishes, refreshes and ends portal sessions against the
// backend's auth endpoints.
type AuthService struct {
	client   *apiclient.Client
	verifier TokenVerifier
	logger   *zap.Logger
	refresh  singleflight.Group
	now      func() time.Time
}

// NewAuthService creates an AuthService. verifier may be nil, in which case
// token claims are decoded without signature checks.
func NewAuthService(client *apiclient.Client, verifier TokenVerifier, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		client:   client,
		verifier: verifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Login exchanges credentials for a session. The session is not stored.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*session.Session, error) {
	var resp TokenResponse
	if err := s.client.Post(ctx, "/auth/login", req, &resp); err != nil {
		if errors.Is(err, apiclient.ErrUnauthorized) {
			return nil, ErrInvalidCredentials.Wrap(err)
		}
		return nil, backendError("login failed", err)
	}

	sess, err := s.buildSession(ctx, &resp)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in",
		zap.String("user_id", sess.Identity.UserID),
		zap.String("role", sess.Identity.Role.String()))
	return sess, nil
}

// Refresh renews the credential of the session in store. Concurrent calls for
// the same session id share one backend call. The shared call outlives the
// caller that started it, bounded by refreshTimeout; a cancelled caller
// returns its context error without failing the others.
func (s *AuthService) Refresh(ctx context.Context, sessionID string, store *session.Store) error {
	ch := s.refresh.DoChan(sessionID, func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return nil, s.doRefresh(callCtx, store)
	})

	select {
	case res := <-ch:
		if res.Shared {
			s.logger.Debug("coalesced token refresh", zap.String("session_key", session.StorageKey(sessionID)[:12]))
		}
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *AuthService) doRefresh(ctx context.Context, store *session.Store) error {
	snap := store.Current()
	if snap.State != session.StateAuthenticated {
		return ErrNotAuthenticated
	}
	if snap.Session.RefreshToken == "" {
		return NewDomainError(ErrorTypeUnauthenticated, "session cannot be refreshed", nil)
	}

	var resp TokenResponse
	err := s.client.WithSession(store).Post(ctx, "/auth/refresh", refreshRequest{RefreshToken: snap.Session.RefreshToken}, &resp)
	if err != nil {
		if errors.Is(err, apiclient.ErrUnauthorized) {
			return ErrSessionExpired.Wrap(err)
		}
		return backendError("refresh failed", err)
	}
	if resp.AccessToken == "" {
		return ErrBackendResponse.Wrap(nil).WithDetail("reason", "refresh response has no access token")
	}

	expiresAt := s.expiry(&resp, nil)
	if expiresAt.IsZero() {
		if claims, err := session.ParseToken(resp.AccessToken); err == nil {
			expiresAt = claims.Expiry()
		}
	}

	if err := store.Refresh(ctx, resp.AccessToken, resp.RefreshToken, expiresAt); err != nil {
		if errors.Is(err, session.ErrNoSession) {
			return ErrSessionExpired.Wrap(err)
		}
		return ErrInternal.Wrap(fmt.Errorf("store refreshed session: %w", err))
	}
	return nil
}

// Logout tells the backend the token is done and clears store. The backend
// call is best effort; the session is cleared regardless.
func (s *AuthService) Logout(ctx context.Context, store *session.Store) error {
	if store.Token() != "" {
		if err := s.client.WithSession(store).Post(ctx, "/auth/logout", nil, nil); err != nil && !errors.Is(err, apiclient.ErrUnauthorized) {
			s.logger.Warn("backend logout failed", zap.Error(err))
		}
	}

	if err := store.Logout(ctx); err != nil {
		return ErrInternal.Wrap(fmt.Errorf("clear session: %w", err))
	}
	return nil
}

func (s *AuthService) buildSession(ctx context.Context, resp *TokenResponse) (*session.Session, error) {
	if resp.AccessToken == "" {
		return nil, ErrBackendResponse.Wrap(nil).WithDetail("reason", "login response has no access token")
	}

	claims, err := s.claims(ctx, resp.AccessToken)
	if err != nil {
		if s.verifier != nil || resp.User == nil {
			return nil, NewDomainError(ErrorTypeUnauthenticated, "backend token rejected", err)
		}
	}

	var identity session.Identity
	if resp.User != nil {
		role, err := access.ParseRole(resp.User.Role)
		if err != nil {
			return nil, NewDomainError(ErrorTypeUnauthenticated, "unsupported role", err).
				WithDetail("role", resp.User.Role)
		}
		identity = session.Identity{
			UserID:      resp.User.ID,
			DisplayName: resp.User.Name,
			Email:       resp.User.Email,
			Role:        role,
		}
		if identity.DisplayName == "" {
			identity.DisplayName = identity.Email
		}
	} else {
		identity, err = claims.Identity()
		if err != nil {
			return nil, NewDomainError(ErrorTypeUnauthenticated, "token carries no usable identity", err)
		}
	}
	if identity.UserID == "" {
		return nil, ErrBackendResponse.Wrap(nil).WithDetail("reason", "login response has no user id")
	}

	return &session.Session{
		Identity:     identity,
		Token:        resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    s.expiry(resp, claims),
	}, nil
}

func (s *AuthService) claims(ctx context.Context, token string) (*session.TokenClaims, error) {
	if s.verifier != nil {
		return s.verifier.Verify(ctx, token)
	}
	return session.ParseToken(token)
}

// expiry prefers expires_in over the exp claim.
func (s *AuthService) expiry(resp *TokenResponse, claims *session.TokenClaims) time.Time {
	if resp.ExpiresIn > 0 {
		return s.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	if claims != nil {
		return claims.Expiry()
	}
	return time.Time{}
}

// backendError classifies a failed backend call. Client errors keep the
// backend's status and body in the details.
func backendError(message string, err error) error {
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) {
		errType := ErrorTypeExternal
		if apiErr.StatusCode == http.StatusBadRequest || apiErr.StatusCode == http.StatusUnprocessableEntity {
			errType = ErrorTypeValidation
		}
		return NewDomainError(errType, message, err).
			WithDetail("status", apiErr.StatusCode)
	}
	return ErrBackendUnavailable.Wrap(fmt.Errorf("%s: %w", message, err))
}
