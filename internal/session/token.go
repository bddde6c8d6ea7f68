package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/upb/policy-portal/internal/access"
)

// ErrMissingClaim is returned when a required claim is missing
var ErrMissingClaim = errors.New("missing required claim")

// TokenClaims are the claims the backend puts in its access tokens.
type TokenClaims struct {
	jwt.RegisteredClaims
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// ParseToken decodes token claims without verifying the signature.
func ParseToken(token string) (*TokenClaims, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())

	claims := &TokenClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	return claims, nil
}

// Identity builds an Identity from the claims. The role must be a known one.
func (c *TokenClaims) Identity() (Identity, error) {
	if c.Subject == "" {
		return Identity{}, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	if c.Role == "" {
		return Identity{}, fmt.Errorf("%w: role", ErrMissingClaim)
	}
	role, err := access.ParseRole(c.Role)
	if err != nil {
		return Identity{}, err
	}

	name := c.Name
	if name == "" {
		name = c.Email
	}
	return Identity{
		UserID:      c.Subject,
		DisplayName: name,
		Email:       c.Email,
		Role:        role,
	}, nil
}

// Expiry returns the exp claim, or the zero time when absent.
func (c *TokenClaims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}
