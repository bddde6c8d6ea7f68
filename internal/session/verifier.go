package session

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when the token is invalid
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when the token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrJWKSFetchFailed is returned when JWKS fetching fails
	ErrJWKSFetchFailed = errors.New("failed to fetch JWKS")
)

// JWKS represents the JSON Web Key Set
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK represents a JSON Web Key
type JWK struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// VerifierConfig holds configuration for JWKSVerifier
type VerifierConfig struct {
	JWKSURL     string
	Issuer      string
	CacheTTL    time.Duration
	HTTPTimeout time.Duration
}

// JWKSVerifier checks backend token signatures against a JWKS endpoint.
type JWKSVerifier struct {
	jwksURL    string
	issuer     string
	httpClient *http.Client

	keys    map[string]*rsa.PublicKey
	keysExp time.Time
	keysTTL time.Duration
	keysMu  sync.RWMutex
	fetchMu sync.Mutex
}

// NewJWKSVerifier creates a verifier for the configured endpoint.
func NewJWKSVerifier(cfg VerifierConfig) *JWKSVerifier {
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 1 * time.Hour
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	return &JWKSVerifier{
		jwksURL:    cfg.JWKSURL,
		issuer:     cfg.Issuer,
		keysTTL:    cfg.CacheTTL,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
	}
}

// Verify validates the token signature, expiry and issuer and returns its
// claims.
func (v *JWKSVerifier) Verify(ctx context.Context, tokenString string) (*TokenClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, errors.New("kid header not found")
		}
		return v.publicKey(ctx, kid)
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// InvalidateCache drops cached keys so the next Verify refetches them.
func (v *JWKSVerifier) InvalidateCache() {
	v.keysMu.Lock()
	defer v.keysMu.Unlock()
	v.keys = nil
	v.keysExp = time.Time{}
}

func (v *JWKSVerifier) publicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if key, ok := v.cachedKey(kid); ok {
		return key, nil
	}

	// One fetch at a time; a concurrent caller may already have refreshed.
	v.fetchMu.Lock()
	defer v.fetchMu.Unlock()
	if key, ok := v.cachedKey(kid); ok {
		return key, nil
	}

	keys, err := v.fetch(ctx)
	if err != nil {
		return nil, err
	}

	v.keysMu.Lock()
	v.keys = keys
	v.keysExp = time.Now().Add(v.keysTTL)
	v.keysMu.Unlock()

	key, ok := keys[kid]
	if !ok {
		return nil, fmt.Errorf("key with kid %s not found in JWKS", kid)
	}
	return key, nil
}

func (v *JWKSVerifier) cachedKey(kid string) (*rsa.PublicKey, bool) {
	v.keysMu.RLock()
	defer v.keysMu.RUnlock()
	if v.keys == nil || !time.Now().Before(v.keysExp) {
		return nil, false
	}
	key, ok := v.keys[kid]
	return key, ok
}

func (v *JWKSVerifier) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status code %d", ErrJWKSFetchFailed, resp.StatusCode)
	}

	var jwks JWKS
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, fmt.Errorf("failed to decode JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(jwks.Keys))
	for i := range jwks.Keys {
		jwk := &jwks.Keys[i]
		if jwk.Kty != "RSA" {
			continue
		}
		key, err := jwkToRSAPublicKey(jwk)
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", jwk.Kid, err)
		}
		keys[jwk.Kid] = key
	}
	return keys, nil
}

func jwkToRSAPublicKey(jwk *JWK) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(jwk.N)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(jwk.E)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	var e int
	for _, b := range eBytes {
		e = e*256 + int(b)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: e}, nil
}
