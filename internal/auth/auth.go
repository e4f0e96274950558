package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

const DefaultStateTTL = 10 * time.Minute

var stateKeyInfo = []byte("erpnext-bridge oauth2 state v1")

// ErrInvalidState marks a state that is forged, expired or bound to
// another redirect URI.
var ErrInvalidState = errors.New("invalid oauth state")

// StateClaims bind an authorization request to its redirect URI.
type StateClaims struct {
	jwt.RegisteredClaims
	RedirectURI string `json:"redirect_uri"`
}

// StateSigner issues and verifies the OAuth2 state parameter as a signed,
// short lived JWT. Nothing is stored between authorize and token exchange.
type StateSigner struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewStateSigner derives the signing key from the OAuth client secret.
func NewStateSigner(secret string, ttl time.Duration) (*StateSigner, error) {
	if secret == "" {
		return nil, errors.New("state signer: client secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, stateKeyInfo), key); err != nil {
		return nil, fmt.Errorf("derive state key: %w", err)
	}
	return &StateSigner{key: key, ttl: ttl, now: time.Now}, nil
}

// Issue returns a new state token for redirectURI.
func (s *StateSigner) Issue(redirectURI string) (string, error) {
	now := s.now()
	claims := StateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		RedirectURI: redirectURI,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign state: %w", err)
	}
	return signed, nil
}

// Verify checks signature, expiry and that the state was issued for
// redirectURI.
func (s *StateSigner) Verify(state, redirectURI string) (*StateClaims, error) {
	token, err := jwt.ParseWithClaims(state, &StateClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.key, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	claims, ok := token.Claims.(*StateClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidState
	}
	if claims.RedirectURI != redirectURI {
		return nil, fmt.Errorf("%w: issued for another redirect uri", ErrInvalidState)
	}
	return claims, nil
}
