// Package resume signs the state a two-phase purchase needs after the buyer
// returns from the processor. The signed value rides in the return URL, so
// nothing has to survive in process memory across the redirect.
package resume

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL bounds how long a buyer may stay on the processor's page.
const DefaultTTL = 24 * time.Hour

var (
	ErrInvalidState = errors.New("invalid resume state")
	ErrMissingKey   = errors.New("resume state secret is not set")
)

// State is what phase one hands to phase two.
type State struct {
	OrderID  string `json:"oid"`
	Backend  string `json:"bk"`
	Amount   string `json:"amt,omitempty"`
	Currency string `json:"cur,omitempty"`
}

type stateClaims struct {
	State
	jwt.RegisteredClaims
}

// Signer issues and checks HS256 signed states.
type Signer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewSigner(secret string, ttl time.Duration) (*Signer, error) {
	if secret == "" {
		return nil, ErrMissingKey
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Signer{key: []byte(secret), ttl: ttl, now: time.Now}, nil
}

func (s *Signer) Sign(st State) (string, error) {
	now := s.now()
	claims := stateClaims{
		State: st,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign resume state: %w", err)
	}
	return signed, nil
}

// Verify checks signature and expiry. Every failure wraps ErrInvalidState.
func (s *Signer) Verify(raw string) (State, error) {
	token, err := jwt.ParseWithClaims(
		raw,
		&stateClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return s.key, nil
		},
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	claims, ok := token.Claims.(*stateClaims)
	if !ok || !token.Valid || claims.OrderID == "" {
		return State{}, ErrInvalidState
	}
	return claims.State, nil
}
