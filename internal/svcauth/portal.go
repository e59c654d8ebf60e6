package svcauth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrPortalAuthDisabled is returned by PortalTokens when constructed
// without a signing secret.
var ErrPortalAuthDisabled = errors.New("svcauth: portal auth disabled")

// ErrInvalidPortalToken is returned when a portal session token fails
// signature verification or carries no subject.
var ErrInvalidPortalToken = errors.New("svcauth: invalid portal session token")

// PortalClaims is the JWT payload issued for a portal/OAuth web session.
// Subject carries the internal user ID.
type PortalClaims struct {
	jwt.RegisteredClaims
}

// PortalTokens signs and verifies the session tokens issued at the
// portal/OAuth boundary — the one surface in this system that terminates
// a human browser session rather than an inter-service call, so it uses
// signed, expiring JWTs instead of the shared bearer secret.
type PortalTokens struct {
	secret []byte
	expiry time.Duration
}

// NewPortalTokens builds a PortalTokens helper. An empty secret disables
// issuance and verification.
func NewPortalTokens(secret string, expiry time.Duration) *PortalTokens {
	return &PortalTokens{secret: []byte(secret), expiry: expiry}
}

// Issue signs a session token for userID.
func (p *PortalTokens) Issue(userID string) (string, error) {
	if p == nil || len(p.secret) == 0 {
		return "", ErrPortalAuthDisabled
	}
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("svcauth: user id required")
	}
	claims := PortalClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  userID,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	if p.expiry != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(p.expiry))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(p.secret)
}

// Verify parses and validates a session token, returning its subject
// (internal user ID).
func (p *PortalTokens) Verify(token string) (string, error) {
	if p == nil || len(p.secret) == 0 {
		return "", ErrPortalAuthDisabled
	}
	parsed, err := jwt.ParseWithClaims(token, &PortalClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil {
		return "", ErrInvalidPortalToken
	}
	claims, ok := parsed.Claims.(*PortalClaims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return "", ErrInvalidPortalToken
	}
	return claims.Subject, nil
}
