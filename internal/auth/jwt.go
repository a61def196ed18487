package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Ayushsunny/Budgease/internal/core"
)

const (
	DefaultTokenTTL = 24 * time.Hour
	// CookieName is the cookie checked when no bearer header or query token
	// is present.
	CookieName = "budgease_token"
	issuer     = "budgease"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carry the identity a token was issued for.
type Claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Identity rebuilds the identity from the subject and profile claims.
func (c *Claims) Identity() core.Identity {
	return core.Identity{UID: c.Subject, Email: c.Email, Name: c.Name}
}

// IssueToken signs an HS256 token for identity. A non-positive ttl uses
// DefaultTokenTTL.
func IssueToken(secret string, identity core.Identity, ttl time.Duration, now time.Time) (string, error) {
	if identity.IsAnonymous() {
		return "", errors.New("cannot issue a token for the anonymous identity")
	}
	if identity.UID == core.AnonymousKey {
		return "", fmt.Errorf("uid %q is reserved for the local budget", identity.UID)
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	claims := &Claims{
		Email: identity.Email,
		Name:  identity.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken verifies tokenStr and returns its claims.
func ParseToken(secret, tokenStr string, now time.Time) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || strings.TrimSpace(claims.Subject) == "" || claims.Subject == core.AnonymousKey {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// TokenFromRequest looks for a token in the Authorization header, then the
// token query parameter, then the budgease_token cookie.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}
