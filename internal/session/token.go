package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/frahmantamala/trading-panel/internal"
	"github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// TokenService issues the panel's own bearer tokens. They carry only the
// session id; the upstream token never leaves the server.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenService(secret string, ttl time.Duration) *TokenService {
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for the session. It never outlives the upstream token.
func (t *TokenService) Issue(s Session) (string, time.Time, error) {
	now := t.now()
	expiresAt := now.Add(t.ttl)
	if !s.User.TokenExpiresAt.IsZero() && s.User.TokenExpiresAt.Before(expiresAt) {
		expiresAt = s.User.TokenExpiresAt
	}

	claims := &Claims{
		SessionID: s.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.User.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse validates a token and returns its claims. An expired token with a
// valid signature still yields its claims together with
// internal.ErrTokenExpired, so the caller can clean up the session it named.
func (t *TokenService) Parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			if token != nil {
				if claims, ok := token.Claims.(*Claims); ok && claims.SessionID != "" {
					return claims, internal.ErrTokenExpired
				}
			}
			return nil, internal.ErrTokenExpired
		}
		return nil, internal.ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.SessionID == "" {
		return nil, internal.ErrInvalidToken
	}
	return claims, nil
}
