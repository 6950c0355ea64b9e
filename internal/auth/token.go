package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"scormrelay/internal/types"
)

// clockSkewLeeway is tolerated on exp and iat checks.
const clockSkewLeeway = 30 * time.Second

// TokenIssuer signs and verifies admin access tokens (HMAC JWTs).
type TokenIssuer struct {
	secret []byte
	method jwt.SigningMethod
	ttl    time.Duration
	clock  types.Clock
}

// NewTokenIssuer returns an issuer for one of HS256, HS384 or HS512.
func NewTokenIssuer(secret types.SecretString, algorithm string, ttl time.Duration, clock types.Clock) (*TokenIssuer, error) {
	method, ok := jwt.GetSigningMethod(algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported JWT algorithm %q", algorithm)
	}
	if !secret.IsSet() {
		return nil, errors.New("JWT secret is empty")
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	return &TokenIssuer{
		secret: []byte(secret.Unmask()),
		method: method,
		ttl:    ttl,
		clock:  clock,
	}, nil
}

// Issue returns a signed token for subject and its expiry time.
func (t *TokenIssuer) Issue(subject string) (string, time.Time, error) {
	now := t.clock.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
	}
	signed, err := jwt.NewWithClaims(t.method, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, types.NewAppError(types.ErrCodeInternalTokenSigning, "failed to sign access token", err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

// Verify checks signature, algorithm and expiry and returns the subject.
// Failures are *types.AppError with auth_token_expired or
// auth_token_invalid.
func (t *TokenIssuer) Verify(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{t.method.Alg()}),
		jwt.WithLeeway(clockSkewLeeway),
		jwt.WithTimeFunc(t.clock.Now),
		jwt.WithExpirationRequired(),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", types.NewAppError(types.ErrCodeAuthTokenExpired, "access token has expired", err)
	case err != nil:
		return "", types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid access token", err)
	case claims.Subject == "":
		return "", types.NewAppError(types.ErrCodeAuthTokenInvalid, "access token has no subject", nil)
	}
	return claims.Subject, nil
}
