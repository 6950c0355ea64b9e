// Package auth authenticates the single administrator of the relay and
// issues the bearer tokens that guard the admin routes.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	"scormrelay/internal/types"
)

// Token is the login response.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// AdminConfig wires an AdminService. Password may be plaintext or a bcrypt
// hash. Hasher and Logger are optional.
type AdminConfig struct {
	Email    string
	Password types.SecretString
	Tokens   *TokenIssuer
	Hasher   PasswordHasher
	Logger   *slog.Logger
}

// AdminService checks admin credentials and resolves admin tokens.
type AdminService struct {
	email        string
	passwordHash string
	// decoyHash is compared against when the email does not match so that
	// both failure paths pay for one bcrypt comparison.
	decoyHash string
	tokens    *TokenIssuer
	hasher    PasswordHasher
	logger    *slog.Logger
}

// NewAdminService hashes a plaintext password once at startup. A configured
// bcrypt hash is used as is.
func NewAdminService(cfg AdminConfig) (*AdminService, error) {
	if cfg.Email == "" || !cfg.Password.IsSet() {
		return nil, errors.New("admin email and password are required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("token issuer is required")
	}
	if cfg.Hasher == nil {
		cfg.Hasher = BcryptHasher{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	hash := cfg.Password.Unmask()
	if !IsBcryptHash(hash) {
		var err error
		if hash, err = cfg.Hasher.GenerateFromPassword(hash); err != nil {
			return nil, err
		}
	}

	decoy, err := cfg.Hasher.GenerateFromPassword(randomString())
	if err != nil {
		return nil, err
	}

	return &AdminService{
		email:        normalizeEmail(cfg.Email),
		passwordHash: hash,
		decoyHash:    decoy,
		tokens:       cfg.Tokens,
		hasher:       cfg.Hasher,
		logger:       cfg.Logger.With("component", "admin_auth"),
	}, nil
}

// Login verifies credentials and returns a signed access token. Unknown
// email and wrong password both return auth_invalid_credentials.
func (s *AdminService) Login(ctx context.Context, email, password string) (Token, error) {
	emailMatches := subtle.ConstantTimeCompare([]byte(normalizeEmail(email)), []byte(s.email)) == 1

	hash := s.passwordHash
	if !emailMatches {
		hash = s.decoyHash
	}
	passwordErr := s.hasher.CompareHashAndPassword(hash, password)

	if !emailMatches || passwordErr != nil {
		s.logger.WarnContext(ctx, "admin login failed", "email_matches", emailMatches)
		return Token{}, types.NewAppError(types.ErrCodeAuthInvalidCreds, "incorrect username or password", nil)
	}

	signed, expiresAt, err := s.tokens.Issue(s.email)
	if err != nil {
		return Token{}, err
	}
	s.logger.InfoContext(ctx, "admin logged in")
	return Token{AccessToken: signed, TokenType: "bearer", ExpiresAt: expiresAt}, nil
}

// ResolveToken implements core.Authenticator.
func (s *AdminService) ResolveToken(_ context.Context, token string) (*types.Actor, error) {
	subject, err := s.tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	if normalizeEmail(subject) != s.email {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "token subject is not the administrator", nil)
	}
	return &types.Actor{ID: s.email, Type: types.ActorTypeAdmin}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func randomString() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
