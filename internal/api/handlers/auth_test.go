package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"scormrelay/internal/auth"
	"scormrelay/internal/core"
	"scormrelay/internal/types"
)

type mockTokenService struct {
	loginFn func(ctx context.Context, email, password string) (auth.Token, error)
	calls   int
}

func (m *mockTokenService) Login(ctx context.Context, email, password string) (auth.Token, error) {
	m.calls++
	return m.loginFn(ctx, email, password)
}

func acceptOnly(email, password string) *mockTokenService {
	return &mockTokenService{loginFn: func(_ context.Context, e, p string) (auth.Token, error) {
		if e != email || p != password {
			return auth.Token{}, types.NewAppError(types.ErrCodeAuthInvalidCreds, "incorrect username or password", nil)
		}
		return auth.Token{AccessToken: "signed", TokenType: "bearer", ExpiresAt: time.Unix(1700000000, 0).UTC()}, nil
	}}
}

func TestHandleToken(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		wantStatus  int
		wantCode    string
	}{
		{
			name:        "json",
			contentType: "application/json",
			body:        `{"username":"admin@example.com","password":"pw"}`,
			wantStatus:  http.StatusOK,
		},
		{
			name:        "form",
			contentType: "application/x-www-form-urlencoded",
			body:        url.Values{"username": {"admin@example.com"}, "password": {"pw"}, "grant_type": {"password"}}.Encode(),
			wantStatus:  http.StatusOK,
		},
		{
			name:        "form with charset",
			contentType: "application/x-www-form-urlencoded; charset=utf-8",
			body:        "username=admin%40example.com&password=pw",
			wantStatus:  http.StatusOK,
		},
		{
			name:        "wrong password",
			contentType: "application/json",
			body:        `{"username":"admin@example.com","password":"nope"}`,
			wantStatus:  http.StatusUnauthorized,
			wantCode:    "auth_invalid_credentials",
		},
		{
			name:        "missing password",
			contentType: "application/x-www-form-urlencoded",
			body:        "username=admin%40example.com",
			wantStatus:  http.StatusBadRequest,
			wantCode:    "validation_missing_required_field",
		},
		{
			name:        "malformed json",
			contentType: "application/json",
			body:        `{"username":`,
			wantStatus:  http.StatusBadRequest,
			wantCode:    "validation_invalid_json",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := acceptOnly("admin@example.com", "pw")
			h := NewAuthHandler(svc, nil, testLogger(), nil)

			rec := serve(newRouter(h.RegisterRoutes), http.MethodPost, "/auth/token", tt.contentType, tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeError(t, rec).Code)
				return
			}
			var token auth.Token
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &token))
			assert.Equal(t, "signed", token.AccessToken)
			assert.Equal(t, "bearer", token.TokenType)
			assert.False(t, token.ExpiresAt.IsZero())
		})
	}
}

func TestHandleToken_UnauthorizedChallenge(t *testing.T) {
	h := NewAuthHandler(acceptOnly("a@example.com", "pw"), nil, testLogger(), nil)
	rec := serve(newRouter(h.RegisterRoutes), http.MethodPost, "/auth/token", "application/json",
		`{"username":"a@example.com","password":"bad"}`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
}

func TestHandleToken_Throttled(t *testing.T) {
	svc := acceptOnly("a@example.com", "pw")
	blocked := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			core.Error(w, r, types.NewAppError(types.ErrCodeRateLimit, "slow down", nil))
		})
	}
	h := NewAuthHandler(svc, blocked, testLogger(), nil)

	rec := serve(newRouter(h.RegisterRoutes), http.MethodPost, "/auth/token", "application/json",
		`{"username":"a@example.com","password":"pw"}`)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Zero(t, svc.calls, "throttled requests must not reach the service")
}

func TestHandleToken_WithAdminService(t *testing.T) {
	issuer, err := auth.NewTokenIssuer("0123456789abcdef0123456789abcdef", "HS256", 30*time.Minute, nil)
	require.NoError(t, err)
	admin, err := auth.NewAdminService(auth.AdminConfig{
		Email:    "Admin@Example.com",
		Password: "s3cret",
		Tokens:   issuer,
		Hasher:   auth.BcryptHasher{Cost: bcrypt.MinCost},
		Logger:   testLogger(),
	})
	require.NoError(t, err)

	h := NewAuthHandler(admin, nil, testLogger(), nil)
	rec := serve(newRouter(h.RegisterRoutes), http.MethodPost, "/auth/token", "application/x-www-form-urlencoded",
		"username=admin%40example.com&password=s3cret")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var token auth.Token
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &token))

	actor, err := admin.ResolveToken(context.Background(), token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", actor.ID)
	assert.Equal(t, types.ActorTypeAdmin, actor.Type)
}
