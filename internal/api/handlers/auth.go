package handlers

import (
	"context"
	"errors"
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"scormrelay/internal/auth"
	"scormrelay/internal/core"
	"scormrelay/internal/types"
)

// maxFormBytes bounds form-encoded login bodies.
const maxFormBytes = 64 << 10

// TokenRequest is the body of POST /auth/token. It is accepted either as
// application/x-www-form-urlencoded (OAuth2 password form) or as JSON.
type TokenRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// TokenService issues admin access tokens. auth.AdminService implements it.
type TokenService interface {
	Login(ctx context.Context, email, password string) (auth.Token, error)
}

// AuthHandler serves the admin login endpoint.
type AuthHandler struct {
	service   TokenService
	throttle  func(http.Handler) http.Handler
	logger    *slog.Logger
	validator *core.Validator
}

// NewAuthHandler creates an AuthHandler. throttle may be nil.
func NewAuthHandler(svc TokenService, throttle func(http.Handler) http.Handler, l *slog.Logger, v *core.Validator) *AuthHandler {
	if l == nil {
		l = slog.Default()
	}
	if v == nil {
		v = core.NewValidator(l)
	}
	return &AuthHandler{service: svc, throttle: throttle, logger: l, validator: v}
}

// RegisterRoutes mounts POST /auth/token behind the login throttle.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	chain(r, h.throttle).Post("/auth/token", h.HandleToken)
}

// HandleToken processes POST /auth/token requests.
//
//  1. Decode the credentials from the form or JSON body.
//  2. Validate that both fields are present.
//  3. Call TokenService.Login.
//  4. On failure answer 401 with a Bearer challenge.
func (h *AuthHandler) HandleToken(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeTokenRequest(w, r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	token, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.HTTPStatus() == http.StatusUnauthorized {
			h.logger.WarnContext(r.Context(), "admin login rejected", "username", req.Username)
			w.Header().Set("WWW-Authenticate", "Bearer")
		} else {
			h.logger.ErrorContext(r.Context(), "admin login failed", "error", err)
		}
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "admin token issued", "username", req.Username)
	core.JSON(w, r, http.StatusOK, token)
}

func (h *AuthHandler) decodeTokenRequest(w http.ResponseWriter, r *http.Request) (TokenRequest, error) {
	var req TokenRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
		if err := r.ParseForm(); err != nil {
			return req, types.NewAppError(types.ErrCodeValidationInvalidField, "malformed form body", err)
		}
		req.Username = r.PostForm.Get("username")
		req.Password = r.PostForm.Get("password")
		return req, nil
	}

	if err := core.DecodeJSON(w, r, &req); err != nil {
		return req, err
	}
	return req, nil
}
