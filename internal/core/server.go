// Package core provides the HTTP chassis for the SCORM relay. It builds a chi
// router that serves both plain HTTP (local and container) and API Gateway
// events under Lambda, and enforces the cross-cutting concerns (recovery,
// request ids, logging, CORS, metrics, auth) before requests reach the
// handlers.
package core

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"scormrelay/internal/config"
)

// RouteRegistrar mounts a group of routes. Handler packages provide them to
// avoid an import cycle with core.
type RouteRegistrar func(r chi.Router)

// Server holds the dependencies of the API. Fields are set by the
// composition root after NewServer and before MountRoutes.
type Server struct {
	Config         *config.Config
	Logger         *slog.Logger
	Validator      *Validator
	Metrics        MetricsCollector
	Authenticator  Authenticator
	RateLimitStore RateLimitStore
	HealthProbes   []HealthProbe

	// PublicRoutes are mounted without authentication.
	PublicRoutes []RouteRegistrar
	// AdminRoutes are mounted behind AuthMiddleware.
	AdminRoutes []RouteRegistrar

	router *chi.Mux
}

// NewServer checks the critical dependencies and prepares an empty router.
// The caller mounts routes with MountRoutes.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the router. Used by http.Server and the Lambda adapter.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux.
func (s *Server) Router() *chi.Mux {
	return s.router
}
