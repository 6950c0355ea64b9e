// Package handlers contains the HTTP handlers of the SCORM relay.
//
// Each handler is responsible for:
//   - Decoding and validating HTTP requests
//   - Delegating to the service layer (auth, mapping, scorm, postback)
//   - Mapping service results to status codes and response bodies
//
// Handlers expose RegisterRoutes methods that the composition root hands to
// core.Server as public or admin route registrars.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"scormrelay/internal/core"
)

const welcomeMessage = "Welcome to the SCORM integrations API"

// StatusResponse is the body of simple success responses.
type StatusResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// RegisterRoot mounts GET /.
func RegisterRoot(r chi.Router) {
	r.Get("/", HandleRoot)
}

// HandleRoot processes GET / requests.
func HandleRoot(w http.ResponseWriter, r *http.Request) {
	core.JSON(w, r, http.StatusOK, map[string]string{"message": welcomeMessage})
}

// chain applies the non-nil middlewares to r.
func chain(r chi.Router, middlewares ...func(http.Handler) http.Handler) chi.Router {
	var active []func(http.Handler) http.Handler
	for _, mw := range middlewares {
		if mw != nil {
			active = append(active, mw)
		}
	}
	if len(active) == 0 {
		return r
	}
	return r.With(active...)
}
