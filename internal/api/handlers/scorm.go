package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"scormrelay/internal/core"
	"scormrelay/internal/mapping"
	"scormrelay/internal/scorm"
	"scormrelay/internal/types"
)

// --- DTOs ---

// CourseLink binds one SCORM course to a Comunitive webhook.
type CourseLink struct {
	CourseID             string `json:"course_id" validate:"required"`
	ComunitiveWebhookURI string `json:"comunitive_webhook_uri" validate:"required,webhook_url"`
}

// CourseLinksRequest is the body of POST /scorm/data. It replaces the whole
// mapping.
type CourseLinksRequest struct {
	Links []CourseLink `json:"links" validate:"required,dive"`
}

// CourseLinksResponse is returned after a successful replace.
type CourseLinksResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail"`
	Count  int    `json:"count"`
}

// ConfigurePostbackRequest is the body of POST /scorm/configure-postback.
type ConfigurePostbackRequest struct {
	CourseID string `json:"course_id" validate:"required"`
}

// --- Service Interfaces ---

// MappingCache reads and replaces the course mapping. mapping.Cache
// implements it.
type MappingCache interface {
	Load(ctx context.Context, force bool) (mapping.Mapping, error)
	Update(ctx context.Context, m mapping.Mapping) error
}

// PostbackConfigurer pushes postback settings to SCORM Cloud. scorm.Service
// implements it.
type PostbackConfigurer interface {
	ConfigurePostback(ctx context.Context, courseID string) (scorm.Result, error)
}

// --- Handler ---

// ScormHandler serves the admin routes under /scorm.
type ScormHandler struct {
	mappings   MappingCache
	configurer PostbackConfigurer
	logger     *slog.Logger
	validator  *core.Validator
}

func NewScormHandler(m MappingCache, c PostbackConfigurer, l *slog.Logger, v *core.Validator) *ScormHandler {
	if l == nil {
		l = slog.Default()
	}
	if v == nil {
		v = core.NewValidator(l)
	}
	return &ScormHandler{mappings: m, configurer: c, logger: l, validator: v}
}

// RegisterRoutes mounts the admin routes. The caller is responsible for
// placing them behind authentication.
//
//   - GET  /scorm/data               - current mapping, read through
//   - POST /scorm/data               - replace the mapping
//   - POST /scorm/configure-postback - configure a course in SCORM Cloud
func (h *ScormHandler) RegisterRoutes(r chi.Router) {
	r.Route("/scorm", func(r chi.Router) {
		r.Get("/data", h.HandleGetMappings)
		r.Post("/data", h.HandleReplaceMappings)
		r.Post("/configure-postback", h.HandleConfigurePostback)
	})
}

// HandleGetMappings processes GET /scorm/data. It always reads the store so
// that the admin sees the durable copy.
func (h *ScormHandler) HandleGetMappings(w http.ResponseWriter, r *http.Request) {
	h.logRequest(r, "mapping read requested")

	m, err := h.mappings.Load(r.Context(), true)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to load course mapping", "error", err)
		core.Error(w, r, mappingStoreError("failed to load course mapping", err))
		return
	}

	core.JSON(w, r, http.StatusOK, m)
}

// HandleReplaceMappings processes POST /scorm/data.
//
// Duplicate course ids are resolved last-wins. An empty list is rejected so
// that a truncated payload cannot wipe every binding.
func (h *ScormHandler) HandleReplaceMappings(w http.ResponseWriter, r *http.Request) {
	h.logRequest(r, "mapping replace requested")

	var req CourseLinksRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}
	if len(req.Links) == 0 {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationEmptyMappings,
			"links must contain at least one course link", nil))
		return
	}

	m := make(mapping.Mapping, len(req.Links))
	for _, link := range req.Links {
		m[link.CourseID] = strings.TrimSpace(link.ComunitiveWebhookURI)
	}

	if err := h.mappings.Update(r.Context(), m); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to save course mapping", "error", err)
		core.Error(w, r, mappingStoreError("failed to save course mapping", err))
		return
	}

	core.JSON(w, r, http.StatusOK, CourseLinksResponse{
		Status: "success",
		Detail: fmt.Sprintf("%d course links saved", len(m)),
		Count:  len(m),
	})
}

// HandleConfigurePostback processes POST /scorm/configure-postback.
func (h *ScormHandler) HandleConfigurePostback(w http.ResponseWriter, r *http.Request) {
	var req ConfigurePostbackRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logRequest(r, "postback configuration requested", "course_id", req.CourseID)

	result, err := h.configurer.ConfigurePostback(r.Context(), strings.TrimSpace(req.CourseID))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "postback configuration failed",
			"course_id", req.CourseID,
			"error", err,
		)
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, result)
}

func (h *ScormHandler) logRequest(r *http.Request, msg string, args ...any) {
	if actor, ok := types.GetActor(r.Context()); ok {
		args = append(args, "actor", actor.ID)
	}
	h.logger.InfoContext(r.Context(), msg, args...)
}

// mappingStoreError maps cache failures to 500s. The reason tells a corrupt
// blob apart from an unreachable store.
func mappingStoreError(message string, err error) *types.AppError {
	reason := "store_unavailable"
	var decodeErr *mapping.DecodeError
	if errors.As(err, &decodeErr) {
		reason = "corrupt_blob"
	}
	return types.NewAppErrorWithDetails(types.ErrCodeInternalMappingStore, message, err,
		map[string]any{"reason": reason})
}
