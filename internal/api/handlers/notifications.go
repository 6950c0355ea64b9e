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
	"scormrelay/internal/external"
	"scormrelay/internal/postback"
	"scormrelay/internal/types"
)

// --- DTOs ---

// PostbackResponse is returned for postbacks that need no retry.
type PostbackResponse struct {
	Status   string `json:"status"`
	Outcome  string `json:"outcome"`
	Detail   string `json:"detail"`
	CourseID string `json:"course_id,omitempty"`
	AckID    string `json:"ack_id,omitempty"`
}

// CourseNotificationRequest is the body of POST /notifications/notificacao_curso.
type CourseNotificationRequest struct {
	UserEmail  string `json:"user_email" validate:"required"`
	CourseCode string `json:"codigo_curso" validate:"required"`
	Points     int    `json:"pontuacao"`
}

// --- Service Interfaces ---

// PostbackProcessor classifies a completion event. postback.Pipeline
// implements it.
type PostbackProcessor interface {
	Process(ctx context.Context, event types.CompletionEvent) postback.Outcome
}

// --- Handler ---

// NotificationHandler serves the public notification routes.
type NotificationHandler struct {
	pipeline     PostbackProcessor
	notifier     external.CourseNotifier
	postbackAuth func(http.Handler) http.Handler
	logger       *slog.Logger
	validator    *core.Validator
}

// NewNotificationHandler creates a NotificationHandler. postbackAuth guards
// the SCORM postback route and may be nil.
func NewNotificationHandler(
	p PostbackProcessor,
	n external.CourseNotifier,
	postbackAuth func(http.Handler) http.Handler,
	l *slog.Logger,
	v *core.Validator,
) *NotificationHandler {
	if l == nil {
		l = slog.Default()
	}
	if v == nil {
		v = core.NewValidator(l)
	}
	return &NotificationHandler{
		pipeline:     p,
		notifier:     n,
		postbackAuth: postbackAuth,
		logger:       l,
		validator:    v,
	}
}

// RegisterRoutes mounts:
//
//   - POST /notifications/scorm-comunitive  - SCORM Cloud registration postback
//   - POST /notifications/notificacao_curso - direct Comunitive notification
func (h *NotificationHandler) RegisterRoutes(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		chain(r, h.postbackAuth).Post("/scorm-comunitive", h.HandleScormPostback)
		r.Post("/notificacao_curso", h.HandleCourseNotification)
	})
}

// HandleScormPostback processes POST /notifications/scorm-comunitive.
//
// The body is SCORM Cloud's registration rollup; fields this service does
// not know are ignored. Outcomes that a retry cannot fix (skipped, missing
// mapping) are 200 so SCORM Cloud does not resend them.
func (h *NotificationHandler) HandleScormPostback(w http.ResponseWriter, r *http.Request) {
	var event types.CompletionEvent
	if err := core.DecodeJSONLenient(w, r, &event); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(event); err != nil {
		h.logger.WarnContext(r.Context(), "invalid scorm postback", "error", err)
		core.Error(w, r, err)
		return
	}

	out := h.pipeline.Process(r.Context(), event)

	switch o := out.(type) {
	case postback.Skipped:
		core.JSON(w, r, http.StatusOK, PostbackResponse{
			Status:   "success",
			Outcome:  string(o.Kind()),
			Detail:   fmt.Sprintf("activity completion is %q; nothing to notify", o.Completion),
			CourseID: event.Course.ID,
		})
	case postback.Delivered:
		core.JSON(w, r, http.StatusOK, PostbackResponse{
			Status:   "success",
			Outcome:  string(o.Kind()),
			Detail:   "completion delivered to Comunitive",
			CourseID: o.CourseID,
			AckID:    o.Ack.ID,
		})
	case postback.MappingMissing:
		core.JSON(w, r, http.StatusOK, PostbackResponse{
			Status:   "warning",
			Outcome:  string(o.Kind()),
			Detail:   fmt.Sprintf("postback received but course %s has no Comunitive mapping", o.CourseID),
			CourseID: o.CourseID,
		})
	case postback.DeliveryRejected:
		core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeUpstreamDeliveryRejected,
			"Comunitive webhook rejected the notification", nil,
			map[string]any{
				"course_id": o.CourseID,
				"uri":       o.URI,
				"status":    o.Status,
				"detail":    o.Detail,
			}))
	case postback.ProcessingFailed:
		core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeInternalPostbackFailed,
			"postback processing failed: "+o.Message, o.Cause,
			map[string]any{"course_id": o.CourseID}))
	default:
		h.logger.ErrorContext(r.Context(), "unknown postback outcome", "outcome", fmt.Sprintf("%T", out))
		core.Error(w, r, types.NewAppError(types.ErrCodeInternalUnexpected, "unknown postback outcome", nil))
	}
}

// HandleCourseNotification processes POST /notifications/notificacao_curso.
// 200, 201 and 204 from Comunitive are success; anything else is a 502.
func (h *NotificationHandler) HandleCourseNotification(w http.ResponseWriter, r *http.Request) {
	var req CourseNotificationRequest
	if err := core.DecodeJSONLenient(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	req.UserEmail = strings.TrimSpace(req.UserEmail)
	req.CourseCode = strings.TrimSpace(req.CourseCode)
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	err := h.notifier.NotifyCourse(r.Context(), external.CourseNotification{
		UserEmail:  req.UserEmail,
		CourseCode: req.CourseCode,
		Points:     req.Points,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "comunitive course notification failed",
			"course_code", req.CourseCode,
			"error", err,
		)
		core.Error(w, r, courseNotificationError(err))
		return
	}

	core.JSON(w, r, http.StatusOK, StatusResponse{
		Status: "success",
		Detail: "notification sent to Comunitive",
	})
}

func courseNotificationError(err error) *types.AppError {
	var rejection *external.RejectionError
	if errors.As(err, &rejection) {
		code := types.ErrCodeUpstreamComunitive
		if rejection.Status == http.StatusTooManyRequests {
			code = types.ErrCodeUpstreamRateLimited
		}
		return types.NewAppErrorWithDetails(code,
			fmt.Sprintf("Comunitive answered %d", rejection.Status), err,
			map[string]any{"status": rejection.Status, "detail": rejection.Detail})
	}

	var netErr *external.NetworkError
	if errors.As(err, &netErr) {
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, "Comunitive is unreachable", err)
	}

	return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to notify Comunitive", err)
}
