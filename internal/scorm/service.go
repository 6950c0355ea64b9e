// Package scorm configures SCORM Cloud courses to post registration rollups
// back to this service.
package scorm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"scormrelay/internal/alerts"
	"scormrelay/internal/external"
	"scormrelay/internal/types"
)

// SCORM Cloud registration rollup setting ids.
const (
	SettingPostBackURL  = "ApiRollupRegistrationPostBackUrl"
	SettingAuthType     = "ApiRollupRegistrationAuthType"
	SettingFormat       = "ApiRollupRegistrationFormat"
	SettingIsJSON       = "ApiRollupRegistrationIsJson"
	SettingAuthUser     = "ApiRollupRegistrationAuthUser"
	SettingAuthPassword = "ApiRollupRegistrationAuthPassword"
)

const maskedValue = "********"

// PostbackSettings describes where SCORM Cloud should send rollups.
type PostbackSettings struct {
	TargetURL    string
	AuthType     string
	AuthUsername string
	AuthPassword types.SecretString
}

// Result is returned to the admin on success.
type Result struct {
	Status         string `json:"status"`
	Message        string `json:"message"`
	ResponseStatus int    `json:"scorm_response_status"`
	ResponseDetail any    `json:"scorm_response_detail"`
}

type Service struct {
	client   external.ScormConfigurer
	settings PostbackSettings
	alerts   alerts.Sink
	logger   *slog.Logger
}

func NewService(client external.ScormConfigurer, settings PostbackSettings, sink alerts.Sink, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		client:   client,
		settings: settings,
		alerts:   sink,
		logger:   logger.With("component", "scorm_service"),
	}
}

// Settings returns the settings pushed to every course. Username and
// password are included only when configured.
func (s *Service) Settings() []external.ScormSetting {
	out := []external.ScormSetting{
		{SettingID: SettingPostBackURL, Value: s.settings.TargetURL},
		{SettingID: SettingAuthType, Value: s.settings.AuthType},
		{SettingID: SettingFormat, Value: "course"},
		{SettingID: SettingIsJSON, Value: "true"},
	}
	if s.settings.AuthUsername != "" {
		out = append(out, external.ScormSetting{SettingID: SettingAuthUser, Value: s.settings.AuthUsername})
	}
	if s.settings.AuthPassword.IsSet() {
		out = append(out, external.ScormSetting{SettingID: SettingAuthPassword, Value: s.settings.AuthPassword.Unmask()})
	}
	return out
}

// ConfigurePostback pushes the postback settings to courseID.
//
// Errors are *types.AppError: upstream_scorm_rejected when SCORM Cloud
// answers with an error, upstream_scorm_unreachable when it cannot be
// reached, internal_unexpected_error otherwise. Each path sends one alert.
func (s *Service) ConfigurePostback(ctx context.Context, courseID string) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = s.unexpected(ctx, courseID, fmt.Errorf("panic: %v", r))
		}
	}()

	settings := s.Settings()
	s.logger.InfoContext(ctx, "configuring course postback", "course_id", courseID, "target", s.settings.TargetURL)

	resp, err := s.client.UpdateCourseConfiguration(ctx, courseID, settings)
	if err != nil {
		return Result{}, s.classify(ctx, courseID, err)
	}

	s.alert(ctx, fmt.Sprintf(
		"SUCCESS: postback configured for SCORM course `%s`.\nPostback URL: `%s`\nSCORM API status: `%d`\n*Settings sent:*\n```json\n%s\n```",
		courseID, s.settings.TargetURL, resp.Status, maskedJSON(settings)))

	return Result{
		Status:         "success",
		Message:        fmt.Sprintf("Postback configured for course %s.", courseID),
		ResponseStatus: resp.Status,
		ResponseDetail: resp.Detail,
	}, nil
}

func (s *Service) classify(ctx context.Context, courseID string, err error) error {
	var rejection *external.RejectionError
	var network *external.NetworkError

	switch {
	case errors.As(err, &rejection):
		s.alert(ctx, fmt.Sprintf(
			"ERROR: failed to configure postback for SCORM course `%s`.\nSCORM API status: `%d`\nSCORM API response: ```%s```",
			courseID, rejection.Status, rejection.Detail))
		return types.NewAppErrorWithDetails(types.ErrCodeUpstreamScormRejected,
			"SCORM Cloud rejected the postback configuration", err,
			map[string]any{"course_id": courseID, "scorm_status": rejection.Status, "scorm_detail": rejection.Detail})
	case errors.As(err, &network):
		s.alert(ctx, fmt.Sprintf(
			"NETWORK ERROR: cannot reach SCORM Cloud for course `%s`.\nError: `%v`\nCheck connectivity or the SCORM API URL: `%s`",
			courseID, network.Err, network.URL))
		return types.NewAppErrorWithDetails(types.ErrCodeUpstreamScormUnreachable,
			"could not connect to SCORM Cloud", err,
			map[string]any{"course_id": courseID})
	default:
		return s.unexpected(ctx, courseID, err)
	}
}

func (s *Service) unexpected(ctx context.Context, courseID string, err error) error {
	s.logger.ErrorContext(ctx, "unexpected error configuring postback", "course_id", courseID, "error", err)
	s.alert(ctx, fmt.Sprintf(
		"UNEXPECTED ERROR configuring postback for SCORM course `%s`.\nError: `%T: %v`\nTraceback: ```%s```",
		courseID, err, err, debug.Stack()))
	return types.NewAppError(types.ErrCodeInternalUnexpected,
		"unexpected error configuring the SCORM postback", err)
}

func (s *Service) alert(ctx context.Context, text string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "alert sink panicked", "panic", r)
		}
	}()
	s.alerts.Send(ctx, text)
}

// maskedJSON renders settings for alerts with the password hidden.
func maskedJSON(settings []external.ScormSetting) string {
	masked := make([]external.ScormSetting, len(settings))
	for i, st := range settings {
		if st.SettingID == SettingAuthPassword {
			st.Value = maskedValue
		}
		masked[i] = st
	}
	out, _ := json.MarshalIndent(masked, "", "  ")
	return string(out)
}
