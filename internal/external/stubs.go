package external

import (
	"context"
	"log/slog"
)

// StubScormCloud stands in for SCORM Cloud when SCORM_STUB is set in local
// mode. It logs the settings it would have sent and reports success.
type StubScormCloud struct {
	logger *slog.Logger
}

func NewStubScormCloud(logger *slog.Logger) *StubScormCloud {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubScormCloud{logger: logger}
}

func (s *StubScormCloud) UpdateCourseConfiguration(ctx context.Context, courseID string, settings []ScormSetting) (ScormResponse, error) {
	ids := make([]string, 0, len(settings))
	for _, st := range settings {
		ids = append(ids, st.SettingID)
	}
	s.logger.InfoContext(ctx, "stub: UpdateCourseConfiguration called",
		"course_id", courseID,
		"settings", ids,
	)
	return ScormResponse{Status: 204, Detail: "No content"}, nil
}
