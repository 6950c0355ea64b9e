package external

import "context"

// WebhookNotifier delivers a completion notice to a mapping-supplied URI.
type WebhookNotifier interface {
	Notify(ctx context.Context, recipient, uri string) (Acknowledgement, error)
}

// CourseNotifier calls the fixed Comunitive API endpoint.
type CourseNotifier interface {
	NotifyCourse(ctx context.Context, n CourseNotification) error
}

// ScormConfigurer updates a SCORM Cloud course configuration.
type ScormConfigurer interface {
	UpdateCourseConfiguration(ctx context.Context, courseID string, settings []ScormSetting) (ScormResponse, error)
}

// MessagePoster posts a chat message to the operations channel.
type MessagePoster interface {
	PostMessage(ctx context.Context, text string) error
}

var (
	_ WebhookNotifier = (*ComunitiveClient)(nil)
	_ CourseNotifier  = (*ComunitiveClient)(nil)
	_ ScormConfigurer = (*ScormCloudClient)(nil)
	_ ScormConfigurer = (*StubScormCloud)(nil)
	_ MessagePoster   = (*SlackClient)(nil)
)
