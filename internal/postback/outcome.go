package postback

import (
	"fmt"

	"scormrelay/internal/external"
)

// OutcomeKind names an Outcome variant. The values double as metric
// dimension values and response fields.
type OutcomeKind string

const (
	KindSkipped          OutcomeKind = "skipped"
	KindDelivered        OutcomeKind = "delivered"
	KindMappingMissing   OutcomeKind = "mapping_missing"
	KindDeliveryRejected OutcomeKind = "delivery_rejected"
	KindProcessingFailed OutcomeKind = "processing_failed"
)

// Outcome is the classified result of one Process call. It is one of
// Skipped, Delivered, MappingMissing, DeliveryRejected or ProcessingFailed.
type Outcome interface {
	Kind() OutcomeKind
	outcome()
}

// Skipped means the activity was not completed. Nothing else happened.
type Skipped struct {
	// Completion is the raw status token received, possibly empty.
	Completion string
}

// Delivered means the webhook acknowledged the notification.
type Delivered struct {
	CourseID string
	URI      string
	Ack      external.Acknowledgement
}

// MappingMissing means no webhook URI is configured for the course. The
// sender should not retry.
type MappingMissing struct {
	CourseID string
}

// DeliveryRejected means the webhook refused the notification or could not
// be reached. Network is true for transport failures, in which case Status
// is NetworkErrorStatus.
type DeliveryRejected struct {
	CourseID string
	URI      string
	Status   int
	Detail   string
	Network  bool
}

// ProcessingFailed covers everything unexpected. Cause is never nil.
type ProcessingFailed struct {
	CourseID string
	Message  string
	Cause    error
}

func (Skipped) Kind() OutcomeKind          { return KindSkipped }
func (Delivered) Kind() OutcomeKind        { return KindDelivered }
func (MappingMissing) Kind() OutcomeKind   { return KindMappingMissing }
func (DeliveryRejected) Kind() OutcomeKind { return KindDeliveryRejected }
func (ProcessingFailed) Kind() OutcomeKind { return KindProcessingFailed }

func (Skipped) outcome()          {}
func (Delivered) outcome()        {}
func (MappingMissing) outcome()   {}
func (DeliveryRejected) outcome() {}
func (ProcessingFailed) outcome() {}

func (f ProcessingFailed) Error() string {
	return fmt.Sprintf("%s: %v", f.Message, f.Cause)
}

func (f ProcessingFailed) Unwrap() error { return f.Cause }
