package types

import (
	"math"
	"strings"
)

// CompletionStatusCompleted is the activity completion token that triggers a
// downstream notification. Comparison is case-insensitive.
const CompletionStatusCompleted = "completed"

// CompletionEvent is the registration postback SCORM Cloud sends when a
// learner's registration changes. It is decoded once at the HTTP boundary and
// passed by value into the postback pipeline.
type CompletionEvent struct {
	ID                           string   `json:"id" validate:"required"`
	Instance                     int      `json:"instance"`
	XAPIRegistrationID           string   `json:"xapiRegistrationId,omitempty"`
	Updated                      string   `json:"updated,omitempty"`
	RegistrationCompletion       string   `json:"registrationCompletion,omitempty"`
	RegistrationSuccess          string   `json:"registrationSuccess,omitempty"`
	TotalSecondsTracked          *float64 `json:"totalSecondsTracked,omitempty"`
	FirstAccessDate              string   `json:"firstAccessDate,omitempty"`
	LastAccessDate               string   `json:"lastAccessDate,omitempty"`
	CompletedDate                string   `json:"completedDate,omitempty"`
	CreatedDate                  string   `json:"createdDate,omitempty"`
	RegistrationCompletionAmount *float64 `json:"registrationCompletionAmount,omitempty"`
	Tags                         []string `json:"tags,omitempty"`

	Course          CourseRef       `json:"course" validate:"required"`
	Learner         LearnerRef      `json:"learner" validate:"required"`
	ActivityDetails ActivityDetails `json:"activityDetails" validate:"required"`
}

// CourseRef identifies the course the registration belongs to.
type CourseRef struct {
	ID      string `json:"id" validate:"required"`
	Title   string `json:"title" validate:"required"`
	Version *int   `json:"version,omitempty"`
}

// LearnerRef identifies the learner. ID is the learner's email address.
type LearnerRef struct {
	ID        string `json:"id" validate:"required"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

// ActivityDetails is the root activity rollup of the registration.
type ActivityDetails struct {
	ID                 string            `json:"id" validate:"required"`
	Title              string            `json:"title,omitempty"`
	Attempts           *int              `json:"attempts,omitempty"`
	ActivityCompletion string            `json:"activityCompletion,omitempty"`
	ActivitySuccess    string            `json:"activitySuccess,omitempty"`
	TimeTracked        string            `json:"timeTracked,omitempty"`
	CompletionAmount   map[string]any    `json:"completionAmount,omitempty"`
	Suspended          *bool             `json:"suspended,omitempty"`
	StaticProperties   map[string]any    `json:"staticProperties,omitempty"`
	ActivityProgress   *ActivityProgress `json:"activityProgress,omitempty"`
}

// ActivityProgress carries the score block, when the runtime reports one.
type ActivityProgress struct {
	Score *Score `json:"score,omitempty"`
}

// Score is reported either as a raw 0-100 value or scaled to 0.0-1.0.
type Score struct {
	Raw    *float64 `json:"raw,omitempty"`
	Scaled *float64 `json:"scaled,omitempty"`
}

// IsCompleted reports whether the activity completion token equals
// "completed" ignoring case. Surrounding whitespace is not stripped, and a
// missing token is not completed.
func (e CompletionEvent) IsCompleted() bool {
	return strings.EqualFold(e.ActivityDetails.ActivityCompletion, CompletionStatusCompleted)
}

// Score returns the 0-100 integer score: raw when present, otherwise
// round(scaled*100), otherwise 0.
func (e CompletionEvent) Score() int {
	progress := e.ActivityDetails.ActivityProgress
	if progress == nil || progress.Score == nil {
		return 0
	}
	switch s := progress.Score; {
	case s.Raw != nil:
		return int(math.Round(*s.Raw))
	case s.Scaled != nil:
		return int(math.Round(*s.Scaled * 100))
	default:
		return 0
	}
}

// LearnerName returns "first last" trimmed of surrounding whitespace.
func (e CompletionEvent) LearnerName() string {
	return strings.TrimSpace(e.Learner.FirstName + " " + e.Learner.LastName)
}
