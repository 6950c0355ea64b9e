package core

import (
	"errors"
	"log/slog"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"scormrelay/internal/types"
)

// Validator wraps go-playground/validator with the relay's custom tags and
// maps failures to AppErrors.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator registers:
//
//	webhook_url - absolute http(s) URL with a host
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report JSON field names instead of Go field names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		switch name {
		case "-":
			return ""
		case "":
			return fld.Name
		}
		return name
	})

	if err := v.RegisterValidation("webhook_url", validateWebhookURL); err != nil {
		logger.Error("failed to register webhook_url validation", "error", err)
	}

	return &Validator{validate: v, logger: logger}
}

func validateWebhookURL(fl validator.FieldLevel) bool {
	return IsWebhookURL(fl.Field().String())
}

// IsWebhookURL reports whether raw is an absolute http or https URL.
func IsWebhookURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ValidateStruct validates s. The first failing field decides the code:
// missing values are validation_missing_required_field, URL failures
// validation_invalid_url, anything else validation_invalid_field. Every
// failing field is listed in the details.
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return types.NewAppError(types.ErrCodeValidationInvalidField, "invalid request", err)
	}

	fields := make([]map[string]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, map[string]string{
			"field": fieldPath(fe),
			"rule":  fe.Tag(),
		})
	}

	first := verrs[0]
	code := types.ErrCodeValidationInvalidField
	message := "invalid value for " + fieldPath(first)
	switch first.Tag() {
	case "required":
		code = types.ErrCodeValidationMissingField
		message = "missing required field " + fieldPath(first)
	case "webhook_url", "url":
		code = types.ErrCodeValidationInvalidURL
		message = fieldPath(first) + " must be an absolute http(s) URL"
	}

	return types.NewAppErrorWithDetails(code, message, err, map[string]any{"fields": fields})
}

// fieldPath drops the root struct name from the namespace:
// "tokenRequest.links[0].course_id" -> "links[0].course_id".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}
