// Package config defines the process configuration for the SCORM relay.
//
// Values resolve in priority order: OS environment, then a .env file, then
// AWS SSM Parameter Store (through X_SSM_PARAM pointer variables). The struct
// is populated once at startup and treated as read-only afterwards. Missing or
// malformed values fail startup.
package config

import (
	"time"

	"scormrelay/internal/types"
)

// SecretString aliases the redacting secret type so config consumers do not
// need to import types for it.
type SecretString = types.SecretString

// Mapping store backends.
const (
	BackendS3       = "s3"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config is the top-level configuration. Components receive only the
// sub-struct they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"scorm-relay"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	AWS           AWSConfig
	Mapping       MappingConfig
	Scorm         ScormConfig
	Comunitive    ComunitiveConfig
	Outbound      OutboundConfig
	Slack         SlackConfig
	Auth          AuthConfig
	Security      SecurityConfig
	Observability ObservabilityConfig

	// Build is injected via ldflags, not the environment.
	Build BuildInfo `ignored:"true"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port           string        `envconfig:"PORT" default:"8080"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"29s"`
}

// AWSConfig holds regional settings and optional queue wiring.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// AlertQueueURL routes alerts through SQS to the alert worker when set.
	AlertQueueURL string `envconfig:"ALERT_QUEUE_URL" validate:"omitempty,url"`

	// LocalStack support (empty in prod).
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL" validate:"omitempty,url"`
}

// MappingConfig locates the course mapping blob.
type MappingConfig struct {
	Backend         string        `envconfig:"MAPPING_BACKEND" default:"s3" validate:"oneof=s3 postgres memory"`
	Bucket          string        `envconfig:"MAPPING_BUCKET" validate:"required_if=Backend s3"`
	Key             string        `envconfig:"MAPPING_KEY" default:"course_mappings.json" validate:"required"`
	RefreshInterval time.Duration `envconfig:"MAPPING_REFRESH_INTERVAL" default:"60s" validate:"gt=0"`
	DatabaseURL     SecretString  `envconfig:"DATABASE_URL" validate:"required_if=Backend postgres"`
}

// ScormConfig holds SCORM Cloud API credentials and the postback settings
// pushed by configure-postback.
type ScormConfig struct {
	BaseURL   string       `envconfig:"SCORM_BASE_URL" default:"https://cloud.scorm.com/api/v2" validate:"required,url"`
	AppID     string       `envconfig:"SCORM_APP_ID" validate:"required"`
	AppSecret SecretString `envconfig:"SCORM_APP_SECRET" validate:"required"`

	PostbackTargetURL    string       `envconfig:"SCORM_POSTBACK_TARGET_URL" validate:"required,url"`
	PostbackAuthType     string       `envconfig:"SCORM_POSTBACK_AUTH_TYPE" default:"httpbasic"`
	PostbackAuthUsername string       `envconfig:"SCORM_POSTBACK_AUTH_USERNAME"`
	PostbackAuthPassword SecretString `envconfig:"SCORM_POSTBACK_AUTH_PASSWORD"`

	// UseStub replaces SCORM Cloud with a logging stub. Honored only when
	// APP_ENV=local.
	UseStub bool `envconfig:"SCORM_STUB" default:"false"`
}

// ComunitiveConfig holds the Comunitive API settings used by the direct
// course notification endpoint. Webhook URIs per course come from the mapping.
type ComunitiveConfig struct {
	APIURL string       `envconfig:"COMUNITIVE_API_URL" default:"https://api.comunitive.com" validate:"required,url"`
	APIKey SecretString `envconfig:"COMUNITIVE_API_KEY"`
}

// OutboundConfig tunes every outbound HTTP client.
type OutboundConfig struct {
	Timeout   time.Duration `envconfig:"OUTBOUND_TIMEOUT" default:"10s"`
	UserAgent string        `envconfig:"OUTBOUND_USER_AGENT" default:"ScormRelay/1.0"`
	// AllowPrivateDestinations disables the SSRF guard on webhook delivery.
	// Only meant for local stacks where the webhook target runs on localhost.
	AllowPrivateDestinations bool `envconfig:"ALLOW_PRIVATE_DESTINATIONS" default:"false"`
	MaxRedirects             int  `envconfig:"OUTBOUND_MAX_REDIRECTS" default:"3"`
}

// SlackConfig configures the operations alert channel. An empty token makes
// alerts log-only.
type SlackConfig struct {
	Token    SecretString `envconfig:"SLACK_TOKEN"`
	Channel  string       `envconfig:"SLACK_CHANNEL" default:"log-webhook-rh"`
	Username string       `envconfig:"SLACK_USERNAME" default:"WebhookScormComunitive"`
	APIURL   string       `envconfig:"SLACK_API_URL" default:"https://slack.com/api" validate:"url"`
}

// AuthConfig holds the single admin identity and token settings.
type AuthConfig struct {
	AdminEmail string `envconfig:"ADMIN_USER_EMAIL" validate:"required,email"`
	// AdminPassword may be plaintext or a bcrypt hash ($2a$/$2b$/$2y$).
	AdminPassword      SecretString `envconfig:"ADMIN_USER_PASSWORD" validate:"required"`
	JWTSecret          SecretString `envconfig:"JWT_SECRET_KEY" validate:"required,min=16"`
	JWTAlgorithm       string       `envconfig:"JWT_ALGORITHM" default:"HS256" validate:"oneof=HS256 HS384 HS512"`
	TokenExpireMinutes int          `envconfig:"ACCESS_TOKEN_EXPIRE_MINUTES" default:"30" validate:"gt=0"`

	RedisURL        string        `envconfig:"REDIS_URL"`
	LoginRateLimit  int           `envconfig:"LOGIN_RATE_LIMIT" default:"10" validate:"gt=0"`
	LoginRateWindow time.Duration `envconfig:"LOGIN_RATE_WINDOW" default:"15m" validate:"gt=0"`
}

// TokenTTL returns the access token lifetime.
func (a AuthConfig) TokenTTL() time.Duration {
	return time.Duration(a.TokenExpireMinutes) * time.Minute
}

// SecurityConfig holds CORS settings.
type SecurityConfig struct {
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"ScormRelay"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"false"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// IsLocal reports whether the process runs in local development mode.
func (c *Config) IsLocal() bool {
	return c.Environment == localEnv
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	ErrMissingEnv    ConfigErrorType = "MISSING_ENV"
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	ErrValidation    ConfigErrorType = "VALIDATION_FAILED"
	ErrParsing       ConfigErrorType = "PARSING_FAILED"
)
