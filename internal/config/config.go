// Package config defines the process configuration for the EduPlatform
// lifecycle services. Configuration is loaded once at start-up (or Lambda
// cold start) and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// A missing required value or an invalid format fails the load.
package config

import (
	"time"

	"eduplatform/internal/types"
)

// SecretString is an alias for types.SecretString so config consumers do not
// import types just for secrets.
type SecretString = types.SecretString

// Email provider identifiers accepted by EMAIL_PROVIDER.
const (
	EmailProviderSendGrid = "sendgrid"
	EmailProviderSES      = "ses"
)

// Notifier modes accepted by NOTIFIER_MODE.
const (
	// NotifierDirect sends warnings synchronously from the cleanup run.
	NotifierDirect = "direct"
	// NotifierQueue enqueues warnings to SQS for the email worker.
	NotifierQueue = "queue"
)

// Config is the top-level configuration of the API and the lifecycle worker.
// Sub-components receive only the section they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"eduplatform-lifecycle"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Email         EmailConfig
	Notifier      NotifierConfig
	Lifecycle     LifecycleConfig
	Feature       FeatureConfig
	Security      SecurityConfig
	Observability ObservabilityConfig

	// Injected via ldflags, not env.
	Build BuildInfo
}

// EmailWorkerConfig is the reduced configuration of the SQS email worker,
// which has no database access.
type EmailWorkerConfig struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	AWS   AWSConfig
	Email EmailConfig

	Build BuildInfo
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	DashboardURL    string        `envconfig:"DASHBOARD_URL" validate:"omitempty,url"` // e.g. https://app.eduplatform.io
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
}

// DatabaseConfig holds connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns        int32         `envconfig:"DB_MAX_CONNS" default:"10" validate:"min=1"`
	MinConns        int32         `envconfig:"DB_MIN_CONNS" default:"1" validate:"min=0"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	MaxConnIdleTime time.Duration `envconfig:"DB_MAX_CONN_IDLE_TIME" default:"5m"`
	RunMigrations   bool          `envconfig:"DB_RUN_MIGRATIONS" default:"false"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// Required when NOTIFIER_MODE=queue.
	NotificationQueue string `envconfig:"SQS_NOTIFICATIONS" validate:"omitempty,url"`

	// LocalStack support; empty in prod.
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL" validate:"omitempty,url"`
}

// EmailConfig holds email delivery provider credentials and templates.
type EmailConfig struct {
	Provider       string       `envconfig:"EMAIL_PROVIDER" default:"sendgrid" validate:"oneof=sendgrid ses"`
	SendGridAPIKey SecretString `envconfig:"SENDGRID_API_KEY" validate:"required_if=Provider sendgrid"`
	SESConfigSet   string       `envconfig:"SES_CONFIGURATION_SET"`
	FromAddress    string       `envconfig:"EMAIL_FROM_ADDRESS" default:"no-reply@eduplatform.io" validate:"email"`
	FromName       string       `envconfig:"EMAIL_FROM_NAME" default:"EduPlatform"`
	// SendGrid dynamic template for the inactivity warning. Empty sends the
	// locally rendered subject and bodies instead.
	InactivityTemplateID string `envconfig:"EMAIL_INACTIVITY_TEMPLATE_ID"`
}

// NotifierConfig selects how warnings leave the cleanup run.
type NotifierConfig struct {
	Mode string `envconfig:"NOTIFIER_MODE" default:"direct" validate:"oneof=direct queue"`
}

// LifecycleConfig holds the inactivity thresholds and scheduling. Threshold
// values are clamped by the engine, so they are not range-validated here.
type LifecycleConfig struct {
	RetentionDays     int `envconfig:"LIFECYCLE_RETENTION_DAYS" default:"90"`
	WarnLeadDays      int `envconfig:"LIFECYCLE_WARN_LEAD_DAYS" default:"7"`
	MaxWarningsPerRun int `envconfig:"LIFECYCLE_MAX_WARNINGS_PER_RUN" default:"200"`

	// Zero disables the in-process schedule of cmd/api.
	ScheduleInterval time.Duration `envconfig:"LIFECYCLE_SCHEDULE_INTERVAL" default:"0"`
	LockTTL          time.Duration `envconfig:"LIFECYCLE_LOCK_TTL" default:"30m" validate:"min=1m"`
}

// FeatureConfig holds kill switches for lifecycle capabilities.
type FeatureConfig struct {
	InactivityIncludeProfessors bool `envconfig:"FEATURE_INACTIVITY_INCLUDE_PROFESSORS" default:"true"`
	// Off means warn-only: no account is ever deleted by a scheduled run.
	InactivityDeletionEnabled bool `envconfig:"FEATURE_INACTIVITY_DELETION_ENABLED" default:"false"`
}

// SecurityConfig holds operator access settings.
type SecurityConfig struct {
	// bcrypt hash of the operator API key sent as X-Admin-Key. Only the
	// API requires it; the admin routes refuse every request without it.
	AdminAPIKeyHash    SecretString `envconfig:"ADMIN_API_KEY_HASH"`
	CorsAllowedOrigins []string     `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"EduPlatform/Lifecycle"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"false"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates an environment value could not be parsed into
	// its target type.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
