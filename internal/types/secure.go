package types

import (
	"log/slog"
	"strings"
)

const redactedPlaceholder = "***REDACTED***"

// SecretString holds a credential from the environment or SSM: the
// database URL, the SendGrid key, the admin key hash. Every rendering path
// (fmt, JSON, slog) shows a placeholder; Unmask is the only way out.
type SecretString string

func (s SecretString) String() string { return redactedPlaceholder }

func (s SecretString) GoString() string { return `"` + redactedPlaceholder + `"` }

func (s SecretString) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redactedPlaceholder + `"`), nil
}

func (s SecretString) LogValue() slog.Value { return slog.StringValue(redactedPlaceholder) }

// Unmask returns the raw value for the driver or client that needs it.
func (s SecretString) Unmask() string { return string(s) }

func (s SecretString) IsSet() bool { return s != "" }

// EmailAddress is a student's address as it appears in log attributes.
// Logging it prints "j***@school.edu"; the raw value is only used to send.
type EmailAddress string

func (e EmailAddress) LogValue() slog.Value { return slog.StringValue(MaskEmail(string(e))) }

// MaskEmail keeps the first character of the local part and the whole
// domain. Input without an "@" is masked entirely.
func MaskEmail(addr string) string {
	if addr == "" {
		return ""
	}
	local, domain, ok := strings.Cut(addr, "@")
	switch {
	case !ok:
		return "***"
	case local == "":
		return "***@" + domain
	default:
		return local[:1] + "***@" + domain
	}
}
