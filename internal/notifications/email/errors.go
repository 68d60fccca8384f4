// Package email delivers inactivity warnings by email. It renders the
// message locally, resolves the page the user should visit, and hands the
// result to an external.EmailProvider (SendGrid or SES).
package email

import "eduplatform/internal/types"

// IsBlocklistError reports whether the provider refused the recipient
// (suppression list, rejected address). Retrying such a send cannot succeed.
func IsBlocklistError(err error) bool {
	return types.CodeOf(err) == types.ErrCodeEmailBlocked
}

// IsRetryable reports whether a failed send is worth another attempt from
// the queue. Blocked recipients and malformed input are terminal; provider
// outages, throttling and unknown errors are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch types.CodeOf(err) {
	case types.ErrCodeEmailBlocked,
		types.ErrCodeValidationInvalidEmail,
		types.ErrCodeValidationMissingField:
		return false
	}
	return true
}
