package firmauth

import (
	"net/http"
	"strings"

	"github.com/goliatone/go-errors"
)

// Text codes surfaced to API clients. Authentication failures share one
// generic message so callers cannot enumerate accounts.
const (
	TextCodeInvalidCredentials = "INVALID_CREDENTIALS"
	TextCodeOTPExpired         = "OTP_EXPIRED"
	TextCodeOTPMismatch        = "OTP_MISMATCH"
	TextCodeOTPThrottled       = "OTP_THROTTLED"
	TextCodeTokenExpired       = "TOKEN_EXPIRED"
	TextCodeTokenMalformed     = "TOKEN_MALFORMED"
	TextCodeUnauthenticated    = "UNAUTHENTICATED"
	TextCodeForbidden          = "FORBIDDEN"
)

// ErrInvalidCredentials covers unknown email, wrong password, and
// inactive accounts alike.
var ErrInvalidCredentials = errors.New("invalid email or password", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrOTPExpired is returned when a challenge's expiry window has passed.
var ErrOTPExpired = errors.New("one-time code has expired", errors.CategoryAuth).
	WithTextCode(TextCodeOTPExpired).
	WithCode(errors.CodeUnauthorized)

// ErrOTPMismatch is returned when the submitted code does not match the
// pending challenge, including when no challenge is pending.
var ErrOTPMismatch = errors.New("one-time code is not valid", errors.CategoryAuth).
	WithTextCode(TextCodeOTPMismatch).
	WithCode(errors.CodeUnauthorized)

// ErrOTPThrottled is returned when resend requests exceed the
// server-side rate limit.
var ErrOTPThrottled = errors.New("too many code requests, slow down", errors.CategoryRateLimit).
	WithTextCode(TextCodeOTPThrottled).
	WithCode(http.StatusTooManyRequests)

// ErrTwoFactorNotPending is returned when an OTP operation targets an
// account with two-factor disabled.
var ErrTwoFactorNotPending = errors.New("no two-factor challenge pending", errors.CategoryAuth).
	WithTextCode(TextCodeOTPMismatch).
	WithCode(errors.CodeUnauthorized)

// ErrTokenExpired flags a session token past its expiry claim.
var ErrTokenExpired = errors.New("session token has expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMalformed flags a token that failed parsing or signature checks.
var ErrTokenMalformed = errors.New("session token is malformed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized)

// ErrUnauthenticated is the generic missing/invalid token failure.
var ErrUnauthenticated = errors.New("authentication required", errors.CategoryAuth).
	WithTextCode(TextCodeUnauthenticated).
	WithCode(errors.CodeUnauthorized)

// ErrForbidden is the generic role or tenant scope failure.
var ErrForbidden = errors.New("insufficient permissions", errors.CategoryAuthz).
	WithTextCode(TextCodeForbidden).
	WithCode(errors.CodeForbidden)

// ErrIdentityNotFound is the internal error for missing identities.
// Boundary code maps it to ErrInvalidCredentials before responding.
var ErrIdentityNotFound = errors.New("identity not found", errors.CategoryNotFound).
	WithCode(errors.CodeNotFound)

// ErrNoEmptyString is returned when hashing an empty password.
var ErrNoEmptyString = errors.New("value must not be empty", errors.CategoryBadInput).
	WithCode(errors.CodeBadRequest)

// ErrMismatchedHashAndPassword is the internal bcrypt mismatch error.
var ErrMismatchedHashAndPassword = errors.New("password does not match", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// statusAuthError maps an account lifecycle status to the auth error a
// login attempt should surface. Every non-active status reads the same
// as a bad password.
func statusAuthError(status AccountStatus) error {
	switch status {
	case AccountStatusActive:
		return nil
	case AccountStatusPending, AccountStatusSuspended, AccountStatusDisabled, AccountStatusArchived:
		return invalidCredentialsWith(map[string]any{
			"status": string(status),
		})
	default:
		return invalidCredentialsWith(map[string]any{
			"status": "unknown",
		})
	}
}

// sentinelWith attaches metadata to a copy of a shared sentinel. The
// sentinels are package-level and served to concurrent requests;
// writing their metadata map in place races and leaks one request's
// context into another's error. errors.Is still matches the sentinel
// through the clone's Source.
func sentinelWith(sentinel *errors.Error, meta map[string]any) error {
	clone := sentinel.Clone()
	if clone == nil {
		return sentinel
	}
	clone.Source = sentinel
	return clone.WithMetadata(meta)
}

func invalidCredentialsWith(meta map[string]any) error {
	return sentinelWith(ErrInvalidCredentials, meta)
}

// IsTokenExpiredError checks for expired token errors, including ones
// produced by the underlying JWT library.
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.TextCode == TextCodeTokenExpired {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError checks for malformed token errors.
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.TextCode == TextCodeTokenMalformed {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}
