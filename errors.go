package dualauth

import (
	"strings"

	"github.com/goliatone/go-errors"
)

// ErrTokenMalformed covers structurally invalid tokens: wrong segment count,
// undecodable payload, or signature verification failures.
var ErrTokenMalformed = errors.New("Token is malformed or invalid", errors.CategoryAuth).
	WithTextCode("TOKEN_MALFORMED").
	WithCode(errors.CodeBadRequest)

// ErrTokenExpired is returned when a token's exp claim is in the past.
var ErrTokenExpired = errors.New("Token has expired", errors.CategoryAuth).
	WithTextCode("TOKEN_EXPIRED").
	WithCode(errors.CodeUnauthorized)

// ErrTokenRevoked is returned when a token's jti is blacklisted.
var ErrTokenRevoked = errors.New("Token has been revoked", errors.CategoryAuth).
	WithTextCode("TOKEN_REVOKED").
	WithCode(errors.CodeUnauthorized)

// ErrAlreadyBlacklisted is returned when revoking a token that is already on
// the blacklist. Reported as not-found so duplicate revocations surface as
// 404s rather than success.
var ErrAlreadyBlacklisted = errors.New("Token is already blacklisted", errors.CategoryNotFound).
	WithTextCode("TOKEN_ALREADY_BLACKLISTED").
	WithCode(errors.CodeNotFound)

// ErrUserNotFound is returned when a token's subject no longer resolves to an
// account, treated as an authentication failure rather than a lookup miss.
var ErrUserNotFound = errors.New("User not found", errors.CategoryAuth).
	WithTextCode("USER_NOT_FOUND").
	WithCode(errors.CodeUnauthorized)

// ErrPermissionDenied is returned when an actor lacks rights over a policy.
var ErrPermissionDenied = errors.New("Permission denied", errors.CategoryAuthz).
	WithTextCode("PERMISSION_DENIED").
	WithCode(errors.CodeForbidden)

// ErrNoCredential is returned by the authenticator when every resolver
// abstained and no credential could establish an identity.
var ErrNoCredential = errors.New("No valid credential provided", errors.CategoryAuth).
	WithTextCode("NO_CREDENTIAL").
	WithCode(errors.CodeUnauthorized)

// ErrLegacyTokenInvalid is returned for unknown legacy token keys.
var ErrLegacyTokenInvalid = errors.New("Invalid token", errors.CategoryAuth).
	WithTextCode("LEGACY_TOKEN_INVALID").
	WithCode(errors.CodeUnauthorized)

// ErrLegacyTokenDisabled is returned when the organization has moved past
// legacy tokens and the credential must not be honored.
var ErrLegacyTokenDisabled = errors.New("JWT authentication is required for this organization", errors.CategoryAuth).
	WithTextCode("LEGACY_TOKEN_DISABLED").
	WithCode(errors.CodeUnauthorized)

func hasTextCode(err error, textCode string) bool {
	if err == nil {
		return false
	}
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == textCode
}

// IsTokenRevokedError checks for blacklist rejections
func IsTokenRevokedError(err error) bool {
	return hasTextCode(err, ErrTokenRevoked.TextCode)
}

// IsAlreadyBlacklistedError checks for duplicate revocations
func IsAlreadyBlacklistedError(err error) bool {
	return hasTextCode(err, ErrAlreadyBlacklisted.TextCode)
}

// IsPermissionDeniedError checks for policy permission failures
func IsPermissionDeniedError(err error) bool {
	return hasTextCode(err, ErrPermissionDenied.TextCode)
}

// IsTokenExpiredError will check for expired tokens, including errors coming
// straight from the JWT library
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if hasTextCode(err, ErrTokenExpired.TextCode) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	if hasTextCode(err, ErrTokenMalformed.TextCode) {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}
