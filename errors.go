package identity

import (
	"strings"

	"github.com/goliatone/go-errors"
)

// Text codes identify failure conditions to API consumers without leaking
// internals through message strings.
const (
	TextCodeIdentityNotFound   = "IDENTITY_NOT_FOUND"
	TextCodeInvalidCreds       = "INVALID_CREDENTIALS"
	TextCodeInvalidCode        = "INVALID_VERIFICATION_CODE"
	TextCodeInvalidPurpose     = "INVALID_CODE_PURPOSE"
	TextCodeTooManyAttempts    = "TOO_MANY_LOGIN_ATTEMPTS"
	TextCodeEmptyPassword      = "EMPTY_PASSWORD"
	TextCodePasswordMismatch   = "PASSWORD_CONFIRMATION_MISMATCH"
	TextCodePolicyNotAccepted  = "POLICY_NOT_ACCEPTED"
	TextCodeIdentifierTaken    = "IDENTIFIER_ALREADY_REGISTERED"
	TextCodeTokenExpired       = "TOKEN_EXPIRED"
	TextCodeTokenMalformed     = "TOKEN_MALFORMED"
	TextCodeMissingSigningKey  = "MISSING_SIGNING_KEY"
	TextCodeUpstreamFailure    = "UPSTREAM_FAILURE"
	TextCodeMissingIdentifier  = "MISSING_IDENTIFIER"
	TextCodeCodeIssueFailed    = "CODE_ISSUE_FAILED"
	TextCodePasswordResetError = "PASSWORD_RESET_FAILED"
)

// ErrIdentityNotFound is returned when an identifier resolves to no subject
var ErrIdentityNotFound = errors.New("identity not found", errors.CategoryNotFound).
	WithTextCode(TextCodeIdentityNotFound)

// ErrMismatchedHashAndPassword is the uniform password failure. Internal
// faults on the password path collapse to this same error so the response
// shape does not reveal which step failed.
var ErrMismatchedHashAndPassword = errors.New("the credentials provided are invalid", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds)

// ErrCodeInvalid covers mismatched, expired and already-consumed codes alike
var ErrCodeInvalid = errors.New("the verification code is not valid", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCode)

// ErrInvalidPurpose rejects purposes outside the closed enumeration
var ErrInvalidPurpose = errors.New("unknown verification code purpose", errors.CategoryBadInput).
	WithTextCode(TextCodeInvalidPurpose)

// ErrTooManyLoginAttempts throttles the password path during the cooldown window
var ErrTooManyLoginAttempts = errors.New("too many login attempts", errors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyAttempts)

// ErrNoEmptyString rejects empty passwords before hashing
var ErrNoEmptyString = errors.New("password must not be empty", errors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword)

// ErrPasswordMismatch rejects register/reset payloads whose confirmation differs
var ErrPasswordMismatch = errors.New("password confirmation does not match", errors.CategoryValidation).
	WithTextCode(TextCodePasswordMismatch)

// ErrPolicyNotAccepted rejects registrations without policy acceptance
var ErrPolicyNotAccepted = errors.New("the policy must be accepted", errors.CategoryValidation).
	WithTextCode(TextCodePolicyNotAccepted)

// ErrIdentifierTaken rejects registrations reusing an existing identifier
var ErrIdentifierTaken = errors.New("identifier is already registered", errors.CategoryConflict).
	WithTextCode(TextCodeIdentifierTaken)

// ErrTokenExpired is returned when a token validates but is past its expiry
var ErrTokenExpired = errors.New("token is expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired)

// ErrTokenMalformed is returned for tokens that fail parsing or signature checks
var ErrTokenMalformed = errors.New("token is malformed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed)

// ErrMissingSigningKey makes an absent signing secret a construction-time failure
var ErrMissingSigningKey = errors.New("signing key must not be empty", errors.CategoryValidation).
	WithTextCode(TextCodeMissingSigningKey)

// ErrMissingIdentifier is returned when a reset/forgot request carries neither
// a phone number nor an email
var ErrMissingIdentifier = errors.New("phone number or email is required", errors.CategoryBadInput).
	WithTextCode(TextCodeMissingIdentifier)

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	var rich *errors.Error
	if errors.As(err, &rich) && rich.TextCode == TextCodeTokenExpired {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	var rich *errors.Error
	if errors.As(err, &rich) && rich.TextCode == TextCodeTokenMalformed {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}
