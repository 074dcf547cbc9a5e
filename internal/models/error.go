package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Authentication errors. Unknown identifier and wrong password both map
	// to ErrInvalidCredentials so account existence is never disclosed.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account is disabled")

	// Step-up token errors
	ErrTokenInvalid     = errors.New("step-up token invalid")
	ErrTokenExpired     = errors.New("step-up token expired")
	ErrTokenAlreadyUsed = errors.New("step-up token already used")

	// Second-factor errors
	ErrTwoFactorInvalid     = errors.New("invalid two-factor code")
	ErrTwoFactorNotEnrolled = errors.New("two-factor authentication not enrolled")
)

// AccountLockedError is returned while an account lockout is in effect.
// LockedUntil is surfaced so clients can schedule a retry.
type AccountLockedError struct {
	LockedUntil time.Time
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked until %s", e.LockedUntil.UTC().Format(time.RFC3339))
}

// RateLimitedError is returned when any applicable rate-limit bucket rejects
// a request. RetryAfter is the time until the earliest rejecting bucket
// resets; which bucket tripped is never revealed.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}
