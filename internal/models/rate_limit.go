package models

import "time"

// Rate-limit scope kinds. Multiple scopes apply to one request (per-IP and
// per-identifier); a request is admitted only if all buckets admit it.
const (
	ScopeIP         = "ip"
	ScopeIdentifier = "identifier"
)

// Endpoint classes consulted against the rate-limit configuration table.
const (
	ClassLogin         = "login"
	ClassStepUpVerify  = "stepup_verify"
	ClassPasswordReset = "password_reset"
	ClassUnlockRequest = "unlock_request"
	ClassGlobal        = "global"
)

// RateLimitBucket is a fixed-window counter for one (scope, key, class).
type RateLimitBucket struct {
	Scope       string
	Key         string
	Class       string
	WindowStart time.Time
	Count       int
}
