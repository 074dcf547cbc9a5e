package models

import "time"

// LoginAttempt is an immutable audit fact, append-only. It serves both the
// audit trail and the lockout evidence trail.
type LoginAttempt struct {
	ID               string
	Identifier       string // email or opaque identifier as submitted
	IPAddress        string
	UserAgent        string
	AttemptTime      time.Time
	Success          bool
	FailureReason    *string
	LockoutTriggered bool
	ExpiresAt        time.Time
}

// AttemptSummary is the per-attempt view exposed by the security status endpoint.
type AttemptSummary struct {
	IPAddress   string    `json:"ip_address"`
	AttemptTime time.Time `json:"attempt_time"`
	Success     bool      `json:"success"`
}
