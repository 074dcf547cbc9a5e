package models

import (
	"time"
)

type Identity struct {
	ID               string
	Email            string
	PasswordHash     string
	Role             string // e.g., "user", "admin"
	Status           string // "active", "disabled" (soft-disable, never deleted)
	TwoFactorEnabled bool

	// Lockout state, owned by LockoutService
	FailedAttempts int
	FirstFailedAt  *time.Time
	LockedUntil    *time.Time
	ViolationCount int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsLocked reports whether a lockout is in effect at the given time.
// An expired lock is treated as not locked (cooling down); the violation
// history is kept so repeat offenders keep escalating.
func (i *Identity) IsLocked(now time.Time) bool {
	return i.LockedUntil != nil && now.Before(*i.LockedUntil)
}

// LockState is the lockout view surfaced by the security status endpoint.
type LockState struct {
	FailedAttempts int        `json:"failed_attempts"`
	LockedUntil    *time.Time `json:"locked_until,omitempty"`
	ViolationCount int        `json:"violation_count"`
}

func (i *Identity) LockState() LockState {
	return LockState{
		FailedAttempts: i.FailedAttempts,
		LockedUntil:    i.LockedUntil,
		ViolationCount: i.ViolationCount,
	}
}
