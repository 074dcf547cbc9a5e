package models

import "time"

// StepUpToken bridges "password verified" and "second factor verified".
// Only the SHA-256 hash of the bearer value is ever persisted; the bearer
// value is returned once at issue time and never stored in clear.
type StepUpToken struct {
	ID         string
	IdentityID string
	TokenHash  string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
}

func (t *StepUpToken) IsConsumed() bool {
	return t.ConsumedAt != nil
}

func (t *StepUpToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
