package models

import "time"

// TwoFactorEnrollment holds a TOTP enrollment for an identity.
// The shared secret is AES-256-GCM encrypted at rest.
type TwoFactorEnrollment struct {
	ID              string
	IdentityID      string
	SecretEncrypted []byte
	SecretNonce     []byte // GCM nonce (12 bytes)
	LastUsedStep    *int64 // last accepted 30s TOTP step, for replay protection
	CreatedAt       time.Time
	VerifiedAt      *time.Time // when the first code was verified
}

// IsVerified checks if the enrollment has been confirmed with a first code
func (e *TwoFactorEnrollment) IsVerified() bool {
	return e.VerifiedAt != nil
}

// BackupCode is a single-use recovery code, stored as a bcrypt hash.
type BackupCode struct {
	ID         string
	IdentityID string
	CodeHash   string
	UsedAt     *time.Time // nil = unused
	CreatedAt  time.Time
}
