package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/BradenHooton/bastion/internal/config"
	"github.com/BradenHooton/bastion/internal/models"
	pkglogger "github.com/BradenHooton/bastion/pkg/logger"
)

// FailureKind distinguishes primary-password failures from second-factor
// failures, which lock out at a stricter threshold.
type FailureKind string

const (
	FailurePassword  FailureKind = "password"
	FailureTwoFactor FailureKind = "two_factor"
)

// LockoutStore defines the identity lock-state operations required by the
// lockout engine. UpdateLockState must serialize concurrent transitions for
// the same identity.
type LockoutStore interface {
	GetByID(ctx context.Context, id string) (*models.Identity, error)
	UpdateLockState(ctx context.Context, id string, apply func(*models.Identity)) (*models.Identity, error)
}

// LockoutService tracks failed attempts per identity and enforces
// progressive lockout: each violation doubles the lockout duration up to the
// configured cap.
type LockoutService struct {
	store       LockoutStore
	config      config.LockoutConfig
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	now         func() time.Time
}

// NewLockoutService creates a new LockoutService
func NewLockoutService(store LockoutStore, cfg config.LockoutConfig, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *LockoutService {
	return &LockoutService{
		store:       store,
		config:      cfg,
		logger:      logger,
		auditLogger: auditLogger,
		now:         time.Now,
	}
}

// CheckLocked returns AccountLockedError while a lockout is in effect.
// An expired lock means the account is cooling down and evaluates normally;
// the violation history stays so escalation persists across sessions.
func (s *LockoutService) CheckLocked(identity *models.Identity) error {
	if identity.IsLocked(s.now()) {
		return &models.AccountLockedError{LockedUntil: *identity.LockedUntil}
	}
	return nil
}

// RecordFailure counts a failed attempt and triggers a lockout once the
// threshold for the failure kind is reached within the attempt window.
// Returns the updated identity; the caller can observe a fresh lock via
// LockedUntil to emit the post-commit notification.
func (s *LockoutService) RecordFailure(ctx context.Context, identityID string, kind FailureKind) (*models.Identity, bool, error) {
	now := s.now()
	threshold := s.config.MaxAttempts
	if kind == FailureTwoFactor {
		threshold = s.config.TwoFactorMaxAttempts
	}

	lockTriggered := false
	identity, err := s.store.UpdateLockState(ctx, identityID, func(identity *models.Identity) {
		// An attempt made while locked is recorded by the caller but must
		// not reset or extend the lock.
		if identity.IsLocked(now) {
			return
		}

		if identity.FirstFailedAt == nil || now.Sub(*identity.FirstFailedAt) >= s.config.AttemptWindow {
			identity.FailedAttempts = 1
			first := now
			identity.FirstFailedAt = &first
		} else {
			identity.FailedAttempts++
		}

		if identity.FailedAttempts >= threshold {
			until := now.Add(s.lockoutDuration(identity.ViolationCount))
			identity.LockedUntil = &until
			identity.ViolationCount++
			identity.FailedAttempts = 0
			identity.FirstFailedAt = nil
			lockTriggered = true
		}
	})
	if err != nil {
		return nil, false, err
	}

	if lockTriggered {
		s.logger.Warn("account locked",
			slog.String("identity_id", identityID),
			slog.Time("locked_until", *identity.LockedUntil),
			slog.Int("violation_count", identity.ViolationCount))
		s.auditLogger.LogLockoutEvent("account_locked", identityID, identity.LockedUntil, identity.ViolationCount)
	}

	return identity, lockTriggered, nil
}

// RecordSuccess resets the failure counter. ViolationCount is untouched so
// past violations keep escalation meaningful.
func (s *LockoutService) RecordSuccess(ctx context.Context, identityID string) error {
	_, err := s.store.UpdateLockState(ctx, identityID, func(identity *models.Identity) {
		identity.FailedAttempts = 0
		identity.FirstFailedAt = nil
	})
	return err
}

// AdminUnlock forces the account back to active. ViolationCount is kept: an
// unlocked account that immediately misbehaves re-escalates.
func (s *LockoutService) AdminUnlock(ctx context.Context, identityID string) error {
	identity, err := s.store.UpdateLockState(ctx, identityID, func(identity *models.Identity) {
		identity.LockedUntil = nil
		identity.FailedAttempts = 0
		identity.FirstFailedAt = nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("account unlocked by administrator", slog.String("identity_id", identityID))
	s.auditLogger.LogLockoutEvent("admin_unlock", identityID, nil, identity.ViolationCount)
	return nil
}

// lockoutDuration implements progressive escalation:
// base * 2^min(violations, capExponent).
func (s *LockoutService) lockoutDuration(violations int) time.Duration {
	exponent := violations
	if exponent > s.config.CapExponent {
		exponent = s.config.CapExponent
	}
	return s.config.BaseDuration * time.Duration(1<<exponent)
}
