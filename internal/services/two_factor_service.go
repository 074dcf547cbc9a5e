package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// TwoFactorStore defines the persistence operations for second-factor
// verification. AdvanceLastUsedStep and MarkBackupCodeUsed must be atomic
// conditional writes.
type TwoFactorStore interface {
	GetEnrollment(ctx context.Context, identityID string) (*models.TwoFactorEnrollment, error)
	AdvanceLastUsedStep(ctx context.Context, identityID string, step int64) (bool, error)
	GetUnusedBackupCodes(ctx context.Context, identityID string) ([]models.BackupCode, error)
	MarkBackupCodeUsed(ctx context.Context, codeID string, now time.Time) (bool, error)
}

// TwoFactorService verifies time-based codes and single-use backup codes
// against an identity's enrollment.
type TwoFactorService struct {
	store   TwoFactorStore
	totpMgr *auth.TOTPManager
	logger  *slog.Logger
	now     func() time.Time
}

// NewTwoFactorService creates a new TwoFactorService
func NewTwoFactorService(store TwoFactorStore, totpMgr *auth.TOTPManager, logger *slog.Logger) *TwoFactorService {
	return &TwoFactorService{
		store:   store,
		totpMgr: totpMgr,
		logger:  logger,
		now:     time.Now,
	}
}

// Verify accepts either a 6-digit TOTP code or a backup code. A TOTP value is
// accepted at most once per step window; a backup code is burned on first
// use. Returns ErrTwoFactorInvalid on any mismatch.
func (s *TwoFactorService) Verify(ctx context.Context, identityID, code string) error {
	enrollment, err := s.store.GetEnrollment(ctx, identityID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrTwoFactorNotEnrolled
		}
		s.logger.Error("failed to load two-factor enrollment", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if !enrollment.IsVerified() {
		return models.ErrTwoFactorNotEnrolled
	}

	if isTOTPCode(code) {
		return s.verifyTOTP(ctx, identityID, enrollment, code)
	}

	return s.verifyBackupCode(ctx, identityID, code)
}

func (s *TwoFactorService) verifyTOTP(ctx context.Context, identityID string, enrollment *models.TwoFactorEnrollment, code string) error {
	secret, err := s.totpMgr.DecryptSecret(enrollment.SecretEncrypted, enrollment.SecretNonce)
	if err != nil {
		s.logger.Error("failed to decrypt TOTP secret",
			slog.String("identity_id", identityID),
			slog.Any("error", err))
		return models.ErrInternalServer
	}

	step, ok, err := s.totpMgr.MatchTOTPStep(secret, code, s.now())
	if err != nil {
		s.logger.Error("TOTP matching error", slog.Any("error", err))
		return models.ErrInternalServer
	}
	if !ok {
		return models.ErrTwoFactorInvalid
	}

	// The matched step must be newer than the last accepted one; this is the
	// replay gate within the skew window.
	advanced, err := s.store.AdvanceLastUsedStep(ctx, identityID, step)
	if err != nil {
		s.logger.Error("failed to advance TOTP step", slog.Any("error", err))
		return models.ErrInternalServer
	}
	if !advanced {
		s.logger.Warn("TOTP replay rejected", slog.String("identity_id", identityID))
		return models.ErrTwoFactorInvalid
	}

	return nil
}

func (s *TwoFactorService) verifyBackupCode(ctx context.Context, identityID, code string) error {
	codes, err := s.store.GetUnusedBackupCodes(ctx, identityID)
	if err != nil {
		s.logger.Error("failed to load backup codes", slog.Any("error", err))
		return models.ErrInternalServer
	}

	for _, entry := range codes {
		if bcrypt.CompareHashAndPassword([]byte(entry.CodeHash), []byte(code)) != nil {
			continue
		}

		marked, err := s.store.MarkBackupCodeUsed(ctx, entry.ID, s.now())
		if err != nil {
			s.logger.Error("failed to mark backup code used", slog.Any("error", err))
			return models.ErrInternalServer
		}
		if !marked {
			// A concurrent verification burned this code first.
			return models.ErrTwoFactorInvalid
		}

		s.logger.Info("backup code used", slog.String("identity_id", identityID))
		return nil
	}

	return models.ErrTwoFactorInvalid
}

// isTOTPCode reports whether code looks like a 6-digit time-based code
func isTOTPCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
