package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
	pkgauth "github.com/BradenHooton/bastion/pkg/auth"
	"golang.org/x/crypto/bcrypt"
)

// EnrollmentStore defines the persistence operations for 2FA enrollment
// management
type EnrollmentStore interface {
	CreateEnrollment(ctx context.Context, enrollment *models.TwoFactorEnrollment) error
	GetEnrollment(ctx context.Context, identityID string) (*models.TwoFactorEnrollment, error)
	MarkEnrollmentVerified(ctx context.Context, id string) error
	DeleteEnrollment(ctx context.Context, identityID string) error
	ReplaceBackupCodes(ctx context.Context, identityID string, codeHashes []string) error
	CountUnusedBackupCodes(ctx context.Context, identityID string) (int, error)
}

// EnrollmentIdentityStore is the identity surface needed during enrollment
type EnrollmentIdentityStore interface {
	GetByID(ctx context.Context, id string) (*models.Identity, error)
	SetTwoFactorEnabled(ctx context.Context, id string, enabled bool) error
}

// SetupResult is returned when enrollment is initiated. BackupCodes are
// shown exactly once; only their hashes are kept.
type SetupResult struct {
	QRCode      string   `json:"qr_code"`
	BackupCodes []string `json:"backup_codes"`
}

// EnrollmentService handles 2FA setup, verification, and teardown
type EnrollmentService struct {
	store      EnrollmentStore
	identities EnrollmentIdentityStore
	totpMgr    *auth.TOTPManager
	logger     *slog.Logger

	backupCodeCount int
	now             func() time.Time
}

// NewEnrollmentService creates a new EnrollmentService
func NewEnrollmentService(store EnrollmentStore, identities EnrollmentIdentityStore, totpMgr *auth.TOTPManager, logger *slog.Logger, backupCodeCount int) *EnrollmentService {
	return &EnrollmentService{
		store:           store,
		identities:      identities,
		totpMgr:         totpMgr,
		logger:          logger,
		backupCodeCount: backupCodeCount,
		now:             time.Now,
	}
}

// InitiateSetup begins 2FA setup and returns the QR code and backup codes.
// The enrollment stays unverified (and 2FA stays off) until the first code
// is confirmed.
func (s *EnrollmentService) InitiateSetup(ctx context.Context, identityID string) (*SetupResult, error) {
	identity, err := s.identities.GetByID(ctx, identityID)
	if err != nil {
		return nil, models.ErrNotFound
	}

	if identity.TwoFactorEnabled {
		return nil, models.ErrConflict
	}

	encryptedSecret, nonce, qrCode, err := s.totpMgr.GenerateSecretWithQR(identity.Email)
	if err != nil {
		s.logger.Error("failed to generate TOTP secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	enrollment := &models.TwoFactorEnrollment{
		IdentityID:      identityID,
		SecretEncrypted: encryptedSecret,
		SecretNonce:     nonce,
	}
	if err := s.store.CreateEnrollment(ctx, enrollment); err != nil {
		s.logger.Error("failed to create enrollment", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	backupCodes, err := s.generateAndStoreBackupCodes(ctx, identityID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("two-factor setup initiated", slog.String("identity_id", identityID))

	return &SetupResult{
		QRCode:      qrCode,
		BackupCodes: backupCodes,
	}, nil
}

// VerifySetup confirms the first TOTP code and enables 2FA for the identity
func (s *EnrollmentService) VerifySetup(ctx context.Context, identityID, code string) error {
	enrollment, err := s.store.GetEnrollment(ctx, identityID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrTwoFactorNotEnrolled
		}
		return models.ErrInternalServer
	}

	if enrollment.IsVerified() {
		return models.ErrConflict
	}

	secret, err := s.totpMgr.DecryptSecret(enrollment.SecretEncrypted, enrollment.SecretNonce)
	if err != nil {
		s.logger.Error("failed to decrypt TOTP secret", slog.Any("error", err))
		return models.ErrInternalServer
	}

	_, ok, err := s.totpMgr.MatchTOTPStep(secret, code, s.now())
	if err != nil {
		s.logger.Error("TOTP matching error", slog.Any("error", err))
		return models.ErrInternalServer
	}
	if !ok {
		s.logger.Warn("invalid code during two-factor setup", slog.String("identity_id", identityID))
		return models.ErrTwoFactorInvalid
	}

	if err := s.store.MarkEnrollmentVerified(ctx, enrollment.ID); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return models.ErrConflict
		}
		s.logger.Error("failed to mark enrollment verified", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.identities.SetTwoFactorEnabled(ctx, identityID, true); err != nil {
		s.logger.Error("failed to enable two-factor flag", slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("two-factor setup verified and enabled", slog.String("identity_id", identityID))
	return nil
}

// Disable turns 2FA off after re-verifying the password
func (s *EnrollmentService) Disable(ctx context.Context, identityID, password string) error {
	identity, err := s.identities.GetByID(ctx, identityID)
	if err != nil {
		return models.ErrNotFound
	}

	if err := pkgauth.ComparePassword(identity.PasswordHash, password); err != nil {
		return models.ErrInvalidCredentials
	}

	if err := s.store.DeleteEnrollment(ctx, identityID); err != nil {
		s.logger.Error("failed to delete enrollment", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.identities.SetTwoFactorEnabled(ctx, identityID, false); err != nil {
		s.logger.Error("failed to disable two-factor flag", slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("two-factor disabled", slog.String("identity_id", identityID))
	return nil
}

// RegenerateBackupCodes replaces the full pool with fresh codes
func (s *EnrollmentService) RegenerateBackupCodes(ctx context.Context, identityID string) ([]string, error) {
	enrollment, err := s.store.GetEnrollment(ctx, identityID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrTwoFactorNotEnrolled
		}
		return nil, models.ErrInternalServer
	}
	if !enrollment.IsVerified() {
		return nil, models.ErrTwoFactorNotEnrolled
	}

	codes, err := s.generateAndStoreBackupCodes(ctx, identityID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("backup codes regenerated", slog.String("identity_id", identityID))
	return codes, nil
}

// RemainingBackupCodes reports how many unused codes are left
func (s *EnrollmentService) RemainingBackupCodes(ctx context.Context, identityID string) (int, error) {
	return s.store.CountUnusedBackupCodes(ctx, identityID)
}

func (s *EnrollmentService) generateAndStoreBackupCodes(ctx context.Context, identityID string) ([]string, error) {
	codes, err := s.totpMgr.GenerateBackupCodes(s.backupCodeCount)
	if err != nil {
		s.logger.Error("failed to generate backup codes", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	hashes := make([]string, len(codes))
	for i, code := range codes {
		hash, err := bcrypt.GenerateFromPassword([]byte(code), pkgauth.BcryptCost)
		if err != nil {
			s.logger.Error("failed to hash backup code", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		hashes[i] = string(hash)
	}

	if err := s.store.ReplaceBackupCodes(ctx, identityID, hashes); err != nil {
		s.logger.Error("failed to store backup codes", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return codes, nil
}
