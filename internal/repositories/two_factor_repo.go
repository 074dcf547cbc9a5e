package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/bastion/internal/database"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/jackc/pgx/v5"
)

// TwoFactorRepository handles database operations for TOTP enrollments and
// backup codes
type TwoFactorRepository struct {
	db *database.DB
}

// NewTwoFactorRepository creates a new TwoFactorRepository
func NewTwoFactorRepository(db *database.DB) *TwoFactorRepository {
	return &TwoFactorRepository{db: db}
}

// CreateEnrollment inserts a new (unverified) enrollment, replacing any
// previous one for the identity.
func (r *TwoFactorRepository) CreateEnrollment(ctx context.Context, enrollment *models.TwoFactorEnrollment) error {
	query := `
		INSERT INTO two_factor_enrollments (identity_id, secret_encrypted, secret_nonce)
		VALUES ($1, $2, $3)
		ON CONFLICT (identity_id) DO UPDATE SET
			secret_encrypted = EXCLUDED.secret_encrypted,
			secret_nonce = EXCLUDED.secret_nonce,
			last_used_step = NULL,
			verified_at = NULL,
			created_at = now()
		RETURNING id, created_at
	`

	return r.db.Pool.QueryRow(ctx, query,
		enrollment.IdentityID,
		enrollment.SecretEncrypted,
		enrollment.SecretNonce,
	).Scan(&enrollment.ID, &enrollment.CreatedAt)
}

// GetEnrollment retrieves the enrollment for an identity
func (r *TwoFactorRepository) GetEnrollment(ctx context.Context, identityID string) (*models.TwoFactorEnrollment, error) {
	query := `
		SELECT id, identity_id, secret_encrypted, secret_nonce, last_used_step, created_at, verified_at
		FROM two_factor_enrollments
		WHERE identity_id = $1
	`

	var e models.TwoFactorEnrollment
	err := r.db.Pool.QueryRow(ctx, query, identityID).Scan(
		&e.ID,
		&e.IdentityID,
		&e.SecretEncrypted,
		&e.SecretNonce,
		&e.LastUsedStep,
		&e.CreatedAt,
		&e.VerifiedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// MarkEnrollmentVerified records the first successful code for an enrollment
func (r *TwoFactorRepository) MarkEnrollmentVerified(ctx context.Context, id string) error {
	query := `UPDATE two_factor_enrollments SET verified_at = now() WHERE id = $1 AND verified_at IS NULL`
	tag, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrConflict
	}
	return nil
}

// AdvanceLastUsedStep accepts a TOTP step at most once per identity. The
// conditional write is the replay gate: it succeeds only if the step is newer
// than the last accepted one.
func (r *TwoFactorRepository) AdvanceLastUsedStep(ctx context.Context, identityID string, step int64) (bool, error) {
	query := `
		UPDATE two_factor_enrollments
		SET last_used_step = $2
		WHERE identity_id = $1 AND (last_used_step IS NULL OR last_used_step < $2)
	`
	tag, err := r.db.Pool.Exec(ctx, query, identityID, step)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// DeleteEnrollment removes the enrollment and backup codes for an identity
func (r *TwoFactorRepository) DeleteEnrollment(ctx context.Context, identityID string) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM backup_codes WHERE identity_id = $1`, identityID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM two_factor_enrollments WHERE identity_id = $1`, identityID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ReplaceBackupCodes swaps the full backup-code pool for an identity
func (r *TwoFactorRepository) ReplaceBackupCodes(ctx context.Context, identityID string, codeHashes []string) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM backup_codes WHERE identity_id = $1`, identityID); err != nil {
		return err
	}

	for _, hash := range codeHashes {
		if _, err := tx.Exec(ctx,
			`INSERT INTO backup_codes (identity_id, code_hash) VALUES ($1, $2)`,
			identityID, hash,
		); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// GetUnusedBackupCodes returns the unused codes for an identity
func (r *TwoFactorRepository) GetUnusedBackupCodes(ctx context.Context, identityID string) ([]models.BackupCode, error) {
	query := `
		SELECT id, identity_id, code_hash, used_at, created_at
		FROM backup_codes
		WHERE identity_id = $1 AND used_at IS NULL
		ORDER BY created_at
	`

	rows, err := r.db.Pool.Query(ctx, query, identityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []models.BackupCode
	for rows.Next() {
		var c models.BackupCode
		if err := rows.Scan(&c.ID, &c.IdentityID, &c.CodeHash, &c.UsedAt, &c.CreatedAt); err != nil {
			return nil, err
		}
		codes = append(codes, c)
	}
	return codes, rows.Err()
}

// MarkBackupCodeUsed burns a backup code. The conditional write guarantees a
// code is accepted at most once even under concurrent verification.
func (r *TwoFactorRepository) MarkBackupCodeUsed(ctx context.Context, codeID string, now time.Time) (bool, error) {
	query := `UPDATE backup_codes SET used_at = $2 WHERE id = $1 AND used_at IS NULL`
	tag, err := r.db.Pool.Exec(ctx, query, codeID, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CountUnusedBackupCodes returns how many codes remain for an identity
func (r *TwoFactorRepository) CountUnusedBackupCodes(ctx context.Context, identityID string) (int, error) {
	query := `SELECT COUNT(*) FROM backup_codes WHERE identity_id = $1 AND used_at IS NULL`
	var count int
	err := r.db.Pool.QueryRow(ctx, query, identityID).Scan(&count)
	return count, err
}
