package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/BradenHooton/bastion/internal/database"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/jackc/pgx/v5"
)

// IdentityRepository handles database operations for identities
type IdentityRepository struct {
	db *database.DB
}

// NewIdentityRepository creates a new IdentityRepository
func NewIdentityRepository(db *database.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

const identityColumns = `
	id, email, password_hash, role, status, two_factor_enabled,
	failed_attempts, first_failed_at, locked_until, violation_count,
	created_at, updated_at
`

func scanIdentity(row pgx.Row) (*models.Identity, error) {
	var identity models.Identity
	err := row.Scan(
		&identity.ID,
		&identity.Email,
		&identity.PasswordHash,
		&identity.Role,
		&identity.Status,
		&identity.TwoFactorEnabled,
		&identity.FailedAttempts,
		&identity.FirstFailedAt,
		&identity.LockedUntil,
		&identity.ViolationCount,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &identity, nil
}

// GetByEmail retrieves an identity by email
func (r *IdentityRepository) GetByEmail(ctx context.Context, email string) (*models.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE email = $1`
	return scanIdentity(r.db.Pool.QueryRow(ctx, query, email))
}

// GetByID retrieves an identity by id
func (r *IdentityRepository) GetByID(ctx context.Context, id string) (*models.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE id = $1`
	return scanIdentity(r.db.Pool.QueryRow(ctx, query, id))
}

// Create inserts a new identity
func (r *IdentityRepository) Create(ctx context.Context, identity *models.Identity) (*models.Identity, error) {
	query := `
		INSERT INTO identities (email, password_hash, role, status, two_factor_enabled)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + identityColumns

	created, err := scanIdentity(r.db.Pool.QueryRow(ctx, query,
		identity.Email,
		identity.PasswordHash,
		identity.Role,
		identity.Status,
		identity.TwoFactorEnabled,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}
	return created, nil
}

// SetTwoFactorEnabled flips the 2FA flag for an identity
func (r *IdentityRepository) SetTwoFactorEnabled(ctx context.Context, id string, enabled bool) error {
	query := `UPDATE identities SET two_factor_enabled = $2, updated_at = now() WHERE id = $1`
	tag, err := r.db.Pool.Exec(ctx, query, id, enabled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// UpdateLockState applies a lockout transition under a row lock so that two
// concurrent attempts for the same identity cannot both pass a gate meant to
// admit only one. The apply callback mutates the lock fields in place.
func (r *IdentityRepository) UpdateLockState(ctx context.Context, id string, apply func(*models.Identity)) (*models.Identity, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `SELECT ` + identityColumns + ` FROM identities WHERE id = $1 FOR UPDATE`
	identity, err := scanIdentity(tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}

	apply(identity)

	update := `
		UPDATE identities
		SET failed_attempts = $2, first_failed_at = $3, locked_until = $4,
		    violation_count = $5, updated_at = now()
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, update,
		identity.ID,
		identity.FailedAttempts,
		identity.FirstFailedAt,
		identity.LockedUntil,
		identity.ViolationCount,
	); err != nil {
		return nil, fmt.Errorf("failed to update lock state: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit lock state: %w", err)
	}

	return identity, nil
}
