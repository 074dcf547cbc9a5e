package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/BradenHooton/bastion/internal/database"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/jackc/pgx/v5"
)

// StepTokenRepository handles database operations for step-up tokens
type StepTokenRepository struct {
	db *database.DB
}

// NewStepTokenRepository creates a new StepTokenRepository
func NewStepTokenRepository(db *database.DB) *StepTokenRepository {
	return &StepTokenRepository{db: db}
}

// Create inserts a new step-up token record
func (r *StepTokenRepository) Create(ctx context.Context, identityID, tokenHash string, expiresAt time.Time) (*models.StepUpToken, error) {
	query := `
		INSERT INTO step_up_tokens (identity_id, token_hash, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, identity_id, token_hash, issued_at, expires_at, consumed_at
	`

	var token models.StepUpToken
	err := r.db.Pool.QueryRow(ctx, query, identityID, tokenHash, expiresAt).Scan(
		&token.ID,
		&token.IdentityID,
		&token.TokenHash,
		&token.IssuedAt,
		&token.ExpiresAt,
		&token.ConsumedAt,
	)
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// Consume flips consumed_at for an unconsumed token in a single atomic
// check-and-set. Exactly one of any number of concurrent callers for the same
// hash gets the token back; the rest see ErrNotFound and must disambiguate
// with GetByHash.
func (r *StepTokenRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (*models.StepUpToken, error) {
	query := `
		UPDATE step_up_tokens
		SET consumed_at = $2
		WHERE token_hash = $1 AND consumed_at IS NULL
		RETURNING id, identity_id, token_hash, issued_at, expires_at, consumed_at
	`

	var token models.StepUpToken
	err := r.db.Pool.QueryRow(ctx, query, tokenHash, now).Scan(
		&token.ID,
		&token.IdentityID,
		&token.TokenHash,
		&token.IssuedAt,
		&token.ExpiresAt,
		&token.ConsumedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// GetByHash retrieves a token by hash regardless of consumption state
func (r *StepTokenRepository) GetByHash(ctx context.Context, tokenHash string) (*models.StepUpToken, error) {
	query := `
		SELECT id, identity_id, token_hash, issued_at, expires_at, consumed_at
		FROM step_up_tokens
		WHERE token_hash = $1
	`

	var token models.StepUpToken
	err := r.db.Pool.QueryRow(ctx, query, tokenHash).Scan(
		&token.ID,
		&token.IdentityID,
		&token.TokenHash,
		&token.IssuedAt,
		&token.ExpiresAt,
		&token.ConsumedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// DeleteExpired removes tokens past their expiry. Storage hygiene only;
// expired tokens are already rejected on use.
func (r *StepTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM step_up_tokens WHERE expires_at <= CURRENT_TIMESTAMP`
	tag, err := r.db.Pool.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
