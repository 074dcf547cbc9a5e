package repositories

import (
	"context"
	"time"

	"github.com/BradenHooton/bastion/internal/database"
	"github.com/BradenHooton/bastion/internal/models"
)

// LoginAttemptRepository handles database operations for the append-only
// login attempt audit trail
type LoginAttemptRepository struct {
	db *database.DB
}

// NewLoginAttemptRepository creates a new LoginAttemptRepository
func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

// RecordAttempt appends a login attempt
func (r *LoginAttemptRepository) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	query := `
		INSERT INTO login_attempts (identifier, ip_address, user_agent, success, failure_reason, lockout_triggered, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		attempt.Identifier,
		attempt.IPAddress,
		attempt.UserAgent,
		attempt.Success,
		attempt.FailureReason,
		attempt.LockoutTriggered,
		attempt.ExpiresAt,
	)

	return err
}

// GetRecentByIdentifier returns the most recent attempts for an identifier,
// newest first
func (r *LoginAttemptRepository) GetRecentByIdentifier(ctx context.Context, identifier string, limit int) ([]models.AttemptSummary, error) {
	query := `
		SELECT ip_address, attempt_time, success
		FROM login_attempts
		WHERE identifier = $1
		ORDER BY attempt_time DESC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, identifier, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []models.AttemptSummary
	for rows.Next() {
		var a models.AttemptSummary
		if err := rows.Scan(&a.IPAddress, &a.AttemptTime, &a.Success); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// GetFailedAttemptCount returns the number of failed attempts for an
// identifier within a time window
func (r *LoginAttemptRepository) GetFailedAttemptCount(ctx context.Context, identifier string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM login_attempts
		WHERE identifier = $1 AND success = false AND attempt_time >= $2
	`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, identifier, since).Scan(&count)
	return count, err
}

// DeleteExpiredAttempts removes attempts past their retention expiry
func (r *LoginAttemptRepository) DeleteExpiredAttempts(ctx context.Context) (int64, error) {
	query := `DELETE FROM login_attempts WHERE expires_at <= CURRENT_TIMESTAMP`
	tag, err := r.db.Pool.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
