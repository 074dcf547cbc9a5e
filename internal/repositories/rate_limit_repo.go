package repositories

import (
	"context"
	"time"

	"github.com/BradenHooton/bastion/internal/database"
	"github.com/BradenHooton/bastion/internal/models"
)

// RateLimitRepository handles database operations for rate-limit buckets
type RateLimitRepository struct {
	db *database.DB
}

// NewRateLimitRepository creates a new RateLimitRepository
func NewRateLimitRepository(db *database.DB) *RateLimitRepository {
	return &RateLimitRepository{db: db}
}

// Increment charges one request against a bucket and returns the updated
// bucket. The upsert resets the window when it has elapsed and increments
// otherwise, all in a single atomic statement, so concurrent requests for the
// same key observe a consistent count.
func (r *RateLimitRepository) Increment(ctx context.Context, scope, key, class string, now time.Time, window time.Duration) (*models.RateLimitBucket, error) {
	query := `
		INSERT INTO rate_limit_buckets (scope, key, class, window_start, count)
		VALUES ($1, $2, $3, $4, 1)
		ON CONFLICT (scope, key, class) DO UPDATE SET
			count = CASE
				WHEN $4 - rate_limit_buckets.window_start >= $5 THEN 1
				ELSE rate_limit_buckets.count + 1
			END,
			window_start = CASE
				WHEN $4 - rate_limit_buckets.window_start >= $5 THEN $4
				ELSE rate_limit_buckets.window_start
			END
		RETURNING scope, key, class, window_start, count
	`

	var bucket models.RateLimitBucket
	err := r.db.Pool.QueryRow(ctx, query, scope, key, class, now, window).Scan(
		&bucket.Scope,
		&bucket.Key,
		&bucket.Class,
		&bucket.WindowStart,
		&bucket.Count,
	)
	if err != nil {
		return nil, err
	}
	return &bucket, nil
}

// DeleteStale removes buckets whose window started before the cutoff
func (r *RateLimitRepository) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM rate_limit_buckets WHERE window_start < $1`
	tag, err := r.db.Pool.Exec(ctx, query, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
