package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/BradenHooton/bastion/internal/repositories"
)

// staleBucketAge is how long after its window a rate-limit bucket is kept.
// Generous relative to every configured window so an in-flight check never
// races a delete.
const staleBucketAge = 24 * time.Hour

// CleanupManager periodically removes expired step-up tokens, expired audit
// records, and stale rate-limit buckets
type CleanupManager struct {
	stepTokenRepo *repositories.StepTokenRepository
	attemptRepo   *repositories.LoginAttemptRepository
	rateLimitRepo *repositories.RateLimitRepository
	logger        *slog.Logger
	interval      time.Duration
	stopCh        chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	stepTokenRepo *repositories.StepTokenRepository,
	attemptRepo *repositories.LoginAttemptRepository,
	rateLimitRepo *repositories.RateLimitRepository,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		stepTokenRepo: stepTokenRepo,
		attemptRepo:   attemptRepo,
		rateLimitRepo: rateLimitRepo,
		logger:        logger,
		interval:      interval,
		stopCh:        make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cm.logger.Info("starting retention cleanup")

	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	tokens, err := cm.stepTokenRepo.DeleteExpired(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to clean up expired step-up tokens", slog.Any("error", err))
	}

	attempts, err := cm.attemptRepo.DeleteExpiredAttempts(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to clean up expired login attempts", slog.Any("error", err))
	}

	buckets, err := cm.rateLimitRepo.DeleteStale(cleanupCtx, time.Now().Add(-staleBucketAge))
	if err != nil {
		cm.logger.Error("failed to clean up stale rate-limit buckets", slog.Any("error", err))
	}

	if tokens > 0 || attempts > 0 || buckets > 0 {
		cm.logger.Info("retention cleanup completed",
			slog.Int64("step_tokens_deleted", tokens),
			slog.Int64("attempts_deleted", attempts),
			slog.Int64("buckets_deleted", buckets))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
