package integration

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/bastion/internal/models"
)

func TestRepositories(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	testDB, err := SetupTestDatabase(ctx)
	require.NoError(t, err)
	defer testDB.Teardown(ctx)

	identityRepo, attemptRepo, stepTokenRepo, twoFactorRepo, rateLimitRepo := InitializeRepositories(testDB.DB)

	uniqueEmail := func(suffix string) string {
		return fmt.Sprintf("test-%d-%s@example.com", time.Now().UnixNano(), suffix)
	}

	t.Run("StepToken_SingleUse", func(t *testing.T) {
		identity, err := SeedIdentity(ctx, identityRepo, uniqueEmail("steptoken"), "TestPassword123")
		require.NoError(t, err)

		hash := sha256Hash("bearer-value-1")
		token, err := stepTokenRepo.Create(ctx, identity.ID, hash, time.Now().Add(5*time.Minute))
		require.NoError(t, err)
		assert.Nil(t, token.ConsumedAt)

		consumed, err := stepTokenRepo.Consume(ctx, hash, time.Now())
		require.NoError(t, err)
		assert.NotNil(t, consumed.ConsumedAt)
		assert.Equal(t, identity.ID, consumed.IdentityID)

		// Second consumption attempt loses the conditional write
		_, err = stepTokenRepo.Consume(ctx, hash, time.Now())
		assert.ErrorIs(t, err, models.ErrNotFound)

		// GetByHash still sees the consumed row for disambiguation
		stale, err := stepTokenRepo.GetByHash(ctx, hash)
		require.NoError(t, err)
		assert.True(t, stale.IsConsumed())
	})

	t.Run("StepToken_ConcurrentConsume", func(t *testing.T) {
		identity, err := SeedIdentity(ctx, identityRepo, uniqueEmail("steptoken-race"), "TestPassword123")
		require.NoError(t, err)

		hash := sha256Hash("bearer-value-race")
		_, err = stepTokenRepo.Create(ctx, identity.ID, hash, time.Now().Add(5*time.Minute))
		require.NoError(t, err)

		const attempts = 10
		var wg sync.WaitGroup
		results := make(chan error, attempts)

		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := stepTokenRepo.Consume(ctx, hash, time.Now())
				results <- err
			}()
		}
		wg.Wait()
		close(results)

		var winners int
		for err := range results {
			if err == nil {
				winners++
			} else {
				assert.ErrorIs(t, err, models.ErrNotFound)
			}
		}
		assert.Equal(t, 1, winners, "exactly one consumer should win")
	})

	t.Run("StepToken_DeleteExpired", func(t *testing.T) {
		identity, err := SeedIdentity(ctx, identityRepo, uniqueEmail("steptoken-expired"), "TestPassword123")
		require.NoError(t, err)

		_, err = stepTokenRepo.Create(ctx, identity.ID, sha256Hash("expired-bearer"), time.Now().Add(-1*time.Minute))
		require.NoError(t, err)
		_, err = stepTokenRepo.Create(ctx, identity.ID, sha256Hash("live-bearer"), time.Now().Add(5*time.Minute))
		require.NoError(t, err)

		deleted, err := stepTokenRepo.DeleteExpired(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, deleted, int64(1))

		_, err = stepTokenRepo.GetByHash(ctx, sha256Hash("expired-bearer"))
		assert.ErrorIs(t, err, models.ErrNotFound)
		_, err = stepTokenRepo.GetByHash(ctx, sha256Hash("live-bearer"))
		assert.NoError(t, err)
	})

	t.Run("Identity_UpdateLockState", func(t *testing.T) {
		identity, err := SeedIdentity(ctx, identityRepo, uniqueEmail("lockstate"), "TestPassword123")
		require.NoError(t, err)

		lockedUntil := time.Now().Add(15 * time.Minute).UTC()
		updated, err := identityRepo.UpdateLockState(ctx, identity.ID, func(i *models.Identity) {
			i.FailedAttempts = 0
			i.FirstFailedAt = nil
			i.LockedUntil = &lockedUntil
			i.ViolationCount = i.ViolationCount + 1
		})
		require.NoError(t, err)
		assert.Equal(t, 1, updated.ViolationCount)
		require.NotNil(t, updated.LockedUntil)

		// Read back through a fresh query
		fetched, err := identityRepo.GetByID(ctx, identity.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, fetched.ViolationCount)
		require.NotNil(t, fetched.LockedUntil)
		assert.WithinDuration(t, lockedUntil, *fetched.LockedUntil, time.Second)
		assert.True(t, fetched.IsLocked(time.Now()))
		assert.False(t, fetched.IsLocked(time.Now().Add(20*time.Minute)))
	})

	t.Run("Identity_UpdateLockState_Concurrent", func(t *testing.T) {
		identity, err := SeedIdentity(ctx, identityRepo, uniqueEmail("lockstate-race"), "TestPassword123")
		require.NoError(t, err)

		// Concurrent failure recordings must not lose increments
		const failures = 8
		var wg sync.WaitGroup
		for i := 0; i < failures; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := identityRepo.UpdateLockState(ctx, identity.ID, func(ident *models.Identity) {
					ident.FailedAttempts++
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		fetched, err := identityRepo.GetByID(ctx, identity.ID)
		require.NoError(t, err)
		assert.Equal(t, failures, fetched.FailedAttempts)
	})

	t.Run("TwoFactor_AdvanceLastUsedStep", func(t *testing.T) {
		identity, err := SeedIdentity(ctx, identityRepo, uniqueEmail("totp-step"), "TestPassword123")
		require.NoError(t, err)

		enrollment := &models.TwoFactorEnrollment{
			IdentityID:      identity.ID,
			SecretEncrypted: []byte("encrypted"),
			SecretNonce:     []byte("0123456789ab"),
		}
		require.NoError(t, twoFactorRepo.CreateEnrollment(ctx, enrollment))

		// First acceptance of a step wins
		ok, err := twoFactorRepo.AdvanceLastUsedStep(ctx, identity.ID, 1000)
		require.NoError(t, err)
		assert.True(t, ok)

		// Replaying the same step loses
		ok, err = twoFactorRepo.AdvanceLastUsedStep(ctx, identity.ID, 1000)
		require.NoError(t, err)
		assert.False(t, ok)

		// An older step loses too
		ok, err = twoFactorRepo.AdvanceLastUsedStep(ctx, identity.ID, 999)
		require.NoError(t, err)
		assert.False(t, ok)

		// Time moving forward wins again
		ok, err = twoFactorRepo.AdvanceLastUsedStep(ctx, identity.ID, 1001)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("TwoFactor_EnrollmentLifecycle", func(t *testing.T) {
		identity, err := SeedIdentity(ctx, identityRepo, uniqueEmail("enrollment"), "TestPassword123")
		require.NoError(t, err)

		enrollment := &models.TwoFactorEnrollment{
			IdentityID:      identity.ID,
			SecretEncrypted: []byte("encrypted"),
			SecretNonce:     []byte("0123456789ab"),
		}
		require.NoError(t, twoFactorRepo.CreateEnrollment(ctx, enrollment))
		require.NotEmpty(t, enrollment.ID)

		fetched, err := twoFactorRepo.GetEnrollment(ctx, identity.ID)
		require.NoError(t, err)
		assert.False(t, fetched.IsVerified())

		require.NoError(t, twoFactorRepo.MarkEnrollmentVerified(ctx, enrollment.ID))

		// Verifying twice is a conflict
		err = twoFactorRepo.MarkEnrollmentVerified(ctx, enrollment.ID)
		assert.ErrorIs(t, err, models.ErrConflict)

		fetched, err = twoFactorRepo.GetEnrollment(ctx, identity.ID)
		require.NoError(t, err)
		assert.True(t, fetched.IsVerified())

		// Re-enrolling resets verification and replay state
		require.NoError(t, twoFactorRepo.CreateEnrollment(ctx, &models.TwoFactorEnrollment{
			IdentityID:      identity.ID,
			SecretEncrypted: []byte("encrypted-2"),
			SecretNonce:     []byte("ba9876543210"),
		}))
		fetched, err = twoFactorRepo.GetEnrollment(ctx, identity.ID)
		require.NoError(t, err)
		assert.False(t, fetched.IsVerified())
		assert.Nil(t, fetched.LastUsedStep)

		require.NoError(t, twoFactorRepo.DeleteEnrollment(ctx, identity.ID))
		_, err = twoFactorRepo.GetEnrollment(ctx, identity.ID)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("TwoFactor_BackupCodes", func(t *testing.T) {
		identity, err := SeedIdentity(ctx, identityRepo, uniqueEmail("backup-codes"), "TestPassword123")
		require.NoError(t, err)

		hashes := []string{"hash-a", "hash-b", "hash-c"}
		require.NoError(t, twoFactorRepo.ReplaceBackupCodes(ctx, identity.ID, hashes))

		codes, err := twoFactorRepo.GetUnusedBackupCodes(ctx, identity.ID)
		require.NoError(t, err)
		require.Len(t, codes, 3)

		// Burning a code is a one-shot conditional write
		ok, err := twoFactorRepo.MarkBackupCodeUsed(ctx, codes[0].ID, time.Now())
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = twoFactorRepo.MarkBackupCodeUsed(ctx, codes[0].ID, time.Now())
		require.NoError(t, err)
		assert.False(t, ok)

		count, err := twoFactorRepo.CountUnusedBackupCodes(ctx, identity.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		// Replacing the pool discards burn state along with the old codes
		require.NoError(t, twoFactorRepo.ReplaceBackupCodes(ctx, identity.ID, []string{"hash-d"}))
		count, err = twoFactorRepo.CountUnusedBackupCodes(ctx, identity.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("RateLimit_FixedWindow", func(t *testing.T) {
		now := time.Now().UTC()
		window := time.Minute

		for i := 1; i <= 3; i++ {
			bucket, err := rateLimitRepo.Increment(ctx, models.ScopeIP, "203.0.113.50", models.ClassLogin, now, window)
			require.NoError(t, err)
			assert.Equal(t, i, bucket.Count)
		}

		// A different class keeps its own counter
		bucket, err := rateLimitRepo.Increment(ctx, models.ScopeIP, "203.0.113.50", models.ClassStepUpVerify, now, window)
		require.NoError(t, err)
		assert.Equal(t, 1, bucket.Count)

		// After the window elapses the counter resets
		bucket, err = rateLimitRepo.Increment(ctx, models.ScopeIP, "203.0.113.50", models.ClassLogin, now.Add(2*window), window)
		require.NoError(t, err)
		assert.Equal(t, 1, bucket.Count)
		assert.WithinDuration(t, now.Add(2*window), bucket.WindowStart, time.Second)
	})

	t.Run("RateLimit_DeleteStale", func(t *testing.T) {
		now := time.Now().UTC()
		_, err := rateLimitRepo.Increment(ctx, models.ScopeIdentifier, "stale@example.com", models.ClassLogin, now.Add(-48*time.Hour), time.Minute)
		require.NoError(t, err)

		deleted, err := rateLimitRepo.DeleteStale(ctx, now.Add(-24*time.Hour))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, deleted, int64(1))
	})

	t.Run("LoginAttempts_RecordAndQuery", func(t *testing.T) {
		identifier := uniqueEmail("attempts")
		reason := "password"

		now := time.Now()
		for i := 0; i < 3; i++ {
			require.NoError(t, attemptRepo.RecordAttempt(ctx, &models.LoginAttempt{
				Identifier:    identifier,
				IPAddress:     "203.0.113.60",
				UserAgent:     "integration-test",
				AttemptTime:   now,
				Success:       false,
				FailureReason: &reason,
				ExpiresAt:     now.Add(24 * time.Hour),
			}))
		}
		require.NoError(t, attemptRepo.RecordAttempt(ctx, &models.LoginAttempt{
			Identifier:  identifier,
			IPAddress:   "203.0.113.60",
			UserAgent:   "integration-test",
			AttemptTime: now,
			Success:     true,
			ExpiresAt:   now.Add(24 * time.Hour),
		}))

		count, err := attemptRepo.GetFailedAttemptCount(ctx, identifier, now.Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 3, count)

		recent, err := attemptRepo.GetRecentByIdentifier(ctx, identifier, 10)
		require.NoError(t, err)
		assert.Len(t, recent, 4)
	})

	t.Run("LoginAttempts_DeleteExpired", func(t *testing.T) {
		identifier := uniqueEmail("expired-attempts")

		require.NoError(t, attemptRepo.RecordAttempt(ctx, &models.LoginAttempt{
			Identifier:  identifier,
			IPAddress:   "203.0.113.61",
			AttemptTime: time.Now().Add(-48 * time.Hour),
			Success:     false,
			ExpiresAt:   time.Now().Add(-24 * time.Hour),
		}))

		deleted, err := attemptRepo.DeleteExpiredAttempts(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, deleted, int64(1))

		recent, err := attemptRepo.GetRecentByIdentifier(ctx, identifier, 10)
		require.NoError(t, err)
		assert.Empty(t, recent)
	})
}
