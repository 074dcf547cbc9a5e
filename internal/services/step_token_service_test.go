package services_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStepTokenService(store services.StepTokenStore, ttl time.Duration) *services.StepTokenService {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	return services.NewStepTokenService(store, ttl, logger)
}

func TestStepTokenServiceIssueAndConsume(t *testing.T) {
	store := services.NewMemoryStepTokenStore()
	service := newStepTokenService(store, 5*time.Minute)
	ctx := context.Background()

	issued, err := service.Issue(ctx, "id_1")
	require.NoError(t, err)
	assert.NotEmpty(t, issued.Bearer)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), issued.ExpiresAt, 2*time.Second)

	identityID, err := service.Consume(ctx, issued.Bearer)
	require.NoError(t, err)
	assert.Equal(t, "id_1", identityID)
}

func TestStepTokenServiceConsume_SingleUse(t *testing.T) {
	store := services.NewMemoryStepTokenStore()
	service := newStepTokenService(store, 5*time.Minute)
	ctx := context.Background()

	issued, err := service.Issue(ctx, "id_1")
	require.NoError(t, err)

	_, err = service.Consume(ctx, issued.Bearer)
	require.NoError(t, err)

	_, err = service.Consume(ctx, issued.Bearer)
	assert.ErrorIs(t, err, models.ErrTokenAlreadyUsed)
}

func TestStepTokenServiceConsume_UnknownBearer(t *testing.T) {
	store := services.NewMemoryStepTokenStore()
	service := newStepTokenService(store, 5*time.Minute)

	_, err := service.Consume(context.Background(), "never-issued")
	assert.ErrorIs(t, err, models.ErrTokenInvalid)
}

func TestStepTokenServiceConsume_EmptyBearer(t *testing.T) {
	store := services.NewMemoryStepTokenStore()
	service := newStepTokenService(store, 5*time.Minute)

	_, err := service.Consume(context.Background(), "")
	assert.ErrorIs(t, err, models.ErrTokenInvalid)
}

func TestStepTokenServiceConsume_Expired(t *testing.T) {
	store := services.NewMemoryStepTokenStore()
	service := newStepTokenService(store, 20*time.Millisecond)
	ctx := context.Background()

	issued, err := service.Issue(ctx, "id_1")
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	_, err = service.Consume(ctx, issued.Bearer)
	assert.ErrorIs(t, err, models.ErrTokenExpired)

	// Consumption is terminal even when the token turned out to be expired
	_, err = service.Consume(ctx, issued.Bearer)
	assert.ErrorIs(t, err, models.ErrTokenAlreadyUsed)
}

func TestStepTokenServiceIssue_BearersAreUnique(t *testing.T) {
	store := services.NewMemoryStepTokenStore()
	service := newStepTokenService(store, 5*time.Minute)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		issued, err := service.Issue(ctx, "id_1")
		require.NoError(t, err)
		assert.False(t, seen[issued.Bearer])
		seen[issued.Bearer] = true
	}
}

func TestStepTokenServiceConsume_StoreFailure(t *testing.T) {
	store := &services.MockStepTokenStore{
		ConsumeFunc: func(ctx context.Context, tokenHash string, now time.Time) (*models.StepUpToken, error) {
			return nil, errors.New("connection refused")
		},
	}
	service := newStepTokenService(store, 5*time.Minute)

	_, err := service.Consume(context.Background(), "some-bearer")
	assert.ErrorIs(t, err, models.ErrInternalServer)
}
