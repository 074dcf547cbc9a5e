package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
)

// StepTokenStore defines the persistence operations for step-up tokens.
// Consume must be a single atomic check-and-set.
type StepTokenStore interface {
	Create(ctx context.Context, identityID, tokenHash string, expiresAt time.Time) (*models.StepUpToken, error)
	Consume(ctx context.Context, tokenHash string, now time.Time) (*models.StepUpToken, error)
	GetByHash(ctx context.Context, tokenHash string) (*models.StepUpToken, error)
}

// IssuedStepToken carries the one-time bearer value back to the client.
type IssuedStepToken struct {
	Bearer    string
	ExpiresAt time.Time
}

// StepTokenService issues and consumes the short-lived single-use tokens
// that bridge "password verified" and "second factor verified". Only the
// SHA-256 hash of a bearer value is ever persisted.
type StepTokenService struct {
	store    StepTokenStore
	tokenTTL time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewStepTokenService creates a new StepTokenService
func NewStepTokenService(store StepTokenStore, tokenTTL time.Duration, logger *slog.Logger) *StepTokenService {
	return &StepTokenService{
		store:    store,
		tokenTTL: tokenTTL,
		logger:   logger,
		now:      time.Now,
	}
}

// Issue creates a step-up token for an identity whose password just verified
func (s *StepTokenService) Issue(ctx context.Context, identityID string) (*IssuedStepToken, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		s.logger.Error("failed to generate step-up token", slog.Any("error", err))
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	bearer := base64.URLEncoding.EncodeToString(tokenBytes)
	expiresAt := s.now().Add(s.tokenTTL)

	if _, err := s.store.Create(ctx, identityID, hashBearer(bearer), expiresAt); err != nil {
		s.logger.Error("failed to store step-up token",
			slog.String("identity_id", identityID),
			slog.Any("error", err))
		return nil, fmt.Errorf("failed to store token: %w", err)
	}

	s.logger.Info("step-up token issued",
		slog.String("identity_id", identityID),
		slog.Time("expires_at", expiresAt))

	return &IssuedStepToken{Bearer: bearer, ExpiresAt: expiresAt}, nil
}

// Consume resolves a bearer value to its identity and burns the token.
// Consumption is terminal: a consumed token cannot be retried with another
// code, so a password-verified session is bounded to one second-factor guess.
func (s *StepTokenService) Consume(ctx context.Context, bearer string) (string, error) {
	if bearer == "" {
		return "", models.ErrTokenInvalid
	}

	now := s.now()
	token, err := s.store.Consume(ctx, hashBearer(bearer), now)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("failed to consume step-up token", slog.Any("error", err))
			return "", models.ErrInternalServer
		}

		// No unconsumed row matched: distinguish an unknown token from one
		// a concurrent (or earlier) caller already burned.
		existing, lookupErr := s.store.GetByHash(ctx, hashBearer(bearer))
		if lookupErr != nil {
			if errors.Is(lookupErr, models.ErrNotFound) {
				return "", models.ErrTokenInvalid
			}
			s.logger.Error("failed to look up step-up token", slog.Any("error", lookupErr))
			return "", models.ErrInternalServer
		}
		if existing.IsConsumed() {
			s.logger.Warn("step-up token replay rejected",
				slog.String("identity_id", existing.IdentityID))
			return "", models.ErrTokenAlreadyUsed
		}
		return "", models.ErrTokenInvalid
	}

	if token.IsExpired(now) {
		s.logger.Info("expired step-up token rejected",
			slog.String("identity_id", token.IdentityID))
		return "", models.ErrTokenExpired
	}

	return token.IdentityID, nil
}

// hashBearer returns the hex SHA-256 of a bearer value
func hashBearer(bearer string) string {
	hash := sha256.Sum256([]byte(bearer))
	return hex.EncodeToString(hash[:])
}
