package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/bastion/internal/config"
	"github.com/BradenHooton/bastion/internal/models"
)

// RateLimitStore defines the bucket operations required by the rate limiter.
// Increment must be atomic with respect to concurrent calls for the same key.
type RateLimitStore interface {
	Increment(ctx context.Context, scope, key, class string, now time.Time, window time.Duration) (*models.RateLimitBucket, error)
}

// Scope identifies one bucket dimension for a request, e.g. the client IP or
// the submitted identifier.
type Scope struct {
	Kind string
	Key  string
}

// IPScope builds a per-IP scope
func IPScope(ip string) Scope {
	return Scope{Kind: models.ScopeIP, Key: ip}
}

// IdentifierScope builds a per-identifier scope
func IdentifierScope(identifier string) Scope {
	return Scope{Kind: models.ScopeIdentifier, Key: identifier}
}

// Decision is the outcome of an admission check. RetryAfter is the time until
// the earliest rejecting bucket resets, without revealing which bucket tripped.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// RateLimitService gates requests with fixed-window counters per
// (scope, key, endpoint class). Quota is charged on attempt, not on success.
type RateLimitService struct {
	store  RateLimitStore
	rates  map[string]config.Rate
	logger *slog.Logger
	now    func() time.Time
}

// NewRateLimitService creates a new RateLimitService
func NewRateLimitService(store RateLimitStore, cfg config.RateLimitConfig, logger *slog.Logger) *RateLimitService {
	return &RateLimitService{
		store: store,
		rates: map[string]config.Rate{
			models.ClassLogin:         cfg.Login,
			models.ClassStepUpVerify:  cfg.StepUpVerify,
			models.ClassPasswordReset: cfg.PasswordReset,
			models.ClassUnlockRequest: cfg.UnlockRequest,
			models.ClassGlobal:        cfg.Global,
		},
		logger: logger,
		now:    time.Now,
	}
}

// Admit checks all applicable buckets for an endpoint class. The request is
// admitted only if every bucket admits it. Store failures fail closed: the
// request is denied rather than bypassing the limiter.
func (s *RateLimitService) Admit(ctx context.Context, class string, scopes ...Scope) (Decision, error) {
	rate, ok := s.rates[class]
	if !ok {
		return Decision{}, fmt.Errorf("unknown endpoint class %q", class)
	}

	now := s.now()
	allowed := true
	var retryAfter time.Duration

	for _, scope := range scopes {
		bucket, err := s.store.Increment(ctx, scope.Kind, scope.Key, class, now, rate.Window)
		if err != nil {
			s.logger.Error("rate limit store failure",
				slog.String("class", class),
				slog.String("scope", scope.Kind),
				slog.Any("error", err))
			return Decision{}, fmt.Errorf("rate limit check failed: %w", err)
		}

		if bucket.Count > rate.Limit {
			allowed = false
			reset := bucket.WindowStart.Add(rate.Window).Sub(now)
			if reset < 0 {
				reset = 0
			}
			if retryAfter == 0 || reset < retryAfter {
				retryAfter = reset
			}
		}
	}

	if !allowed {
		s.logger.Warn("request rate limited",
			slog.String("class", class),
			slog.Duration("retry_after", retryAfter))
		return Decision{Allowed: false, RetryAfter: retryAfter}, nil
	}

	return Decision{Allowed: true}, nil
}
