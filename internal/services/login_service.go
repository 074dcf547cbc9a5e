package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
	pkgauth "github.com/BradenHooton/bastion/pkg/auth"
	pkglogger "github.com/BradenHooton/bastion/pkg/logger"
)

// attemptRetention is how long audit records are kept before cleanup.
const attemptRetention = 30 * 24 * time.Hour

// recentAttemptLimit bounds the attempt list in the security status response.
const recentAttemptLimit = 10

// IdentityStore defines the credential lookups needed by the orchestrator
type IdentityStore interface {
	GetByEmail(ctx context.Context, email string) (*models.Identity, error)
	GetByID(ctx context.Context, id string) (*models.Identity, error)
}

// AttemptStore records the append-only audit trail
type AttemptStore interface {
	RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error
	GetRecentByIdentifier(ctx context.Context, identifier string, limit int) ([]models.AttemptSummary, error)
}

// RateLimiter gates requests before they reach business logic
type RateLimiter interface {
	Admit(ctx context.Context, class string, scopes ...Scope) (Decision, error)
}

// LockoutEngine tracks failures and enforces progressive lockout
type LockoutEngine interface {
	CheckLocked(identity *models.Identity) error
	RecordFailure(ctx context.Context, identityID string, kind FailureKind) (*models.Identity, bool, error)
	RecordSuccess(ctx context.Context, identityID string) error
	AdminUnlock(ctx context.Context, identityID string) error
}

// StepTokenIssuer issues and consumes single-use step-up tokens
type StepTokenIssuer interface {
	Issue(ctx context.Context, identityID string) (*IssuedStepToken, error)
	Consume(ctx context.Context, bearer string) (string, error)
}

// TwoFactorVerifier verifies a TOTP or backup code
type TwoFactorVerifier interface {
	Verify(ctx context.Context, identityID, code string) error
}

// SecurityNotifier delivers outbound security notifications. Calls are made
// after the relevant state transition commits, never as part of it.
type SecurityNotifier interface {
	SendLockoutAlert(ctx context.Context, email string, lockedUntil time.Time) error
	SendUnlockRequestNotice(ctx context.Context, email string) error
}

// LoginResult is the outcome of a successful login step
type LoginResult struct {
	AccessToken       string `json:"access_token,omitempty"`
	TokenType         string `json:"token_type,omitempty"`
	ExpiresIn         int    `json:"expires_in,omitempty"`
	RequiresTwoFactor bool   `json:"requires_two_factor,omitempty"`
	StepUpToken       string `json:"step_up_token,omitempty"`
	Message           string `json:"message,omitempty"`
}

// SecurityStatus is the authenticated view of an identity's protection state
type SecurityStatus struct {
	LockState      models.LockState        `json:"lock_state"`
	RecentAttempts []models.AttemptSummary `json:"recent_attempts"`
	ViolationCount int                     `json:"violation_count"`
}

// LoginService composes the rate limiter, lockout engine, step-up token
// issuer and second-factor verifier into the full login protocol.
type LoginService struct {
	identities  IdentityStore
	attempts    AttemptStore
	rateLimiter RateLimiter
	lockout     LockoutEngine
	stepTokens  StepTokenIssuer
	twoFactor   TwoFactorVerifier
	notifier    SecurityNotifier
	tm          *auth.TokenManager
	timingDelay *auth.TimingDelay
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	now         func() time.Time
}

// NewLoginService creates a new LoginService
func NewLoginService(
	identities IdentityStore,
	attempts AttemptStore,
	rateLimiter RateLimiter,
	lockout LockoutEngine,
	stepTokens StepTokenIssuer,
	twoFactor TwoFactorVerifier,
	notifier SecurityNotifier,
	tm *auth.TokenManager,
	timingDelay *auth.TimingDelay,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *LoginService {
	return &LoginService{
		identities:  identities,
		attempts:    attempts,
		rateLimiter: rateLimiter,
		lockout:     lockout,
		stepTokens:  stepTokens,
		twoFactor:   twoFactor,
		notifier:    notifier,
		tm:          tm,
		timingDelay: timingDelay,
		logger:      logger,
		auditLogger: auditLogger,
		now:         time.Now,
	}
}

// Login runs step 1 of the protocol: rate limit, lockout check, password
// verification. With 2FA disabled it finalizes the session; with 2FA enabled
// it returns a step-up challenge without finalizing anything.
func (s *LoginService) Login(ctx context.Context, identifier, password, ip, userAgent string) (*LoginResult, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if identifier == "" || password == "" {
		return nil, models.ErrInvalidCredentials
	}

	decision, err := s.rateLimiter.Admit(ctx, models.ClassLogin,
		IPScope(ip), IdentifierScope(identifier))
	if err != nil {
		// Fail closed: a broken limiter denies the login rather than
		// bypassing brute-force protection.
		return nil, models.ErrInternalServer
	}
	if !decision.Allowed {
		s.recordAttempt(ctx, "login", identifier, "", ip, userAgent, false, "rate_limited", false)
		return nil, &models.RateLimitedError{RetryAfter: decision.RetryAfter}
	}

	identity, err := s.identities.GetByEmail(ctx, identifier)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkgauth.BurnPasswordCompare(password)
			s.recordAttempt(ctx, "login", identifier, "", ip, userAgent, false, "invalid_credentials", false)
			s.timingDelay.Wait(false)
			return nil, models.ErrInvalidCredentials
		}
		s.logger.Error("failed to look up identity", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if identity.Status != "active" {
		s.recordAttempt(ctx, "login", identifier, identity.ID, ip, userAgent, false, "account_disabled", false)
		return nil, models.ErrInvalidCredentials
	}

	// A locked account rejects even a correct password; the attempt is
	// recorded but never touches the lock itself.
	if lockErr := s.lockout.CheckLocked(identity); lockErr != nil {
		s.recordAttempt(ctx, "login", identifier, identity.ID, ip, userAgent, false, "account_locked", false)
		return nil, lockErr
	}

	if err := pkgauth.ComparePassword(identity.PasswordHash, password); err != nil {
		updated, lockTriggered, recErr := s.lockout.RecordFailure(ctx, identity.ID, FailurePassword)
		if recErr != nil {
			s.logger.Error("failed to record login failure", slog.Any("error", recErr))
			return nil, models.ErrInternalServer
		}

		s.recordAttempt(ctx, "login", identifier, identity.ID, ip, userAgent, false, "invalid_credentials", lockTriggered)

		if lockTriggered {
			s.notifyLockout(ctx, identity.Email, updated)
		}

		s.timingDelay.Wait(false)
		return nil, models.ErrInvalidCredentials
	}

	if identity.TwoFactorEnabled {
		// Provisional success only: no session, no lockout reset until the
		// second factor verifies.
		issued, err := s.stepTokens.Issue(ctx, identity.ID)
		if err != nil {
			return nil, models.ErrInternalServer
		}

		s.recordAttempt(ctx, "login_step_up", identifier, identity.ID, ip, userAgent, true, "", false)
		s.logger.Info("step-up challenge issued", slog.String("identity_id", identity.ID))

		return &LoginResult{
			RequiresTwoFactor: true,
			StepUpToken:       issued.Bearer,
			ExpiresIn:         int(time.Until(issued.ExpiresAt).Seconds()),
			Message:           "Two-factor authentication required",
		}, nil
	}

	if err := s.lockout.RecordSuccess(ctx, identity.ID); err != nil {
		s.logger.Error("failed to record login success", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.recordAttempt(ctx, "login", identifier, identity.ID, ip, userAgent, true, "", false)

	return s.finalizeSession(identity)
}

// CompleteTwoFactor runs step 2: consume the step-up token, verify the code,
// finalize the session. The token is burned before the code check, so a
// failed code forces a restart from step 1.
func (s *LoginService) CompleteTwoFactor(ctx context.Context, bearer, code, ip, userAgent string) (*LoginResult, error) {
	decision, err := s.rateLimiter.Admit(ctx, models.ClassStepUpVerify, IPScope(ip))
	if err != nil {
		return nil, models.ErrInternalServer
	}
	if !decision.Allowed {
		s.recordAttempt(ctx, "step_up", "", "", ip, userAgent, false, "rate_limited", false)
		return nil, &models.RateLimitedError{RetryAfter: decision.RetryAfter}
	}

	identityID, err := s.stepTokens.Consume(ctx, bearer)
	if err != nil {
		s.recordAttempt(ctx, "step_up", "", "", ip, userAgent, false, "token_rejected", false)
		return nil, err
	}

	identity, err := s.identities.GetByID(ctx, identityID)
	if err != nil {
		s.logger.Error("failed to load identity for step-up",
			slog.String("identity_id", identityID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if identity.Status != "active" {
		s.recordAttempt(ctx, "step_up", identity.Email, identity.ID, ip, userAgent, false, "account_disabled", false)
		return nil, models.ErrInvalidCredentials
	}

	if lockErr := s.lockout.CheckLocked(identity); lockErr != nil {
		s.recordAttempt(ctx, "step_up", identity.Email, identity.ID, ip, userAgent, false, "account_locked", false)
		return nil, lockErr
	}

	if err := s.twoFactor.Verify(ctx, identity.ID, code); err != nil {
		if errors.Is(err, models.ErrInternalServer) {
			return nil, err
		}

		updated, lockTriggered, recErr := s.lockout.RecordFailure(ctx, identity.ID, FailureTwoFactor)
		if recErr != nil {
			s.logger.Error("failed to record step-up failure", slog.Any("error", recErr))
			return nil, models.ErrInternalServer
		}

		s.recordAttempt(ctx, "step_up", identity.Email, identity.ID, ip, userAgent, false, "invalid_code", lockTriggered)

		if lockTriggered {
			s.notifyLockout(ctx, identity.Email, updated)
		}

		s.timingDelay.Wait(false)
		return nil, models.ErrTwoFactorInvalid
	}

	if err := s.lockout.RecordSuccess(ctx, identity.ID); err != nil {
		s.logger.Error("failed to record step-up success", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.recordAttempt(ctx, "step_up", identity.Email, identity.ID, ip, userAgent, true, "", false)

	result, err := s.finalizeSession(identity)
	if err != nil {
		return nil, err
	}
	result.Message = "Two-factor authentication successful"
	return result, nil
}

// SecurityStatus returns the lockout view and recent attempts for an
// authenticated identity
func (s *LoginService) SecurityStatus(ctx context.Context, identityID string) (*SecurityStatus, error) {
	identity, err := s.identities.GetByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthorized
		}
		return nil, models.ErrInternalServer
	}

	recent, err := s.attempts.GetRecentByIdentifier(ctx, identity.Email, recentAttemptLimit)
	if err != nil {
		s.logger.Error("failed to load recent attempts", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return &SecurityStatus{
		LockState:      identity.LockState(),
		RecentAttempts: recent,
		ViolationCount: identity.ViolationCount,
	}, nil
}

// RequestUnlock handles the self-service unlock request. It never unlocks
// anything and never discloses whether the identifier exists; if the account
// exists a notification is sent out of band.
func (s *LoginService) RequestUnlock(ctx context.Context, identifier, ip string) error {
	identifier = strings.ToLower(strings.TrimSpace(identifier))

	decision, err := s.rateLimiter.Admit(ctx, models.ClassUnlockRequest,
		IPScope(ip), IdentifierScope(identifier))
	if err != nil {
		return models.ErrInternalServer
	}
	if !decision.Allowed {
		return &models.RateLimitedError{RetryAfter: decision.RetryAfter}
	}

	identity, err := s.identities.GetByEmail(ctx, identifier)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		s.logger.Error("failed to look up identity for unlock request", slog.Any("error", err))
		return nil
	}

	if err := s.notifier.SendUnlockRequestNotice(ctx, identity.Email); err != nil {
		s.logger.Error("failed to send unlock request notice",
			slog.String("identity_id", identity.ID),
			slog.Any("error", err))
	}

	return nil
}

// AdminUnlock forces an identity back to active
func (s *LoginService) AdminUnlock(ctx context.Context, identityID string) error {
	return s.lockout.AdminUnlock(ctx, identityID)
}

// finalizeSession issues the session token after all factors have passed
func (s *LoginService) finalizeSession(identity *models.Identity) (*LoginResult, error) {
	accessToken, err := s.tm.GenerateAccessToken(identity.ID, identity.Email, identity.Role)
	if err != nil {
		s.logger.Error("failed to generate access token",
			slog.String("identity_id", identity.ID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("session finalized", slog.String("identity_id", identity.ID))

	return &LoginResult{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.tm.AccessTokenExpiry().Seconds()),
	}, nil
}

// recordAttempt dual-writes the attempt to slog and the append-only trail.
// The slog half always emits; a failed trail write is logged but does not
// change the outcome already decided for the request.
func (s *LoginService) recordAttempt(ctx context.Context, eventType, identifier, identityID, ip, userAgent string, success bool, failureReason string, lockoutTriggered bool) {
	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:        eventType,
		IdentityID:       identityID,
		Identifier:       identifier,
		IPAddress:        ip,
		UserAgent:        userAgent,
		Success:          success,
		FailureReason:    failureReason,
		LockoutTriggered: lockoutTriggered,
	})

	var reason *string
	if failureReason != "" {
		reason = &failureReason
	}

	attempt := &models.LoginAttempt{
		Identifier:       identifier,
		IPAddress:        ip,
		UserAgent:        userAgent,
		Success:          success,
		FailureReason:    reason,
		LockoutTriggered: lockoutTriggered,
		ExpiresAt:        s.now().Add(attemptRetention),
	}

	if err := s.attempts.RecordAttempt(ctx, attempt); err != nil {
		s.logger.Error("failed to persist login attempt", slog.Any("error", err))
	}
}

// notifyLockout sends the lockout alert after the transition has committed
func (s *LoginService) notifyLockout(ctx context.Context, email string, identity *models.Identity) {
	if identity.LockedUntil == nil {
		return
	}
	if err := s.notifier.SendLockoutAlert(ctx, email, *identity.LockedUntil); err != nil {
		s.logger.Error("failed to send lockout alert", slog.Any("error", err))
	}
}
