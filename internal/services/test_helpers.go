package services

import (
	"context"
	"sync"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
)

// MockRateLimitStore implements RateLimitStore for testing
type MockRateLimitStore struct {
	IncrementFunc func(ctx context.Context, scope, key, class string, now time.Time, window time.Duration) (*models.RateLimitBucket, error)
}

func (m *MockRateLimitStore) Increment(ctx context.Context, scope, key, class string, now time.Time, window time.Duration) (*models.RateLimitBucket, error) {
	if m.IncrementFunc != nil {
		return m.IncrementFunc(ctx, scope, key, class, now, window)
	}
	return &models.RateLimitBucket{Scope: scope, Key: key, Class: class, WindowStart: now, Count: 1}, nil
}

// MemoryRateLimitStore is an in-memory fixed-window bucket store. It mirrors
// the SQL upsert semantics so window behavior can be tested without a database.
type MemoryRateLimitStore struct {
	mu      sync.Mutex
	buckets map[string]*models.RateLimitBucket
}

func NewMemoryRateLimitStore() *MemoryRateLimitStore {
	return &MemoryRateLimitStore{buckets: make(map[string]*models.RateLimitBucket)}
}

func (m *MemoryRateLimitStore) Increment(ctx context.Context, scope, key, class string, now time.Time, window time.Duration) (*models.RateLimitBucket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := scope + "|" + key + "|" + class
	bucket, ok := m.buckets[k]
	if !ok || now.Sub(bucket.WindowStart) >= window {
		bucket = &models.RateLimitBucket{Scope: scope, Key: key, Class: class, WindowStart: now, Count: 1}
		m.buckets[k] = bucket
	} else {
		bucket.Count++
	}
	copied := *bucket
	return &copied, nil
}

// MockLockoutStore implements LockoutStore for testing. Without an override
// it behaves as an in-memory store seeded via Identities.
type MockLockoutStore struct {
	mu                  sync.Mutex
	Identities          map[string]*models.Identity
	GetByIDFunc         func(ctx context.Context, id string) (*models.Identity, error)
	UpdateLockStateFunc func(ctx context.Context, id string, apply func(*models.Identity)) (*models.Identity, error)
}

func (m *MockLockoutStore) GetByID(ctx context.Context, id string) (*models.Identity, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.Identities[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *identity
	return &copied, nil
}

func (m *MockLockoutStore) UpdateLockState(ctx context.Context, id string, apply func(*models.Identity)) (*models.Identity, error) {
	if m.UpdateLockStateFunc != nil {
		return m.UpdateLockStateFunc(ctx, id, apply)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.Identities[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	apply(identity)
	copied := *identity
	return &copied, nil
}

// MockStepTokenStore implements StepTokenStore for testing
type MockStepTokenStore struct {
	CreateFunc    func(ctx context.Context, identityID, tokenHash string, expiresAt time.Time) (*models.StepUpToken, error)
	ConsumeFunc   func(ctx context.Context, tokenHash string, now time.Time) (*models.StepUpToken, error)
	GetByHashFunc func(ctx context.Context, tokenHash string) (*models.StepUpToken, error)
}

func (m *MockStepTokenStore) Create(ctx context.Context, identityID, tokenHash string, expiresAt time.Time) (*models.StepUpToken, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, identityID, tokenHash, expiresAt)
	}
	return &models.StepUpToken{ID: "token_123", IdentityID: identityID, TokenHash: tokenHash, ExpiresAt: expiresAt}, nil
}

func (m *MockStepTokenStore) Consume(ctx context.Context, tokenHash string, now time.Time) (*models.StepUpToken, error) {
	if m.ConsumeFunc != nil {
		return m.ConsumeFunc(ctx, tokenHash, now)
	}
	return nil, models.ErrNotFound
}

func (m *MockStepTokenStore) GetByHash(ctx context.Context, tokenHash string) (*models.StepUpToken, error) {
	if m.GetByHashFunc != nil {
		return m.GetByHashFunc(ctx, tokenHash)
	}
	return nil, models.ErrNotFound
}

// MemoryStepTokenStore is an in-memory single-use token store with the same
// atomic consume semantics as the SQL store.
type MemoryStepTokenStore struct {
	mu     sync.Mutex
	tokens map[string]*models.StepUpToken
}

func NewMemoryStepTokenStore() *MemoryStepTokenStore {
	return &MemoryStepTokenStore{tokens: make(map[string]*models.StepUpToken)}
}

func (m *MemoryStepTokenStore) Create(ctx context.Context, identityID, tokenHash string, expiresAt time.Time) (*models.StepUpToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token := &models.StepUpToken{
		ID:         "token_" + identityID,
		IdentityID: identityID,
		TokenHash:  tokenHash,
		IssuedAt:   time.Now(),
		ExpiresAt:  expiresAt,
	}
	m.tokens[tokenHash] = token
	copied := *token
	return &copied, nil
}

func (m *MemoryStepTokenStore) Consume(ctx context.Context, tokenHash string, now time.Time) (*models.StepUpToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.tokens[tokenHash]
	if !ok || token.ConsumedAt != nil {
		return nil, models.ErrNotFound
	}
	consumed := now
	token.ConsumedAt = &consumed
	copied := *token
	return &copied, nil
}

func (m *MemoryStepTokenStore) GetByHash(ctx context.Context, tokenHash string) (*models.StepUpToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.tokens[tokenHash]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *token
	return &copied, nil
}

// MockTwoFactorStore implements TwoFactorStore for testing
type MockTwoFactorStore struct {
	GetEnrollmentFunc        func(ctx context.Context, identityID string) (*models.TwoFactorEnrollment, error)
	AdvanceLastUsedStepFunc  func(ctx context.Context, identityID string, step int64) (bool, error)
	GetUnusedBackupCodesFunc func(ctx context.Context, identityID string) ([]models.BackupCode, error)
	MarkBackupCodeUsedFunc   func(ctx context.Context, codeID string, now time.Time) (bool, error)
}

func (m *MockTwoFactorStore) GetEnrollment(ctx context.Context, identityID string) (*models.TwoFactorEnrollment, error) {
	if m.GetEnrollmentFunc != nil {
		return m.GetEnrollmentFunc(ctx, identityID)
	}
	return nil, models.ErrNotFound
}

func (m *MockTwoFactorStore) AdvanceLastUsedStep(ctx context.Context, identityID string, step int64) (bool, error) {
	if m.AdvanceLastUsedStepFunc != nil {
		return m.AdvanceLastUsedStepFunc(ctx, identityID, step)
	}
	return true, nil
}

func (m *MockTwoFactorStore) GetUnusedBackupCodes(ctx context.Context, identityID string) ([]models.BackupCode, error) {
	if m.GetUnusedBackupCodesFunc != nil {
		return m.GetUnusedBackupCodesFunc(ctx, identityID)
	}
	return []models.BackupCode{}, nil
}

func (m *MockTwoFactorStore) MarkBackupCodeUsed(ctx context.Context, codeID string, now time.Time) (bool, error) {
	if m.MarkBackupCodeUsedFunc != nil {
		return m.MarkBackupCodeUsedFunc(ctx, codeID, now)
	}
	return true, nil
}

// MockEnrollmentStore implements EnrollmentStore for testing
type MockEnrollmentStore struct {
	CreateEnrollmentFunc       func(ctx context.Context, enrollment *models.TwoFactorEnrollment) error
	GetEnrollmentFunc          func(ctx context.Context, identityID string) (*models.TwoFactorEnrollment, error)
	MarkEnrollmentVerifiedFunc func(ctx context.Context, id string) error
	DeleteEnrollmentFunc       func(ctx context.Context, identityID string) error
	ReplaceBackupCodesFunc     func(ctx context.Context, identityID string, codeHashes []string) error
	CountUnusedBackupCodesFunc func(ctx context.Context, identityID string) (int, error)
}

func (m *MockEnrollmentStore) CreateEnrollment(ctx context.Context, enrollment *models.TwoFactorEnrollment) error {
	if m.CreateEnrollmentFunc != nil {
		return m.CreateEnrollmentFunc(ctx, enrollment)
	}
	enrollment.ID = "enrollment_" + enrollment.IdentityID
	return nil
}

func (m *MockEnrollmentStore) GetEnrollment(ctx context.Context, identityID string) (*models.TwoFactorEnrollment, error) {
	if m.GetEnrollmentFunc != nil {
		return m.GetEnrollmentFunc(ctx, identityID)
	}
	return nil, models.ErrNotFound
}

func (m *MockEnrollmentStore) MarkEnrollmentVerified(ctx context.Context, id string) error {
	if m.MarkEnrollmentVerifiedFunc != nil {
		return m.MarkEnrollmentVerifiedFunc(ctx, id)
	}
	return nil
}

func (m *MockEnrollmentStore) DeleteEnrollment(ctx context.Context, identityID string) error {
	if m.DeleteEnrollmentFunc != nil {
		return m.DeleteEnrollmentFunc(ctx, identityID)
	}
	return nil
}

func (m *MockEnrollmentStore) ReplaceBackupCodes(ctx context.Context, identityID string, codeHashes []string) error {
	if m.ReplaceBackupCodesFunc != nil {
		return m.ReplaceBackupCodesFunc(ctx, identityID, codeHashes)
	}
	return nil
}

func (m *MockEnrollmentStore) CountUnusedBackupCodes(ctx context.Context, identityID string) (int, error) {
	if m.CountUnusedBackupCodesFunc != nil {
		return m.CountUnusedBackupCodesFunc(ctx, identityID)
	}
	return 0, nil
}

// MockIdentityStore implements IdentityStore and EnrollmentIdentityStore for testing
type MockIdentityStore struct {
	GetByEmailFunc          func(ctx context.Context, email string) (*models.Identity, error)
	GetByIDFunc             func(ctx context.Context, id string) (*models.Identity, error)
	SetTwoFactorEnabledFunc func(ctx context.Context, id string, enabled bool) error
}

func (m *MockIdentityStore) GetByEmail(ctx context.Context, email string) (*models.Identity, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockIdentityStore) GetByID(ctx context.Context, id string) (*models.Identity, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockIdentityStore) SetTwoFactorEnabled(ctx context.Context, id string, enabled bool) error {
	if m.SetTwoFactorEnabledFunc != nil {
		return m.SetTwoFactorEnabledFunc(ctx, id, enabled)
	}
	return nil
}

// MockAttemptStore implements AttemptStore for testing. Recorded attempts
// accumulate in Attempts for assertions.
type MockAttemptStore struct {
	mu                        sync.Mutex
	Attempts                  []*models.LoginAttempt
	RecordAttemptFunc         func(ctx context.Context, attempt *models.LoginAttempt) error
	GetRecentByIdentifierFunc func(ctx context.Context, identifier string, limit int) ([]models.AttemptSummary, error)
}

func (m *MockAttemptStore) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	if m.RecordAttemptFunc != nil {
		return m.RecordAttemptFunc(ctx, attempt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Attempts = append(m.Attempts, attempt)
	return nil
}

func (m *MockAttemptStore) GetRecentByIdentifier(ctx context.Context, identifier string, limit int) ([]models.AttemptSummary, error) {
	if m.GetRecentByIdentifierFunc != nil {
		return m.GetRecentByIdentifierFunc(ctx, identifier, limit)
	}
	return []models.AttemptSummary{}, nil
}

// MockRateLimiter implements RateLimiter for testing. Admits everything
// unless overridden.
type MockRateLimiter struct {
	AdmitFunc func(ctx context.Context, class string, scopes ...Scope) (Decision, error)
}

func (m *MockRateLimiter) Admit(ctx context.Context, class string, scopes ...Scope) (Decision, error) {
	if m.AdmitFunc != nil {
		return m.AdmitFunc(ctx, class, scopes...)
	}
	return Decision{Allowed: true}, nil
}

// MockLockoutEngine implements LockoutEngine for testing
type MockLockoutEngine struct {
	CheckLockedFunc   func(identity *models.Identity) error
	RecordFailureFunc func(ctx context.Context, identityID string, kind FailureKind) (*models.Identity, bool, error)
	RecordSuccessFunc func(ctx context.Context, identityID string) error
	AdminUnlockFunc   func(ctx context.Context, identityID string) error
}

func (m *MockLockoutEngine) CheckLocked(identity *models.Identity) error {
	if m.CheckLockedFunc != nil {
		return m.CheckLockedFunc(identity)
	}
	return nil
}

func (m *MockLockoutEngine) RecordFailure(ctx context.Context, identityID string, kind FailureKind) (*models.Identity, bool, error) {
	if m.RecordFailureFunc != nil {
		return m.RecordFailureFunc(ctx, identityID, kind)
	}
	return &models.Identity{ID: identityID}, false, nil
}

func (m *MockLockoutEngine) RecordSuccess(ctx context.Context, identityID string) error {
	if m.RecordSuccessFunc != nil {
		return m.RecordSuccessFunc(ctx, identityID)
	}
	return nil
}

func (m *MockLockoutEngine) AdminUnlock(ctx context.Context, identityID string) error {
	if m.AdminUnlockFunc != nil {
		return m.AdminUnlockFunc(ctx, identityID)
	}
	return nil
}

// MockStepTokenIssuer implements StepTokenIssuer for testing
type MockStepTokenIssuer struct {
	IssueFunc   func(ctx context.Context, identityID string) (*IssuedStepToken, error)
	ConsumeFunc func(ctx context.Context, bearer string) (string, error)
}

func (m *MockStepTokenIssuer) Issue(ctx context.Context, identityID string) (*IssuedStepToken, error) {
	if m.IssueFunc != nil {
		return m.IssueFunc(ctx, identityID)
	}
	return &IssuedStepToken{Bearer: "step_token_" + identityID, ExpiresAt: time.Now().Add(5 * time.Minute)}, nil
}

func (m *MockStepTokenIssuer) Consume(ctx context.Context, bearer string) (string, error) {
	if m.ConsumeFunc != nil {
		return m.ConsumeFunc(ctx, bearer)
	}
	return "", models.ErrTokenInvalid
}

// MockTwoFactorVerifier implements TwoFactorVerifier for testing
type MockTwoFactorVerifier struct {
	VerifyFunc func(ctx context.Context, identityID, code string) error
}

func (m *MockTwoFactorVerifier) Verify(ctx context.Context, identityID, code string) error {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, identityID, code)
	}
	return nil
}

// MockSecurityNotifier implements SecurityNotifier for testing. Sent
// notifications accumulate for assertions.
type MockSecurityNotifier struct {
	mu                          sync.Mutex
	LockoutAlerts               []string
	UnlockNotices               []string
	SendLockoutAlertFunc        func(ctx context.Context, email string, lockedUntil time.Time) error
	SendUnlockRequestNoticeFunc func(ctx context.Context, email string) error
}

func (m *MockSecurityNotifier) SendLockoutAlert(ctx context.Context, email string, lockedUntil time.Time) error {
	if m.SendLockoutAlertFunc != nil {
		return m.SendLockoutAlertFunc(ctx, email, lockedUntil)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LockoutAlerts = append(m.LockoutAlerts, email)
	return nil
}

func (m *MockSecurityNotifier) SendUnlockRequestNotice(ctx context.Context, email string) error {
	if m.SendUnlockRequestNoticeFunc != nil {
		return m.SendUnlockRequestNoticeFunc(ctx, email)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UnlockNotices = append(m.UnlockNotices, email)
	return nil
}

// NewTestIdentity creates an active identity for tests
func NewTestIdentity(id, email, passwordHash string) *models.Identity {
	now := time.Now()
	return &models.Identity{
		ID:           id,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         "user",
		Status:       "active",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// NewTestIdentityWithTwoFactor creates an identity with 2FA enabled
func NewTestIdentityWithTwoFactor(id, email, passwordHash string) *models.Identity {
	identity := NewTestIdentity(id, email, passwordHash)
	identity.TwoFactorEnabled = true
	return identity
}

// NewTestIdentityLocked creates an identity locked for the given duration
func NewTestIdentityLocked(id, email, passwordHash string, d time.Duration) *models.Identity {
	identity := NewTestIdentity(id, email, passwordHash)
	lockedUntil := time.Now().Add(d)
	identity.LockedUntil = &lockedUntil
	identity.ViolationCount = 1
	return identity
}

// NewTestEnrollment creates a verified enrollment
func NewTestEnrollment(identityID string, encrypted, nonce []byte) *models.TwoFactorEnrollment {
	now := time.Now()
	return &models.TwoFactorEnrollment{
		ID:              "enrollment_" + identityID,
		IdentityID:      identityID,
		SecretEncrypted: encrypted,
		SecretNonce:     nonce,
		CreatedAt:       now,
		VerifiedAt:      &now,
	}
}
