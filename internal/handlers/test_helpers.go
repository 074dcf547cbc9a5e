package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/services"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext adds session claims to the request context for testing
// authenticated endpoints
func WithAuthContext(req *http.Request, identityID, email, role string) *http.Request {
	claims := &models.SessionClaims{
		IdentityID: identityID,
		Email:      email,
		Role:       role,
	}
	return req.WithContext(auth.WithClaims(req.Context(), claims))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockLoginService implements LoginServiceInterface for testing
type MockLoginService struct {
	LoginFunc             func(ctx context.Context, identifier, password, ip, userAgent string) (*services.LoginResult, error)
	CompleteTwoFactorFunc func(ctx context.Context, bearer, code, ip, userAgent string) (*services.LoginResult, error)
	SecurityStatusFunc    func(ctx context.Context, identityID string) (*services.SecurityStatus, error)
	RequestUnlockFunc     func(ctx context.Context, identifier, ip string) error
	AdminUnlockFunc       func(ctx context.Context, identityID string) error
}

func (m *MockLoginService) Login(ctx context.Context, identifier, password, ip, userAgent string) (*services.LoginResult, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrInvalidCredentials
	}
	return m.LoginFunc(ctx, identifier, password, ip, userAgent)
}

func (m *MockLoginService) CompleteTwoFactor(ctx context.Context, bearer, code, ip, userAgent string) (*services.LoginResult, error) {
	if m.CompleteTwoFactorFunc == nil {
		return nil, models.ErrTokenInvalid
	}
	return m.CompleteTwoFactorFunc(ctx, bearer, code, ip, userAgent)
}

func (m *MockLoginService) SecurityStatus(ctx context.Context, identityID string) (*services.SecurityStatus, error) {
	if m.SecurityStatusFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.SecurityStatusFunc(ctx, identityID)
}

func (m *MockLoginService) RequestUnlock(ctx context.Context, identifier, ip string) error {
	if m.RequestUnlockFunc == nil {
		return nil
	}
	return m.RequestUnlockFunc(ctx, identifier, ip)
}

func (m *MockLoginService) AdminUnlock(ctx context.Context, identityID string) error {
	if m.AdminUnlockFunc == nil {
		return nil
	}
	return m.AdminUnlockFunc(ctx, identityID)
}

// MockEnrollmentService implements EnrollmentServiceInterface for testing
type MockEnrollmentService struct {
	InitiateSetupFunc         func(ctx context.Context, identityID string) (*services.SetupResult, error)
	VerifySetupFunc           func(ctx context.Context, identityID, code string) error
	DisableFunc               func(ctx context.Context, identityID, password string) error
	RegenerateBackupCodesFunc func(ctx context.Context, identityID string) ([]string, error)
}

func (m *MockEnrollmentService) InitiateSetup(ctx context.Context, identityID string) (*services.SetupResult, error) {
	if m.InitiateSetupFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.InitiateSetupFunc(ctx, identityID)
}

func (m *MockEnrollmentService) VerifySetup(ctx context.Context, identityID, code string) error {
	if m.VerifySetupFunc == nil {
		return models.ErrTwoFactorInvalid
	}
	return m.VerifySetupFunc(ctx, identityID, code)
}

func (m *MockEnrollmentService) Disable(ctx context.Context, identityID, password string) error {
	if m.DisableFunc == nil {
		return models.ErrInvalidCredentials
	}
	return m.DisableFunc(ctx, identityID, password)
}

func (m *MockEnrollmentService) RegenerateBackupCodes(ctx context.Context, identityID string) ([]string, error) {
	if m.RegenerateBackupCodesFunc == nil {
		return nil, models.ErrTwoFactorNotEnrolled
	}
	return m.RegenerateBackupCodesFunc(ctx, identityID)
}
