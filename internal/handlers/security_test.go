package handlers_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/bastion/internal/handlers"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/services"
	"github.com/stretchr/testify/assert"
)

func TestSecurityStatus_Success(t *testing.T) {
	lockedUntil := time.Now().Add(15 * time.Minute)
	mock := &handlers.MockLoginService{
		SecurityStatusFunc: func(ctx context.Context, identityID string) (*services.SecurityStatus, error) {
			assert.Equal(t, "identity-123", identityID)
			return &services.SecurityStatus{
				LockState: models.LockState{
					FailedAttempts: 3,
					LockedUntil:    &lockedUntil,
					ViolationCount: 2,
				},
				RecentAttempts: []models.AttemptSummary{
					{IPAddress: "203.0.113.9", AttemptTime: time.Now(), Success: false},
				},
				ViolationCount: 2,
			}, nil
		},
	}

	handler := handlers.NewSecurityHandler(mock, nil)
	req := handlers.NewTestRequest(t, "GET", "/auth/security/status", nil)
	req = handlers.WithAuthContext(req, "identity-123", "user@example.com", "user")

	w := httptest.NewRecorder()
	handler.Status(w, req)

	var resp services.SecurityStatus
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, 3, resp.LockState.FailedAttempts)
	assert.NotNil(t, resp.LockState.LockedUntil)
	assert.Equal(t, 2, resp.ViolationCount)
	assert.Len(t, resp.RecentAttempts, 1)
}

func TestSecurityStatus_Unauthenticated(t *testing.T) {
	handler := handlers.NewSecurityHandler(&handlers.MockLoginService{}, nil)
	req := handlers.NewTestRequest(t, "GET", "/auth/security/status", nil)

	w := httptest.NewRecorder()
	handler.Status(w, req)

	handlers.AssertErrorResponse(t, w, 401, "unauthorized")
}

func TestRequestUnlock_AlwaysGenericResponse(t *testing.T) {
	// Known and unknown identifiers must produce identical responses
	for _, email := range []string{"known@example.com", "unknown@example.com"} {
		mock := &handlers.MockLoginService{
			RequestUnlockFunc: func(ctx context.Context, identifier, ip string) error {
				return nil
			},
		}

		handler := handlers.NewSecurityHandler(mock, nil)
		req := handlers.NewTestRequest(t, "POST", "/auth/security/request-unlock", handlers.UnlockRequest{
			Email: email,
		})

		w := httptest.NewRecorder()
		handler.RequestUnlock(w, req)

		var resp map[string]string
		handlers.AssertJSONResponse(t, w, 202, &resp)
		assert.Equal(t, "If the account exists, a notification has been sent.", resp["message"])
	}
}

func TestRequestUnlock_InvalidEmail(t *testing.T) {
	handler := handlers.NewSecurityHandler(&handlers.MockLoginService{}, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/security/request-unlock", handlers.UnlockRequest{
		Email: "not-an-email",
	})

	w := httptest.NewRecorder()
	handler.RequestUnlock(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestRequestUnlock_RateLimited(t *testing.T) {
	mock := &handlers.MockLoginService{
		RequestUnlockFunc: func(ctx context.Context, identifier, ip string) error {
			return &models.RateLimitedError{RetryAfter: 10 * time.Second}
		},
	}

	handler := handlers.NewSecurityHandler(mock, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/security/request-unlock", handlers.UnlockRequest{
		Email: "user@example.com",
	})

	w := httptest.NewRecorder()
	handler.RequestUnlock(w, req)

	handlers.AssertErrorResponse(t, w, 429, "rate_limited")
}
