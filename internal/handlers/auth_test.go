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

func TestLogin_Success(t *testing.T) {
	mock := &handlers.MockLoginService{
		LoginFunc: func(ctx context.Context, identifier, password, ip, userAgent string) (*services.LoginResult, error) {
			return &services.LoginResult{
				AccessToken: "access_token_123",
				TokenType:   "Bearer",
				ExpiresIn:   900,
			}, nil
		},
	}

	handler := handlers.NewAuthHandler(mock, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Email:    "user@example.com",
		Password: "password123",
	})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	var resp services.LoginResult
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, "access_token_123", resp.AccessToken)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.False(t, resp.RequiresTwoFactor)
}

func TestLogin_StepUpChallenge(t *testing.T) {
	mock := &handlers.MockLoginService{
		LoginFunc: func(ctx context.Context, identifier, password, ip, userAgent string) (*services.LoginResult, error) {
			return &services.LoginResult{
				RequiresTwoFactor: true,
				StepUpToken:       "step_token_abc",
				ExpiresIn:         300,
			}, nil
		},
	}

	handler := handlers.NewAuthHandler(mock, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Email:    "user@example.com",
		Password: "password123",
	})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	var resp services.LoginResult
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.True(t, resp.RequiresTwoFactor)
	assert.Equal(t, "step_token_abc", resp.StepUpToken)
	assert.Empty(t, resp.AccessToken)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	// Unknown identifier, wrong password, and disabled account all map to
	// the same response
	for _, serviceErr := range []error{
		models.ErrInvalidCredentials,
		models.ErrAccountDisabled,
		models.ErrTwoFactorNotEnrolled,
	} {
		mock := &handlers.MockLoginService{
			LoginFunc: func(ctx context.Context, identifier, password, ip, userAgent string) (*services.LoginResult, error) {
				return nil, serviceErr
			},
		}

		handler := handlers.NewAuthHandler(mock, nil)
		req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
			Email:    "user@example.com",
			Password: "wrongpassword",
		})

		w := httptest.NewRecorder()
		handler.Login(w, req)

		handlers.AssertErrorResponse(t, w, 401, "unauthorized")
	}
}

func TestLogin_AccountLocked(t *testing.T) {
	lockedUntil := time.Now().Add(30 * time.Minute)
	mock := &handlers.MockLoginService{
		LoginFunc: func(ctx context.Context, identifier, password, ip, userAgent string) (*services.LoginResult, error) {
			return nil, &models.AccountLockedError{LockedUntil: lockedUntil}
		},
	}

	handler := handlers.NewAuthHandler(mock, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Email:    "user@example.com",
		Password: "password123",
	})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	handlers.AssertErrorResponse(t, w, 423, "account_locked")
}

func TestLogin_RateLimited(t *testing.T) {
	mock := &handlers.MockLoginService{
		LoginFunc: func(ctx context.Context, identifier, password, ip, userAgent string) (*services.LoginResult, error) {
			return nil, &models.RateLimitedError{RetryAfter: 42 * time.Second}
		},
	}

	handler := handlers.NewAuthHandler(mock, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Email:    "user@example.com",
		Password: "password123",
	})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	handlers.AssertErrorResponse(t, w, 429, "rate_limited")
	assert.Equal(t, "42", w.Header().Get("Retry-After"))
}

func TestLogin_ValidationErrors(t *testing.T) {
	handler := handlers.NewAuthHandler(&handlers.MockLoginService{}, nil)

	tests := []struct {
		name string
		body handlers.LoginRequest
	}{
		{"missing email", handlers.LoginRequest{Password: "pw"}},
		{"invalid email", handlers.LoginRequest{Email: "not-an-email", Password: "pw"}},
		{"missing password", handlers.LoginRequest{Email: "user@example.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := handlers.NewTestRequest(t, "POST", "/auth/login", tt.body)
			w := httptest.NewRecorder()
			handler.Login(w, req)

			handlers.AssertErrorResponse(t, w, 400, "bad_request")
		})
	}
}

func TestCompleteTwoFactor_Success(t *testing.T) {
	mock := &handlers.MockLoginService{
		CompleteTwoFactorFunc: func(ctx context.Context, bearer, code, ip, userAgent string) (*services.LoginResult, error) {
			return &services.LoginResult{
				AccessToken: "access_token_123",
				TokenType:   "Bearer",
				ExpiresIn:   900,
			}, nil
		},
	}

	handler := handlers.NewAuthHandler(mock, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/login/2fa", handlers.TwoFactorRequest{
		StepUpToken: "step_token_abc",
		Code:        "123456",
	})

	w := httptest.NewRecorder()
	handler.CompleteTwoFactor(w, req)

	var resp services.LoginResult
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, "access_token_123", resp.AccessToken)
}

func TestCompleteTwoFactor_TokenExpired(t *testing.T) {
	mock := &handlers.MockLoginService{
		CompleteTwoFactorFunc: func(ctx context.Context, bearer, code, ip, userAgent string) (*services.LoginResult, error) {
			return nil, models.ErrTokenExpired
		},
	}

	handler := handlers.NewAuthHandler(mock, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/login/2fa", handlers.TwoFactorRequest{
		StepUpToken: "step_token_abc",
		Code:        "123456",
	})

	w := httptest.NewRecorder()
	handler.CompleteTwoFactor(w, req)

	handlers.AssertErrorResponse(t, w, 410, "token_expired")
}

func TestCompleteTwoFactor_TokenAlreadyUsed(t *testing.T) {
	mock := &handlers.MockLoginService{
		CompleteTwoFactorFunc: func(ctx context.Context, bearer, code, ip, userAgent string) (*services.LoginResult, error) {
			return nil, models.ErrTokenAlreadyUsed
		},
	}

	handler := handlers.NewAuthHandler(mock, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/login/2fa", handlers.TwoFactorRequest{
		StepUpToken: "step_token_abc",
		Code:        "123456",
	})

	w := httptest.NewRecorder()
	handler.CompleteTwoFactor(w, req)

	handlers.AssertErrorResponse(t, w, 410, "token_used")
}

func TestCompleteTwoFactor_InvalidCode(t *testing.T) {
	mock := &handlers.MockLoginService{
		CompleteTwoFactorFunc: func(ctx context.Context, bearer, code, ip, userAgent string) (*services.LoginResult, error) {
			return nil, models.ErrTwoFactorInvalid
		},
	}

	handler := handlers.NewAuthHandler(mock, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/login/2fa", handlers.TwoFactorRequest{
		StepUpToken: "step_token_abc",
		Code:        "000000",
	})

	w := httptest.NewRecorder()
	handler.CompleteTwoFactor(w, req)

	handlers.AssertErrorResponse(t, w, 401, "unauthorized")
}

func TestCompleteTwoFactor_MissingFields(t *testing.T) {
	handler := handlers.NewAuthHandler(&handlers.MockLoginService{}, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/login/2fa", handlers.TwoFactorRequest{})

	w := httptest.NewRecorder()
	handler.CompleteTwoFactor(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}
