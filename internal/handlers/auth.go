package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/services"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
)

// LoginServiceInterface defines the login protocol surface used by handlers
type LoginServiceInterface interface {
	Login(ctx context.Context, identifier, password, ip, userAgent string) (*services.LoginResult, error)
	CompleteTwoFactor(ctx context.Context, bearer, code, ip, userAgent string) (*services.LoginResult, error)
	SecurityStatus(ctx context.Context, identityID string) (*services.SecurityStatus, error)
	RequestUnlock(ctx context.Context, identifier, ip string) error
	AdminUnlock(ctx context.Context, identityID string) error
}

// AuthHandler handles the two-step login protocol
type AuthHandler struct {
	service  LoginServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service LoginServiceInterface, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		ipConfig: ipConfig,
	}
}

// LoginRequest represents the request body for step 1
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// TwoFactorRequest represents the request body for step 2
type TwoFactorRequest struct {
	StepUpToken string `json:"step_up_token" validate:"required"`
	Code        string `json:"code" validate:"required,min=6,max=8"`
}

// Login handles step 1 of the protocol: primary credential verification.
// With 2FA enabled the response carries a step-up token instead of a session.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	userAgent := r.Header.Get("User-Agent")

	result, err := h.service.Login(r.Context(), req.Email, req.Password, ipAddress, userAgent)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}

// CompleteTwoFactor handles step 2: the step-up token plus a TOTP or backup
// code. The token is single use; a failed code requires restarting at step 1.
func (h *AuthHandler) CompleteTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req TwoFactorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	userAgent := r.Header.Get("User-Agent")

	result, err := h.service.CompleteTwoFactor(r.Context(), req.StepUpToken, req.Code, ipAddress, userAgent)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}

// writeAuthError maps login protocol errors to HTTP responses. Credential,
// enrollment, and account-status failures all collapse into the same 401 so
// responses never disclose which part failed.
func writeAuthError(w http.ResponseWriter, err error) {
	var lockedErr *models.AccountLockedError
	var rateErr *models.RateLimitedError

	switch {
	case errors.As(err, &lockedErr):
		pkghttp.WriteAccountLocked(w, lockedErr.LockedUntil.UTC().Format(time.RFC3339))
	case errors.As(err, &rateErr):
		seconds := int(rateErr.RetryAfter.Seconds())
		if seconds < 1 {
			seconds = 1
		}
		pkghttp.WriteRateLimited(w, seconds)
	case errors.Is(err, models.ErrTokenExpired):
		pkghttp.WriteGone(w, "token_expired", "The step-up token has expired. Please log in again.")
	case errors.Is(err, models.ErrTokenAlreadyUsed):
		pkghttp.WriteGone(w, "token_used", "The step-up token has already been used. Please log in again.")
	case errors.Is(err, models.ErrTokenInvalid):
		pkghttp.WriteUnauthorized(w, "Authentication failed")
	case errors.Is(err, models.ErrInvalidCredentials),
		errors.Is(err, models.ErrTwoFactorInvalid),
		errors.Is(err, models.ErrTwoFactorNotEnrolled),
		errors.Is(err, models.ErrAccountDisabled),
		errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteUnauthorized(w, "Authentication failed")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
