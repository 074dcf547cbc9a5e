package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/services"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
)

// EnrollmentServiceInterface defines the 2FA setup surface used by handlers
type EnrollmentServiceInterface interface {
	InitiateSetup(ctx context.Context, identityID string) (*services.SetupResult, error)
	VerifySetup(ctx context.Context, identityID, code string) error
	Disable(ctx context.Context, identityID, password string) error
	RegenerateBackupCodes(ctx context.Context, identityID string) ([]string, error)
}

// EnrollmentHandler handles the 2FA enrollment lifecycle for an
// authenticated identity
type EnrollmentHandler struct {
	service EnrollmentServiceInterface
}

// NewEnrollmentHandler creates a new EnrollmentHandler
func NewEnrollmentHandler(service EnrollmentServiceInterface) *EnrollmentHandler {
	return &EnrollmentHandler{service: service}
}

// VerifySetupRequest represents the request body for confirming 2FA setup
type VerifySetupRequest struct {
	Code string `json:"code" validate:"required,len=6"`
}

// DisableRequest represents the request body for turning 2FA off
type DisableRequest struct {
	Password string `json:"password" validate:"required"`
}

// BackupCodesResponse carries a freshly generated pool of backup codes
type BackupCodesResponse struct {
	BackupCodes []string `json:"backup_codes"`
}

// Setup begins 2FA enrollment: generates the secret and backup codes and
// returns the QR code. 2FA stays off until the first code is verified.
func (h *EnrollmentHandler) Setup(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	result, err := h.service.InitiateSetup(r.Context(), claims.IdentityID)
	if err != nil {
		writeEnrollmentError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}

// VerifySetup confirms the first code and enables 2FA
func (h *EnrollmentHandler) VerifySetup(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req VerifySetupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.VerifySetup(r.Context(), claims.IdentityID, req.Code); err != nil {
		writeEnrollmentError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"message": "Two-factor authentication enabled"})
}

// Disable turns 2FA off after re-verifying the password
func (h *EnrollmentHandler) Disable(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req DisableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.Disable(r.Context(), claims.IdentityID, req.Password); err != nil {
		writeEnrollmentError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"message": "Two-factor authentication disabled"})
}

// RegenerateBackupCodes replaces the current pool with fresh codes
func (h *EnrollmentHandler) RegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	codes, err := h.service.RegenerateBackupCodes(r.Context(), claims.IdentityID)
	if err != nil {
		writeEnrollmentError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(BackupCodesResponse{BackupCodes: codes})
}

func writeEnrollmentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, "Two-factor authentication is already in this state")
	case errors.Is(err, models.ErrTwoFactorNotEnrolled):
		pkghttp.WriteBadRequest(w, "Two-factor authentication is not set up")
	case errors.Is(err, models.ErrTwoFactorInvalid):
		pkghttp.WriteBadRequest(w, "Invalid verification code")
	case errors.Is(err, models.ErrInvalidCredentials):
		pkghttp.WriteUnauthorized(w, "Authentication failed")
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Account not found")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
