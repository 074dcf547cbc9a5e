package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/BradenHooton/bastion/internal/auth"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
)

// SecurityHandler exposes the protection state of an identity
type SecurityHandler struct {
	service  LoginServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewSecurityHandler creates a new SecurityHandler
func NewSecurityHandler(service LoginServiceInterface, ipConfig *pkghttp.IPConfig) *SecurityHandler {
	return &SecurityHandler{
		service:  service,
		ipConfig: ipConfig,
	}
}

// UnlockRequest represents the request body for a self-service unlock request
type UnlockRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// unlockRequestResponse is identical whether or not the account exists
type unlockRequestResponse struct {
	Message string `json:"message"`
}

// Status returns the lockout view and recent attempts for the
// authenticated identity
func (h *SecurityHandler) Status(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	status, err := h.service.SecurityStatus(r.Context(), claims.IdentityID)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(status)
}

// RequestUnlock accepts a self-service unlock request. The response never
// discloses whether the identifier exists; any follow-up happens out of band.
func (h *SecurityHandler) RequestUnlock(w http.ResponseWriter, r *http.Request) {
	var req UnlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)

	if err := h.service.RequestUnlock(r.Context(), req.Email, ipAddress); err != nil {
		writeAuthError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(unlockRequestResponse{
		Message: "If the account exists, a notification has been sent.",
	})
}
