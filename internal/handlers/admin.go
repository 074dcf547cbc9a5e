package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/BradenHooton/bastion/internal/models"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
	"github.com/go-chi/chi/v5"
)

// AdminHandler handles administrative lockout operations
type AdminHandler struct {
	service LoginServiceInterface
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(service LoginServiceInterface) *AdminHandler {
	return &AdminHandler{service: service}
}

// UnlockIdentity handles POST /admin/identities/{id}/unlock. The lock is
// cleared immediately; the violation history is kept so escalation still
// applies to future lockouts.
func (h *AdminHandler) UnlockIdentity(w http.ResponseWriter, r *http.Request) {
	identityID := chi.URLParam(r, "id")
	if identityID == "" {
		pkghttp.WriteBadRequest(w, "Identity ID is required")
		return
	}

	if err := h.service.AdminUnlock(r.Context(), identityID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Identity not found")
			return
		}
		pkghttp.WriteInternalError(w, "Failed to unlock identity")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Identity unlocked"})
}
