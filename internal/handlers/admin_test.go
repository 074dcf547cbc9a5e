package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/bastion/internal/handlers"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestAdminUnlock_Success(t *testing.T) {
	unlocked := ""
	mock := &handlers.MockLoginService{
		AdminUnlockFunc: func(ctx context.Context, identityID string) error {
			unlocked = identityID
			return nil
		},
	}

	handler := handlers.NewAdminHandler(mock)
	req := handlers.NewTestRequest(t, "POST", "/admin/identities/identity-123/unlock", nil)
	req = withURLParam(req, "id", "identity-123")

	w := httptest.NewRecorder()
	handler.UnlockIdentity(w, req)

	var resp map[string]string
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, "Identity unlocked", resp["message"])
	assert.Equal(t, "identity-123", unlocked)
}

func TestAdminUnlock_NotFound(t *testing.T) {
	mock := &handlers.MockLoginService{
		AdminUnlockFunc: func(ctx context.Context, identityID string) error {
			return models.ErrNotFound
		},
	}

	handler := handlers.NewAdminHandler(mock)
	req := handlers.NewTestRequest(t, "POST", "/admin/identities/missing/unlock", nil)
	req = withURLParam(req, "id", "missing")

	w := httptest.NewRecorder()
	handler.UnlockIdentity(w, req)

	handlers.AssertErrorResponse(t, w, 404, "not_found")
}

func TestAdminUnlock_MissingID(t *testing.T) {
	handler := handlers.NewAdminHandler(&handlers.MockLoginService{})
	req := handlers.NewTestRequest(t, "POST", "/admin/identities//unlock", nil)

	w := httptest.NewRecorder()
	handler.UnlockIdentity(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestAdminUnlock_ServiceError(t *testing.T) {
	mock := &handlers.MockLoginService{
		AdminUnlockFunc: func(ctx context.Context, identityID string) error {
			return models.ErrInternalServer
		},
	}

	handler := handlers.NewAdminHandler(mock)
	req := handlers.NewTestRequest(t, "POST", "/admin/identities/identity-123/unlock", nil)
	req = withURLParam(req, "id", "identity-123")

	w := httptest.NewRecorder()
	handler.UnlockIdentity(w, req)

	handlers.AssertErrorResponse(t, w, 500, "internal_error")
}
