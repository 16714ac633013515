package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leavedesk/internal/domain/auth"
)

func TestAuthMiddlewareSetsSession(t *testing.T) {
	secret := "test-secret"
	token, err := auth.GenerateToken(secret, auth.Claims{UserID: "u1", TenantID: "t1", RoleName: "employee"}, time.Hour)
	require.NoError(t, err)

	var ran bool
	handler := Auth(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ran = true
		sess, ok := GetSession(r.Context())
		require.True(t, ok, "expected session in context")
		assert.Equal(t, "u1", sess.UserID)
		assert.Equal(t, "t1", sess.TenantID)
		assert.Equal(t, token, sess.BearerToken())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.True(t, ran)
}

func TestAuthMiddlewareOpaqueTokenWithoutSecret(t *testing.T) {
	handler := Auth("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := GetSession(r.Context())
		require.True(t, ok)
		assert.Equal(t, "opaque", sess.BearerToken())
		assert.False(t, sess.Verified())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer opaque")
	handler.ServeHTTP(httptest.NewRecorder(), req)
}

func TestAuthMiddlewareRejectsBadSignature(t *testing.T) {
	token, err := auth.GenerateToken("other-secret", auth.Claims{UserID: "u1"}, time.Hour)
	require.NoError(t, err)
	handler := Auth("secret")(RequireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run for a forged token")
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireSessionMissingToken(t *testing.T) {
	handler := Auth("secret")(RequireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("did not expect handler to run")
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
}
