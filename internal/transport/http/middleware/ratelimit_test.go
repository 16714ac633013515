package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"leavedesk/internal/domain/auth"
	"leavedesk/internal/requestctx"
)

func noContent() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestRateLimitUsesSessionKeyBeforeIPFallback(t *testing.T) {
	limited := RateLimit(1, time.Minute)(noContent())

	sessCtx := requestctx.WithSession(context.Background(), auth.Session{Token: "t", TenantID: "tenant-1", UserID: "user-1"})

	first := httptest.NewRequest(http.MethodGet, "/api/v1/leave/dashboard", nil).WithContext(sessCtx)
	first.RemoteAddr = "198.51.100.11:2222"
	firstRec := httptest.NewRecorder()
	limited.ServeHTTP(firstRec, first)
	assert.Equal(t, http.StatusNoContent, firstRec.Code)

	second := httptest.NewRequest(http.MethodGet, "/api/v1/leave/dashboard", nil).WithContext(sessCtx)
	second.RemoteAddr = "198.51.100.12:3333"
	secondRec := httptest.NewRecorder()
	limited.ServeHTTP(secondRec, second)
	assert.Equal(t, http.StatusTooManyRequests, secondRec.Code, "throttled by session key")
}

func TestRateLimitFallsBackToIP(t *testing.T) {
	limited := RateLimit(1, time.Minute)(noContent())

	first := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	first.RemoteAddr = "203.0.113.10:4444"
	firstRec := httptest.NewRecorder()
	limited.ServeHTTP(firstRec, first)
	assert.Equal(t, http.StatusNoContent, firstRec.Code)

	second := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	second.RemoteAddr = "203.0.113.10:5555"
	secondRec := httptest.NewRecorder()
	limited.ServeHTTP(secondRec, second)
	assert.Equal(t, http.StatusTooManyRequests, secondRec.Code, "throttled by ip key")
}

func TestRateLimitWindowReset(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limited := RateLimit(1, time.Minute, withClock(func() time.Time { return now }))(noContent())

	send := func() int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.0.2.20:1111"
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, send())
	assert.Equal(t, http.StatusTooManyRequests, send())
	now = now.Add(61 * time.Second)
	assert.Equal(t, http.StatusNoContent, send(), "window reset")
}

func TestRateLimitReturnsRetryMetadata(t *testing.T) {
	limited := RateLimit(1, time.Minute)(noContent())

	req1 := httptest.NewRequest(http.MethodGet, "/", nil)
	req1.RemoteAddr = "192.0.2.30:1234"
	limited.ServeHTTP(httptest.NewRecorder(), req1)

	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	req2.RemoteAddr = "192.0.2.30:1234"
	rec := httptest.NewRecorder()
	limited.ServeHTTP(rec, req2)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
}

func TestMutationRateLimitScope(t *testing.T) {
	limited := MutationRateLimit(4, time.Minute)(noContent())

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/leave/requests", nil)
		req.RemoteAddr = "198.51.100.40:8888"
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code, "read request %d bypasses mutation limits", i+1)
	}

	sessCtx := requestctx.WithSession(context.Background(), auth.Session{Token: "t", UserID: "emp-1"})
	want := []int{http.StatusNoContent, http.StatusTooManyRequests}
	paths := []string{"/api/v1/leave/requests", "/api/v1/leave/requests/r1/cancel"}
	for i, path := range paths {
		req := httptest.NewRequest(http.MethodPost, path, nil).WithContext(sessCtx)
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		assert.Equal(t, want[i], rec.Code, path)
	}
}
