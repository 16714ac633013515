package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesStructuredLine(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	handler := RequestID(Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/leave/types", nil)
	req.Header.Set("X-Request-ID", "req-7")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	line := buf.String()
	assert.Contains(t, line, `"status":202`)
	assert.Contains(t, line, `"path":"/api/v1/leave/types"`)
	assert.Contains(t, line, `"requestId":"req-7"`)
}

func TestRecovererReturnsEnvelope(t *testing.T) {
	handler := Recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"internal_error"`)
}

func TestBodyLimitRejectsOversizedPayload(t *testing.T) {
	handler := BodyLimit(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run")
	}))
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason":"far too long"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestSecureHeaders(t *testing.T) {
	handler := SecureHeaders(true)(noContent())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))
}

type recordedRequest struct {
	method string
	route  string
	status int
}

type fakeRecorder struct {
	got []recordedRequest
}

func (f *fakeRecorder) Record(method, route string, status int, _ time.Duration) {
	f.got = append(f.got, recordedRequest{method: method, route: route, status: status})
}

func TestMetricsRecordsRoutePattern(t *testing.T) {
	recorder := &fakeRecorder{}
	r := chi.NewRouter()
	r.Use(Metrics(recorder))
	r.Post("/leave/requests/{requestID}/cancel", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/leave/requests/abc/cancel", nil))
	require.Len(t, recorder.got, 1)
	assert.Equal(t, "/leave/requests/{requestID}/cancel", recorder.got[0].route)
	assert.Equal(t, http.StatusOK, recorder.got[0].status)
}
