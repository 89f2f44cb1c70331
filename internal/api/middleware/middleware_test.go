package middleware

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/phrazzld/kbase-api/internal/api/shared"
	"github.com/phrazzld/kbase-api/internal/config"
	"github.com/phrazzld/kbase-api/internal/platform/kv"
	"github.com/phrazzld/kbase-api/internal/ratelimit"
	"github.com/phrazzld/kbase-api/internal/service/auth"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newJWT(t *testing.T, now time.Time) auth.JWTService {
	t.Helper()
	svc, err := auth.NewJWTService(config.AuthConfig{
		JWTSecret:            "test-secret-that-is-long-enough-for-testing",
		TokenLifetimeMinutes: 60,
	}, auth.WithTimeFunc(func() time.Time { return now }))
	require.NoError(t, err)
	return svc
}

// echoCustomer writes the customer id found in the context.
var echoCustomer = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	id, ok := GetCustomerID(r)
	if !ok {
		w.WriteHeader(http.StatusTeapot)
		return
	}
	_, _ = io.WriteString(w, id.String())
})

func TestAuthenticate(t *testing.T) {
	now := time.Now()
	svc := newJWT(t, now)
	customerID := uuid.New()
	token, err := svc.GenerateToken(context.Background(), customerID)
	require.NoError(t, err)
	expired, err := newJWT(t, now.Add(-3*time.Hour)).GenerateToken(context.Background(), customerID)
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantError  string
	}{
		{name: "valid", header: "Bearer " + token, wantStatus: http.StatusOK},
		{name: "lowercase scheme", header: "bearer " + token, wantStatus: http.StatusOK},
		{name: "missing header", wantStatus: http.StatusUnauthorized, wantError: "Authorization header required"},
		{name: "wrong scheme", header: "Basic abc", wantStatus: http.StatusUnauthorized, wantError: "Invalid authorization format"},
		{name: "garbage token", header: "Bearer abc.def.ghi", wantStatus: http.StatusUnauthorized, wantError: "Invalid token"},
		{name: "expired token", header: "Bearer " + expired, wantStatus: http.StatusUnauthorized, wantError: "Token expired"},
	}

	handler := NewAuthMiddleware(svc).Authenticate(echoCustomer)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantError == "" {
				assert.Equal(t, customerID.String(), w.Body.String())
				return
			}
			var body shared.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantError, body.Error)
		})
	}
}

func TestTraceMiddleware(t *testing.T) {
	var seen string
	h := TraceMiddleware(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = shared.GetTraceID(r.Context())
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Len(t, seen, 32)
	assert.Equal(t, seen, w.Header().Get("X-Trace-ID"))
}

func newTestRateLimiter(t *testing.T) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	limiter := ratelimit.New(kv.NewRedisStore(client), testLogger())
	return NewRateLimiter(limiter, config.RateLimitConfig{
		Customer: config.LimitConfig{Max: 2, WindowSec: 60},
		IP:       config.LimitConfig{Max: 3, WindowSec: 60},
		Webhook:  config.LimitConfig{Max: 1, WindowSec: 30},
	}), mr
}

var ok200 = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

func TestPerCustomerLimit(t *testing.T) {
	rl, mr := newTestRateLimiter(t)
	h := rl.PerCustomer(ok200)
	a, b := uuid.New(), uuid.New()

	do := func(id uuid.UUID) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
		req = req.WithContext(shared.WithCustomerID(req.Context(), id))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, do(a).Code)
	assert.Equal(t, http.StatusOK, do(a).Code)
	denied := do(a)
	assert.Equal(t, http.StatusTooManyRequests, denied.Code)
	assert.Equal(t, "60", denied.Header().Get("Retry-After"))

	var body RateLimitResponse
	require.NoError(t, json.Unmarshal(denied.Body.Bytes(), &body))
	assert.Equal(t, 60, body.RetryAfter)
	assert.Equal(t, "Too many requests", body.Error)

	assert.Equal(t, http.StatusOK, do(b).Code, "budgets are per customer")

	mr.FastForward(61 * time.Second)
	assert.Equal(t, http.StatusOK, do(a).Code, "a new window starts fresh")
}

func TestPerIPAndWebhookBucketsAreSeparate(t *testing.T) {
	rl, _ := newTestRateLimiter(t)
	ip := rl.PerIP(ok200)
	hook := rl.Webhook(ok200)

	do := func(h http.Handler) int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = "203.0.113.7:5123"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, do(hook))
	assert.Equal(t, http.StatusTooManyRequests, do(hook))
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, do(ip))
	}
	assert.Equal(t, http.StatusTooManyRequests, do(ip))
}

func TestRateLimitFailsOpen(t *testing.T) {
	rl, mr := newTestRateLimiter(t)
	mr.Close()
	h := rl.PerIP(ok200)
	for i := 0; i < 10; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}
