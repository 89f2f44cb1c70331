package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/phrazzld/kbase-api/internal/api/shared"
	"github.com/phrazzld/kbase-api/internal/config"
	"github.com/phrazzld/kbase-api/internal/platform/logger"
	"github.com/phrazzld/kbase-api/internal/ratelimit"
)

// Admitter decides whether one more request fits in a budget.
// *ratelimit.Limiter satisfies it.
type Admitter interface {
	Allow(ctx context.Context, key string, max int, window time.Duration) bool
}

// RateLimitResponse is the body of a 429 response.
type RateLimitResponse struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retry_after"`
	TraceID    string `json:"trace_id,omitempty"`
}

// RateLimiter builds the per-route throttling middlewares.
type RateLimiter struct {
	limiter Admitter
	cfg     config.RateLimitConfig
}

// NewRateLimiter creates a RateLimiter with the configured budgets.
func NewRateLimiter(limiter Admitter, cfg config.RateLimitConfig) *RateLimiter {
	return &RateLimiter{limiter: limiter, cfg: cfg}
}

// PerCustomer throttles authenticated routes by customer. It must run after
// AuthMiddleware; requests without a customer fall back to the caller's IP.
func (l *RateLimiter) PerCustomer(next http.Handler) http.Handler {
	return l.limit(next, l.cfg.Customer, "Too many requests", func(r *http.Request) string {
		if id, ok := GetCustomerID(r); ok {
			return ratelimit.Key(ratelimit.ScopeCustomer, id.String())
		}
		return ratelimit.Key(ratelimit.ScopeIP, clientIP(r))
	})
}

// PerIP throttles public routes by client address.
func (l *RateLimiter) PerIP(next http.Handler) http.Handler {
	return l.limit(next, l.cfg.IP, "Too many requests from this IP", func(r *http.Request) string {
		return ratelimit.Key(ratelimit.ScopeIP, clientIP(r))
	})
}

// Webhook throttles the inbound webhook by client address with its own,
// larger budget.
func (l *RateLimiter) Webhook(next http.Handler) http.Handler {
	return l.limit(next, l.cfg.Webhook, "Webhook rate limit exceeded", func(r *http.Request) string {
		return ratelimit.Key(ratelimit.ScopeWebhook, clientIP(r))
	})
}

func (l *RateLimiter) limit(next http.Handler, budget config.LimitConfig, message string, key func(*http.Request) string) http.Handler {
	window := time.Duration(budget.WindowSec) * time.Second
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.limiter.Allow(r.Context(), key(r), budget.Max, window) {
			next.ServeHTTP(w, r)
			return
		}
		logger.FromContextOrDefault(r.Context(), slog.Default()).Warn("rate limit exceeded",
			"path", r.URL.Path,
			"limit", budget.Max,
			"window_sec", budget.WindowSec)
		w.Header().Set("Retry-After", strconv.Itoa(budget.WindowSec))
		shared.RespondWithJSON(w, r, http.StatusTooManyRequests, RateLimitResponse{
			Error:      message,
			RetryAfter: budget.WindowSec,
			TraceID:    shared.GetTraceID(r.Context()),
		})
	})
}

// clientIP prefers the address chi's RealIP middleware wrote into
// RemoteAddr, stripping the port when present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
