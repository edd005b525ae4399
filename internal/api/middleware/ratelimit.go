package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/channellicense/channellicense/internal/api/models"
)

// RateLimitConfig holds configuration for rate limiting.
type RateLimitConfig struct {
	// Requests per window
	RequestLimit int
	// Window duration
	WindowLength time.Duration
}

// PerMinute returns a one-minute window allowing n requests.
func PerMinute(n int) RateLimitConfig {
	return RateLimitConfig{RequestLimit: n, WindowLength: time.Minute}
}

// Default rate limit configurations.
var (
	// AuthRateLimit applies to the token endpoint (10 req/min).
	AuthRateLimit = PerMinute(10)

	// LicenseRateLimit applies to the license request endpoint (60 req/min).
	LicenseRateLimit = PerMinute(60)

	// StandardRateLimit applies to admin endpoints (100 req/min).
	StandardRateLimit = PerMinute(100)
)

// OrDefault returns cfg, or def when cfg is unset.
func (cfg RateLimitConfig) OrDefault(def RateLimitConfig) RateLimitConfig {
	if cfg.RequestLimit <= 0 || cfg.WindowLength <= 0 {
		return def
	}
	return cfg
}

// RateLimitByIP creates a rate limiter middleware using client IP address.
// Uses X-Forwarded-For header if present (extracted by chi's RealIP middleware).
func RateLimitByIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(limitExceeded(cfg.WindowLength)),
	)
}

// RateLimitByAdmin creates a rate limiter middleware keyed by the authenticated
// administrator. Falls back to IP-based rate limiting when auth is disabled.
func RateLimitByAdmin(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(keyByAdminOrIP),
		httprate.WithLimitHandler(limitExceeded(cfg.WindowLength)),
	)
}

// keyByAdminOrIP returns the admin name if authenticated, otherwise the client IP.
func keyByAdminOrIP(r *http.Request) (string, error) {
	if admin := GetAdmin(r.Context()); admin != "" {
		return "admin:" + admin, nil
	}
	return httprate.KeyByRealIP(r)
}

// limitExceeded writes an RFC7807 Problem response when the limit is hit.
// httprate does not expose the reset time, so Retry-After is one full window.
func limitExceeded(window time.Duration) http.HandlerFunc {
	retryAfter := strconv.Itoa(int(math.Ceil(window.Seconds())))

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", retryAfter)
		writeProblem(w, r, models.KindTooManyRequests, "Rate limit exceeded. Please try again later.")
	}
}
