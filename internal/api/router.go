// Package api provides the HTTP API for the channel license service.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/channellicense/channellicense/internal/api/handler"
	"github.com/channellicense/channellicense/internal/api/middleware"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	LicenseService handler.LicenseRequester
	AdminService   handler.Administrator

	// AuthEnabled guards /v1/admin and /v1/ops/status. When false the token
	// endpoint is not mounted.
	AuthEnabled bool
	Credentials middleware.CredentialVerifier
	Tokens      TokenService

	// Health backs /v1/ops/ready and /v1/ops/status. Optional.
	Health handler.ReadinessChecker

	// MetricsHandler is mounted at /metrics when set.
	MetricsHandler http.Handler

	// RateLimits overrides the default per-endpoint limits. Zero values
	// keep the defaults.
	RateLimits RateLimits

	RequireTLS bool
}

// RateLimits holds the limits for each endpoint category.
type RateLimits struct {
	License middleware.RateLimitConfig
	Auth    middleware.RateLimitConfig
	Admin   middleware.RateLimitConfig
}

// TokenService issues and validates admin bearer tokens.
type TokenService interface {
	handler.TokenIssuer
	middleware.TokenValidator
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Set default service name if not provided
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "channellicense-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))         // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))       // Panic recovery
	r.Use(chimiddleware.RealIP)                  // Real IP extraction, used as the license request IP
	r.Use(middleware.SecurityHeaders)            // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS)) // TLS enforcement
	r.Use(middleware.ContentTypeJSON)            // JSON content type

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Health)
	licenseHandler := handler.NewLicenseHandler(cfg.LicenseService)
	adminHandler := handler.NewAdminHandler(cfg.AdminService)

	adminAuth := middleware.AdminAuth(middleware.AdminAuthConfig{
		Enabled:     cfg.AuthEnabled,
		Credentials: cfg.Credentials,
		Tokens:      cfg.Tokens,
	})

	// Create rate limit middleware for different endpoint categories
	authRateLimit := middleware.RateLimitByIP(cfg.RateLimits.Auth.OrDefault(middleware.AuthRateLimit))
	licenseRateLimit := middleware.RateLimitByIP(cfg.RateLimits.License.OrDefault(middleware.LicenseRateLimit))
	adminRateLimit := middleware.RateLimitByAdmin(cfg.RateLimits.Admin.OrDefault(middleware.StandardRateLimit))

	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.RequireJSON)

		// Auth endpoints (public) - strict rate limiting
		if cfg.AuthEnabled && cfg.Tokens != nil {
			authHandler := handler.NewAuthHandler(cfg.Credentials, cfg.Tokens)
			r.Route("/auth", func(r chi.Router) {
				r.Use(authRateLimit)
				r.Post("/token", authHandler.IssueToken)
			})
		}

		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			// Status endpoint requires authentication
			r.With(adminAuth).Get("/status", opsHandler.SystemStatus)
		})

		// License issuance (public) - per-IP rate limiting
		r.With(licenseRateLimit).Post("/licenses/request", licenseHandler.RequestLicense)

		// Admin endpoints (authenticated)
		r.Route("/admin", func(r chi.Router) {
			r.Use(adminAuth)
			r.Use(adminRateLimit)

			r.Route("/channels", func(r chi.Router) {
				r.Get("/", adminHandler.ListChannels)
				r.Post("/", adminHandler.CreateChannel)
				r.Delete("/", adminHandler.DeleteChannel)
				r.Put("/{channelId}", adminHandler.UpdateChannel)
			})

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", adminHandler.ListDevices)
				r.Delete("/", adminHandler.DeleteDevice)
			})

			r.Patch("/licenses/{licenseId}/status", adminHandler.UpdateLicenseStatus)
		})
	})

	return r
}
