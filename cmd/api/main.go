// Package main provides the entrypoint for the channel license API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/channellicense/channellicense/internal/api"
	"github.com/channellicense/channellicense/internal/api/middleware"
	"github.com/channellicense/channellicense/internal/auth"
	"github.com/channellicense/channellicense/internal/config"
	"github.com/channellicense/channellicense/internal/database"
	"github.com/channellicense/channellicense/internal/licensing"
	"github.com/channellicense/channellicense/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "channellicense-api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := newLogger(cfg.Logging, cfg.Telemetry.ServiceName)
	if err != nil {
		return err
	}

	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.Server.Env).
		Msg("starting channel license API")

	ctx := context.Background()

	// Initialize OpenTelemetry
	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: Version,
		Environment:    cfg.Server.Env,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		Exporter:       cfg.Telemetry.Exporter,
	})
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.Telemetry.Enabled {
		log.Info().
			Str("exporter", cfg.Telemetry.Exporter).
			Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	httpMetrics, err := middleware.NewMetrics()
	if err != nil {
		return fmt.Errorf("initialize http metrics: %w", err)
	}
	licenseMetrics, err := licensing.NewMetrics()
	if err != nil {
		return fmt.Errorf("initialize licensing metrics: %w", err)
	}

	// Connect to database
	dbConfig := cfg.Database.Connection()
	pool, err := database.ConnectWithRetry(ctx, dbConfig, log)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()
	log.Info().
		Str("host", dbConfig.Host).
		Int("port", dbConfig.Port).
		Str("database", dbConfig.Database).
		Msg("database connected")

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, pool); err != nil {
			return err
		}
		log.Info().Msg("database schema applied")
	}

	isolation, err := database.ParseIsolation(cfg.Database.TxIsolation)
	if err != nil {
		return err
	}
	store := licensing.NewPostgresStore(pool, isolation)

	licenseService := licensing.NewService(licensing.ServiceConfig{
		Store:   store,
		Logger:  log,
		Metrics: licenseMetrics,
	})
	adminService := licensing.NewAdminService(licensing.AdminServiceConfig{
		Store:  store,
		Logger: log,
	})
	health := database.NewHealthChecker(pool, database.HealthCheckerConfig{Logger: log})

	routerCfg := api.RouterConfig{
		Version:        Version,
		BuildTime:      BuildTime,
		Logger:         log,
		ServiceName:    cfg.Telemetry.ServiceName,
		Metrics:        httpMetrics,
		LicenseService: licenseService,
		AdminService:   adminService,
		AuthEnabled:    cfg.Auth.Enabled,
		Health:         health,
		MetricsHandler: tp.MetricsHandler,
		RateLimits: api.RateLimits{
			License: middleware.PerMinute(cfg.RateLimit.License),
			Auth:    middleware.PerMinute(cfg.RateLimit.Auth),
			Admin:   middleware.PerMinute(cfg.RateLimit.Admin),
		},
		RequireTLS: cfg.RequireTLS,
	}

	if cfg.Auth.Enabled {
		routerCfg.Credentials = auth.NewVerifier(cfg.Auth.AdminUsername, cfg.Auth.AdminPasswordHash)
		if cfg.Auth.TokenSigningKey != "" {
			routerCfg.Tokens = auth.NewJWTService(auth.JWTConfig{
				SigningKey: cfg.Auth.TokenSigningKey,
				Issuer:     cfg.Auth.TokenIssuer,
				TTL:        cfg.Auth.TokenTTL,
			})
		} else {
			log.Warn().Msg("LICENSE_TOKEN_SIGNING_KEY not set - bearer tokens disabled, Basic auth only")
		}
	} else if cfg.IsDevelopment() {
		log.Warn().Msg("admin authentication disabled - admin endpoints are open")
	} else {
		log.Error().Str("env", cfg.Server.Env).Msg("admin authentication disabled outside development - admin endpoints are open")
	}

	router := api.NewRouter(routerCfg)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal or a listener failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("server stopped")
	return nil
}

func newLogger(cfg config.LoggingConfig, serviceName string) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("parse log level: %w", err)
	}

	var out io.Writer = os.Stdout
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger(), nil
}
