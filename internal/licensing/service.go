package licensing

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/channellicense/channellicense/internal/licensing"

// LicenseRequest is a client asking for a license for one device.
type LicenseRequest struct {
	DeviceID  string
	Channel   string
	RequestIP string
}

// ServiceConfig holds configuration for the issuance service.
type ServiceConfig struct {
	// Store opens units of work.
	Store Store

	// Engine decides issuance. Defaults to NewEngine().
	Engine *Engine

	// Logger for service operations.
	Logger zerolog.Logger

	// Metrics records request outcomes. Optional.
	Metrics *Metrics
}

// Service runs license requests, one unit of work each.
type Service struct {
	store   Store
	engine  *Engine
	logger  zerolog.Logger
	metrics *Metrics
}

// NewService creates a new issuance service.
func NewService(cfg ServiceConfig) *Service {
	engine := cfg.Engine
	if engine == nil {
		engine = NewEngine()
	}

	return &Service{
		store:   cfg.Store,
		engine:  engine,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// RequestLicense resolves req inside a unit of work and commits on success.
// Any error, including the two rejections, rolls the work back.
func (s *Service) RequestLicense(ctx context.Context, req LicenseRequest) (*Issuance, error) {
	start := time.Now()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "licensing.RequestLicense",
		trace.WithAttributes(
			attribute.String("licensing.device_id", req.DeviceID),
			attribute.String("licensing.channel", req.Channel),
		),
	)
	defer span.End()

	var issuance *Issuance
	err := s.store.WithinTx(ctx, func(repo Repository) error {
		var err error
		issuance, err = s.engine.Resolve(ctx, repo, req.DeviceID, req.Channel, req.RequestIP)
		return err
	})

	outcome := outcomeOf(issuance, err)
	s.metrics.RecordRequest(ctx, req.Channel, outcome, time.Since(start))
	span.SetAttributes(attribute.String("licensing.outcome", outcome))

	if err != nil {
		event := s.logger.Error()
		if IsRejection(err) {
			event = s.logger.Info()
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		event.Err(err).
			Str("device_id", req.DeviceID).
			Str("channel", req.Channel).
			Str("request_ip", req.RequestIP).
			Str("outcome", outcome).
			Msg("license request rejected")
		return nil, err
	}

	s.logger.Info().
		Str("device_id", req.DeviceID).
		Str("channel", req.Channel).
		Str("request_ip", req.RequestIP).
		Int64("license_id", issuance.License.ID).
		Time("expires_at", issuance.License.ExpiresAt).
		Str("outcome", outcome).
		Msg("license issued")

	return issuance, nil
}

func outcomeOf(issuance *Issuance, err error) string {
	switch {
	case errors.Is(err, ErrChannelNotFound):
		return OutcomeChannelNotFound
	case errors.Is(err, ErrDeviceLimitExceeded):
		return OutcomeLimitExceeded
	case err != nil:
		return OutcomeError
	}

	switch issuance.Decision {
	case DecisionExisting:
		return OutcomeExisting
	case DecisionRenewed:
		return OutcomeRenewed
	default:
		return OutcomeAdmitted
	}
}
