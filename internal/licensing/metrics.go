package licensing

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/channellicense/channellicense/internal/licensing"

// Request outcomes recorded on licensing.requests.
const (
	OutcomeExisting        = "existing"
	OutcomeRenewed         = "renewed"
	OutcomeAdmitted        = "admitted"
	OutcomeChannelNotFound = "channel_not_found"
	OutcomeLimitExceeded   = "device_limit_exceeded"
	OutcomeError           = "error"
)

// Metrics holds the instruments for license issuance.
type Metrics struct {
	requestTotal    metric.Int64Counter
	requestDuration metric.Float64Histogram
}

// NewMetrics creates licensing instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	requestTotal, err := meter.Int64Counter(
		"licensing.requests",
		metric.WithDescription("License requests by outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"licensing.request.duration",
		metric.WithDescription("Duration of license requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		requestTotal:    requestTotal,
		requestDuration: requestDuration,
	}, nil
}

// RecordRequest records one license request. A nil receiver is a no-op.
func (m *Metrics) RecordRequest(ctx context.Context, channel, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("licensing.channel", channel),
		attribute.String("outcome", outcome),
	)
	m.requestTotal.Add(ctx, 1, attrs)
	m.requestDuration.Record(ctx, duration.Seconds(), attrs)
}
