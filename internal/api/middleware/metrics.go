package middleware

import (
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/channellicense/channellicense/internal/api/middleware"

// Metrics holds the HTTP server instruments.
type Metrics struct {
	duration metric.Float64Histogram
	requests metric.Int64Counter
	inFlight metric.Int64UpDownCounter
	size     metric.Int64Histogram
}

// NewMetrics creates the HTTP server instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	duration, err1 := meter.Float64Histogram("http.server.request.duration",
		metric.WithDescription("Duration of HTTP server requests in seconds"),
		metric.WithUnit("s"))
	requests, err2 := meter.Int64Counter("http.server.request.total",
		metric.WithDescription("Total number of HTTP server requests"),
		metric.WithUnit("{request}"))
	inFlight, err3 := meter.Int64UpDownCounter("http.server.active_requests",
		metric.WithDescription("Number of HTTP requests currently being processed"),
		metric.WithUnit("{request}"))
	size, err4 := meter.Int64Histogram("http.server.response.body.size",
		metric.WithDescription("Size of HTTP server response bodies in bytes"),
		metric.WithUnit("By"))

	if err := errors.Join(err1, err2, err3, err4); err != nil {
		return nil, err
	}

	return &Metrics{duration: duration, requests: requests, inFlight: inFlight, size: size}, nil
}

// Middleware returns an HTTP middleware that records metrics for each
// request, labelled by chi route pattern and status.
func (m *Metrics) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			start := time.Now()

			method := attribute.String("http.request.method", r.Method)
			m.inFlight.Add(ctx, 1, metric.WithAttributes(method))
			defer m.inFlight.Add(ctx, -1, metric.WithAttributes(method))

			ww := wrapWriter(w, r)
			next.ServeHTTP(ww, r)

			status := statusOf(ww)
			attrs := metric.WithAttributes(
				method,
				attribute.String("http.route", routePattern(r, "unmatched")),
				attribute.Int("http.response.status_code", status),
			)

			m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
			m.requests.Add(ctx, 1, attrs)
			m.size.Record(ctx, int64(ww.BytesWritten()), attrs)
		})
	}
}
