package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/channellicense/channellicense/internal/api/models"
)

// Recovery returns a middleware that turns a handler panic into a 500
// problem response, logging the stack and marking the request span failed.
func Recovery(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				// Aborted responses must reach net/http unchanged
				if rec == http.ErrAbortHandler { //nolint:errorlint // sentinel compared by identity
					panic(rec)
				}

				requestID := GetRequestID(r.Context())
				err := fmt.Errorf("panic: %v", rec)

				span := trace.SpanFromContext(r.Context())
				span.RecordError(err, trace.WithStackTrace(true))
				span.SetStatus(codes.Error, err.Error())

				log.Error().
					Str("request_id", requestID).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Interface("error", rec).
					Bytes("stack", debug.Stack()).
					Msg("panic recovered")

				writeProblem(w, r, models.KindInternal, "an unexpected error occurred")
			}()

			next.ServeHTTP(w, r)
		})
	}
}
