// Package response writes JSON and RFC7807 problem responses for the
// license API handlers.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/channellicense/channellicense/internal/api/middleware"
	"github.com/channellicense/channellicense/internal/api/models"
	"github.com/channellicense/channellicense/internal/licensing"
)

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	write(w, r, status, data)
}

// Created writes a 201 response pointing at the new resource.
func Created(w http.ResponseWriter, r *http.Request, location string, data interface{}) {
	if location != "" {
		w.Header().Set("Location", location)
	}
	write(w, r, http.StatusCreated, data)
}

// NoContent writes a 204 No Content response.
func NoContent(w http.ResponseWriter, r *http.Request) {
	setRequestID(w, r)
	w.WriteHeader(http.StatusNoContent)
}

func write(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	setRequestID(w, r)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func setRequestID(w http.ResponseWriter, r *http.Request) {
	if requestID := middleware.GetRequestID(r.Context()); requestID != "" {
		w.Header().Set("X-Request-Id", requestID)
	}
}

// Error writes a Problem+JSON error response for r.
func Error(w http.ResponseWriter, r *http.Request, problem *models.Problem) {
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// Problem writes a problem of the given kind.
func Problem(w http.ResponseWriter, r *http.Request, kind models.ProblemKind, detail string) {
	Error(w, r, kind.New(middleware.GetRequestID(r.Context()), detail))
}

// BadRequest writes a 400 validation problem.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string, errors []models.FieldError) {
	Error(w, r, models.NewValidation(middleware.GetRequestID(r.Context()), detail, errors))
}

// Unauthorized writes a 401 Unauthorized error response.
func Unauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	Problem(w, r, models.KindUnauthorized, detail)
}

// NotFound writes a 404 Not Found error response.
func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	Problem(w, r, models.KindNotFound, detail)
}

// Conflict writes a 409 Conflict error response.
func Conflict(w http.ResponseWriter, r *http.Request, detail string) {
	Problem(w, r, models.KindConflict, detail)
}

// InternalError writes a 500 Internal Server Error response.
func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	Problem(w, r, models.KindInternal, detail)
}

// ServiceUnavailable writes a 503 Service Unavailable error response.
func ServiceUnavailable(w http.ResponseWriter, r *http.Request, detail string) {
	Problem(w, r, models.KindUnavailable, detail)
}

// failureKinds maps administrative failure reasons to problems. Unknown
// reasons are validation errors.
var failureKinds = map[licensing.Reason]models.ProblemKind{
	licensing.ReasonNotFound:      models.KindNotFound,
	licensing.ReasonAlreadyExists: models.KindConflict,
	licensing.ReasonHasDependents: models.KindHasDependents,
	licensing.ReasonInvalid:       models.KindValidation,
}

// Failure writes the problem matching an administrative failure.
func Failure(w http.ResponseWriter, r *http.Request, failure *licensing.Failure) {
	kind, ok := failureKinds[failure.Reason]
	if !ok {
		kind = models.KindValidation
	}
	Problem(w, r, kind, failure.Message)
}
