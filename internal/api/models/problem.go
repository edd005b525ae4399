package models

import (
	"encoding/json"
	"net/http"
)

// Problem represents an RFC7807 error response, served with
// Content-Type application/problem+json.
type Problem struct {
	// Type is a URI reference that identifies the problem type.
	Type string `json:"type"`

	// Title is a short, human-readable summary of the problem type.
	Title string `json:"title"`

	// Status is the HTTP status code for this occurrence of the problem.
	Status int `json:"status"`

	// Detail is a human-readable explanation specific to this occurrence.
	Detail string `json:"detail,omitempty"`

	// Instance is the request path that produced the problem.
	Instance string `json:"instance,omitempty"`

	// TraceID is the request ID, echoed in X-Request-Id.
	TraceID string `json:"traceId"`

	// Errors contains structured field validation errors.
	Errors []FieldError `json:"errors,omitempty"`
}

// FieldError represents a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

const problemBase = "https://channellicense.dev/problems/"

// Problem type URIs.
const (
	ProblemTypeValidation          = problemBase + "validation-error"
	ProblemTypeUnauthorized        = problemBase + "unauthorized"
	ProblemTypeNotFound            = problemBase + "not-found"
	ProblemTypeConflict            = problemBase + "conflict"
	ProblemTypeHasDependents       = problemBase + "has-dependents"
	ProblemTypeTooManyRequests     = problemBase + "too-many-requests"
	ProblemTypeInternal            = problemBase + "internal-error"
	ProblemTypeUnavailable         = problemBase + "service-unavailable"
	ProblemTypeTLSRequired         = problemBase + "tls-required"
	ProblemTypeUnsupportedMedia    = problemBase + "unsupported-media-type"
	ProblemTypeChannelNotFound     = problemBase + "channel-not-found"
	ProblemTypeDeviceLimitExceeded = problemBase + "device-limit-exceeded"
)

// ProblemKind is a problem type together with its title and status.
type ProblemKind struct {
	Type   string
	Title  string
	Status int
}

// Problem kinds served by the API.
var (
	KindValidation          = ProblemKind{ProblemTypeValidation, "Validation error", http.StatusBadRequest}
	KindUnauthorized        = ProblemKind{ProblemTypeUnauthorized, "Unauthorized", http.StatusUnauthorized}
	KindNotFound            = ProblemKind{ProblemTypeNotFound, "Not found", http.StatusNotFound}
	KindConflict            = ProblemKind{ProblemTypeConflict, "Conflict", http.StatusConflict}
	KindHasDependents       = ProblemKind{ProblemTypeHasDependents, "Resource still referenced", http.StatusConflict}
	KindTooManyRequests     = ProblemKind{ProblemTypeTooManyRequests, "Too many requests", http.StatusTooManyRequests}
	KindInternal            = ProblemKind{ProblemTypeInternal, "Internal server error", http.StatusInternalServerError}
	KindUnavailable         = ProblemKind{ProblemTypeUnavailable, "Service unavailable", http.StatusServiceUnavailable}
	KindTLSRequired         = ProblemKind{ProblemTypeTLSRequired, "TLS required", http.StatusForbidden}
	KindUnsupportedMedia    = ProblemKind{ProblemTypeUnsupportedMedia, "Unsupported media type", http.StatusUnsupportedMediaType}
	KindChannelNotFound     = ProblemKind{ProblemTypeChannelNotFound, "Channel not found", http.StatusNotFound}
	KindDeviceLimitExceeded = ProblemKind{ProblemTypeDeviceLimitExceeded, "Device limit exceeded", http.StatusConflict}
)

// New creates a problem of this kind.
func (k ProblemKind) New(traceID, detail string) *Problem {
	return &Problem{
		Type:    k.Type,
		Title:   k.Title,
		Status:  k.Status,
		Detail:  detail,
		TraceID: traceID,
	}
}

// NewValidation creates a 400 problem listing the offending fields.
func NewValidation(traceID, detail string, errors []FieldError) *Problem {
	p := KindValidation.New(traceID, detail)
	p.Errors = errors
	return p
}

// Write writes the Problem as JSON to the ResponseWriter.
func (p *Problem) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	if p.TraceID != "" {
		w.Header().Set("X-Request-Id", p.TraceID)
	}
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}
