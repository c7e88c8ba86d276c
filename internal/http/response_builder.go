// Package http provides the JSON API server and its handlers.
//
// This file implements a small builder for JSON responses and the mapping
// from domain errors to status codes and error envelopes.

package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/getsentry/sentry-go"

	"conti/internal/core"
	applog "conti/internal/log"
	"conti/internal/middleware/trace"
)

// errMalformedRequest marks request bodies and parameters that could not
// be decoded at all.
var errMalformedRequest = errors.New("malformed request")

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value to encode. A nil body writes no content.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}

	payload, err := json.Marshal(b.body)
	if err != nil {
		slog.Error("Failed to encode response", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"reason":"internal_error","message":"internal server error"}}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(append(payload, '\n'))
}

type errorBody struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
	Query   string `json:"query,omitempty"`
}

type errorEnvelope struct {
	Error   errorBody        `json:"error"`
	NoOp    bool             `json:"no_op,omitempty"`
	Posting *postingResponse `json:"posting,omitempty"`
}

// statusFor maps the core error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errMalformedRequest),
		errors.Is(err, core.ErrAmbiguousRange),
		errors.Is(err, core.ErrInvalidRange),
		errors.Is(err, core.ErrUnparseableQuery),
		errors.Is(err, core.ErrBudgetInvariant),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrUnknownCategory),
		errors.Is(err, core.ErrUnknownAccount):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrAlreadyCarried):
		return http.StatusConflict
	case errors.Is(err, core.ErrIncompleteMonth),
		errors.Is(err, core.ErrNonPositiveBalance):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func reasonFor(err error) string {
	if errors.Is(err, errMalformedRequest) {
		return "malformed_request"
	}
	return core.ReasonCode(err)
}

// ErrorResponse builds the error envelope for err. Internal errors are
// reported with a generic message.
func ErrorResponse(err error) *JSONResponseBuilder {
	status := statusFor(err)
	body := errorBody{Reason: reasonFor(err), Message: err.Error()}

	var qe *core.QueryError
	if errors.As(err, &qe) {
		body.Query = qe.Query
	}
	if status == http.StatusInternalServerError {
		body.Message = "internal server error"
	}

	return NewJSONResponse().Status(status).Body(errorEnvelope{Error: body})
}

// writeError logs err, reports server errors to Sentry and writes the
// error envelope.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, operation string) {
	status := statusFor(err)
	logger := applog.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		applog.NewStructuredLogger(logger).LogError(r.Context(), "Request failed", err,
			applog.ErrorTypeInternal, applog.ComponentHTTP, operation,
			applog.NewFields().WithRequestID(trace.GetRequestID(r.Context())))
		captureException(r.Context(), r, err)
	} else {
		logger.DebugContext(r.Context(), "Request rejected",
			applog.FieldOperation, operation,
			"reason", reasonFor(err),
			applog.FieldError, err)
	}
	ErrorResponse(err).Write(w)
}

// captureException sends err to Sentry. Without a configured client the
// hub drops the event.
func captureException(ctx context.Context, r *http.Request, err error) {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub().Clone()
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("request_id", trace.GetRequestID(ctx))
		scope.SetTag("method", r.Method)
		scope.SetTag("path", r.URL.Path)
		hub.CaptureException(err)
	})
}
