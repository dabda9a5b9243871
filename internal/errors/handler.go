package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel/trace"

	"dtindex/internal/dataset"
	"dtindex/internal/query"
	"dtindex/internal/schema"
	"dtindex/internal/services"
)

// Common error types following RFC 7807
const (
	TypeValidation      = "/errors/validation"
	TypeNotFound        = "/errors/not-found"
	TypeInternal        = "/errors/internal"
	TypeServiceDown     = "/errors/service-unavailable"
	TypeTimeout         = "/errors/timeout"
	TypeMethod          = "/errors/method-not-allowed"
	TypePayloadTooLarge = "/errors/payload-too-large"
)

// Domain-specific error types
const (
	TypeDatasetNotFound   = "/errors/dataset/not-found"
	TypeDatasetParse      = "/errors/dataset/parse"
	TypeDatasetEmpty      = "/errors/dataset/empty"
	TypeSchemaUnresolved  = "/errors/schema/unresolved"
	TypeSchemaColumn      = "/errors/schema/unknown-column"
	TypeInvalidIdentifier = "/errors/query/invalid-identifier"
	TypeEntityNotFound    = "/errors/query/not-found"
	TypeGroupMismatch     = "/errors/query/group-mismatch"
	TypeNoGroupColumn     = "/errors/query/no-group-column"
)

// ErrorHandler provides centralized error handling
type ErrorHandler struct {
	logger       *slog.Logger
	includeStack bool
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *slog.Logger, includeStack bool) *ErrorHandler {
	return &ErrorHandler{
		logger:       logger.With(slog.String("component", "error_handler")),
		includeStack: includeStack,
	}
}

// HandleError converts any error to RFC 7807 format and responds
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	reqID := middleware.GetReqID(r.Context())
	problem := h.ErrorToProblem(err, r)

	level := slog.LevelWarn
	if problem.Status >= http.StatusInternalServerError && problem.Status != http.StatusServiceUnavailable {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, "request failed",
		slog.String("error", err.Error()),
		slog.Int("status", problem.Status),
		slog.String("request_id", reqID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)

	problem.WithExtension("trace_id", traceID(r.Context(), reqID))
	if guidance := services.Guidance(err); guidance != "" {
		problem.WithExtension("guidance", guidance)
	}
	if h.includeStack && problem.Status >= http.StatusInternalServerError {
		problem.WithExtension("stack", getStackTrace())
	}

	render.Render(w, r, problem)
}

// ErrorToProblem converts an error to RFC 7807 Problem Details
func (h *ErrorHandler) ErrorToProblem(err error, r *http.Request) *ProblemDetails {
	path := r.URL.Path

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewProblemDetails(http.StatusGatewayTimeout, TypeTimeout, "Request Timeout",
			"The request took too long to process and was cancelled", path)
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return h.apiErrorToProblem(apiErr, r)
	}

	var unresolved *schema.UnresolvedError
	switch {
	case errors.As(err, &unresolved):
		return NewProblemDetails(http.StatusServiceUnavailable, TypeSchemaUnresolved, "Column Roles Unresolved",
			err.Error(), path).
			WithExtension("missing_roles", unresolved.Missing).
			WithExtension("columns", unresolved.Columns)

	case errors.Is(err, dataset.ErrFileNotFound):
		return NewProblemDetails(http.StatusServiceUnavailable, TypeDatasetNotFound, "Dataset Not Found", err.Error(), path)

	case errors.Is(err, dataset.ErrParse):
		return NewProblemDetails(http.StatusServiceUnavailable, TypeDatasetParse, "Dataset Unreadable", err.Error(), path)

	case errors.Is(err, dataset.ErrEmptyDataset):
		return NewProblemDetails(http.StatusServiceUnavailable, TypeDatasetEmpty, "Dataset Empty", err.Error(), path)

	case errors.Is(err, schema.ErrUnknownColumn):
		return NewProblemDetails(http.StatusUnprocessableEntity, TypeSchemaColumn, "Unknown Column", err.Error(), path)

	case errors.Is(err, query.ErrInvalidIdentifierFormat):
		return NewProblemDetails(http.StatusBadRequest, TypeInvalidIdentifier, "Invalid Identifier", err.Error(), path)

	case errors.Is(err, query.ErrNotFound):
		return NewProblemDetails(http.StatusNotFound, TypeEntityNotFound, "Not Found", err.Error(), path)

	case errors.Is(err, query.ErrGroupMismatch):
		return NewProblemDetails(http.StatusConflict, TypeGroupMismatch, "Group Mismatch", err.Error(), path)

	case errors.Is(err, query.ErrNoGroupColumn):
		return NewProblemDetails(http.StatusUnprocessableEntity, TypeNoGroupColumn, "No Group Column", err.Error(), path)

	case errors.Is(err, services.ErrInvalidInput):
		return NewProblemDetails(http.StatusBadRequest, TypeValidation, "Validation Failed", err.Error(), path)

	case errors.Is(err, services.ErrServiceUnavailable):
		return NewProblemDetails(http.StatusServiceUnavailable, TypeServiceDown, "Service Unavailable", err.Error(), path)

	default:
		return NewProblemDetails(http.StatusInternalServerError, TypeInternal, "Internal Server Error",
			"An unexpected error occurred while processing your request", path)
	}
}

// apiErrorToProblem converts APIError to ProblemDetails
func (h *ErrorHandler) apiErrorToProblem(apiErr *APIError, r *http.Request) *ProblemDetails {
	problemType := TypeInternal
	switch apiErr.ErrorCode {
	case CodeValidationFailed, CodeInvalidRequest, CodeInvalidJSON:
		problemType = TypeValidation
	case CodePayloadTooLarge:
		problemType = TypePayloadTooLarge
	}

	problem := NewProblemDetails(
		apiErr.StatusCode,
		problemType,
		http.StatusText(apiErr.StatusCode),
		apiErr.Message,
		r.URL.Path,
	).WithExtension("error_code", apiErr.ErrorCode)

	if errs, ok := apiErr.Details.([]ValidationError); ok {
		problem.WithExtension("errors", errs)
	} else if apiErr.Details != nil {
		problem.WithExtension("details", apiErr.Details)
	}
	return problem
}

// HandlePanic recovers from panics and returns RFC 7807 error
func (h *ErrorHandler) HandlePanic(w http.ResponseWriter, r *http.Request, recovered interface{}) {
	reqID := middleware.GetReqID(r.Context())

	h.logger.ErrorContext(r.Context(), "panic recovered",
		slog.Any("panic", recovered),
		slog.String("request_id", reqID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("stack", string(debug.Stack())),
	)

	problem := NewProblemDetails(
		http.StatusInternalServerError,
		TypeInternal,
		"Internal Server Error",
		"An unexpected error occurred",
		r.URL.Path,
	).WithExtension("trace_id", traceID(r.Context(), reqID))

	if h.includeStack {
		problem.WithExtension("panic", fmt.Sprintf("%v", recovered))
		problem.WithExtension("stack", getStackTrace())
	}

	render.Render(w, r, problem)
}

// NotFound returns a standard 404 error
func (h *ErrorHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	problem := NewProblemDetails(
		http.StatusNotFound,
		TypeNotFound,
		"Not Found",
		"The requested resource was not found",
		r.URL.Path,
	).WithExtension("trace_id", traceID(r.Context(), middleware.GetReqID(r.Context())))

	render.Render(w, r, problem)
}

// MethodNotAllowed returns a standard 405 error
func (h *ErrorHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	problem := NewProblemDetails(
		http.StatusMethodNotAllowed,
		TypeMethod,
		"Method Not Allowed",
		fmt.Sprintf("Method %s is not allowed for this endpoint", r.Method),
		r.URL.Path,
	).WithExtension("trace_id", traceID(r.Context(), middleware.GetReqID(r.Context())))

	render.Render(w, r, problem)
}

// traceID prefers the OpenTelemetry trace, falling back to the request ID.
func traceID(ctx context.Context, reqID string) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return reqID
}

// getStackTrace returns the current stack trace
func getStackTrace() string {
	buf := make([]byte, 1024*8)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// JSON helper for consistent JSON error responses
func (h *ErrorHandler) JSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	render.Status(r, status)
	render.JSON(w, r, v)
}
