package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	apperrors "github.com/utafrali/cartstore/pkg/errors"
	"github.com/utafrali/cartstore/pkg/logger"
	"github.com/utafrali/cartstore/pkg/validator"
)

// Response is the JSON envelope of every API response.
type Response struct {
	Data  any            `json:"data,omitempty"`
	Error *ErrorResponse `json:"error,omitempty"`
}

// ErrorResponse represents an error in the standard response format.
type ErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// WriteJSON writes v as JSON with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing meaningful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err to a status code and error envelope. AppErrors keep
// their own code, message and status; validation errors list the offending
// fields; anything else is classified by sentinel. 5xx responses are logged
// through the request-scoped logger, or fallback when none is mounted.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	l := logger.FromContext(r.Context())
	if l == slog.Default() && fallback != nil {
		l = fallback
	}
	requestID := logger.CorrelationIDFromContext(r.Context())

	status := apperrors.HTTPStatus(err)
	body := &ErrorResponse{Code: "INTERNAL_ERROR", Message: "an internal error occurred", RequestID: requestID}

	var (
		appErr *apperrors.AppError
		valErr *validator.ValidationError
	)
	switch {
	case errors.As(err, &appErr):
		body.Code, body.Message = appErr.Code, appErr.Message
	case errors.As(err, &valErr):
		body.Code, body.Message, body.Fields = "VALIDATION_ERROR", "request validation failed", valErr.Fields()
	case errors.Is(err, apperrors.ErrInvalidInput):
		body.Code, body.Message = "INVALID_INPUT", err.Error()
	case errors.Is(err, apperrors.ErrNotFound):
		body.Code, body.Message = "NOT_FOUND", "resource not found"
	case errors.Is(err, apperrors.ErrConflict):
		body.Code, body.Message = "CONFLICT", "conflict"
	case errors.Is(err, apperrors.ErrServiceUnavail):
		body.Code, body.Message = "SERVICE_UNAVAILABLE", "service unavailable"
	case errors.Is(err, apperrors.ErrUpstream):
		body.Code, body.Message = "UPSTREAM_ERROR", "upstream service failed"
	}

	if status >= http.StatusInternalServerError {
		l.ErrorContext(r.Context(), "request failed",
			slog.String("error", err.Error()),
			slog.Int("status", status),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}

	WriteJSON(w, status, Response{Error: body})
}

// ParseID parses a positive integer path parameter. On failure it writes a
// 400 INVALID_PARAMETER response and returns false; the caller should return.
func ParseID(w http.ResponseWriter, param string) (int, bool) {
	id, err := strconv.Atoi(param)
	if err != nil || id <= 0 {
		WriteJSON(w, http.StatusBadRequest, Response{
			Error: &ErrorResponse{
				Code:    "INVALID_PARAMETER",
				Message: "invalid id: " + param,
			},
		})
		return 0, false
	}
	return id, true
}
