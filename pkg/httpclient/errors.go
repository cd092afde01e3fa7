package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/utafrali/cartstore/pkg/errors"
)

// DownstreamErrorResponse is the {"error":{"code","message"}} body returned by
// services that use the standard response envelope.
type DownstreamErrorResponse struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseResponseError reads a non-2xx response and translates it into an error
// that keeps the downstream semantics: 404 matches apperrors.ErrNotFound, 5xx
// matches apperrors.ErrUpstream, and so on. The body is consumed and closed.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", serviceName, resp.StatusCode, err)
	}

	code, message := "", string(bodyBytes)
	var downstream DownstreamErrorResponse
	if json.Unmarshal(bodyBytes, &downstream) == nil && downstream.Error != nil {
		code, message = downstream.Error.Code, downstream.Error.Message
	}

	return mapDownstreamError(resp.StatusCode, code, message, serviceName, resp.Request)
}

func mapDownstreamError(status int, code, message, serviceName string, req *http.Request) error {
	qualifiedMsg := fmt.Sprintf("%s: %s", serviceName, message)

	switch {
	case status == http.StatusNotFound:
		resource := serviceName
		if req != nil && req.URL != nil {
			resource = req.URL.Path
		}
		return apperrors.NotFound(serviceName, resource)
	case status == http.StatusBadRequest:
		return apperrors.InvalidInput(qualifiedMsg)
	case status == http.StatusConflict:
		return apperrors.Conflict(qualifiedMsg)
	case status == http.StatusServiceUnavailable:
		return apperrors.ServiceUnavailable(qualifiedMsg)
	case status >= 500:
		return fmt.Errorf("%s server error (%d/%s): %s: %w", serviceName, status, code, message, apperrors.ErrUpstream)
	default:
		if code == "" {
			code = http.StatusText(status)
		}
		return &apperrors.AppError{
			Code:    code,
			Message: qualifiedMsg,
			Status:  status,
			Err:     apperrors.ErrUpstream,
		}
	}
}
