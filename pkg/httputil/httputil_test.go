package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/cartstore/pkg/errors"
	"github.com/utafrali/cartstore/pkg/logger"
	"github.com/utafrali/cartstore/pkg/validator"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

// --- WriteJSON ---

func TestWriteJSON_SetsContentTypeAndStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, Response{Data: "hello"})

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "hello", decode(t, rec).Data)
}

func TestResponse_OmitsEmptyMembers(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusOK, Response{Data: "ok"})

	var raw map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&raw))
	assert.NotContains(t, raw, "error")

	rec = httptest.NewRecorder()
	WriteJSON(rec, http.StatusBadRequest, Response{Error: &ErrorResponse{Code: "ERR", Message: "msg"}})

	raw = nil
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&raw))
	assert.NotContains(t, raw, "data")
	assert.NotContains(t, string(raw["error"]), "request_id")
}

// --- WriteError ---

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"app error keeps its status", apperrors.New("INSUFFICIENT_STOCK", "Requested quantity is out of stock", http.StatusConflict, nil), http.StatusConflict, "INSUFFICIENT_STOCK"},
		{"wrapped app error", fmt.Errorf("add: %w", apperrors.NotFound("product", "1")), http.StatusNotFound, "NOT_FOUND"},
		{"sentinel not found", apperrors.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"sentinel invalid input", fmt.Errorf("decode: %w", apperrors.ErrInvalidInput), http.StatusBadRequest, "INVALID_INPUT"},
		{"upstream", fmt.Errorf("catalog: %w", apperrors.ErrUpstream), http.StatusBadGateway, "UPSTREAM_ERROR"},
		{"unknown", errors.New("something unexpected"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)

			WriteError(rec, req, tt.err, logger.Discard())

			assert.Equal(t, tt.wantStatus, rec.Code)
			resp := decode(t, rec)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestWriteError_AppErrorMessageIsUserFacing(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", nil)

	err := apperrors.New("ADD_FAILED", "Error adding product", http.StatusBadGateway, errors.New("dial tcp: refused"))
	WriteError(rec, req, err, logger.Discard())

	resp := decode(t, rec)
	assert.Equal(t, "Error adding product", resp.Error.Message)
}

func TestWriteError_ValidationFields(t *testing.T) {
	type body struct {
		Amount int `json:"amount" validate:"gte=1"`
	}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/v1/cart/items/1", nil)

	WriteError(rec, req, validator.Validate(body{}), logger.Discard())

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	assert.Contains(t, resp.Error.Fields, "amount")
}

func TestWriteError_IncludesRequestID(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx := logger.WithCorrelationID(context.Background(), "corr-123")
	req := httptest.NewRequest(http.MethodGet, "/test", nil).WithContext(ctx)

	WriteError(rec, req, apperrors.ErrNotFound, logger.Discard())

	assert.Equal(t, "corr-123", decode(t, rec).Error.RequestID)
}

// --- ParseID ---

func TestParseID(t *testing.T) {
	rec := httptest.NewRecorder()
	id, ok := ParseID(rec, "42")
	assert.True(t, ok)
	assert.Equal(t, 42, id)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestParseID_Invalid(t *testing.T) {
	for _, param := range []string{"", "abc", "0", "-3", "1.5"} {
		rec := httptest.NewRecorder()
		_, ok := ParseID(rec, param)
		assert.False(t, ok, param)
		assert.Equal(t, http.StatusBadRequest, rec.Code, param)
		assert.Equal(t, "INVALID_PARAMETER", decode(t, rec).Error.Code)
	}
}
