package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"syscall"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWrapKeepsCause(t *testing.T) {
	cause := stderrors.New("boom")
	err := Wrap(cause, ErrorTypeDatabase, "X", "failed")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "boom", err.Details)
	assert.Contains(t, err.Error(), "[database:X] failed")
}

func TestAsThroughFmtWrap(t *testing.T) {
	inner := NotFoundError("carrier")
	outer := fmt.Errorf("lookup: %w", inner)

	got, ok := As(outer)
	require.True(t, ok)
	assert.Same(t, inner, got)
	assert.True(t, IsType(outer, ErrorTypeNotFound))
	assert.False(t, IsType(stderrors.New("x"), ErrorTypeNotFound))
}

func TestWebSocketErrorClassification(t *testing.T) {
	tests := []struct {
		cause error
		code  string
	}{
		{&websocket.CloseError{Code: websocket.CloseNormalClosure}, "WS_NORMAL_CLOSURE"},
		{&websocket.CloseError{Code: websocket.ClosePolicyViolation}, "WS_POLICY_VIOLATION"},
		{&websocket.CloseError{Code: websocket.CloseAbnormalClosure}, "WS_ABNORMAL_CLOSURE"},
		{fmt.Errorf("dial: %w", websocket.ErrBadHandshake), "WS_BAD_HANDSHAKE"},
		{stderrors.New("other"), "WS_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.code, WebSocketError("read", tt.cause).Code)
		})
	}
}

func TestNetworkErrorClassification(t *testing.T) {
	refused := fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED)
	assert.Equal(t, "CONNECTION_REFUSED", NetworkError("dial", refused).Code)
	assert.Equal(t, "NETWORK_TEMPORARY", NetworkError("write", stderrors.New("broken pipe")).Code)
	assert.True(t, IsRecoverable(NetworkError("dial", refused)))
	assert.False(t, IsRecoverable(ValidationError("BAD", "bad")))
}

func TestHandlerRendersAppError(t *testing.T) {
	em := NewErrorMiddleware(zap.NewNop())
	h := NewHandler(em, func(w http.ResponseWriter, r *http.Request) error {
		return ValidationError("BAD_MMSI", "carrier id must not be empty")
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/carriers", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "BAD_MMSI", resp.Error.Code)
	assert.Equal(t, "carrier id must not be empty", resp.Error.Message)
	assert.Equal(t, rec.Header().Get("X-Request-ID"), resp.Error.RequestID)
}

func TestHandlerWrapsPlainError(t *testing.T) {
	em := NewErrorMiddleware(zap.NewNop())
	h := NewHandler(em, func(w http.ResponseWriter, r *http.Request) error {
		return stderrors.New("plain")
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "fixed")
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "fixed", rec.Header().Get("X-Request-ID"))
}

func TestRecoveryMiddleware(t *testing.T) {
	em := NewErrorMiddleware(zap.NewNop())
	h := em.RecoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHTTPStatusMapping(t *testing.T) {
	assert.Equal(t, http.StatusTooManyRequests, HTTPStatus(RateLimitedError().Type))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(StreamDisabledError().Type))
	assert.Equal(t, http.StatusConflict, HTTPStatus(ConflictError("carrier").Type))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(ErrorTypeInternal))
}

func TestHandlerLogsRequestID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := NewHandler(NewErrorMiddleware(zap.New(core)), func(w http.ResponseWriter, r *http.Request) error {
		return NotFoundError("carrier")
	})

	req := httptest.NewRequest(http.MethodDelete, "/api/carriers/9", nil)
	req.Header.Set("X-Request-ID", "req-42")
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "req-42", logs.All()[0].ContextMap()["request_id"])
}
