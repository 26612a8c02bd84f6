package errors

import (
	stderrors "errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"
)

// WebSocketError classifies a stream transport failure by its close code.
func WebSocketError(operation string, cause error) *AppError {
	var code string
	var severity ErrorSeverity

	switch {
	case websocket.IsCloseError(cause, websocket.CloseNormalClosure):
		code = "WS_NORMAL_CLOSURE"
		severity = SeverityLow
	case websocket.IsCloseError(cause, websocket.ClosePolicyViolation):
		// aisstream closes with 1008 when the API key or subscription is rejected
		code = "WS_POLICY_VIOLATION"
		severity = SeverityHigh
	case websocket.IsCloseError(cause, websocket.CloseGoingAway, websocket.CloseAbnormalClosure):
		code = "WS_ABNORMAL_CLOSURE"
		severity = SeverityMedium
	case stderrors.Is(cause, websocket.ErrBadHandshake):
		code = "WS_BAD_HANDSHAKE"
		severity = SeverityHigh
	default:
		code = "WS_ERROR"
		severity = SeverityMedium
	}

	return Wrap(cause, ErrorTypeNetwork, code, fmt.Sprintf("WebSocket %s failed", operation)).
		WithSeverity(severity)
}

// NetworkError creates an error for network-related issues
func NetworkError(operation string, cause error) *AppError {
	code := "NETWORK_UNKNOWN"
	severity := SeverityMedium

	var opErr *net.OpError
	var netErr net.Error
	switch {
	case stderrors.Is(cause, syscall.ECONNREFUSED):
		code = "CONNECTION_REFUSED"
		severity = SeverityHigh
	case stderrors.Is(cause, syscall.ECONNRESET):
		code = "CONNECTION_RESET"
	case stderrors.As(cause, &netErr) && netErr.Timeout():
		code = "NETWORK_TIMEOUT"
	case stderrors.As(cause, &opErr):
		switch opErr.Op {
		case "dial":
			code = "NETWORK_DIAL_FAILED"
			severity = SeverityHigh
		case "read":
			code = "NETWORK_READ_FAILED"
		case "write":
			code = "NETWORK_WRITE_FAILED"
		default:
			code = "NETWORK_OP_FAILED"
		}
	case isTemporaryNetError(cause):
		code = "NETWORK_TEMPORARY"
		severity = SeverityLow
	}

	return Wrap(cause, ErrorTypeNetwork, code, fmt.Sprintf("Network %s failed", operation)).
		WithSeverity(severity)
}

// ConfigurationError creates an error for configuration issues
func ConfigurationError(field, reason string) *AppError {
	return New(ErrorTypeInternal, "CONFIGURATION_ERROR", fmt.Sprintf("Configuration error in %s: %s", field, reason)).
		WithSeverity(SeverityCritical).
		WithUserMessage("Service is misconfigured. Please contact system administrator.")
}

// StreamDisabledError is returned by operations that need a configured stream.
func StreamDisabledError() *AppError {
	return New(ErrorTypeDisabled, "STREAM_DISABLED", "AIS stream is not configured").
		WithSeverity(SeverityLow).
		WithUserMessage("AIS ingestion is disabled: set the stream URL and API key.")
}

// DatabaseConnectionError creates an error for database connection issues
func DatabaseConnectionError(cause error) *AppError {
	return Wrap(cause, ErrorTypeDatabase, "DB_CONNECTION_ERROR", "Database connection failed").
		WithSeverity(SeverityCritical).
		WithUserMessage("Database is temporarily unavailable. Please try again later.")
}

// DatabaseError creates a database error
func DatabaseError(operation string, cause error) *AppError {
	return Wrap(cause, ErrorTypeDatabase, "DATABASE_ERROR", fmt.Sprintf("Database %s failed", operation)).
		WithSeverity(SeverityHigh).
		WithUserMessage("A database error occurred. Please try again later.")
}

// RegistryError wraps a failure reading the tracked-carrier registry.
func RegistryError(operation string, cause error) *AppError {
	return Wrap(cause, ErrorTypeExternal, "REGISTRY_ERROR", fmt.Sprintf("Registry %s failed", operation)).
		WithSeverity(SeverityMedium)
}

// DeliveryError wraps a failure handing a position to the downstream sink.
func DeliveryError(deviceID int64, cause error) *AppError {
	return Wrap(cause, ErrorTypeExternal, "DELIVERY_ERROR", fmt.Sprintf("Position delivery to device %d failed", deviceID)).
		WithSeverity(SeverityMedium)
}

// ValidationError creates a validation error
func ValidationError(code, message string) *AppError {
	return New(ErrorTypeValidation, code, message).
		WithSeverity(SeverityLow).
		WithUserMessage(message)
}

// NotFoundError creates a not found error
func NotFoundError(resource string) *AppError {
	return New(ErrorTypeNotFound, "NOT_FOUND", fmt.Sprintf("%s not found", resource)).
		WithSeverity(SeverityLow).
		WithUserMessage("The requested resource was not found.")
}

// ConflictError reports a uniqueness violation.
func ConflictError(resource string) *AppError {
	return New(ErrorTypeConflict, "CONFLICT", fmt.Sprintf("%s already exists", resource)).
		WithSeverity(SeverityLow).
		WithUserMessage(fmt.Sprintf("%s already exists.", resource))
}

// RateLimitedError rejects a client that exceeded its request budget.
func RateLimitedError() *AppError {
	return New(ErrorTypeRateLimit, "RATE_LIMITED", "client request rate exceeded").
		WithSeverity(SeverityLow).
		WithUserMessage("Too many requests. Slow down and retry later.")
}

// InternalError creates an internal error
func InternalError(message string, cause error) *AppError {
	return Wrap(cause, ErrorTypeInternal, "INTERNAL_ERROR", message).
		WithSeverity(SeverityHigh).
		WithUserMessage("An internal error occurred. Please try again.")
}

// IsRecoverable determines if an error is recoverable (can be retried)
func IsRecoverable(err error) bool {
	appErr, ok := As(err)
	if !ok {
		return false
	}
	switch appErr.Type {
	case ErrorTypeTimeout, ErrorTypeNetwork, ErrorTypeDatabase:
		return appErr.Severity != SeverityCritical
	case ErrorTypeExternal:
		return true
	case ErrorTypeInternal:
		return appErr.Severity == SeverityLow || appErr.Severity == SeverityMedium
	}
	return false
}

// isTemporaryNetError replaces the deprecated net.Error.Temporary.
func isTemporaryNetError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"no route to host",
		"network is unreachable",
		"connection reset by peer",
		"broken pipe",
		"i/o timeout",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
