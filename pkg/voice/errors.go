package voice

import (
	"errors"
	"fmt"
)

// Sentinel errors for the voice package.
var (
	// ErrMissingAPIKey indicates the vendor API key was not provided or is a placeholder.
	ErrMissingAPIKey = errors.New("voice: API key is required")

	// ErrNotConnected indicates the provider has no open session.
	ErrNotConnected = errors.New("voice: not connected")

	// ErrAlreadyStarted indicates StartSession was called on a live session.
	ErrAlreadyStarted = errors.New("voice: session already started")

	// ErrConnectionFailed indicates the transport could not be established.
	ErrConnectionFailed = errors.New("voice: connection failed")

	// ErrConnectionClosed indicates the transport closed before the session was ready.
	ErrConnectionClosed = errors.New("voice: connection closed")

	// ErrSetupTimeout indicates the vendor did not acknowledge the session configuration in time.
	ErrSetupTimeout = errors.New("voice: session setup timed out")

	// ErrInvalidMessage indicates a malformed message was received.
	ErrInvalidMessage = errors.New("voice: invalid message")

	// ErrInvalidTransition indicates a status change the state machine does not allow.
	ErrInvalidTransition = errors.New("voice: invalid status transition")

	// ErrSendFailed indicates writing to the transport failed.
	ErrSendFailed = errors.New("voice: send failed")
)

// APIError is an error reported by the vendor inside the session.
type APIError struct {
	// Code is the vendor error code.
	Code string

	// Type is the vendor error category.
	Type string

	// Message is the human-readable error message.
	Message string

	// Retryable indicates the failure is transient.
	Retryable bool
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("voice: API error [%s]: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("voice: API error: %s", e.Message)
}

// IsRetryable returns true if the error can be retried.
func (e *APIError) IsRetryable() bool {
	return e.Retryable
}

// ErrorCode returns the vendor error code.
func (e *APIError) ErrorCode() string {
	return e.Code
}

// NewAPIError creates an APIError. Rate limits and server errors are retryable.
func NewAPIError(code, errType, message string) *APIError {
	retryable := code == "rate_limit_exceeded" || errType == "server_error"
	return &APIError{
		Code:      code,
		Type:      errType,
		Message:   message,
		Retryable: retryable,
	}
}

// ConnectionError represents a transport failure.
type ConnectionError struct {
	// Provider is the adapter that failed.
	Provider string

	// Reason describes why the connection failed.
	Reason string

	// Cause is the underlying error.
	Cause error

	// Retryable indicates if reconnection should be attempted.
	Retryable bool
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("voice: %s connection error: %s: %v", e.Provider, e.Reason, e.Cause)
	}
	return fmt.Sprintf("voice: %s connection error: %s", e.Provider, e.Reason)
}

// Unwrap returns the underlying cause.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// IsRetryable returns true if reconnection should be attempted.
func (e *ConnectionError) IsRetryable() bool {
	return e.Retryable
}

// NewConnectionError creates a new ConnectionError.
func NewConnectionError(provider, reason string, cause error, retryable bool) *ConnectionError {
	return &ConnectionError{
		Provider:  provider,
		Reason:    reason,
		Cause:     cause,
		Retryable: retryable,
	}
}

// IsNotConnected returns true if the error indicates no connection.
func IsNotConnected(err error) bool {
	return errors.Is(err, ErrNotConnected) || errors.Is(err, ErrConnectionClosed)
}

// IsRetryable returns true if the error can be retried.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRetryable()
	}
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return connErr.IsRetryable()
	}
	return errors.Is(err, ErrSetupTimeout)
}
