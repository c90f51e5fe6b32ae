package qsapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrorCode identifies a failure class. The set is closed: every failure an
// Envelope carries maps to exactly one of these values.
type ErrorCode string

const (
	ErrCodeNetwork            ErrorCode = "NETWORK_ERROR"
	ErrCodeTimeout            ErrorCode = "TIMEOUT_ERROR"
	ErrCodeConnection         ErrorCode = "CONNECTION_ERROR"
	ErrCodeAuthentication     ErrorCode = "AUTHENTICATION_ERROR"
	ErrCodeAuthorization      ErrorCode = "AUTHORIZATION_ERROR"
	ErrCodeTokenExpired       ErrorCode = "TOKEN_EXPIRED"
	ErrCodeTokenInvalid       ErrorCode = "TOKEN_INVALID"
	ErrCodeValidation         ErrorCode = "VALIDATION_ERROR"
	ErrCodeNotFound           ErrorCode = "NOT_FOUND_ERROR"
	ErrCodeMethodNotAllowed   ErrorCode = "METHOD_NOT_ALLOWED_ERROR"
	ErrCodeUnsupportedMedia   ErrorCode = "UNSUPPORTED_MEDIA_TYPE_ERROR"
	ErrCodeServer             ErrorCode = "SERVER_ERROR"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE_ERROR"
	ErrCodeBadGateway         ErrorCode = "BAD_GATEWAY_ERROR"
	ErrCodeUnknown            ErrorCode = "UNKNOWN_ERROR"
	ErrCodeParse              ErrorCode = "PARSE_ERROR"
	ErrCodeConfiguration      ErrorCode = "CONFIGURATION_ERROR"
)

// Sentinel errors for reliability-layer denials.
var (
	// ErrCircuitOpen is the cause attached when the circuit breaker is open.
	ErrCircuitOpen = errors.New("qsapi: circuit open")

	// ErrRateLimited is the cause attached when the rate limiter denies a request.
	ErrRateLimited = errors.New("qsapi: rate limited")

	// ErrRetryBudgetExceeded is the cause attached when the retry budget is exhausted.
	ErrRetryBudgetExceeded = errors.New("qsapi: retry budget exceeded")
)

// APIError is the tagged error variant attached to failure envelopes. It is
// produced at the point of failure, never reconstructed from message text.
type APIError struct {
	Code      ErrorCode
	Message   string
	Details   map[string]any
	Cause     error
	RequestID string
	Method    string
	URL       string
	Status    int
	Attempt   int
	Timestamp time.Time
	Duration  time.Duration
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	if e.Attempt > 0 {
		msg = fmt.Sprintf("%s (attempt %d)", msg, e.Attempt)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *APIError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error codes for errors.Is.
func (e *APIError) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*APIError); ok {
		return e.Code == targetErr.Code
	}
	return false
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *APIError) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Error Code: %s\n", e.Code)
	info += fmt.Sprintf("Message: %s\n", e.Message)
	if e.RequestID != "" {
		info += fmt.Sprintf("Request ID: %s\n", e.RequestID)
	}
	if e.Method != "" {
		info += fmt.Sprintf("Method: %s\n", e.Method)
	}
	if e.URL != "" {
		info += fmt.Sprintf("URL: %s\n", e.URL)
	}
	if e.Status > 0 {
		info += fmt.Sprintf("Status Code: %d\n", e.Status)
	}
	if e.Attempt > 0 {
		info += fmt.Sprintf("Attempt: %d\n", e.Attempt)
	}
	if !e.Timestamp.IsZero() {
		info += fmt.Sprintf("Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Duration > 0 {
		info += fmt.Sprintf("Duration: %v\n", e.Duration)
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}

// Normalize converts any error into an *APIError. An error that already is an
// *APIError is returned unchanged, so normalization is idempotent.
func Normalize(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	return &APIError{
		Code:      classifyTransportError(err),
		Message:   err.Error(),
		Cause:     err,
		Timestamp: time.Now(),
	}
}

// classifyTransportError maps a transport-level error onto the closed code set
// by structural inspection of the error chain.
func classifyTransportError(err error) ErrorCode {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeout
	case errors.Is(err, context.Canceled):
		return ErrCodeNetwork
	case errors.Is(err, ErrCircuitOpen), errors.Is(err, ErrRateLimited),
		errors.Is(err, ErrRetryBudgetExceeded):
		return ErrCodeConnection
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrCodeTimeout
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrCodeConnection
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ErrCodeNetwork
	}

	return ErrCodeUnknown
}

// classifyStatus maps an HTTP status code (plus the auth challenge header for
// 401 responses) onto the closed code set.
func classifyStatus(status int, header http.Header) ErrorCode {
	switch status {
	case http.StatusUnauthorized:
		return classifyAuthChallenge(header.Get("WWW-Authenticate"))
	case http.StatusForbidden:
		return ErrCodeAuthorization
	case http.StatusNotFound:
		return ErrCodeNotFound
	case http.StatusMethodNotAllowed:
		return ErrCodeMethodNotAllowed
	case http.StatusUnsupportedMediaType:
		return ErrCodeUnsupportedMedia
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return ErrCodeValidation
	case http.StatusBadGateway:
		return ErrCodeBadGateway
	case http.StatusServiceUnavailable:
		return ErrCodeServiceUnavailable
	}

	if status >= 500 {
		return ErrCodeServer
	}
	if status >= 400 {
		return ErrCodeValidation
	}
	return ErrCodeUnknown
}

// classifyAuthChallenge refines a 401 using the RFC 6750 bearer challenge,
// distinguishing expired tokens from otherwise invalid ones.
func classifyAuthChallenge(challenge string) ErrorCode {
	if challenge == "" {
		return ErrCodeAuthentication
	}
	lower := strings.ToLower(challenge)
	if !strings.Contains(lower, `error="invalid_token"`) {
		return ErrCodeAuthentication
	}
	if strings.Contains(lower, "expired") {
		return ErrCodeTokenExpired
	}
	return ErrCodeTokenInvalid
}

// IsTransient reports whether an error represents a transient failure that
// might succeed on retry. Transport failures, 5xx responses and reliability
// layer denials are transient; client-input and configuration failures are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrRateLimited) || errors.Is(err, ErrRetryBudgetExceeded) {
		return true
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case ErrCodeNetwork, ErrCodeTimeout, ErrCodeConnection,
			ErrCodeServer, ErrCodeServiceUnavailable, ErrCodeBadGateway:
			return true
		case ErrCodeValidation:
			// 429 Too Many Requests classifies as a client error but is transient.
			return apiErr.Status == http.StatusTooManyRequests
		default:
			return false
		}
	}

	return false
}
