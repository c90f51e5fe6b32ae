package qsapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Metadata carries diagnostic information about how an envelope was produced.
type Metadata struct {
	// Duration measures from call entry to envelope construction.
	Duration time.Duration

	// Cached is true when the envelope was served from the response cache.
	Cached bool

	// RetryCount is the number of retries actually performed (0 on first-try
	// success and on cache hits).
	RetryCount int

	// RequestID correlates logs and errors for one call. IDs are probabilistic
	// and suitable for diagnostics, not for idempotency keys.
	RequestID string
}

// Envelope is the uniform result of every call. Exactly one envelope is
// produced per call; Success=true implies Error is nil, Success=false implies
// Data is nil and Error is set. Envelopes are immutable once returned.
type Envelope struct {
	// Data holds the parsed body: a JSON document decoded into Go values,
	// a string for textual content, or raw bytes for anything else.
	Data any

	Status     int
	StatusText string
	Headers    http.Header
	Success    bool
	Error      *APIError
	Metadata   Metadata

	rawBody []byte
}

// Err exposes the failure as an ordinary Go error for idiomatic call sites.
// It returns nil for success envelopes.
func (e *Envelope) Err() error {
	if e == nil {
		return &APIError{Code: ErrCodeUnknown, Message: "nil envelope", Timestamp: time.Now()}
	}
	if e.Error == nil {
		return nil
	}
	return e.Error
}

// RawBody returns the unparsed response body bytes, if any were read.
func (e *Envelope) RawBody() []byte {
	return e.rawBody
}

// DecodeJSON unmarshals the raw response body into v. It fails with a
// PARSE_ERROR when the envelope carries no body or the body is not valid JSON.
func (e *Envelope) DecodeJSON(v any) error {
	if err := e.Err(); err != nil {
		return err
	}
	if len(e.rawBody) == 0 {
		return &APIError{
			Code:      ErrCodeParse,
			Message:   "empty response body",
			RequestID: e.Metadata.RequestID,
			Timestamp: time.Now(),
		}
	}
	if err := json.Unmarshal(e.rawBody, v); err != nil {
		return &APIError{
			Code:      ErrCodeParse,
			Message:   "decoding response body",
			Cause:     err,
			RequestID: e.Metadata.RequestID,
			Timestamp: time.Now(),
		}
	}
	return nil
}

func newSuccessEnvelope(data any, rawBody []byte, status int, headers http.Header, meta Metadata) *Envelope {
	return &Envelope{
		Data:       data,
		Status:     status,
		StatusText: statusText(status),
		Headers:    headers,
		Success:    true,
		Metadata:   meta,
		rawBody:    rawBody,
	}
}

func newFailureEnvelope(apiErr *APIError, status int, headers http.Header, meta Metadata) *Envelope {
	if headers == nil {
		headers = http.Header{}
	}
	return &Envelope{
		Data:       nil,
		Status:     status,
		StatusText: statusText(status),
		Headers:    headers,
		Success:    false,
		Error:      apiErr,
		Metadata:   meta,
	}
}

func statusText(status int) string {
	if text := http.StatusText(status); text != "" {
		return text
	}
	return "Unknown"
}

// newRequestID builds a diagnostic correlation ID from a time prefix and a
// short random suffix.
func newRequestID() string {
	return fmt.Sprintf("req_%d_%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}
