package qsapi

import (
	"errors"
	"strings"
	"testing"
)

func TestEnvelopeErr(t *testing.T) {
	success := &Envelope{Success: true, Status: 200}
	if err := success.Err(); err != nil {
		t.Errorf("success envelope must have nil Err, got %v", err)
	}

	failure := &Envelope{Success: false, Error: &APIError{Code: ErrCodeServer}}
	var apiErr *APIError
	if !errors.As(failure.Err(), &apiErr) || apiErr.Code != ErrCodeServer {
		t.Errorf("failure envelope Err must expose the APIError, got %v", failure.Err())
	}

	var nilEnv *Envelope
	if nilEnv.Err() == nil {
		t.Error("nil envelope must yield an error")
	}
}

func TestDecodeJSON(t *testing.T) {
	env := &Envelope{Success: true, rawBody: []byte(`{"id":1,"name":"Ada"}`)}

	var user struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}
	if err := env.DecodeJSON(&user); err != nil {
		t.Fatal(err)
	}
	if user.ID != 1 || user.Name != "Ada" {
		t.Errorf("decoded %+v", user)
	}
}

func TestDecodeJSONEmptyBody(t *testing.T) {
	env := &Envelope{Success: true}

	var v any
	err := env.DecodeJSON(&v)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != ErrCodeParse {
		t.Errorf("expected PARSE_ERROR for empty body, got %v", err)
	}
}

func TestDecodeJSONInvalidBody(t *testing.T) {
	env := &Envelope{Success: true, rawBody: []byte(`{oops`)}

	var v any
	err := env.DecodeJSON(&v)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != ErrCodeParse {
		t.Errorf("expected PARSE_ERROR for invalid JSON, got %v", err)
	}
}

func TestDecodeJSONOnFailureEnvelope(t *testing.T) {
	env := &Envelope{Success: false, Error: &APIError{Code: ErrCodeNotFound}, rawBody: []byte(`{}`)}

	var v any
	err := env.DecodeJSON(&v)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != ErrCodeNotFound {
		t.Errorf("decoding a failure envelope must return its error, got %v", err)
	}
}

func TestStatusText(t *testing.T) {
	if got := statusText(200); got != "OK" {
		t.Errorf("got %q", got)
	}
	if got := statusText(799); got != "Unknown" {
		t.Errorf("unmapped status should be Unknown, got %q", got)
	}
}

func TestNewRequestID(t *testing.T) {
	first := newRequestID()
	second := newRequestID()

	if !strings.HasPrefix(first, "req_") {
		t.Errorf("unexpected format %q", first)
	}
	if first == second {
		t.Error("request IDs must be unique")
	}
}
