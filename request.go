package qsapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Request is the per-call configuration. A fresh value is created for every
// call and never shared between calls.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Params  url.Values
	Body    any

	// Timeout overrides the client-wide timeout for this call when positive.
	Timeout time.Duration

	// NoCache disables cache reads and writes for this call.
	NoCache bool
}

// RequestOption mutates a per-call Request before the pipeline runs.
type RequestOption func(*Request)

// WithHeader sets a call-level header, overriding any client default.
func WithHeader(key, value string) RequestOption {
	return func(r *Request) {
		if r.Headers == nil {
			r.Headers = map[string]string{}
		}
		r.Headers[key] = value
	}
}

// WithQueryParam appends a query parameter.
func WithQueryParam(key, value string) RequestOption {
	return func(r *Request) {
		if r.Params == nil {
			r.Params = url.Values{}
		}
		r.Params.Add(key, value)
	}
}

// WithQueryParams appends multiple query parameters.
func WithQueryParams(params map[string]string) RequestOption {
	return func(r *Request) {
		if r.Params == nil {
			r.Params = url.Values{}
		}
		for key, value := range params {
			r.Params.Add(key, value)
		}
	}
}

// WithRequestTimeout overrides the timeout for this call only.
func WithRequestTimeout(d time.Duration) RequestOption {
	return func(r *Request) {
		r.Timeout = d
	}
}

// WithNoCache bypasses the response cache for this call.
func WithNoCache() RequestOption {
	return func(r *Request) {
		r.NoCache = true
	}
}

func newRequest(method, rawURL string, body any, opts ...RequestOption) *Request {
	req := &Request{
		Method: method,
		URL:    rawURL,
		Body:   body,
	}
	for _, opt := range opts {
		opt(req)
	}
	return req
}

// resolveURL computes the absolute request URL. Paths that start with a
// scheme are used verbatim; anything else is concatenated to the base URL,
// even when a later component embeds a URL of its own. Duplicate or missing
// slashes at the join point are left as-is.
func resolveURL(baseURL, path string) string {
	if idx := strings.Index(path, "://"); idx > 0 && !strings.ContainsAny(path[:idx], "/?#") {
		return path
	}
	return baseURL + path
}

// target computes the absolute URL including encoded query parameters.
func (r *Request) target(cfg *Config) string {
	target := resolveURL(cfg.BaseURL, r.URL)
	if len(r.Params) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + r.Params.Encode()
	}
	return target
}

// build assembles the *http.Request from the merged client snapshot and the
// per-call request. No method or URL validation happens here; malformed input
// surfaces from the transport.
func (r *Request) build(ctx context.Context, cfg *Config) (*http.Request, error) {
	target := r.target(cfg)

	bodyReader, contentType, err := serializeBody(r.Body, r.Headers)
	if err != nil {
		return nil, &APIError{
			Code:      ErrCodeParse,
			Message:   "serializing request body",
			Cause:     err,
			Method:    r.Method,
			URL:       target,
			Timestamp: time.Now(),
		}
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, target, bodyReader)
	if err != nil {
		return nil, err
	}

	// Client defaults first, call-level headers override.
	for key, value := range cfg.Headers {
		req.Header.Set(key, value)
	}
	for key, value := range r.Headers {
		req.Header.Set(key, value)
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", UserAgent)
	}

	if cfg.Auth != nil {
		applyAuth(req, cfg.Auth)
	}

	return req, nil
}

// serializeBody converts the request body into a reader. Strings and bytes
// pass through, readers are used directly, any other value is JSON-encoded.
func serializeBody(body any, headers map[string]string) (io.Reader, string, error) {
	if body == nil {
		return nil, "", nil
	}

	switch b := body.(type) {
	case string:
		return strings.NewReader(b), "", nil
	case []byte:
		return bytes.NewReader(b), "", nil
	case io.Reader:
		return b, "", nil
	case url.Values:
		return strings.NewReader(b.Encode()), "application/x-www-form-urlencoded", nil
	default:
		if declaresNonJSONContentType(headers) {
			return strings.NewReader(fmt.Sprintf("%v", body)), "", nil
		}
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(encoded), "application/json", nil
	}
}

func declaresNonJSONContentType(headers map[string]string) bool {
	for key, value := range headers {
		if strings.EqualFold(key, "Content-Type") {
			return !strings.Contains(strings.ToLower(value), "json")
		}
	}
	return false
}

// applyAuth injects the Authorization header from the auth descriptor.
func applyAuth(req *http.Request, auth *AuthConfig) {
	if auth.Token == "" {
		return
	}
	switch auth.Type {
	case AuthBearer:
		req.Header.Set("Authorization", "Bearer "+auth.Token)
	case AuthBasic:
		req.Header.Set("Authorization", "Basic "+auth.Token)
	case AuthCustom:
		req.Header.Set("Authorization", auth.Token)
	}
}

// endpointFromTarget extracts host+path from a resolved URL for metrics
// labels, dropping query strings to keep cardinality bounded.
func endpointFromTarget(target string) string {
	parsed, err := url.Parse(target)
	if err != nil {
		return "unknown"
	}

	var builder strings.Builder
	builder.WriteString(parsed.Host)

	if parsed.Path != "" && parsed.Path != "/" {
		builder.WriteString(parsed.Path)
	} else {
		builder.WriteByte('/')
	}

	return builder.String()
}
