package qsapi

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
)

// attemptResult is the outcome of a single transport attempt before retry and
// envelope handling.
type attemptResult struct {
	data    any
	rawBody []byte
	status  int
	headers http.Header
}

// execute performs one network attempt under the call deadline. The deadline
// context derives from the caller's context, so caller cancellation and the
// timeout compose as first-to-fire; the deferred cancel releases the timer
// either way.
func (c *Client) execute(ctx context.Context, cfg *Config, r *Request) (*attemptResult, error) {
	timeout := cfg.Timeout
	if r.Timeout > 0 {
		timeout = r.Timeout
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := r.build(attemptCtx, cfg)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	data, err := parseBody(rawBody, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, &APIError{
			Code:      ErrCodeParse,
			Message:   "parsing response body",
			Cause:     err,
			Method:    r.Method,
			URL:       httpReq.URL.String(),
			Status:    resp.StatusCode,
			Timestamp: time.Now(),
		}
	}

	return &attemptResult{
		data:    data,
		rawBody: rawBody,
		status:  resp.StatusCode,
		headers: resp.Header.Clone(),
	}, nil
}

// parseBody branches on the declared content type: JSON is decoded (an empty
// body yields nil rather than a parse error), textual content becomes a
// string, anything else stays opaque bytes.
func parseBody(rawBody []byte, contentType string) (any, error) {
	mediaType := contentType
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = parsed
	}

	switch {
	case isJSONMediaType(mediaType):
		if len(rawBody) == 0 {
			return nil, nil
		}
		var data any
		if err := json.Unmarshal(rawBody, &data); err != nil {
			return nil, err
		}
		return data, nil
	case isTextMediaType(mediaType):
		return string(rawBody), nil
	default:
		if len(rawBody) == 0 {
			return nil, nil
		}
		return rawBody, nil
	}
}

func isJSONMediaType(mediaType string) bool {
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func isTextMediaType(mediaType string) bool {
	if strings.HasPrefix(mediaType, "text/") {
		return true
	}
	switch mediaType {
	case "application/xml", "application/x-www-form-urlencoded":
		return true
	}
	return false
}
