package qsapi

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"
)

// Client is a resilient API client that layers retries, circuit breaking,
// rate limiting, caching, de-duplication, interceptors and metrics around the
// standard net/http Client. Every call yields exactly one Envelope; failures
// are carried inside the envelope, never returned as panics or bare errors.
// A single Client is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	config     atomic.Pointer[Config]

	requestInterceptors  []RequestInterceptor
	responseInterceptors []ResponseInterceptor
	errorInterceptors    []ErrorInterceptor

	retryPolicy RetryPolicy
	retryBudget *RetryBudget

	circuitBreaker  *CircuitBreaker
	rateLimiter     Limiter
	limiterRegistry *LimiterRegistry

	cache          Cache
	cacheCondition CacheCondition

	dedup          *DedupTracker
	dedupKeyFunc   DedupKeyFunc
	dedupCondition DedupCondition

	metrics      *MetricsCollector
	debug        *DebugConfig
	logger       Logger
	requestIDGen func() string

	optionError     error
	validationError error
}

// New constructs a Client from the default config snapshot and the provided
// functional options. Configuration is validated best-effort; call IsValid or
// ValidationError to inspect the result, or rely on the CONFIGURATION_ERROR
// envelopes invalid clients produce.
func New(options ...Option) *Client {
	client := &Client{
		httpClient:     &http.Client{},
		cacheCondition: DefaultCacheCondition,
		dedupKeyFunc:   DefaultDedupKeyFunc,
		dedupCondition: DefaultDedupCondition,
		debug:          DefaultDebugConfig(),
		requestIDGen:   newRequestID,
		circuitBreaker: NewCircuitBreaker(CircuitBreakerConfig{}),
	}
	cfg := DefaultConfig()
	client.config.Store(&cfg)

	for _, option := range options {
		option(client)
	}

	if client.cache == nil {
		client.cache = NewBoundedCache(client.config.Load().Cache.MaxSize)
	}

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	return client
}

// Config returns a copy of the current configuration snapshot.
func (c *Client) Config() Config {
	return c.config.Load().clone()
}

// UpdateConfig applies the mutation to a copy of the current snapshot and
// swaps it in atomically. In-flight calls keep the snapshot they loaded at
// entry and never observe a torn update.
func (c *Client) UpdateConfig(update func(*Config)) {
	for {
		current := c.config.Load()
		next := current.clone()
		update(&next)
		if c.config.CompareAndSwap(current, &next) {
			return
		}
	}
}

// SetAuth replaces the auth descriptor.
func (c *Client) SetAuth(auth AuthConfig) {
	c.UpdateConfig(func(cfg *Config) {
		cfg.Auth = &auth
	})
}

// ClearAuth removes the auth descriptor.
func (c *Client) ClearAuth() {
	c.UpdateConfig(func(cfg *Config) {
		cfg.Auth = nil
	})
}

// SetBaseURL replaces the base URL used to resolve relative paths.
func (c *Client) SetBaseURL(baseURL string) {
	c.UpdateConfig(func(cfg *Config) {
		cfg.BaseURL = baseURL
	})
}

// SetHeader sets a client-default header.
func (c *Client) SetHeader(key, value string) {
	c.UpdateConfig(func(cfg *Config) {
		cfg.Headers[key] = value
	})
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, url string, opts ...RequestOption) *Envelope {
	return c.Do(ctx, newRequest(http.MethodGet, url, nil, opts...))
}

// Post issues a POST request with the given body.
func (c *Client) Post(ctx context.Context, url string, body any, opts ...RequestOption) *Envelope {
	return c.Do(ctx, newRequest(http.MethodPost, url, body, opts...))
}

// Put issues a PUT request with the given body.
func (c *Client) Put(ctx context.Context, url string, body any, opts ...RequestOption) *Envelope {
	return c.Do(ctx, newRequest(http.MethodPut, url, body, opts...))
}

// Patch issues a PATCH request with the given body.
func (c *Client) Patch(ctx context.Context, url string, body any, opts ...RequestOption) *Envelope {
	return c.Do(ctx, newRequest(http.MethodPatch, url, body, opts...))
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, url string, opts ...RequestOption) *Envelope {
	return c.Do(ctx, newRequest(http.MethodDelete, url, nil, opts...))
}

// GetJSON issues a GET and decodes the JSON body into v.
func (c *Client) GetJSON(ctx context.Context, url string, v any, opts ...RequestOption) error {
	return c.Get(ctx, url, opts...).DecodeJSON(v)
}

// PostJSON issues a POST with the given body and decodes the JSON response
// into v.
func (c *Client) PostJSON(ctx context.Context, url string, body, v any, opts ...RequestOption) error {
	return c.Post(ctx, url, body, opts...).DecodeJSON(v)
}

// Do runs the full pipeline for a prepared Request: request interceptors,
// de-duplication, cache lookup, the retry loop around the transport, response
// or error interceptors, and envelope construction.
func (c *Client) Do(ctx context.Context, req *Request) *Envelope {
	start := time.Now()
	cfg := c.config.Load()
	requestID := c.requestIDGen()

	if c.validationError != nil {
		apiErr := Normalize(c.validationError)
		return c.fail(ctx, apiErr, 0, nil, start, 0, requestID)
	}

	if err := applyRequestInterceptors(ctx, c.requestInterceptors, req); err != nil {
		apiErr := c.enrich(Normalize(err), req, "", requestID, 0, start)
		return c.fail(ctx, apiErr, 0, nil, start, 0, requestID)
	}

	target := req.target(cfg)
	endpoint := endpointFromTarget(target)

	if c.debug != nil && c.debug.Enabled && c.debug.LogRequests && c.logger != nil {
		c.logger.Debug("starting request", "requestID", requestID, "method", req.Method, "url", target)
	}

	c.metrics.RecordRequestStart(req.Method, endpoint)
	defer c.metrics.RecordRequestEnd(req.Method, endpoint)

	dedupEnabled := c.dedup != nil && c.dedupCondition(req)
	var dedupKey string
	if dedupEnabled {
		dedupKey = c.dedupKeyFunc(req.Method, target, req.Body)
		entry, owner := c.dedup.GetOrCreateEntry(dedupKey)
		if !owner {
			env, err := entry.Wait(ctx)
			if err != nil {
				apiErr := c.enrich(Normalize(err), req, target, requestID, 0, start)
				return c.fail(ctx, apiErr, 0, nil, start, 0, requestID)
			}
			c.metrics.RecordDedupHit(req.Method, endpoint)
			c.metrics.RecordRequest(req.Method, endpoint, env.Status, time.Since(start))
			if c.debug != nil && c.debug.Enabled && c.debug.LogDedup && c.logger != nil {
				c.logger.Debug("coalesced onto in-flight request", "requestID", requestID, "dedupKey", dedupKey)
			}
			return env
		}
	}

	env := c.doOwned(ctx, cfg, req, target, endpoint, requestID, start)

	if dedupEnabled {
		c.dedup.Complete(dedupKey, env)
	}

	c.metrics.RecordRequest(req.Method, endpoint, env.Status, time.Since(start))
	return env
}

// doOwned is the non-coalesced path: cache, retry loop, envelope handling.
func (c *Client) doOwned(ctx context.Context, cfg *Config, req *Request, target, endpoint, requestID string, start time.Time) *Envelope {
	cacheEnabled := c.cache != nil && cfg.Cache.Enabled && !req.NoCache && c.cacheCondition(req)
	var cacheKey string
	if cacheEnabled {
		cacheKey = c.cacheKey(cfg, req.Method, target)
		if entry, found := c.cache.Get(cacheKey); found {
			c.metrics.RecordCacheHit(req.Method, endpoint)
			if c.debug != nil && c.debug.Enabled && c.debug.LogCache && c.logger != nil {
				c.logger.Debug("cache hit", "requestID", requestID, "cacheKey", cacheKey)
			}
			// Decode fresh from the raw body; replayed envelopes must not
			// alias the stored entry, or a caller mutating one envelope's
			// data would poison every later hit.
			data := entry.Data
			if parsed, err := parseBody(entry.RawBody, entry.Header.Get("Content-Type")); err == nil {
				data = parsed
			}
			return &Envelope{
				Data:       data,
				Status:     entry.Status,
				StatusText: statusText(entry.Status),
				Headers:    entry.Header.Clone(),
				Success:    true,
				Metadata: Metadata{
					Duration:  time.Since(start),
					Cached:    true,
					RequestID: requestID,
				},
				rawBody: entry.RawBody,
			}
		}
		c.metrics.RecordCacheMiss(req.Method, endpoint)
	}

	env := c.doWithRetry(ctx, cfg, req, target, endpoint, requestID, start)

	if cacheEnabled && env.Success && env.Status < 400 {
		if ttl, ok := cacheTTLFor(env.Headers, cfg.Cache.TTL); ok {
			// Clone the headers so later caller mutations of this
			// envelope cannot reach the stored entry.
			c.cache.Set(cacheKey, &CacheEntry{
				Data:    env.Data,
				RawBody: env.rawBody,
				Status:  env.Status,
				Header:  env.Headers.Clone(),
			}, ttl)
			c.metrics.RecordCacheSize("default", c.cache.Len())
			if c.debug != nil && c.debug.Enabled && c.debug.LogCache && c.logger != nil {
				c.logger.Debug("response cached", "requestID", requestID, "cacheKey", cacheKey, "ttl", ttl)
			}
		}
	}

	return env
}

// doWithRetry executes transport attempts until the retry policy gives up.
func (c *Client) doWithRetry(ctx context.Context, cfg *Config, req *Request, target, endpoint, requestID string, start time.Time) *Envelope {
	policy := c.retryPolicy
	if policy == nil {
		policy = NewRetryPolicy(cfg.Retry)
	}

	for attempt := 0; ; attempt++ {
		if denied := c.checkLimits(ctx, req, target, endpoint, requestID, attempt, start); denied != nil {
			return denied
		}

		if attempt > 0 {
			if c.debug != nil && c.debug.Enabled && c.debug.LogRetries && c.logger != nil {
				c.logger.Info("retry attempt", "requestID", requestID, "attempt", attempt, "url", target)
			}
			c.metrics.RecordRetry(req.Method, endpoint, attempt)
		}

		result, err := c.execute(ctx, cfg, req)

		status := 0
		var header http.Header
		if result != nil {
			status = result.status
			header = result.headers
		}

		// Only transient faults count against the breaker; a response the
		// client could not parse is not a server health signal.
		serverFault := status >= 500
		if err != nil {
			serverFault = IsTransient(Normalize(err))
		}
		if serverFault {
			c.circuitBreaker.RecordFailure()
		} else {
			c.circuitBreaker.RecordSuccess()
		}
		c.metrics.RecordCircuitBreakerState("default", c.circuitBreaker.State())

		delay, retry := policy.ShouldRetry(req.Method, status, header, err, attempt)
		if retry {
			if c.retryBudget != nil && !c.retryBudget.Allow() {
				c.metrics.RecordRetryBudgetExceeded(endpoint)
				if c.debug != nil && c.debug.Enabled && c.debug.LogRetries && c.logger != nil {
					c.logger.Warn("retry budget exceeded", "requestID", requestID, "url", target)
				}
				apiErr := c.enrich(&APIError{
					Code:      ErrCodeConnection,
					Message:   "retry budget exceeded",
					Cause:     ErrRetryBudgetExceeded,
					Timestamp: time.Now(),
				}, req, target, requestID, attempt, start)
				return c.fail(ctx, apiErr, status, header, start, attempt, requestID)
			}

			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				apiErr := c.enrich(Normalize(ctx.Err()), req, target, requestID, attempt, start)
				return c.fail(ctx, apiErr, status, header, start, attempt, requestID)
			}
		}

		if err != nil {
			apiErr := c.enrich(Normalize(err), req, target, requestID, attempt, start)
			c.metrics.RecordError(apiErr.Code, req.Method, endpoint)
			return c.fail(ctx, apiErr, status, header, start, attempt, requestID)
		}

		if status >= 400 {
			apiErr := c.enrich(c.statusError(result, target), req, target, requestID, attempt, start)
			c.metrics.RecordError(apiErr.Code, req.Method, endpoint)
			return c.fail(ctx, apiErr, status, header, start, attempt, requestID)
		}

		env := newSuccessEnvelope(result.data, result.rawBody, status, header, Metadata{
			Duration:   time.Since(start),
			RetryCount: attempt,
			RequestID:  requestID,
		})

		if err := applyResponseInterceptors(ctx, c.responseInterceptors, env); err != nil {
			apiErr := c.enrich(Normalize(err), req, target, requestID, attempt, start)
			c.metrics.RecordError(apiErr.Code, req.Method, endpoint)
			return c.fail(ctx, apiErr, status, header, start, attempt, requestID)
		}

		return env
	}
}

// checkLimits enforces the rate limiter and circuit breaker before an attempt.
func (c *Client) checkLimits(ctx context.Context, req *Request, target, endpoint, requestID string, attempt int, start time.Time) *Envelope {
	limiter := c.rateLimiter
	limiterName := "default"
	if c.limiterRegistry != nil {
		if httpReq, err := http.NewRequest(req.Method, target, nil); err == nil {
			limiter, limiterName = c.limiterRegistry.For(httpReq)
		}
	}
	if limiter != nil {
		if !limiter.Allow() {
			if c.debug != nil && c.debug.Enabled && c.debug.LogRateLimit && c.logger != nil {
				c.logger.Warn("rate limit exceeded", "requestID", requestID, "url", target)
			}
			c.metrics.RecordError(ErrCodeConnection, req.Method, endpoint)
			apiErr := c.enrich(&APIError{
				Code:      ErrCodeConnection,
				Message:   "rate limit exceeded",
				Cause:     ErrRateLimited,
				Timestamp: time.Now(),
			}, req, target, requestID, attempt, start)
			return c.fail(ctx, apiErr, 0, nil, start, attempt, requestID)
		}
		if tb, ok := limiter.(*RateLimiter); ok {
			c.metrics.RecordRateLimiterTokens(limiterName, tb.Tokens())
		}
	}

	if !c.circuitBreaker.Allow() {
		if c.debug != nil && c.debug.Enabled && c.debug.LogCircuit && c.logger != nil {
			c.logger.Warn("circuit breaker open", "requestID", requestID, "url", target)
		}
		c.metrics.RecordError(ErrCodeConnection, req.Method, endpoint)
		apiErr := c.enrich(&APIError{
			Code:      ErrCodeConnection,
			Message:   "circuit breaker is open",
			Cause:     ErrCircuitOpen,
			Timestamp: time.Now(),
		}, req, target, requestID, attempt, start)
		return c.fail(ctx, apiErr, 0, nil, start, attempt, requestID)
	}

	return nil
}

// statusError builds the tagged error for a non-2xx/3xx response, attaching
// the parsed body for caller inspection.
func (c *Client) statusError(result *attemptResult, target string) *APIError {
	apiErr := &APIError{
		Code:      classifyStatus(result.status, result.headers),
		Message:   "request failed with status " + statusText(result.status),
		Status:    result.status,
		URL:       target,
		Timestamp: time.Now(),
	}
	if result.data != nil {
		apiErr.Details = map[string]any{"body": result.data}
	}
	return apiErr
}

// enrich stamps call context onto an error without overwriting fields set at
// the point of failure.
func (c *Client) enrich(apiErr *APIError, req *Request, target, requestID string, attempt int, start time.Time) *APIError {
	if apiErr.RequestID == "" {
		apiErr.RequestID = requestID
	}
	if apiErr.Method == "" {
		apiErr.Method = req.Method
	}
	if apiErr.URL == "" {
		apiErr.URL = target
	}
	if apiErr.Attempt == 0 {
		apiErr.Attempt = attempt
	}
	if apiErr.Timestamp.IsZero() {
		apiErr.Timestamp = time.Now()
	}
	apiErr.Duration = time.Since(start)
	return apiErr
}

// fail runs the error interceptors and wraps the final error in a failure
// envelope.
func (c *Client) fail(ctx context.Context, apiErr *APIError, status int, headers http.Header, start time.Time, retryCount int, requestID string) *Envelope {
	final := applyErrorInterceptors(ctx, c.errorInterceptors, apiErr)
	if status == 0 {
		status = final.Status
	}
	return newFailureEnvelope(final, status, headers, Metadata{
		Duration:   time.Since(start),
		RetryCount: retryCount,
		RequestID:  requestID,
	})
}

// cacheKey applies the configured key generator or the default method+URL key.
func (c *Client) cacheKey(cfg *Config, method, target string) string {
	if cfg.Cache.KeyGenerator != nil {
		return cfg.Cache.KeyGenerator(method, target)
	}
	return DefaultCacheKey(method, target)
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}
