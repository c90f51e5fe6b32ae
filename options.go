package qsapi

import (
	"fmt"
	"net/http"
	"time"
)

// Option configures a Client at construction time.
type Option func(*Client)

// WithBaseURL sets the base URL used to resolve relative request paths.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.UpdateConfig(func(cfg *Config) {
			cfg.BaseURL = baseURL
		})
	}
}

// WithTimeout sets the client-wide request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.UpdateConfig(func(cfg *Config) {
			cfg.Timeout = d
		})
	}
}

// WithDefaultHeader sets a client-default header applied to every request
// unless overridden at call level.
func WithDefaultHeader(key, value string) Option {
	return func(c *Client) {
		c.UpdateConfig(func(cfg *Config) {
			cfg.Headers[key] = value
		})
	}
}

// WithAuth sets the auth descriptor injected into outgoing requests.
func WithAuth(auth AuthConfig) Option {
	return func(c *Client) {
		c.UpdateConfig(func(cfg *Config) {
			cfg.Auth = &auth
		})
	}
}

// WithBearerToken is shorthand for a bearer auth descriptor.
func WithBearerToken(token string) Option {
	return WithAuth(AuthConfig{Type: AuthBearer, Token: token})
}

// WithRetryConfig replaces the retry configuration consumed by the executor.
func WithRetryConfig(retry RetryConfig) Option {
	return func(c *Client) {
		c.UpdateConfig(func(cfg *Config) {
			cfg.Retry = retry
		})
	}
}

// WithMaxRetries sets the maximum number of retries after the first attempt.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.UpdateConfig(func(cfg *Config) {
			cfg.Retry.MaxAttempts = n
		})
	}
}

// WithRetryCondition sets a custom retry predicate.
func WithRetryCondition(fn RetryCondition) Option {
	return func(c *Client) {
		c.UpdateConfig(func(cfg *Config) {
			cfg.Retry.RetryCondition = fn
		})
	}
}

// WithRetryPolicy replaces the whole retry policy, bypassing RetryConfig.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *Client) {
		c.retryPolicy = policy
	}
}

// WithRetryBudget caps total retries per window across all calls.
func WithRetryBudget(maxRetries int, perWindow time.Duration) Option {
	return func(c *Client) {
		c.retryBudget = NewRetryBudget(maxRetries, perWindow)
	}
}

// WithCache enables response caching with the default in-memory cache.
func WithCache(ttl time.Duration) Option {
	return func(c *Client) {
		c.UpdateConfig(func(cfg *Config) {
			cfg.Cache.Enabled = true
			cfg.Cache.TTL = ttl
		})
	}
}

// WithCacheConfig replaces the cache configuration.
func WithCacheConfig(cache CacheConfig) Option {
	return func(c *Client) {
		c.UpdateConfig(func(cfg *Config) {
			cfg.Cache = cache
		})
	}
}

// WithCustomCache enables caching backed by a caller-supplied store.
func WithCustomCache(cache Cache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cache
		c.UpdateConfig(func(cfg *Config) {
			cfg.Cache.Enabled = true
			cfg.Cache.TTL = ttl
		})
	}
}

// WithCacheCondition sets a custom cache eligibility predicate.
func WithCacheCondition(fn CacheCondition) Option {
	return func(c *Client) {
		c.cacheCondition = fn
	}
}

// WithCircuitBreaker replaces the circuit breaker configuration.
func WithCircuitBreaker(config CircuitBreakerConfig) Option {
	return func(c *Client) {
		c.circuitBreaker = NewCircuitBreaker(config)
	}
}

// WithRateLimiter installs a token-bucket rate limiter shared by all calls.
func WithRateLimiter(maxTokens int, refillRate time.Duration) Option {
	return func(c *Client) {
		c.rateLimiter = NewRateLimiter(maxTokens, refillRate)
	}
}

// WithLimiterRegistry installs per-key rate limiters (typically per host).
func WithLimiterRegistry(registry *LimiterRegistry) Option {
	return func(c *Client) {
		c.limiterRegistry = registry
	}
}

// WithDeduplication coalesces concurrent identical requests onto one
// in-flight call.
func WithDeduplication() Option {
	return func(c *Client) {
		c.dedup = NewDedupTracker()
	}
}

// WithDedupKeyFunc sets a custom deduplication key function.
func WithDedupKeyFunc(fn DedupKeyFunc) Option {
	return func(c *Client) {
		c.dedupKeyFunc = fn
	}
}

// WithDedupCondition sets a custom deduplication eligibility predicate.
func WithDedupCondition(fn DedupCondition) Option {
	return func(c *Client) {
		c.dedupCondition = fn
	}
}

// WithRequestInterceptor appends request interceptors, run in registration
// order before the request is built.
func WithRequestInterceptor(interceptors ...RequestInterceptor) Option {
	return func(c *Client) {
		c.requestInterceptors = append(c.requestInterceptors, interceptors...)
	}
}

// WithResponseInterceptor appends response interceptors, run in registration
// order on success envelopes.
func WithResponseInterceptor(interceptors ...ResponseInterceptor) Option {
	return func(c *Client) {
		c.responseInterceptors = append(c.responseInterceptors, interceptors...)
	}
}

// WithErrorInterceptor appends error interceptors, run in registration order
// on normalized errors.
func WithErrorInterceptor(interceptors ...ErrorInterceptor) Option {
	return func(c *Client) {
		c.errorInterceptors = append(c.errorInterceptors, interceptors...)
	}
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithMetrics enables Prometheus metrics on the default registerer.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithDebug enables debug logging with the default event selection. A console
// logger is installed when none is configured; WithLogger overrides it.
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		if c.logger == nil {
			c.logger = NewSimpleLogger()
		}
	}
}

// WithDebugConfig sets a custom debug event selection.
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		c.debug = config
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSimpleLogger enables debug logging to a console logger.
func WithSimpleLogger() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		c.logger = NewSimpleLogger()
	}
}

// WithRequestIDGenerator sets a custom request ID generator.
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		c.requestIDGen = gen
	}
}

// WithEnvironment applies a built-in profile (development, staging,
// production). An unknown name marks the client configuration invalid.
func WithEnvironment(env Environment) Option {
	return func(c *Client) {
		profile, err := ProfileFor(env)
		if err != nil {
			c.optionError = err
			return
		}
		c.UpdateConfig(func(cfg *Config) {
			*cfg = profile.apply(*cfg)
		})
	}
}

// WithProfile applies an explicit profile on top of the current config.
func WithProfile(profile Profile) Option {
	return func(c *Client) {
		c.UpdateConfig(func(cfg *Config) {
			*cfg = profile.apply(*cfg)
		})
	}
}

// WithProfileFromFile loads the named profile from a YAML file and applies
// it. Missing files or profile names mark the client configuration invalid.
func WithProfileFromFile(path, name string) Option {
	return func(c *Client) {
		profiles, err := LoadProfiles(path)
		if err != nil {
			c.optionError = err
			return
		}
		profile, ok := profiles[name]
		if !ok {
			c.optionError = &APIError{
				Code:      ErrCodeConfiguration,
				Message:   fmt.Sprintf("profile %q not found in %s", name, path),
				Timestamp: time.Now(),
			}
			return
		}
		c.UpdateConfig(func(cfg *Config) {
			*cfg = profile.apply(*cfg)
		})
	}
}

// ValidateConfiguration checks the assembled client configuration and returns
// a CONFIGURATION_ERROR describing every violation found.
func (c *Client) ValidateConfiguration() error {
	if c.optionError != nil {
		return c.optionError
	}

	var problems []string
	problems = append(problems, c.validateRetryConfig()...)
	problems = append(problems, c.validateCacheConfig()...)
	problems = append(problems, c.validateCircuitBreakerConfig()...)
	problems = append(problems, c.validateDebugConfig()...)
	problems = append(problems, c.validateHTTPClientConfig()...)
	problems = append(problems, c.validateExtremeValues()...)

	if len(problems) > 0 {
		return &APIError{
			Code:      ErrCodeConfiguration,
			Message:   "configuration validation failed",
			Cause:     fmt.Errorf("validation errors: %v", problems),
			Timestamp: time.Now(),
		}
	}
	return nil
}

func (c *Client) validateRetryConfig() []string {
	var problems []string
	cfg := c.config.Load()

	if cfg.Retry.MaxAttempts < 0 {
		problems = append(problems, "retry maxAttempts must be non-negative")
	}
	if cfg.Retry.MaxAttempts > 0 && cfg.Retry.RetryDelay <= 0 {
		problems = append(problems, "retryDelay must be positive when retries are enabled")
	}
	if cfg.Retry.MaxDelay > 0 && cfg.Retry.MaxDelay < cfg.Retry.RetryDelay {
		problems = append(problems, "maxDelay must be greater than or equal to retryDelay")
	}
	if cfg.Retry.Jitter < 0 || cfg.Retry.Jitter > 1 {
		problems = append(problems, "jitter must be between 0 and 1")
	}
	if cfg.Timeout <= 0 {
		problems = append(problems, "timeout must be positive")
	}
	return problems
}

func (c *Client) validateCacheConfig() []string {
	var problems []string
	cfg := c.config.Load()

	if cfg.Cache.Enabled && cfg.Cache.TTL <= 0 {
		problems = append(problems, "cache TTL must be positive when caching is enabled")
	}
	if cfg.Cache.MaxSize < 0 {
		problems = append(problems, "cache maxSize must be non-negative")
	}
	return problems
}

func (c *Client) validateCircuitBreakerConfig() []string {
	var problems []string

	if c.circuitBreaker != nil {
		if c.circuitBreaker.config.FailureThreshold <= 0 {
			problems = append(problems, "circuitBreaker FailureThreshold must be positive")
		}
		if c.circuitBreaker.config.RecoveryTimeout <= 0 {
			problems = append(problems, "circuitBreaker RecoveryTimeout must be positive")
		}
		if c.circuitBreaker.config.SuccessThreshold <= 0 {
			problems = append(problems, "circuitBreaker SuccessThreshold must be positive")
		}
	}
	return problems
}

func (c *Client) validateDebugConfig() []string {
	var problems []string

	if c.debug != nil && c.debug.Enabled && c.logger == nil {
		problems = append(problems, "logger must be set when debug is enabled")
	}
	return problems
}

func (c *Client) validateHTTPClientConfig() []string {
	if c.httpClient == nil {
		return []string{"HTTP client cannot be nil"}
	}
	return nil
}

func (c *Client) validateExtremeValues() []string {
	var problems []string
	cfg := c.config.Load()

	if cfg.Retry.MaxAttempts > 100 {
		problems = append(problems, "retry maxAttempts > 100 may cause excessive resource usage")
	}
	if cfg.Retry.MaxDelay > time.Hour {
		problems = append(problems, "maxDelay > 1h may cause extremely long delays")
	}
	if cfg.Timeout > 10*time.Minute {
		problems = append(problems, "timeout > 10m may cause requests to hang for too long")
	}
	if cfg.Cache.Enabled && cfg.Cache.TTL > 24*time.Hour {
		problems = append(problems, "cache TTL > 24h may cause stale data issues")
	}
	return problems
}
