package qsapi

import (
	"fmt"
	"maps"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AuthType selects how the Authorization header is built from an AuthConfig.
type AuthType string

const (
	AuthBearer AuthType = "bearer"
	AuthBasic  AuthType = "basic"
	AuthCustom AuthType = "custom"
)

// AuthConfig describes the credential injected into outgoing requests.
// For AuthBearer the token is sent as "Bearer <token>", for AuthBasic as
// "Basic <token>" (token must already be base64 user:pass), and for
// AuthCustom the token is sent verbatim.
type AuthConfig struct {
	Type  AuthType `yaml:"type"`
	Token string   `yaml:"token"`
}

// RetryConfig controls the retry loop executed for each call.
type RetryConfig struct {
	// MaxAttempts is the number of retries after the initial attempt.
	MaxAttempts int `yaml:"max_attempts"`

	// RetryDelay is the base delay before the first retry.
	RetryDelay time.Duration `yaml:"retry_delay"`

	// MaxDelay caps the computed backoff.
	MaxDelay time.Duration `yaml:"max_delay"`

	// ExponentialBackoff grows the delay per attempt when true; otherwise the
	// base delay is used for every retry.
	ExponentialBackoff bool `yaml:"exponential_backoff"`

	// Jitter is the uniform jitter factor in [0, 1] applied to the delay.
	Jitter float64 `yaml:"jitter"`

	// RetryCondition overrides the default retry predicate when non-nil.
	RetryCondition RetryCondition `yaml:"-"`
}

// CacheConfig controls response caching.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`

	// MaxSize bounds the number of cached entries; zero means unbounded.
	MaxSize int `yaml:"max_size"`

	// KeyGenerator overrides the default method+URL cache key when non-nil.
	KeyGenerator func(method, url string) string `yaml:"-"`
}

// Config is an immutable snapshot of client-wide settings. Each call loads one
// snapshot at entry; configuration updates swap in a fresh snapshot and never
// mutate one that an in-flight call may be reading.
type Config struct {
	BaseURL string            `yaml:"base_url"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
	Auth    *AuthConfig       `yaml:"auth"`
	Retry   RetryConfig       `yaml:"retry"`
	Cache   CacheConfig       `yaml:"cache"`
}

// DefaultTimeout applies when neither the config nor the call sets one.
const DefaultTimeout = 10 * time.Second

// DefaultConfig returns the baseline snapshot used by New.
func DefaultConfig() Config {
	return Config{
		Timeout: DefaultTimeout,
		Headers: map[string]string{},
		Retry: RetryConfig{
			MaxAttempts:        3,
			RetryDelay:         100 * time.Millisecond,
			MaxDelay:           10 * time.Second,
			ExponentialBackoff: true,
			Jitter:             0.1,
		},
		Cache: CacheConfig{
			TTL: 5 * time.Minute,
		},
	}
}

// clone produces a deep-enough copy for copy-on-write updates. Function fields
// are shared; the header map is copied.
func (c Config) clone() Config {
	out := c
	out.Headers = maps.Clone(c.Headers)
	if out.Headers == nil {
		out.Headers = map[string]string{}
	}
	if c.Auth != nil {
		auth := *c.Auth
		out.Auth = &auth
	}
	return out
}

// Environment names a built-in configuration profile.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Profile carries the per-environment defaults applied on top of the baseline
// config. Profiles may come from the built-in presets or a YAML file.
type Profile struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	Retry   RetryConfig   `yaml:"retry"`
}

// UnmarshalYAML decodes a profile, accepting Go duration syntax ("10s",
// "250ms") for the duration fields.
func (p *Profile) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		BaseURL string `yaml:"base_url"`
		Timeout string `yaml:"timeout"`
		Retry   struct {
			MaxAttempts        int     `yaml:"max_attempts"`
			RetryDelay         string  `yaml:"retry_delay"`
			MaxDelay           string  `yaml:"max_delay"`
			ExponentialBackoff bool    `yaml:"exponential_backoff"`
			Jitter             float64 `yaml:"jitter"`
		} `yaml:"retry"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	parse := func(s string) (time.Duration, error) {
		if s == "" {
			return 0, nil
		}
		return time.ParseDuration(s)
	}

	timeout, err := parse(raw.Timeout)
	if err != nil {
		return fmt.Errorf("timeout: %w", err)
	}
	retryDelay, err := parse(raw.Retry.RetryDelay)
	if err != nil {
		return fmt.Errorf("retry_delay: %w", err)
	}
	maxDelay, err := parse(raw.Retry.MaxDelay)
	if err != nil {
		return fmt.Errorf("max_delay: %w", err)
	}

	p.BaseURL = raw.BaseURL
	p.Timeout = timeout
	p.Retry = RetryConfig{
		MaxAttempts:        raw.Retry.MaxAttempts,
		RetryDelay:         retryDelay,
		MaxDelay:           maxDelay,
		ExponentialBackoff: raw.Retry.ExponentialBackoff,
		Jitter:             raw.Retry.Jitter,
	}
	return nil
}

var builtinProfiles = map[Environment]Profile{
	EnvDevelopment: {
		BaseURL: "http://localhost:8080/api",
		Timeout: 30 * time.Second,
		Retry:   RetryConfig{MaxAttempts: 0, RetryDelay: 100 * time.Millisecond, MaxDelay: time.Second},
	},
	EnvStaging: {
		BaseURL: "https://staging.quietspace.io/api",
		Timeout: 15 * time.Second,
		Retry:   RetryConfig{MaxAttempts: 2, RetryDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second, ExponentialBackoff: true, Jitter: 0.1},
	},
	EnvProduction: {
		BaseURL: "https://api.quietspace.io",
		Timeout: 10 * time.Second,
		Retry:   RetryConfig{MaxAttempts: 3, RetryDelay: 100 * time.Millisecond, MaxDelay: 10 * time.Second, ExponentialBackoff: true, Jitter: 0.2},
	},
}

// ProfileFor returns the built-in profile for the named environment. Unknown
// names are a configuration error.
func ProfileFor(env Environment) (Profile, error) {
	profile, ok := builtinProfiles[env]
	if !ok {
		return Profile{}, &APIError{
			Code:      ErrCodeConfiguration,
			Message:   fmt.Sprintf("unknown environment %q", env),
			Timestamp: time.Now(),
		}
	}
	return profile, nil
}

// LoadProfiles reads named profiles from a YAML file. Durations use Go syntax
// ("10s", "250ms").
func LoadProfiles(path string) (map[string]Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &APIError{
			Code:      ErrCodeConfiguration,
			Message:   fmt.Sprintf("reading profiles file %s", path),
			Cause:     err,
			Timestamp: time.Now(),
		}
	}

	profiles := map[string]Profile{}
	if err := yaml.Unmarshal(data, &profiles); err != nil {
		return nil, &APIError{
			Code:      ErrCodeConfiguration,
			Message:   fmt.Sprintf("parsing profiles file %s", path),
			Cause:     err,
			Timestamp: time.Now(),
		}
	}
	return profiles, nil
}

// apply overlays the profile onto a config snapshot.
func (p Profile) apply(cfg Config) Config {
	out := cfg.clone()
	if p.BaseURL != "" {
		out.BaseURL = p.BaseURL
	}
	if p.Timeout > 0 {
		out.Timeout = p.Timeout
	}
	if p.Retry.RetryDelay > 0 || p.Retry.MaxAttempts > 0 {
		cond := out.Retry.RetryCondition
		out.Retry = p.Retry
		out.Retry.RetryCondition = cond
	}
	return out
}
