// Package qsapi is the QuietSpace API client: a resilient HTTP client that
// wraps every call in a uniform response envelope and layers composable
// reliability primitives around the transport:
//
//   - Retries with exponential backoff + jitter, Retry-After aware, gated on
//     idempotent methods and a global retry budget
//   - Circuit breaker (closed / open / half-open states)
//   - Token bucket rate limiting, optionally per host
//   - In-memory response caching honoring Cache-Control
//   - Request de-duplication (merges concurrent identical in-flight requests)
//   - Request / response / error interceptor pipelines
//   - Prometheus metrics and lightweight structured debug logging
//
// Design goals:
//   - One Envelope per call: failures travel as tagged APIError values inside
//     the envelope, never as panics; callers branch on Envelope.Success or use
//     Envelope.Err for idiomatic error handling
//   - Immutable configuration snapshots: reconfiguring a shared client never
//     races with in-flight calls
//   - Small surface area: functional options configure everything
//   - Safe concurrent use of a single *Client instance
//
// Typical usage:
//
//	client := qsapi.New(
//	    qsapi.WithEnvironment(qsapi.EnvProduction),
//	    qsapi.WithBearerToken(token),
//	    qsapi.WithCache(5*time.Minute),
//	    qsapi.WithDeduplication(),
//	)
//	env := client.Get(ctx, "/users/42")
//	if !env.Success {
//	    log.Printf("request failed: %s", env.Error.Code)
//	}
//
// The library avoids opinionated logging: provide a Logger (e.g. via
// WithSimpleLogger or NewZapLogger) and enable debug flags selectively for
// insight without noise.
package qsapi
