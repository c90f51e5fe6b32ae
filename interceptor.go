package qsapi

import "context"

// RequestInterceptor runs before the request is built. It may mutate the
// per-call Request in place. Returning an error vetoes the call: the error is
// normalized, routed through the error interceptors and returned as a failure
// envelope without touching the network.
type RequestInterceptor func(ctx context.Context, req *Request) error

// ResponseInterceptor runs after a response envelope is constructed, in
// registration order, each one seeing the previous one's mutations.
// Returning an error converts the call into a failure.
type ResponseInterceptor func(ctx context.Context, env *Envelope) error

// ErrorInterceptor runs on the normalized error before the failure envelope is
// returned. Each interceptor receives the previous one's output; returning nil
// keeps the current error.
type ErrorInterceptor func(ctx context.Context, apiErr *APIError) *APIError

// applyRequestInterceptors folds the request pipeline in registration order.
func applyRequestInterceptors(ctx context.Context, interceptors []RequestInterceptor, req *Request) error {
	for _, interceptor := range interceptors {
		if err := interceptor(ctx, req); err != nil {
			return err
		}
	}
	return nil
}

// applyResponseInterceptors folds the response pipeline in registration order.
func applyResponseInterceptors(ctx context.Context, interceptors []ResponseInterceptor, env *Envelope) error {
	for _, interceptor := range interceptors {
		if err := interceptor(ctx, env); err != nil {
			return err
		}
	}
	return nil
}

// applyErrorInterceptors folds the error pipeline in registration order.
func applyErrorInterceptors(ctx context.Context, interceptors []ErrorInterceptor, apiErr *APIError) *APIError {
	current := apiErr
	for _, interceptor := range interceptors {
		if next := interceptor(ctx, current); next != nil {
			current = next
		}
	}
	return current
}
