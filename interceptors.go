package apiclient

import (
	"context"
	"sync"
)

// RequestInterceptor transforms a descriptor before the cache lookup and the
// rate limit check. Returning an error aborts the call.
type RequestInterceptor func(ctx context.Context, d Descriptor) (Descriptor, error)

// ResponseInterceptor transforms a successful network response after it has
// been written to the cache. Cache hits skip response interceptors.
type ResponseInterceptor func(ctx context.Context, env *Envelope) (*Envelope, error)

// Interceptors groups the ordered interceptor lists of a client.
type Interceptors struct {
	Request  []RequestInterceptor
	Response []ResponseInterceptor
}

type interceptorChain struct {
	mu       sync.RWMutex
	request  []RequestInterceptor
	response []ResponseInterceptor
}

func (ch *interceptorChain) addRequest(fns ...RequestInterceptor) {
	ch.mu.Lock()
	ch.request = append(ch.request, fns...)
	ch.mu.Unlock()
}

func (ch *interceptorChain) addResponse(fns ...ResponseInterceptor) {
	ch.mu.Lock()
	ch.response = append(ch.response, fns...)
	ch.mu.Unlock()
}

func (ch *interceptorChain) snapshot() ([]RequestInterceptor, []ResponseInterceptor) {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	return append([]RequestInterceptor(nil), ch.request...), append([]ResponseInterceptor(nil), ch.response...)
}

// applyRequest runs request interceptors in registration order. Each one
// receives its own copy so the caller's descriptor is never mutated.
func (ch *interceptorChain) applyRequest(ctx context.Context, d Descriptor) (Descriptor, error) {
	request, _ := ch.snapshot()
	current := d.Clone()
	for _, fn := range request {
		next, err := fn(ctx, current.Clone())
		if err != nil {
			return d, err
		}
		current = next
	}
	return current, nil
}

// applyResponse runs response interceptors in registration order. A nil
// envelope from an interceptor keeps the previous one.
func (ch *interceptorChain) applyResponse(ctx context.Context, env *Envelope) (*Envelope, error) {
	_, response := ch.snapshot()
	current := env
	for _, fn := range response {
		next, err := fn(ctx, current)
		if err != nil {
			return nil, err
		}
		if next != nil {
			current = next
		}
	}
	return current, nil
}
