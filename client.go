package apiclient

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Client executes JSON API requests through the interceptor pipeline, the
// response cache, the rate limiters and the retry loop, recording every
// logical request in its lifecycle tracker. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration

	defaultHeaders    map[string]string
	defaultPriority   Priority
	defaultCache      CachePolicy
	defaultRetry      RetryPolicy
	defaultRateLimit  *RateLimitPolicy
	defaultValidation *ValidationPolicy

	cache        *CacheStore
	limiters     *rateLimiterRegistry
	lifecycle    *LifecycleTracker
	interceptors interceptorChain
	middleware   []Middleware
	dedup        *coalescer

	metrics    *MetricsCollector
	debug      *DebugConfig
	logger     Logger
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
	clock      clock.Clock

	validatorOnce   sync.Once
	validate        *validator.Validate
	validationError error
}

// New constructs a Client using the provided functional options. A best effort
// validation is performed; call IsValid / ValidationError for errors.
func New(options ...Option) *Client {
	client := &Client{
		httpClient:      &http.Client{},
		timeout:         30 * time.Second,
		defaultHeaders:  map[string]string{},
		defaultPriority: PriorityNormal,
		defaultCache: CachePolicy{
			TTL:      DefaultCacheTTL,
			Strategy: CacheStrategyMemory,
		},
		defaultRetry: DefaultRetryPolicy(),
		debug:        DefaultDebugConfig(),
		tracer:       defaultTracer(),
		propagator:   propagation.TraceContext{},
		clock:        clock.New(),
	}

	for _, option := range options {
		option(client)
	}

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	clk := client.clock
	if clk == nil {
		clk = clock.New()
		client.clock = clk
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{}
	}
	var idGen func() string
	if client.debug != nil {
		idGen = client.debug.RequestIDGen
	}

	client.cache = NewCacheStore(clk)
	client.limiters = newRateLimiterRegistry(clk)
	client.limiters.setDefault(client.defaultRateLimit)
	client.lifecycle = NewLifecycleTracker(clk, idGen)

	return client
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, url string, opts ...RequestOption) (*Envelope, error) {
	return c.send(ctx, http.MethodGet, url, nil, opts)
}

// Head performs a HEAD request.
func (c *Client) Head(ctx context.Context, url string, opts ...RequestOption) (*Envelope, error) {
	return c.send(ctx, http.MethodHead, url, nil, opts)
}

// Post performs a POST request. Non-reader bodies are encoded as JSON.
func (c *Client) Post(ctx context.Context, url string, body any, opts ...RequestOption) (*Envelope, error) {
	return c.send(ctx, http.MethodPost, url, body, opts)
}

// Put performs a PUT request.
func (c *Client) Put(ctx context.Context, url string, body any, opts ...RequestOption) (*Envelope, error) {
	return c.send(ctx, http.MethodPut, url, body, opts)
}

// Patch performs a PATCH request.
func (c *Client) Patch(ctx context.Context, url string, body any, opts ...RequestOption) (*Envelope, error) {
	return c.send(ctx, http.MethodPatch, url, body, opts)
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, url string, opts ...RequestOption) (*Envelope, error) {
	return c.send(ctx, http.MethodDelete, url, nil, opts)
}

// Do executes a caller built descriptor layered over the client defaults.
func (c *Client) Do(ctx context.Context, d Descriptor) (*Envelope, error) {
	return c.execute(ctx, c.withDefaults(d))
}

func (c *Client) send(ctx context.Context, method, url string, body any, opts []RequestOption) (*Envelope, error) {
	d := Descriptor{URL: url, Method: method, Body: body}
	for _, opt := range opts {
		if opt != nil {
			opt(&d)
		}
	}
	return c.execute(ctx, c.withDefaults(d))
}

// withDefaults layers a per-call descriptor over the client configuration.
// Headers merge key-wise and nested policies merge field by field.
func (c *Client) withDefaults(call Descriptor) Descriptor {
	d := call.Clone()

	d.Method = strings.ToUpper(d.Method)
	if d.Method == "" {
		d.Method = http.MethodGet
	}

	d.Headers = make(map[string]string, len(c.defaultHeaders)+len(call.Headers))
	for k, v := range c.defaultHeaders {
		d.Headers[k] = v
	}
	for k, v := range call.Headers {
		d.Headers[k] = v
	}

	if d.Priority == "" {
		d.Priority = c.defaultPriority
	}
	if d.Credentials == "" {
		d.Credentials = CredentialsInclude
	}
	if d.Redirect == "" {
		d.Redirect = RedirectFollow
	}
	if d.CacheMode == "" {
		d.CacheMode = CacheModeDefault
	}
	if d.Timeout <= 0 {
		d.Timeout = c.timeout
	}

	d.Cache = c.defaultCache.merge(call.Cache)
	d.Retry = c.defaultRetry.merge(call.Retry)

	switch {
	case c.defaultValidation != nil && call.Validation != nil:
		v := c.defaultValidation.merge(*call.Validation)
		d.Validation = &v
	case c.defaultValidation != nil:
		v := c.defaultValidation.clone()
		d.Validation = &v
	}

	return d
}

// UseRequestInterceptor appends request interceptors after construction.
func (c *Client) UseRequestInterceptor(fns ...RequestInterceptor) {
	c.interceptors.addRequest(fns...)
}

// UseResponseInterceptor appends response interceptors after construction.
func (c *Client) UseResponseInterceptor(fns ...ResponseInterceptor) {
	c.interceptors.addResponse(fns...)
}

// ClearCache drops every cached response.
func (c *Client) ClearCache() {
	c.cache.Clear()
	c.metrics.RecordCacheSize("default", 0)
}

// InvalidateCache drops the cached response of one request.
func (c *Client) InvalidateCache(method, url string) {
	d := c.withDefaults(Descriptor{URL: url, Method: method})
	resolved, err := c.resolveURL(d)
	if err != nil {
		return
	}
	c.cache.Delete(CacheKey(d, resolved.String()))
	c.metrics.RecordCacheSize("default", c.cache.Len())
}

// CancelRequest signals cancellation of a pending request. It reports false
// for unknown ids, finished requests and repeated calls.
func (c *Client) CancelRequest(id string) bool {
	return c.lifecycle.Cancel(id)
}

// GetRequestState returns a snapshot of one request record.
func (c *Client) GetRequestState(id string) (RequestState, bool) {
	return c.lifecycle.Get(id)
}

// GetAllRequestStates returns snapshots of every record ordered by start time.
func (c *Client) GetAllRequestStates() []RequestState {
	return c.lifecycle.All()
}

// ClearRequestStates drops finished records and returns how many were removed.
func (c *Client) ClearRequestStates() int {
	return c.lifecycle.Clear()
}

// RemoveRequestState drops one finished record. It returns
// ErrRequestNotFound for unknown ids and ErrRequestPending while in flight.
func (c *Client) RemoveRequestState(id string) error {
	return c.lifecycle.Remove(id)
}

// GetRateLimitState returns the default limiter's window, or false when no
// default limit is configured.
func (c *Client) GetRateLimitState() (RateLimitState, bool) {
	limiter := c.limiters.defaultLimiter()
	if limiter == nil {
		return RateLimitState{}, false
	}
	return limiter.State(), true
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}
