package apiclient

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/facebookgo/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// WithBaseURL sets the prefix for relative request URLs.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithDefaultHeaders merges headers sent with every request.
func WithDefaultHeaders(headers map[string]string) Option {
	return func(c *Client) {
		if c.defaultHeaders == nil {
			c.defaultHeaders = make(map[string]string, len(headers))
		}
		for k, v := range headers {
			c.defaultHeaders[k] = v
		}
	}
}

// WithDefaultPriority sets the priority recorded for requests without one.
func WithDefaultPriority(p Priority) Option {
	return func(c *Client) {
		c.defaultPriority = p
	}
}

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) {
		c.defaultRetry = p.clone()
	}
}

// WithMaxRetries sets the default number of retries.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.defaultRetry.Count = n
		c.defaultRetry.Disabled = n == 0
	}
}

// WithRetryDelay sets the first retry delay and its growth factor.
func WithRetryDelay(delay time.Duration, factor float64) Option {
	return func(c *Client) {
		c.defaultRetry.Delay = delay
		c.defaultRetry.BackoffFactor = factor
	}
}

// WithMaxRetryDelay caps the wait between retries.
func WithMaxRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		c.defaultRetry.MaxDelay = d
	}
}

// WithJitter sets the jitter factor for backoff (0.0 to 1.0)
func WithJitter(f float64) Option {
	return func(c *Client) {
		if f < 0 {
			f = 0
		}
		if f > 1 {
			f = 1
		}
		c.defaultRetry.Jitter = f
	}
}

// WithRateLimit installs the default fixed-window limiter.
func WithRateLimit(maxRequests int, window time.Duration) Option {
	return func(c *Client) {
		c.defaultRateLimit = &RateLimitPolicy{MaxRequests: maxRequests, TimeWindow: window}
	}
}

// WithCache enables response caching for GET and HEAD requests by default.
func WithCache(ttl time.Duration) Option {
	return func(c *Client) {
		c.defaultCache.Enabled = true
		c.defaultCache.TTL = ttl
	}
}

// WithCacheStrategy selects how cached TTLs are derived by default.
func WithCacheStrategy(s CacheStrategy) Option {
	return func(c *Client) {
		c.defaultCache.Strategy = s
	}
}

// WithValidation sets the default validation policy.
func WithValidation(p ValidationPolicy) Option {
	return func(c *Client) {
		v := p.clone()
		c.defaultValidation = &v
	}
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithRequestInterceptor appends request interceptors.
func WithRequestInterceptor(fns ...RequestInterceptor) Option {
	return func(c *Client) {
		c.interceptors.addRequest(fns...)
	}
}

// WithResponseInterceptor appends response interceptors.
func WithResponseInterceptor(fns ...ResponseInterceptor) Option {
	return func(c *Client) {
		c.interceptors.addResponse(fns...)
	}
}

// WithMiddleware adds middleware around the transport call
func WithMiddleware(middleware ...Middleware) Option {
	return func(c *Client) {
		c.middleware = append(c.middleware, middleware...)
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithMetrics enables Prometheus metrics on a private registry.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsRegistry enables Prometheus metrics on registry.
func WithMetricsRegistry(registry prometheus.Registerer) Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollectorWithRegistry(registry)
	}
}

// WithMetricsCollector sets a custom metrics collector
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithTracerProvider records one client span per logical request.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		if tp == nil {
			c.tracer = defaultTracer()
			return
		}
		c.tracer = tp.Tracer(tracerName)
	}
}

// WithPropagator sets how trace context is written to outgoing headers.
func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(c *Client) {
		c.propagator = p
	}
}

// WithDebug enables debug logging with default configuration
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets custom debug configuration
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		c.debug = config
	}
}

// WithLogger sets a custom logger for debug output
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSimpleLogger enables debug logging with a simple console logger
func WithSimpleLogger() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		c.logger = NewSimpleLogger()
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.RequestIDGen = gen
	}
}

// WithDeduplication merges concurrent cacheable fetches that share a cache
// key. Requests are matched by cache key alone, so merged callers all receive
// the response of whichever fetch started first, sent with that caller's
// headers and X-Request-ID. The network call is aborted once every merged
// caller has been cancelled.
func WithDeduplication() Option {
	return func(c *Client) {
		if c.dedup == nil {
			c.dedup = newCoalescer()
		}
	}
}

// WithClock replaces the time source used for cache expiry, rate limit
// windows, lifecycle timestamps and retry waits.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) {
		c.clock = clk
	}
}

// ValidateConfiguration validates the client configuration and returns an error if invalid
func (c *Client) ValidateConfiguration() error {
	var errors []string

	errors = append(errors, c.validateRetryConfig()...)
	errors = append(errors, c.validateRateLimiterConfig()...)
	errors = append(errors, c.validateCacheConfig()...)
	errors = append(errors, c.validateDebugConfig()...)
	errors = append(errors, c.validateMiddlewareConfig()...)
	errors = append(errors, c.validateHTTPClientConfig()...)
	errors = append(errors, c.validateRequestConfig()...)
	errors = append(errors, c.validateExtremeValues()...)

	if len(errors) > 0 {
		return &Error{
			Kind:      KindValidation,
			Message:   "configuration validation failed",
			Timestamp: time.Now(),
			Cause:     fmt.Errorf("validation errors: %s", strings.Join(errors, "; ")),
		}
	}

	return nil
}

// validateRetryConfig validates retry-related configuration
func (c *Client) validateRetryConfig() []string {
	var errors []string
	p := c.defaultRetry

	if p.Count < 0 {
		errors = append(errors, "retry count must be non-negative")
	}

	if p.Delay < 0 {
		errors = append(errors, "retry delay must be non-negative")
	}

	if p.MaxDelay > 0 && p.MaxDelay < p.Delay {
		errors = append(errors, "max retry delay must be greater than or equal to retry delay")
	}

	if p.BackoffFactor < 0 {
		errors = append(errors, "backoff factor must be non-negative")
	}

	if p.Jitter < 0 || p.Jitter > 1 {
		errors = append(errors, "jitter must be between 0 and 1")
	}

	for _, s := range p.Statuses {
		if s < 100 || s > 599 {
			errors = append(errors, fmt.Sprintf("retry status %d is not an HTTP status", s))
		}
	}

	if c.timeout < 0 {
		errors = append(errors, "timeout must be non-negative")
	}

	return errors
}

// validateRateLimiterConfig validates rate limiter configuration
func (c *Client) validateRateLimiterConfig() []string {
	var errors []string

	if c.defaultRateLimit != nil {
		if c.defaultRateLimit.MaxRequests <= 0 {
			errors = append(errors, "rate limit maxRequests must be positive")
		}
		if c.defaultRateLimit.TimeWindow <= 0 {
			errors = append(errors, "rate limit timeWindow must be positive")
		}
	}

	return errors
}

// validateCacheConfig validates cache configuration
func (c *Client) validateCacheConfig() []string {
	var errors []string

	if c.defaultCache.Enabled && c.defaultCache.TTL <= 0 {
		errors = append(errors, "cache TTL must be positive when cache is enabled")
	}

	switch c.defaultCache.Strategy {
	case "", CacheStrategyMemory, CacheStrategyHTTP:
	default:
		errors = append(errors, fmt.Sprintf("unknown cache strategy %q", c.defaultCache.Strategy))
	}

	return errors
}

// validateDebugConfig validates debug configuration
func (c *Client) validateDebugConfig() []string {
	var errors []string

	if c.debug != nil && c.debug.Enabled && c.logger == nil {
		errors = append(errors, "logger must be set when debug is enabled")
	}

	return errors
}

// validateMiddlewareConfig validates middleware configuration
func (c *Client) validateMiddlewareConfig() []string {
	var errors []string

	for i, middleware := range c.middleware {
		if middleware == nil {
			errors = append(errors, fmt.Sprintf("middleware[%d] cannot be nil", i))
		}
	}

	request, response := c.interceptors.snapshot()
	for i, fn := range request {
		if fn == nil {
			errors = append(errors, fmt.Sprintf("request interceptor[%d] cannot be nil", i))
		}
	}
	for i, fn := range response {
		if fn == nil {
			errors = append(errors, fmt.Sprintf("response interceptor[%d] cannot be nil", i))
		}
	}

	return errors
}

// validateHTTPClientConfig validates HTTP client configuration
func (c *Client) validateHTTPClientConfig() []string {
	var errors []string

	if c.httpClient == nil {
		errors = append(errors, "HTTP client cannot be nil")
	}

	if c.clock == nil {
		errors = append(errors, "clock cannot be nil")
	}

	return errors
}

// validateRequestConfig validates defaults copied into every descriptor
func (c *Client) validateRequestConfig() []string {
	var errors []string

	if c.baseURL != "" && !strings.HasPrefix(c.baseURL, "http://") && !strings.HasPrefix(c.baseURL, "https://") {
		errors = append(errors, "base URL must start with http:// or https://")
	}

	switch c.defaultPriority {
	case PriorityLow, PriorityNormal, PriorityHigh:
	default:
		errors = append(errors, fmt.Sprintf("unknown default priority %q", c.defaultPriority))
	}

	return errors
}

// validateExtremeValues validates that configuration values are within reasonable bounds
func (c *Client) validateExtremeValues() []string {
	var errors []string

	if c.defaultRetry.Count > 100 {
		errors = append(errors, "retry count > 100 may cause excessive resource usage")
	}

	if c.defaultRetry.MaxDelay > time.Hour {
		errors = append(errors, "max retry delay > 1h may cause extremely long delays")
	}

	if c.timeout > 10*time.Minute {
		errors = append(errors, "timeout > 10m may cause requests to hang for too long")
	}

	if c.defaultRateLimit != nil && c.defaultRateLimit.MaxRequests > 1000000 {
		errors = append(errors, "rate limit maxRequests > 1M is effectively unlimited")
	}

	if c.defaultCache.TTL > 24*time.Hour {
		errors = append(errors, "cache TTL > 24h may cause stale data issues")
	}

	return errors
}
