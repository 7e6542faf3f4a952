package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// execute runs one logical request: lifecycle record, interceptors, cache,
// rate limit, validation, network and retries.
func (c *Client) execute(parent context.Context, d Descriptor) (*Envelope, error) {
	start := c.clock.Now()

	ctx, cancel := context.WithCancelCause(parent)
	defer cancel(nil)

	id, err := c.lifecycle.Begin(d, func() { cancel(ErrCanceled) })
	if err != nil {
		return nil, c.classify(err, nil, nil, d, d.RequestID, 0)
	}
	d.RequestID = id

	endpoint := "unknown"
	if resolved, err := c.resolveURL(d); err == nil {
		endpoint = endpointOf(resolved)
	}

	ctx, span := c.startSpan(ctx, d)
	c.metrics.RecordRequestStart(d.Method, endpoint)
	c.logRequest("Starting request", "requestID", id, "method", d.Method, "url", d.URL, "priority", d.Priority)

	env, cerr, retries := c.run(ctx, d)

	duration := c.clock.Now().Sub(start)
	c.metrics.RecordRequestEnd(d.Method, endpoint)

	if cerr != nil {
		c.lifecycle.Fail(id, cerr)
		c.metrics.RecordRequest(d.Method, endpoint, cerr.Status, duration)
		c.metrics.RecordError(cerr.Kind, d.Method, endpoint)
		if cerr.Canceled {
			c.metrics.RecordCancellation(d.Method, endpoint)
		}
		c.logFailure("Request failed", "requestID", id, "kind", cerr.Kind, "status", cerr.Status, "retries", retries, "error", cerr.Message)
		endSpan(span, id, nil, cerr, retries)
		return nil, cerr
	}

	c.lifecycle.Complete(id)
	c.metrics.RecordRequest(d.Method, endpoint, env.Status, duration)
	c.logRequest("Request completed", "requestID", id, "status", env.Status, "cached", env.Cached, "retries", retries, "duration", duration)
	endSpan(span, id, env, nil, retries)
	return env, nil
}

// run applies request interceptors and drives the retry loop. Retries reuse
// the transformed descriptor unless the policy asks for interceptor replay.
func (c *Client) run(ctx context.Context, original Descriptor) (*Envelope, *Error, int) {
	id := original.RequestID

	d, err := c.interceptors.applyRequest(ctx, original)
	if err != nil {
		return nil, c.classify(err, nil, nil, original, id, 0), 0
	}

	retries := 0
	for {
		env, cerr := c.attempt(ctx, id, d, retries)
		if cerr == nil {
			return env, nil, retries
		}
		if !d.Retry.allows(cerr, retries) || ctx.Err() != nil {
			return nil, cerr, retries
		}

		delay := d.Retry.delayFor(retries, cerr.RetryAfter())
		c.lifecycle.MarkRetrying(id)
		retries++

		endpoint := "unknown"
		if resolved, err := c.resolveURL(d); err == nil {
			endpoint = endpointOf(resolved)
		}
		c.metrics.RecordRetry(d.Method, endpoint, retries)
		c.logRetry("Scheduling retry", "requestID", id, "attempt", retries, "maxRetries", d.Retry.maxRetries(), "backoff", delay, "kind", cerr.Kind, "status", cerr.Status)

		if err := c.wait(ctx, delay); err != nil {
			return nil, c.classify(err, nil, nil, d, id, retries), retries
		}

		if d.Retry.ReplayInterceptors {
			next, err := c.interceptors.applyRequest(ctx, original)
			if err != nil {
				return nil, c.classify(err, nil, nil, original, id, retries), retries
			}
			d = next
		}
	}
}

// attempt is one pass from the cache lookup to the response interceptors.
func (c *Client) attempt(ctx context.Context, id string, d Descriptor, retries int) (*Envelope, *Error) {
	resolved, err := c.resolveURL(d)
	if err != nil {
		return nil, c.classify(err, nil, nil, d, id, retries)
	}
	endpoint := endpointOf(resolved)
	key := CacheKey(d, resolved.String())

	if cacheReadable(d) {
		if env, ok := c.cache.Lookup(key); ok {
			c.metrics.RecordCacheHit(d.Method, endpoint)
			c.logCache("Cache hit", "requestID", id, "cacheKey", key)
			env.RequestID = id
			return env, nil
		}
		c.metrics.RecordCacheMiss(d.Method, endpoint)
		c.logCache("Cache miss", "requestID", id, "cacheKey", key)
	}

	if limiter, name := c.limiters.limiterFor(d.RateLimit); limiter != nil {
		if !limiter.TryConsume() {
			c.metrics.RecordRateLimitDenial(name)
			c.logRateLimit("Rate limit exceeded", "requestID", id, "limiter", name, "endpoint", endpoint)
			return nil, c.classify(ErrRateLimited, nil, nil, d, id, retries)
		}
		c.metrics.RecordRateLimiterTokens(name, limiter.State().Tokens)
	}

	if err := c.validateRequest(ctx, d); err != nil {
		return nil, c.classify(err, nil, nil, d, id, retries)
	}

	var env *Envelope
	var cerr *Error
	if c.dedup != nil && cacheWritable(d) {
		env, cerr = c.fetchShared(ctx, id, d, resolved, key, retries)
	} else {
		env, cerr = c.fetch(ctx, id, d, resolved, retries)
	}
	if cerr != nil {
		return nil, cerr
	}

	if err := c.validateResponse(ctx, d, env); err != nil {
		return nil, c.classify(err, nil, nil, d, id, retries)
	}

	if cacheWritable(d) {
		c.storeResponse(key, d, env)
	}

	out, err := c.interceptors.applyResponse(ctx, env)
	if err != nil {
		return nil, c.classify(err, nil, nil, d, id, retries)
	}
	return out, nil
}

func (c *Client) storeResponse(key string, d Descriptor, env *Envelope) {
	ttl := d.Cache.TTL
	if d.Cache.Strategy == CacheStrategyHTTP {
		var ok bool
		ttl, ok = httpCacheTTL(env.Headers, env.ReceivedAt, ttl)
		if !ok {
			c.logCache("Response not cacheable", "requestID", env.RequestID, "cacheKey", key, "cacheControl", env.Header("Cache-Control"))
			return
		}
	}
	entry := c.cache.Store(key, env, ttl)
	c.metrics.RecordCacheSize("default", c.cache.Len())
	c.logCache("Response cached", "requestID", env.RequestID, "cacheKey", key, "ttl", entry.TTL)
}

// fetchShared merges concurrent fetches of one cache key. The shared fetch
// keeps running while any caller still waits on it; each caller receives its
// own copy of the result.
func (c *Client) fetchShared(ctx context.Context, id string, d Descriptor, target *url.URL, key string, retries int) (*Envelope, *Error) {
	val, shared, err := c.dedup.do(ctx, key, func(fctx context.Context) (any, error) {
		env, cerr := c.fetch(fctx, id, d, target, retries)
		if cerr != nil {
			return nil, cerr
		}
		return env, nil
	})
	if shared {
		c.metrics.RecordDeduplicationHit(d.Method, endpointOf(target))
	}
	if err != nil {
		var se *Error
		if errors.As(err, &se) {
			cp := se.clone()
			cp.RequestID = id
			cp.Attempt = retries
			return nil, cp
		}
		return nil, c.classify(err, nil, nil, d, id, retries)
	}
	env := val.(*Envelope).Clone()
	env.RequestID = id
	env.Descriptor = d.Clone()
	return env, nil
}

// fetch performs one network call and drains the response body.
func (c *Client) fetch(ctx context.Context, id string, d Descriptor, target *url.URL, retries int) (*Envelope, *Error) {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	req, err := c.buildRequest(ctx, id, d, target)
	if err != nil {
		return nil, c.classify(err, nil, nil, d, id, retries)
	}

	resp, err := c.executeMiddleware(c.httpClientFor(d), req)
	if err != nil {
		return nil, c.classify(err, nil, nil, d, id, retries)
	}
	body := resp.Body
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, c.classify(err, nil, nil, d, id, retries)
	}
	resp.Body = http.NoBody

	if !isSuccess(resp.StatusCode, d.Redirect) {
		return nil, c.classify(nil, resp, data, d, id, retries)
	}

	return &Envelope{
		Data:       data,
		Status:     resp.StatusCode,
		StatusText: statusText(resp),
		Headers:    normalizeHeaders(resp.Header),
		Descriptor: d.Clone(),
		Raw:        resp,
		RequestID:  id,
		ReceivedAt: c.clock.Now(),
	}, nil
}

func (c *Client) buildRequest(ctx context.Context, id string, d Descriptor, target *url.URL) (*http.Request, error) {
	body, contentType, err := encodeBody(d.Body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, d.Method, target.String(), body)
	if err != nil {
		return nil, err
	}

	for k, v := range d.Headers {
		req.Header.Set(k, v)
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent())
	}
	if req.Header.Get("X-Request-ID") == "" {
		req.Header.Set("X-Request-ID", id)
	}

	switch d.CacheMode {
	case CacheModeNoCache, CacheModeReload:
		req.Header.Set("Cache-Control", "no-cache")
	case CacheModeNoStore:
		req.Header.Set("Cache-Control", "no-store")
	}

	if d.Credentials == CredentialsOmit {
		req.Header.Del("Authorization")
	}

	c.injectTraceContext(ctx, req)
	return req, nil
}

// encodeBody converts a descriptor body into a request reader. Structured
// values are encoded as JSON.
func encodeBody(body any) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case io.Reader:
		return b, "", nil
	case []byte:
		return bytes.NewReader(b), "application/octet-stream", nil
	case json.RawMessage:
		return bytes.NewReader(b), "application/json", nil
	case string:
		return strings.NewReader(b), "text/plain; charset=utf-8", nil
	case url.Values:
		return strings.NewReader(b.Encode()), "application/x-www-form-urlencoded", nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(data), "application/json", nil
	}
}

// resolveURL joins relative URLs onto the base URL and appends query values.
func (c *Client) resolveURL(d Descriptor) (*url.URL, error) {
	raw := d.URL
	if c.baseURL != "" && !strings.Contains(raw, "://") {
		raw = strings.TrimRight(c.baseURL, "/") + "/" + strings.TrimLeft(raw, "/")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}

	if len(d.Query) > 0 {
		q := u.Query()
		for k, vs := range d.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u, nil
}

// httpClientFor returns the transport client honouring the credentials and
// redirect modes of d.
func (c *Client) httpClientFor(d Descriptor) *http.Client {
	omit := d.Credentials == CredentialsOmit
	if !omit && (d.Redirect == "" || d.Redirect == RedirectFollow) {
		return c.httpClient
	}

	hc := *c.httpClient
	if omit {
		hc.Jar = nil
	}
	switch d.Redirect {
	case RedirectError:
		hc.CheckRedirect = func(*http.Request, []*http.Request) error {
			return ErrRedirectBlocked
		}
	case RedirectManual:
		hc.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return &hc
}

func (c *Client) executeMiddleware(hc *http.Client, req *http.Request) (*http.Response, error) {
	if len(c.middleware) == 0 {
		return hc.Do(req)
	}

	current := RoundTripperFunc(hc.Do)

	for i := len(c.middleware) - 1; i >= 0; i-- {
		middleware := c.middleware[i]
		next := current
		current = RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			return middleware(r, next)
		})
	}

	return current.RoundTrip(req)
}

// wait blocks for delay or until ctx is done.
func (c *Client) wait(ctx context.Context, delay time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.clock.After(delay):
		return nil
	}
}

// classify builds the classified error of a failed step and stamps it with
// the request context.
func (c *Client) classify(err error, resp *http.Response, body []byte, d Descriptor, id string, retries int) *Error {
	e := Classify(err, resp, body).clone()
	e.Timestamp = c.clock.Now()
	if e.RequestID == "" {
		e.RequestID = id
	}
	if e.Method == "" {
		e.Method = d.Method
	}
	if e.URL == "" {
		e.URL = d.URL
	}
	e.Attempt = retries
	if resp != nil {
		e.retryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), e.Timestamp)
	}
	return e
}

func isSuccess(status int, redirect RedirectMode) bool {
	if status >= 200 && status < 300 {
		return true
	}
	return redirect == RedirectManual && status >= 300 && status < 400
}

func endpointOf(u *url.URL) string {
	if u == nil {
		return "unknown"
	}

	var builder strings.Builder
	builder.WriteString(u.Host)

	if u.Path != "" && u.Path != "/" {
		builder.WriteString(u.Path)
	} else {
		builder.WriteByte('/')
	}

	return builder.String()
}
