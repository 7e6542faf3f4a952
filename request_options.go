package apiclient

import (
	"time"
)

// ReqHeader sets one request header.
func ReqHeader(key, value string) RequestOption {
	return func(d *Descriptor) {
		if d.Headers == nil {
			d.Headers = make(map[string]string)
		}
		d.Headers[key] = value
	}
}

// ReqHeaders merges request headers.
func ReqHeaders(headers map[string]string) RequestOption {
	return func(d *Descriptor) {
		for k, v := range headers {
			ReqHeader(k, v)(d)
		}
	}
}

// ReqQuery adds a query parameter.
func ReqQuery(key, value string) RequestOption {
	return func(d *Descriptor) {
		if d.Query == nil {
			d.Query = make(map[string][]string)
		}
		d.Query.Add(key, value)
	}
}

// ReqPriority sets the advisory priority.
func ReqPriority(p Priority) RequestOption {
	return func(d *Descriptor) {
		d.Priority = p
	}
}

// ReqCache enables caching for this request. A zero ttl inherits the client TTL.
func ReqCache(ttl time.Duration) RequestOption {
	return func(d *Descriptor) {
		d.Cache.Enabled = true
		d.Cache.TTL = ttl
	}
}

// ReqCacheKey overrides the derived cache key.
func ReqCacheKey(key string) RequestOption {
	return func(d *Descriptor) {
		d.Cache.Key = key
	}
}

// ReqCacheStrategy selects how the TTL of this response is derived.
func ReqCacheStrategy(s CacheStrategy) RequestOption {
	return func(d *Descriptor) {
		d.Cache.Strategy = s
	}
}

// ReqCacheMode controls cache reads and writes for this request.
func ReqCacheMode(m CacheMode) RequestOption {
	return func(d *Descriptor) {
		d.CacheMode = m
	}
}

// ReqNoCache bypasses the cache entirely.
func ReqNoCache() RequestOption {
	return ReqCacheMode(CacheModeNoStore)
}

// ReqRateLimit gates this request with a dedicated limiter.
func ReqRateLimit(maxRequests int, window time.Duration) RequestOption {
	return func(d *Descriptor) {
		d.RateLimit = &RateLimitPolicy{MaxRequests: maxRequests, TimeWindow: window}
	}
}

// ReqRetry overrides retry fields; zero fields inherit the client policy.
func ReqRetry(p RetryPolicy) RequestOption {
	return func(d *Descriptor) {
		d.Retry = p.clone()
	}
}

// ReqNoRetry disables automatic retries.
func ReqNoRetry() RequestOption {
	return func(d *Descriptor) {
		d.Retry = NoRetry()
	}
}

// ReqValidation adds validation on top of the client policy.
func ReqValidation(p ValidationPolicy) RequestOption {
	return func(d *Descriptor) {
		v := p.clone()
		d.Validation = &v
	}
}

// ReqTimeout bounds each attempt of this request.
func ReqTimeout(timeout time.Duration) RequestOption {
	return func(d *Descriptor) {
		d.Timeout = timeout
	}
}

// ReqID sets the lifecycle id instead of generating one.
func ReqID(id string) RequestOption {
	return func(d *Descriptor) {
		d.RequestID = id
	}
}

// ReqCredentials sets the credentials mode.
func ReqCredentials(m CredentialsMode) RequestOption {
	return func(d *Descriptor) {
		d.Credentials = m
	}
}

// ReqRedirect sets the redirect mode.
func ReqRedirect(m RedirectMode) RequestOption {
	return func(d *Descriptor) {
		d.Redirect = m
	}
}
