package apiclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Priority is an advisory scheduling hint recorded with each request.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// CredentialsMode controls whether ambient credentials accompany a request.
type CredentialsMode string

const (
	CredentialsInclude CredentialsMode = "include"
	// CredentialsOmit drops the cookie jar and the Authorization header.
	CredentialsOmit CredentialsMode = "omit"
)

// RedirectMode controls redirect handling.
type RedirectMode string

const (
	RedirectFollow RedirectMode = "follow"
	RedirectError  RedirectMode = "error"
	// RedirectManual returns the 3xx response to the caller as a success.
	RedirectManual RedirectMode = "manual"
)

// CacheMode controls how a single request interacts with the cache store.
type CacheMode string

const (
	CacheModeDefault CacheMode = "default"
	// CacheModeNoStore neither reads nor writes the cache.
	CacheModeNoStore CacheMode = "no-store"
	// CacheModeReload skips the lookup but stores the fresh response.
	CacheModeReload CacheMode = "reload"
	// CacheModeNoCache skips the lookup, asks intermediaries to revalidate and stores the response.
	CacheModeNoCache CacheMode = "no-cache"
)

// CacheStrategy selects how the TTL of a stored response is derived.
type CacheStrategy string

const (
	CacheStrategyMemory CacheStrategy = "memory"
	// CacheStrategyHTTP honours Cache-Control and Expires response headers.
	CacheStrategyHTTP CacheStrategy = "http"
)

// CachePolicy is the per-request cache configuration.
type CachePolicy struct {
	Enabled  bool          `yaml:"enabled"`
	TTL      time.Duration `yaml:"ttl"`
	Key      string        `yaml:"key"`
	Strategy CacheStrategy `yaml:"strategy"`
}

func (p CachePolicy) merge(o CachePolicy) CachePolicy {
	if o.Enabled {
		p.Enabled = true
	}
	if o.TTL > 0 {
		p.TTL = o.TTL
	}
	if o.Key != "" {
		p.Key = o.Key
	}
	if o.Strategy != "" {
		p.Strategy = o.Strategy
	}
	return p
}

// RateLimitPolicy describes a fixed window admission budget.
type RateLimitPolicy struct {
	MaxRequests int           `yaml:"max_requests"`
	TimeWindow  time.Duration `yaml:"time_window"`
}

func (p RateLimitPolicy) key() string {
	return fmt.Sprintf("max=%d/window=%s", p.MaxRequests, p.TimeWindow)
}

// Descriptor is the fully resolved specification of one logical request.
// Interceptors receive a copy and return a new value.
type Descriptor struct {
	URL         string
	Method      string
	Headers     map[string]string
	Body        any
	Query       url.Values
	Credentials CredentialsMode
	Redirect    RedirectMode
	CacheMode   CacheMode
	Priority    Priority
	Cache       CachePolicy
	// RateLimit overrides the client default limiter when set.
	RateLimit  *RateLimitPolicy
	Validation *ValidationPolicy
	Retry      RetryPolicy
	// Timeout bounds each physical attempt; zero means no per-attempt limit.
	Timeout   time.Duration
	RequestID string
}

// Clone returns a copy that shares no mutable maps or policies with d.
func (d Descriptor) Clone() Descriptor {
	cp := d
	if d.Headers != nil {
		cp.Headers = make(map[string]string, len(d.Headers))
		for k, v := range d.Headers {
			cp.Headers[k] = v
		}
	}
	if d.Query != nil {
		cp.Query = make(url.Values, len(d.Query))
		for k, v := range d.Query {
			cp.Query[k] = append([]string(nil), v...)
		}
	}
	if d.RateLimit != nil {
		rl := *d.RateLimit
		cp.RateLimit = &rl
	}
	if d.Validation != nil {
		v := d.Validation.clone()
		cp.Validation = &v
	}
	cp.Retry = d.Retry.clone()
	return cp
}

// Envelope is a completed response: the raw body plus status and header metadata.
type Envelope struct {
	Data       json.RawMessage
	Status     int
	StatusText string
	// Headers holds lower-cased header names with comma-joined values.
	Headers    map[string]string
	Descriptor Descriptor
	// Raw is the transport response; its body has already been drained into Data.
	Raw        *http.Response
	RequestID  string
	Cached     bool
	ReceivedAt time.Time
}

// Decode unmarshals the JSON body into v.
func (e *Envelope) Decode(v any) error {
	if e == nil || len(e.Data) == 0 {
		return fmt.Errorf("apiclient: empty response body")
	}
	return json.Unmarshal(e.Data, v)
}

// Header returns a header value by case-insensitive name.
func (e *Envelope) Header(name string) string {
	if e == nil {
		return ""
	}
	return e.Headers[strings.ToLower(name)]
}

// Clone deep copies the envelope.
func (e *Envelope) Clone() *Envelope {
	if e == nil {
		return nil
	}
	cp := *e
	if e.Data != nil {
		cp.Data = append(json.RawMessage(nil), e.Data...)
	}
	if e.Headers != nil {
		cp.Headers = make(map[string]string, len(e.Headers))
		for k, v := range e.Headers {
			cp.Headers[k] = v
		}
	}
	if e.Raw != nil {
		raw := *e.Raw
		raw.Header = e.Raw.Header.Clone()
		raw.Body = http.NoBody
		cp.Raw = &raw
	}
	cp.Descriptor = e.Descriptor.Clone()
	return &cp
}

// Middleware wraps the transport call of every physical attempt.
type Middleware func(req *http.Request, next RoundTripper) (*http.Response, error)

// RoundTripper represents the HTTP transport interface
type RoundTripper interface {
	RoundTrip(*http.Request) (*http.Response, error)
}

// Option represents a configuration option
type Option func(*Client)

// RequestOption layers a per-call override over the client defaults.
type RequestOption func(*Descriptor)

// RoundTripperFunc is a helper type for middleware
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
