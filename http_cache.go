package apiclient

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CacheDirectives represents parsed Cache-Control directives.
type CacheDirectives struct {
	NoStore        bool
	NoCache        bool
	MaxAge         *time.Duration
	MustRevalidate bool
	Private        bool
}

// parseCacheControl parses Cache-Control header into structured directives.
func parseCacheControl(header string) *CacheDirectives {
	directives := &CacheDirectives{}
	if header == "" {
		return directives
	}

	for _, part := range strings.Split(header, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}

		key, value, hasValue := strings.Cut(part, "=")
		if hasValue {
			value = strings.Trim(strings.TrimSpace(value), "\"")
			if strings.TrimSpace(key) == "max-age" {
				if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
					maxAge := time.Duration(seconds) * time.Second
					directives.MaxAge = &maxAge
				}
			}
			continue
		}

		switch key {
		case "no-store":
			directives.NoStore = true
		case "no-cache":
			directives.NoCache = true
		case "must-revalidate":
			directives.MustRevalidate = true
		case "private":
			directives.Private = true
		}
	}

	return directives
}

// parseHTTPDate accepts the three date formats allowed by RFC 9110.
func parseHTTPDate(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := http.ParseTime(value)
	if err != nil {
		return nil
	}
	return &t
}

// httpCacheTTL derives the TTL of a response under CacheStrategyHTTP.
// It returns false when the response must not be stored.
func httpCacheTTL(headers map[string]string, receivedAt time.Time, fallback time.Duration) (time.Duration, bool) {
	cc := parseCacheControl(headers["cache-control"])

	if cc.NoStore || cc.NoCache {
		return 0, false
	}

	if cc.MaxAge != nil {
		if *cc.MaxAge <= 0 {
			return 0, false
		}
		return *cc.MaxAge, true
	}

	if expires := parseHTTPDate(headers["expires"]); expires != nil {
		ttl := expires.Sub(receivedAt)
		if ttl <= 0 {
			return 0, false
		}
		return ttl, true
	}

	return fallback, true
}

// validatorsFrom extracts the ETag and Last-Modified validators.
func validatorsFrom(headers map[string]string) (string, *time.Time) {
	return headers["etag"], parseHTTPDate(headers["last-modified"])
}

// normalizeHeaders flattens an http.Header into lower-cased keys.
func normalizeHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[strings.ToLower(k)] = strings.Join(v, ", ")
	}
	return out
}
