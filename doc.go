// Package apiclient is the request core of a JSON API client: every call runs
// through one pipeline that classifies failures and applies the client's
// reliability policies.
//
//   - Request and response interceptors, applied in registration order
//   - In-memory response cache with TTL expiry for GET and HEAD
//   - Fixed-window rate limiting, per client and per request
//   - Retries with exponential backoff, jitter and Retry-After support
//   - A lifecycle tracker recording every logical request, with cancellation
//   - Optional request/response validation (including struct tags)
//   - Prometheus metrics, OpenTelemetry spans and structured debug logging
//
// Every failure surfaces as an *Error carrying an ErrorKind, so callers can
// branch on errors.Is(err, &apiclient.Error{Kind: apiclient.KindNotFound}).
//
// Typical usage:
//
//	client := apiclient.New(
//	    apiclient.WithBaseURL("https://api.example.com/v1"),
//	    apiclient.WithCache(time.Minute),
//	    apiclient.WithRateLimit(10, time.Second),
//	    apiclient.WithMaxRetries(3),
//	)
//	env, err := client.Get(ctx, "/companies", apiclient.ReqQuery("city", "Oulu"))
//
// Per-call Req* options layer over the client defaults field by field, and
// Config / LoadConfig provide the same defaults from YAML.
package apiclient
