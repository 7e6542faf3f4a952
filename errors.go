package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrorKind is the closed set of failure classes reported by the client.
type ErrorKind string

const (
	KindNetwork      ErrorKind = "network"
	KindTimeout      ErrorKind = "timeout"
	KindUnauthorized ErrorKind = "unauthorized"
	KindForbidden    ErrorKind = "forbidden"
	KindNotFound     ErrorKind = "not-found"
	KindValidation   ErrorKind = "validation"
	KindRateLimit    ErrorKind = "rate-limit"
	KindServer       ErrorKind = "server"
	KindUnknown      ErrorKind = "unknown"
)

// Sentinel errors for common failure scenarios
var (
	// ErrRateLimited is the cause of a local rate limiter denial.
	ErrRateLimited = errors.New("apiclient: rate limited")

	// ErrCanceled is the cause reported when a request is cancelled through CancelRequest.
	ErrCanceled = errors.New("apiclient: request canceled")

	// ErrRequestNotFound is returned by management calls for unknown request ids.
	ErrRequestNotFound = errors.New("apiclient: request not found")

	// ErrRequestPending is returned when a record cannot be removed while in flight.
	ErrRequestPending = errors.New("apiclient: request still pending")

	// ErrDuplicateRequestID is returned when a caller supplied id is already pending.
	ErrDuplicateRequestID = errors.New("apiclient: duplicate request id")

	// ErrRedirectBlocked is returned when a redirect is received with RedirectError.
	ErrRedirectBlocked = errors.New("apiclient: redirect not allowed")
)

// Error is a classified failure. Values are only produced by Classify.
type Error struct {
	Kind      ErrorKind
	Status    int
	Message   string
	Code      string
	Details   any
	Timestamp time.Time
	RequestID string
	Method    string
	URL       string
	Attempt   int
	// Canceled marks a cooperative cancellation; it shares KindTimeout with
	// deadline failures but is never retried.
	Canceled bool
	Cause    error

	retryAfter time.Duration
}

// Error implements error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	if e.Attempt > 0 {
		msg = fmt.Sprintf("%s (retry %d)", msg, e.Attempt)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error kinds for errors.Is.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// Retryable reports whether the failure is transient: network, timeout and
// server failures plus HTTP 408 and 429. Cancellations never are.
func (e *Error) Retryable() bool {
	if e == nil || e.Canceled {
		return false
	}
	switch e.Kind {
	case KindNetwork, KindTimeout, KindServer:
		return true
	case KindValidation:
		return false
	}
	return e.Status == http.StatusRequestTimeout || e.Status == http.StatusTooManyRequests
}

// AllowsManualRetry reports whether a UI should offer a retry action.
func (e *Error) AllowsManualRetry() bool {
	if e == nil {
		return false
	}
	return e.Kind == KindNetwork || e.Kind == KindServer
}

// RetryAfter returns the server supplied Retry-After delay, if any.
func (e *Error) RetryAfter() time.Duration {
	if e == nil {
		return 0
	}
	return e.retryAfter
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *Error) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Kind: %s\n", e.Kind)
	fmt.Fprintf(&b, "Message: %s\n", e.Message)
	if e.Code != "" {
		fmt.Fprintf(&b, "Code: %s\n", e.Code)
	}
	if e.RequestID != "" {
		fmt.Fprintf(&b, "Request ID: %s\n", e.RequestID)
	}
	if e.Method != "" {
		fmt.Fprintf(&b, "Method: %s\n", e.Method)
	}
	if e.URL != "" {
		fmt.Fprintf(&b, "URL: %s\n", e.URL)
	}
	if e.Status > 0 {
		fmt.Fprintf(&b, "Status: %d\n", e.Status)
	}
	if e.Attempt > 0 {
		fmt.Fprintf(&b, "Retry: %d\n", e.Attempt)
	}
	if e.Canceled {
		b.WriteString("Canceled: true\n")
	}
	if !e.Timestamp.IsZero() {
		fmt.Fprintf(&b, "Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, "Cause: %v\n", e.Cause)
	}
	return b.String()
}

func (e *Error) clone() *Error {
	cp := *e
	return &cp
}

// errorPayload is the optional JSON shape of non-2xx bodies.
type errorPayload struct {
	Error *struct {
		Message string          `json:"message"`
		Code    json.RawMessage `json:"code"`
		Details any             `json:"details"`
	} `json:"error"`
	Message string `json:"message"`
}

// Classify turns a raw failure into a classified Error. It accepts a transport
// or pipeline error, or a non-2xx response with its body already read. An
// error that is already classified is returned as is.
func Classify(err error, resp *http.Response, body []byte) *Error {
	now := time.Now()

	var classified *Error
	if errors.As(err, &classified) && classified != nil {
		return classified
	}

	if err == nil && resp != nil {
		return classifyStatus(resp, body, now)
	}

	e := &Error{Kind: KindUnknown, Timestamp: now, Cause: err}
	if err == nil {
		e.Message = "unknown error"
		return e
	}

	var verr *ValidationError
	var netErr net.Error
	var urlErr *url.Error
	switch {
	case errors.As(err, &verr):
		e.Kind = KindValidation
		e.Status = http.StatusUnprocessableEntity
		e.Message = verr.Message
		if len(verr.Fields) > 0 {
			e.Details = verr.Fields
		}
	case errors.Is(err, ErrRateLimited):
		e.Kind = KindRateLimit
		e.Status = http.StatusTooManyRequests
		e.Message = "rate limit exceeded"
	case errors.Is(err, ErrCanceled), errors.Is(err, context.Canceled):
		e.Kind = KindTimeout
		e.Canceled = true
		e.Message = "request canceled"
	case errors.Is(err, context.DeadlineExceeded):
		e.Kind = KindTimeout
		e.Message = "request timed out"
	case errors.As(err, &netErr) && netErr.Timeout():
		e.Kind = KindTimeout
		e.Message = "request timed out"
	case errors.Is(err, ErrRedirectBlocked):
		e.Message = "redirect not allowed"
	case errors.As(err, &urlErr), errors.As(err, &netErr):
		e.Kind = KindNetwork
		e.Message = "network request failed"
	default:
		e.Message = err.Error()
	}
	return e
}

func classifyStatus(resp *http.Response, body []byte, now time.Time) *Error {
	e := &Error{
		Kind:      kindForStatus(resp.StatusCode),
		Status:    resp.StatusCode,
		Timestamp: now,
	}

	var payload errorPayload
	if len(body) > 0 && json.Unmarshal(body, &payload) == nil {
		if payload.Error != nil {
			e.Message = payload.Error.Message
			e.Code = strings.Trim(string(payload.Error.Code), `"`)
			e.Details = payload.Error.Details
		} else if payload.Message != "" {
			e.Message = payload.Message
		}
	}
	if e.Message == "" {
		e.Message = statusText(resp)
	}
	return e
}

func kindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized:
		return KindUnauthorized
	case status == http.StatusForbidden:
		return KindForbidden
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusUnprocessableEntity:
		return KindValidation
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status >= 500:
		return KindServer
	default:
		return KindUnknown
	}
}

func statusText(resp *http.Response) string {
	if resp.Status != "" {
		if _, text, ok := strings.Cut(resp.Status, " "); ok && text != "" {
			return text
		}
		return resp.Status
	}
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return fmt.Sprintf("HTTP %d", resp.StatusCode)
}
