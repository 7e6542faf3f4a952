package apiclient

import (
	"net/http"
	"testing"
	"time"
)

func TestDefaultRetryPolicy(t *testing.T) {
	policy := DefaultRetryPolicy()
	if policy.Count != 3 {
		t.Errorf("Expected Count=3, got %d", policy.Count)
	}
	if policy.Delay != time.Second {
		t.Errorf("Expected Delay=1s, got %v", policy.Delay)
	}
	if policy.BackoffFactor != 2.0 {
		t.Errorf("Expected BackoffFactor=2.0, got %f", policy.BackoffFactor)
	}
	if policy.MaxDelay != 30*time.Second {
		t.Errorf("Expected MaxDelay=30s, got %v", policy.MaxDelay)
	}
}

func TestRetryPolicyAllows(t *testing.T) {
	policy := RetryPolicy{Count: 2}

	tests := []struct {
		name     string
		err      *Error
		retries  int
		expected bool
	}{
		{"server first retry", &Error{Kind: KindServer, Status: 500}, 0, true},
		{"server at bound", &Error{Kind: KindServer, Status: 500}, 2, false},
		{"network", &Error{Kind: KindNetwork}, 1, true},
		{"canceled", &Error{Kind: KindTimeout, Canceled: true}, 0, false},
		{"validation", &Error{Kind: KindValidation, Status: 422}, 0, false},
		{"local rate limit", &Error{Kind: KindRateLimit, Status: 429}, 0, true},
		{"not found", &Error{Kind: KindNotFound, Status: 404}, 0, false},
		{"nil", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := policy.allows(tt.err, tt.retries); got != tt.expected {
				t.Errorf("allows() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestRetryPolicyStatusesOverride(t *testing.T) {
	policy := RetryPolicy{Count: 1, Statuses: []int{http.StatusConflict}}

	if !policy.allows(&Error{Kind: KindUnknown, Status: 409}, 0) {
		t.Error("Expected listed status to be retried")
	}
	if policy.allows(&Error{Kind: KindServer, Status: 500}, 0) {
		t.Error("Expected unlisted status not to be retried")
	}
	if !policy.allows(&Error{Kind: KindNetwork}, 0) {
		t.Error("Expected network failures to stay retryable")
	}
}

func TestRetryPolicyStatusesNeverRetryValidation(t *testing.T) {
	policy := RetryPolicy{Count: 2, Statuses: []int{http.StatusUnprocessableEntity, http.StatusInternalServerError}}

	if policy.allows(&Error{Kind: KindValidation, Status: http.StatusUnprocessableEntity}, 0) {
		t.Error("Expected validation failures not to be retried even when 422 is listed")
	}
	if !policy.allows(&Error{Kind: KindServer, Status: http.StatusInternalServerError}, 0) {
		t.Error("Expected listed 500 to be retried")
	}
}

func TestRetryPolicyDisabled(t *testing.T) {
	policy := DefaultRetryPolicy().merge(NoRetry())
	if policy.allows(&Error{Kind: KindServer, Status: 500}, 0) {
		t.Error("Expected NoRetry to disable retries")
	}
}

func TestRetryPolicyMergeReenablesDisabled(t *testing.T) {
	tests := []struct {
		name     string
		base     RetryPolicy
		override RetryPolicy
		expected int
	}{
		{"count re-enables NoRetry", NoRetry(), RetryPolicy{Count: 2}, 2},
		{"count re-enables zero count", RetryPolicy{Count: 0, Disabled: true}, RetryPolicy{Count: 4}, 4},
		{"zero count keeps disabled", NoRetry(), RetryPolicy{Delay: time.Second}, 0},
		{"explicit disable wins", DefaultRetryPolicy(), RetryPolicy{Count: 3, Disabled: true}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.base.merge(tt.override).maxRetries(); got != tt.expected {
				t.Errorf("Expected maxRetries=%d, got %d", tt.expected, got)
			}
		})
	}
}

func TestRetryPolicyDelay(t *testing.T) {
	policy := RetryPolicy{Delay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second}

	tests := []struct {
		retries    int
		retryAfter time.Duration
		expected   time.Duration
	}{
		{0, 0, time.Second},
		{1, 0, 2 * time.Second},
		{2, 0, 4 * time.Second},
		{3, 0, 5 * time.Second},
		{0, 3 * time.Second, 3 * time.Second},
		{0, time.Minute, 5 * time.Second},
	}

	for _, tt := range tests {
		if got := policy.delayFor(tt.retries, tt.retryAfter); got != tt.expected {
			t.Errorf("delayFor(%d, %v) = %v, want %v", tt.retries, tt.retryAfter, got, tt.expected)
		}
	}
}

func TestRetryPolicyMerge(t *testing.T) {
	base := DefaultRetryPolicy()
	merged := base.merge(RetryPolicy{Count: 5, Statuses: []int{502}})

	if merged.Count != 5 {
		t.Errorf("Expected Count=5, got %d", merged.Count)
	}
	if merged.Delay != base.Delay {
		t.Errorf("Expected inherited Delay %v, got %v", base.Delay, merged.Delay)
	}
	if len(merged.Statuses) != 1 || merged.Statuses[0] != 502 {
		t.Errorf("Expected Statuses [502], got %v", merged.Statuses)
	}
	if len(base.Statuses) != 0 {
		t.Error("Expected merge not to mutate the receiver")
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		value    string
		expected time.Duration
	}{
		{"empty", "", 0},
		{"seconds", "120", 2 * time.Minute},
		{"padded", " 5 ", 5 * time.Second},
		{"zero", "0", 0},
		{"negative", "-3", 0},
		{"http date", now.Add(30 * time.Second).Format(http.TimeFormat), 30 * time.Second},
		{"past date", now.Add(-time.Minute).Format(http.TimeFormat), 0},
		{"garbage", "soon", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseRetryAfter(tt.value, now); got != tt.expected {
				t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.value, got, tt.expected)
			}
		})
	}
}
