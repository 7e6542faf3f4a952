package apiclient

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"github.com/google/uuid"
)

// RequestStatus is the lifecycle state of a tracked request.
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusCompleted RequestStatus = "completed"
	StatusError     RequestStatus = "error"
)

// RequestState is a read-only snapshot of one logical request.
type RequestState struct {
	ID         string
	URL        string
	Method     string
	Priority   Priority
	Status     RequestStatus
	StartTime  time.Time
	EndTime    time.Time
	RetryCount int
	Err        *Error
}

// Done reports whether the request reached a terminal state.
func (s RequestState) Done() bool {
	return s.Status != StatusPending
}

// Duration is the elapsed time of a finished request, zero while pending.
func (s RequestState) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

type requestRecord struct {
	state    RequestState
	cancel   context.CancelFunc
	canceled bool
}

// LifecycleTracker is the registry of in-flight and finished requests.
type LifecycleTracker struct {
	mu      sync.RWMutex
	clock   clock.Clock
	idGen   func() string
	records map[string]*requestRecord
}

// NewLifecycleTracker creates a tracker. A nil idGen falls back to UUID v4.
func NewLifecycleTracker(clk clock.Clock, idGen func() string) *LifecycleTracker {
	if clk == nil {
		clk = clock.New()
	}
	if idGen == nil {
		idGen = uuid.NewString
	}
	return &LifecycleTracker{
		clock:   clk,
		idGen:   idGen,
		records: make(map[string]*requestRecord),
	}
}

// Begin registers a pending record. cancel is invoked by Cancel.
func (t *LifecycleTracker) Begin(d Descriptor, cancel context.CancelFunc) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := d.RequestID
	if id != "" {
		if rec, exists := t.records[id]; exists && rec.state.Status == StatusPending {
			return "", ErrDuplicateRequestID
		}
	} else {
		id = t.idGen()
		for _, exists := t.records[id]; exists; _, exists = t.records[id] {
			id = uuid.NewString()
		}
	}

	priority := d.Priority
	if priority == "" {
		priority = PriorityNormal
	}

	t.records[id] = &requestRecord{
		state: RequestState{
			ID:        id,
			URL:       d.URL,
			Method:    d.Method,
			Priority:  priority,
			Status:    StatusPending,
			StartTime: t.clock.Now(),
		},
		cancel: cancel,
	}
	return id, nil
}

// MarkRetrying increments the retry counter of a pending record.
func (t *LifecycleTracker) MarkRetrying(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[id]
	if !ok || rec.state.Status != StatusPending {
		return false
	}
	rec.state.RetryCount++
	return true
}

// Complete moves a pending record to completed.
func (t *LifecycleTracker) Complete(id string) bool {
	return t.finish(id, StatusCompleted, nil)
}

// Fail moves a pending record to error, capturing err.
func (t *LifecycleTracker) Fail(id string, err *Error) bool {
	return t.finish(id, StatusError, err)
}

func (t *LifecycleTracker) finish(id string, status RequestStatus, err *Error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[id]
	if !ok || rec.state.Status != StatusPending {
		return false
	}
	rec.state.Status = status
	rec.state.EndTime = t.clock.Now()
	rec.state.Err = err
	rec.cancel = nil
	return true
}

// Cancel signals the cancellation token of a pending request. It does not
// change the status; the executor observes the signal and fails the record.
// Repeated calls and calls after completion are no-ops.
func (t *LifecycleTracker) Cancel(id string) bool {
	t.mu.Lock()
	rec, ok := t.records[id]
	if !ok || rec.state.Status != StatusPending || rec.canceled || rec.cancel == nil {
		t.mu.Unlock()
		return false
	}
	rec.canceled = true
	cancel := rec.cancel
	t.mu.Unlock()

	cancel()
	return true
}

// Get returns a snapshot of one record.
func (t *LifecycleTracker) Get(id string) (RequestState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rec, ok := t.records[id]
	if !ok {
		return RequestState{}, false
	}
	return rec.state, true
}

// All returns snapshots of every record ordered by start time.
func (t *LifecycleTracker) All() []RequestState {
	t.mu.RLock()
	states := make([]RequestState, 0, len(t.records))
	for _, rec := range t.records {
		states = append(states, rec.state)
	}
	t.mu.RUnlock()

	sort.Slice(states, func(i, j int) bool {
		if states[i].StartTime.Equal(states[j].StartTime) {
			return states[i].ID < states[j].ID
		}
		return states[i].StartTime.Before(states[j].StartTime)
	})
	return states
}

// Clear drops finished records and returns how many were removed.
func (t *LifecycleTracker) Clear() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for id, rec := range t.records {
		if rec.state.Status != StatusPending {
			delete(t.records, id)
			removed++
		}
	}
	return removed
}

// Remove drops one finished record.
func (t *LifecycleTracker) Remove(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[id]
	if !ok {
		return ErrRequestNotFound
	}
	if rec.state.Status == StatusPending {
		return ErrRequestPending
	}
	delete(t.records, id)
	return nil
}

// Pending counts in-flight requests.
func (t *LifecycleTracker) Pending() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, rec := range t.records {
		if rec.state.Status == StatusPending {
			n++
		}
	}
	return n
}
