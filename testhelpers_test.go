package apiclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
)

const (
	contentTypeJSON        = "application/json"
	expectedStatus200Msg   = "Expected status 200, got %d"
	expectedNoErrorMsg     = "Expected no error, got %v"
	failedWriteResponseMsg = "Failed to write response: %v"
)

type testUser struct {
	ID    int    `json:"id"`
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
}

// testBackend is a chi router behind httptest with per-route hit counters.
type testBackend struct {
	t      *testing.T
	router chi.Router
	server *httptest.Server

	mu   sync.Mutex
	hits map[string]*atomic.Int64
}

func newTestBackend(t *testing.T) *testBackend {
	t.Helper()
	b := &testBackend{
		t:      t,
		router: chi.NewRouter(),
		hits:   make(map[string]*atomic.Int64),
	}
	b.server = httptest.NewServer(b.router)
	t.Cleanup(b.server.Close)
	return b
}

func (b *testBackend) counter(pattern string) *atomic.Int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, ok := b.hits[pattern]
	if !ok {
		n = &atomic.Int64{}
		b.hits[pattern] = n
	}
	return n
}

// handle registers a handler that counts its calls.
func (b *testBackend) handle(method, pattern string, h http.HandlerFunc) {
	n := b.counter(method + " " + pattern)
	b.router.MethodFunc(method, pattern, func(w http.ResponseWriter, r *http.Request) {
		n.Add(1)
		h(w, r)
	})
}

func (b *testBackend) hitCount(method, pattern string) int64 {
	return b.counter(method + " " + pattern).Load()
}

func (b *testBackend) url(path string) string {
	return b.server.URL + path
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf(failedWriteResponseMsg, err)
	}
}

func asClassified(t *testing.T, err error) *Error {
	t.Helper()
	if err == nil {
		t.Fatal("Expected an error, got nil")
	}
	e, ok := err.(*Error)
	if !ok {
		t.Fatalf("Expected *Error, got %T: %v", err, err)
	}
	return e
}
