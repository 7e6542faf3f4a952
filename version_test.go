package apiclient

import (
	"context"
	"net/http"
	"strings"
	"testing"
)

func TestGetVersion(t *testing.T) {
	v := GetVersion()
	if !strings.HasPrefix(v, "apiclient "+Version) {
		t.Errorf("Expected version string to start with %q, got %q", "apiclient "+Version, v)
	}

	info := GetVersionInfo()
	for _, key := range []string{"version", "commit", "build_date", "go_version"} {
		if info[key] == "" {
			t.Errorf("Expected %s in version info", key)
		}
	}
}

func TestUserAgentHeader(t *testing.T) {
	backend := newTestBackend(t)
	backend.handle(http.MethodGet, "/ua", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, r.Header.Get("User-Agent"))
	})

	client := New()
	env, err := client.Get(context.Background(), backend.url("/ua"))
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}
	var ua string
	if err := env.Decode(&ua); err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}
	if ua != userAgent() {
		t.Errorf("Expected User-Agent %q, got %q", userAgent(), ua)
	}

	env, err = client.Get(context.Background(), backend.url("/ua"), ReqHeader("User-Agent", "dashboard/1"))
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}
	if err := env.Decode(&ua); err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}
	if ua != "dashboard/1" {
		t.Errorf("Expected caller User-Agent to win, got %q", ua)
	}
}
