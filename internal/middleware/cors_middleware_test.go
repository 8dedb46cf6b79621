package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func corsHandler(t *testing.T, origins string) (http.Handler, *int) {
	t.Helper()

	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	})
	return CORSMiddleware(origins, "GET,POST,OPTIONS", "Content-Type")(next), &calls
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	h, calls := corsHandler(t, "https://console.example.com, https://ops.example.com")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conflicts", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://ops.example.com" {
		t.Errorf("expected the origin granted, got %q", got)
	}
	if rec.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Error("expected method grant alongside the origin")
	}
	if *calls != 1 {
		t.Errorf("expected the handler reached once, got %d", *calls)
	}
}

func TestCORSWildcardEchoesOrigin(t *testing.T) {
	h, _ := corsHandler(t, "*")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/metrics", nil)
	req.Header.Set("Origin", "https://anywhere.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://anywhere.example.com" {
		t.Errorf("expected the requesting origin echoed under wildcard, got %q", got)
	}
}

func TestCORSRejectsUnknownOrigin(t *testing.T) {
	h, calls := corsHandler(t, "https://console.example.com")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conflicts", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no grant for an unknown origin, got %q", got)
	}
	if *calls != 1 {
		t.Error("a non-preflight request still reaches the handler")
	}
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	h, calls := corsHandler(t, "https://console.example.com")

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/conflicts", nil)
	req.Header.Set("Origin", "https://console.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204 for preflight, got %d", rec.Code)
	}
	if *calls != 0 {
		t.Error("preflight must not reach the handlers")
	}
}
