package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSecurityHeadersMiddleware(t *testing.T) {
	handler := SecurityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected nosniff, got %q", got)
	}
	if got := rr.Header().Get("Cache-Control"); got != "no-store" {
		t.Fatalf("expected no-store, got %q", got)
	}
}

func TestCORSMiddlewareAllowsListedOrigin(t *testing.T) {
	handler := CORSMiddleware("https://portal.example.com")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/payment", nil)
	req.Header.Set("Origin", "https://portal.example.com")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://portal.example.com" {
		t.Fatalf("expected allow-origin header, got %q", got)
	}
}

func TestCORSMiddlewareRejectsPreflightFromUnknownOrigin(t *testing.T) {
	handler := CORSMiddleware("https://portal.example.com")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	}))
	req := httptest.NewRequest(http.MethodOptions, "/api/payment", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for unknown origin preflight, got %d", rr.Code)
	}
}

func TestCORSMiddlewarePreflightShortCircuits(t *testing.T) {
	called := false
	handler := CORSMiddleware("*")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	req := httptest.NewRequest(http.MethodOptions, "/api/payment", nil)
	req.Header.Set("Origin", "https://anything.example.com")
	req.Header.Set("Access-Control-Request-Method", "PUT")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if called {
		t.Fatal("preflight should not reach the handler")
	}
}

func TestWriteJSONAndError(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteJSON(rr, 201, map[string]string{"message": "Payment processed"})
	if rr.Code != 201 {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}

	rr = httptest.NewRecorder()
	Error(rr, 400, "Invalid currency")
	if rr.Code != 400 {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if body := rr.Body.String(); body == "" || body[0] != '{' {
		t.Fatalf("expected json error body, got %q", body)
	}
}
