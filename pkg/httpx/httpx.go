package httpx

import (
	"encoding/json"
	"net/http"
	"strings"
)

// WriteJSON renders v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes a middleware-level failure as {"error": msg}. Handler-level
// API responses use WriteJSON with a message envelope instead.
func Error(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]interface{}{"error": msg})
}

// SecurityHeadersMiddleware sets the hardening headers every API response
// carries. The portal serves no HTML, hence the fully locked-down CSP.
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'none'")
		h.Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// CORSMiddleware enforces an explicit allowlist of frontend origins,
// comma-separated; "*" permits any origin. Credentials are allowed because
// the frontend is served from a different origin than the API.
func CORSMiddleware(allowedOrigins string) func(http.Handler) http.Handler {
	wildcard := false
	allowed := map[string]struct{}{}
	for _, part := range strings.Split(allowedOrigins, ",") {
		switch origin := strings.TrimSpace(part); origin {
		case "":
		case "*":
			wildcard = true
		default:
			allowed[origin] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			if _, listed := allowed[origin]; !listed && !wildcard {
				if isPreflight(r) {
					http.Error(w, "origin not allowed", http.StatusForbidden)
					return
				}
				// non-preflight from an unknown origin: serve without CORS
				// headers and let the browser block the response
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Add("Vary", "Origin")
			h.Add("Vary", "Access-Control-Request-Method")
			h.Add("Vary", "Access-Control-Request-Headers")
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
			requested := strings.TrimSpace(r.Header.Get("Access-Control-Request-Headers"))
			if requested == "" {
				requested = "Authorization,Content-Type"
			}
			h.Set("Access-Control-Allow-Headers", requested)
			h.Set("Access-Control-Max-Age", "600")

			if isPreflight(r) {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions &&
		strings.TrimSpace(r.Header.Get("Access-Control-Request-Method")) != ""
}
