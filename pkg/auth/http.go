package auth

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// Principal is the authenticated caller installed in the request context.
type Principal struct {
	Subject  string
	Username string
	Role     string
	FullName string
}

type contextKey string

const principalContextKey contextKey = "portal.principal"

// Middleware validates the Authorization bearer token and installs a
// Principal. Mode "off" admits anonymous callers and exists for tests and
// local development only; main() refuses it outside non-production envs.
func Middleware(mode, secret string) func(http.Handler) http.Handler {
	if mode = strings.ToLower(strings.TrimSpace(mode)); mode == "" || mode == "off" {
		anonymous := Principal{Subject: "anonymous", Role: "anonymous"}
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), anonymous)))
			})
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			claims, err := VerifyHS256(token, secret, time.Now().UTC())
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), Principal{
				Subject:  claims.Sub,
				Username: claims.Username,
				Role:     claims.Role,
				FullName: claims.Name,
			})))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return "", false
	}
	return strings.TrimSpace(header[len("Bearer "):]), true
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(Principal)
	return p, ok
}

// HasAnyRole reports whether the principal's role is one of the required
// roles. An empty requirement admits every authenticated principal.
func HasAnyRole(p Principal, required ...string) bool {
	if len(required) == 0 {
		return true
	}
	role := strings.ToLower(strings.TrimSpace(p.Role))
	for _, want := range required {
		if role == strings.ToLower(strings.TrimSpace(want)) {
			return true
		}
	}
	return false
}
