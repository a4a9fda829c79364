// Package hardening refuses to start the portal in production-like
// environments with an unsafe configuration.
package hardening

import (
	"fmt"
	"strings"
)

type Options struct {
	Service            string
	Environment        string
	StrictProdSecurity string
	JWTSecret          string
	AuthMode           string
	DatabaseRequireTLS string
	RedisAddr          string
	RedisRequireTLS    string
	RedisTLSInsecure   string
	CORSAllowedOrigins string
}

const minJWTSecretLen = 32

// ValidateProduction applies the strict checks when Environment looks like
// production or staging. STRICT_PROD_SECURITY=false disables them, which is
// an explicit operator decision and deliberately not the default.
func ValidateProduction(o Options) error {
	if !isProductionLikeEnv(o.Environment) || !isTrue(o.StrictProdSecurity, true) {
		return nil
	}
	service := strings.TrimSpace(o.Service)
	if service == "" {
		service = "service"
	}
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%s: strict production hardening %s", service, fmt.Sprintf(format, args...))
	}

	if strings.EqualFold(strings.TrimSpace(o.AuthMode), "off") {
		return fail("forbids AUTH_MODE=off")
	}
	if len(strings.TrimSpace(o.JWTSecret)) < minJWTSecretLen {
		return fail("requires a JWT_SECRET of at least %d characters", minJWTSecretLen)
	}
	if !isTrue(o.DatabaseRequireTLS, false) {
		return fail("requires DATABASE_REQUIRE_TLS=true")
	}
	if strings.TrimSpace(o.RedisAddr) != "" {
		if !isTrue(o.RedisRequireTLS, false) {
			return fail("requires REDIS_REQUIRE_TLS=true")
		}
		if isTrue(o.RedisTLSInsecure, false) {
			return fail("forbids REDIS_TLS_INSECURE")
		}
	}
	return validateCORSOrigins(o.CORSAllowedOrigins, fail)
}

func validateCORSOrigins(raw string, fail func(string, ...any) error) error {
	seen := 0
	for _, part := range strings.Split(raw, ",") {
		origin := strings.TrimSpace(part)
		if origin == "" {
			continue
		}
		seen++
		lower := strings.ToLower(origin)
		switch {
		case lower == "*":
			return fail("forbids CORS wildcard origin")
		case isLoopbackOrigin(lower):
			return fail("forbids localhost CORS origin %q", origin)
		case !strings.HasPrefix(lower, "https://"):
			return fail("requires HTTPS CORS origin, got %q", origin)
		}
	}
	if seen == 0 {
		return fail("requires explicit CORS_ALLOWED_ORIGINS")
	}
	return nil
}

func isLoopbackOrigin(lower string) bool {
	for _, prefix := range []string{"http://localhost", "https://localhost", "http://127.0.0.1", "https://127.0.0.1"} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

func isTrue(raw string, def bool) bool {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return def
	}
	return strings.EqualFold(trimmed, "true")
}

func isProductionLikeEnv(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "prod", "production", "staging", "stage":
		return true
	default:
		return false
	}
}
