package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSignAndVerifyHS256RoundTrip(t *testing.T) {
	now := time.Now().UTC()
	token, err := SignHS256(Claims{
		Sub:      "user-1",
		Username: "thato_m",
		Role:     "customer",
		Name:     "Thato Mokoena",
	}, "test-secret", now, time.Hour)
	if err != nil {
		t.Fatalf("sign error: %v", err)
	}

	claims, err := VerifyHS256(token, "test-secret", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("verify error: %v", err)
	}
	if claims.Sub != "user-1" || claims.Username != "thato_m" || claims.Role != "customer" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.Exp != now.Add(time.Hour).Unix() {
		t.Fatalf("expected 1h expiry, got %d", claims.Exp)
	}
}

func TestVerifyHS256RejectsExpiredToken(t *testing.T) {
	now := time.Now().UTC()
	token, err := SignHS256(Claims{Sub: "user-1", Role: "customer"}, "test-secret", now, time.Hour)
	if err != nil {
		t.Fatalf("sign error: %v", err)
	}
	if _, err := VerifyHS256(token, "test-secret", now.Add(2*time.Hour)); err == nil {
		t.Fatal("expected expiry error")
	}
}

func TestVerifyHS256RejectsWrongSecret(t *testing.T) {
	now := time.Now().UTC()
	token, _ := SignHS256(Claims{Sub: "user-1"}, "secret-a", now, time.Hour)
	if _, err := VerifyHS256(token, "secret-b", now); err == nil {
		t.Fatal("expected signature mismatch")
	}
}

func TestVerifyHS256RejectsGarbage(t *testing.T) {
	now := time.Now().UTC()
	for _, tok := range []string{"", "a.b", "a.b.c.d", "!!!.???.###"} {
		if _, err := VerifyHS256(tok, "secret", now); err == nil {
			t.Fatalf("expected error for %q", tok)
		}
	}
}

func TestSignHS256RequiresSecretAndSubject(t *testing.T) {
	now := time.Now().UTC()
	if _, err := SignHS256(Claims{Sub: "u"}, "", now, time.Hour); err == nil {
		t.Fatal("expected error for empty secret")
	}
	if _, err := SignHS256(Claims{}, "secret", now, time.Hour); err == nil {
		t.Fatal("expected error for empty subject")
	}
}

func TestMiddlewareInstallsPrincipal(t *testing.T) {
	token, err := SignHS256(Claims{Sub: "user-7", Username: "emp1", Role: "employee", Name: "Emp One"}, "test-secret", time.Now().UTC(), time.Hour)
	if err != nil {
		t.Fatalf("sign error: %v", err)
	}
	var got Principal
	handler := Middleware("hs256", "test-secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = PrincipalFromContext(r.Context())
		w.WriteHeader(200)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/payment", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != 200 {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got.Subject != "user-7" || got.Role != "employee" || got.FullName != "Emp One" {
		t.Fatalf("unexpected principal: %+v", got)
	}
}

func TestMiddlewareRejectsMissingAndBadTokens(t *testing.T) {
	handler := Middleware("hs256", "test-secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/payment", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/payment", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", rr.Code)
	}
}

func TestMiddlewareOffAdmitsAnonymous(t *testing.T) {
	var got Principal
	handler := Middleware("off", "")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = PrincipalFromContext(r.Context())
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if got.Subject != "anonymous" {
		t.Fatalf("expected anonymous principal, got %+v", got)
	}
}

func TestHasAnyRole(t *testing.T) {
	p := Principal{Role: "Employee"}
	if !HasAnyRole(p, "employee") {
		t.Fatal("role match should be case-insensitive")
	}
	if HasAnyRole(p, "customer") {
		t.Fatal("unexpected role match")
	}
	if !HasAnyRole(p) {
		t.Fatal("empty requirement admits everyone")
	}
}

func TestPasswordHashAndCheck(t *testing.T) {
	hash, err := HashPassword("password123")
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}
	if hash == "password123" {
		t.Fatal("hash must not equal the plaintext")
	}
	if !CheckPassword(hash, "password123") {
		t.Fatal("expected password to match")
	}
	if CheckPassword(hash, "wrongpassword") {
		t.Fatal("expected mismatch to fail")
	}
}
