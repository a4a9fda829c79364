package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Claims carried by a portal session token. Sub is the account id.
type Claims struct {
	Sub      string `json:"sub"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Name     string `json:"name,omitempty"`
	Exp      int64  `json:"exp"`
	Iat      int64  `json:"iat,omitempty"`
	Nbf      int64  `json:"nbf,omitempty"`
}

// SignHS256 mints a compact HS256 JWT for a logged-in account.
func SignHS256(claims Claims, secret string, now time.Time, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("secret is required")
	}
	if strings.TrimSpace(claims.Sub) == "" {
		return "", errors.New("subject required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	claims.Iat = now.Unix()
	claims.Exp = now.Add(ttl).Unix()
	headerRaw, err := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
	if err != nil {
		return "", err
	}
	payloadRaw, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	signing := base64.RawURLEncoding.EncodeToString(headerRaw) + "." + base64.RawURLEncoding.EncodeToString(payloadRaw)
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signing))
	return signing + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}

// VerifyHS256 checks signature and time claims and returns the claims.
func VerifyHS256(token, secret string, now time.Time) (Claims, error) {
	if secret == "" {
		return Claims{}, errors.New("secret is required")
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Claims{}, errors.New("invalid token format")
	}
	headerRaw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return Claims{}, err
	}
	payloadRaw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return Claims{}, err
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return Claims{}, err
	}
	var header struct {
		Alg string `json:"alg"`
		Typ string `json:"typ"`
	}
	if err := json.Unmarshal(headerRaw, &header); err != nil {
		return Claims{}, err
	}
	if strings.ToUpper(header.Alg) != "HS256" {
		return Claims{}, errors.New("unsupported alg")
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(parts[0] + "." + parts[1]))
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return Claims{}, errors.New("signature mismatch")
	}
	var claims Claims
	if err := json.Unmarshal(payloadRaw, &claims); err != nil {
		return Claims{}, err
	}
	if claims.Sub == "" {
		return Claims{}, errors.New("subject required")
	}
	if claims.Exp == 0 || now.Unix() >= claims.Exp {
		return Claims{}, errors.New("token expired")
	}
	if claims.Nbf != 0 && now.Unix() < claims.Nbf {
		return Claims{}, errors.New("token not active")
	}
	return claims, nil
}
