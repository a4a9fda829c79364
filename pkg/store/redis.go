package store

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedis opens the client backing the brute-force guard, the rate limiter
// and the cache. A connection failure here is survivable; the caller logs it
// and runs on in-memory state instead.
func NewRedis(ctx context.Context) (*redis.Client, error) {
	tlsConfig, err := loadRedisTLSConfigFromEnv()
	if err != nil {
		return nil, err
	}
	if requiresSecureTransport("REDIS_REQUIRE_TLS") && tlsConfig == nil {
		return nil, fmt.Errorf("REDIS_REQUIRE_TLS=true but REDIS_TLS is not enabled")
	}

	opts := &redis.Options{
		Addr:      strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		Password:  os.Getenv("REDIS_PASSWORD"),
		TLSConfig: tlsConfig,
	}
	if opts.Addr == "" {
		opts.Addr = "localhost:6379"
	}
	if raw := os.Getenv("REDIS_DB"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			opts.DB = n
		}
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, err
	}
	return client, nil
}

// loadRedisTLSConfigFromEnv builds the TLS config when REDIS_TLS=true.
// Skipping certificate verification takes two explicit flags so a single
// leftover env var cannot silently disable it.
func loadRedisTLSConfigFromEnv() (*tls.Config, error) {
	envTrue := func(key string) bool {
		return strings.EqualFold(strings.TrimSpace(os.Getenv(key)), "true")
	}
	if !envTrue("REDIS_TLS") {
		return nil, nil
	}

	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if envTrue("REDIS_TLS_INSECURE") {
		if !envTrue("REDIS_ALLOW_INSECURE_TLS") {
			return nil, fmt.Errorf("REDIS_TLS_INSECURE=true requires REDIS_ALLOW_INSECURE_TLS=true")
		}
		cfg.InsecureSkipVerify = true
	}
	if name := strings.TrimSpace(os.Getenv("REDIS_TLS_SERVER_NAME")); name != "" {
		cfg.ServerName = name
	}

	if caFile := strings.TrimSpace(os.Getenv("REDIS_TLS_CA_CERT_FILE")); caFile != "" {
		pem, err := os.ReadFile(filepath.Clean(caFile))
		if err != nil {
			return nil, fmt.Errorf("read REDIS_TLS_CA_CERT_FILE: %w", err)
		}
		roots := x509.NewCertPool()
		if !roots.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("parse REDIS_TLS_CA_CERT_FILE: no valid certificates")
		}
		cfg.RootCAs = roots
	}

	certFile := strings.TrimSpace(os.Getenv("REDIS_TLS_CERT_FILE"))
	keyFile := strings.TrimSpace(os.Getenv("REDIS_TLS_KEY_FILE"))
	switch {
	case certFile == "" && keyFile == "":
		// no client cert
	case certFile == "" || keyFile == "":
		return nil, fmt.Errorf("both REDIS_TLS_CERT_FILE and REDIS_TLS_KEY_FILE must be set")
	default:
		pair, err := tls.LoadX509KeyPair(filepath.Clean(certFile), filepath.Clean(keyFile))
		if err != nil {
			return nil, fmt.Errorf("load redis mTLS keypair: %w", err)
		}
		cfg.Certificates = []tls.Certificate{pair}
	}
	return cfg, nil
}
