package store

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Swappable in tests.
var (
	pgxPoolNewWithConfig   = pgxpool.NewWithConfig
	postgresConnectRetries = 30
	postgresRetryDelay     = 2 * time.Second
	postgresPingTimeout    = 2 * time.Second
	postgresSleep          = time.Sleep
)

// NewPostgresPool connects to the portal database. The DSN comes from
// DATABASE_URL; when unset it is assembled from the discrete DATABASE_*
// variables. Connection attempts retry for roughly a minute so the API can
// start alongside a database container that is still warming up.
func NewPostgresPool(ctx context.Context) (*pgxpool.Pool, error) {
	dsn := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dsn == "" {
		dsn = defaultPostgresURL()
	}
	if requiresSecureTransport("DATABASE_REQUIRE_TLS") {
		if err := validatePostgresTLS(dsn); err != nil {
			return nil, err
		}
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MinConns = 1
	cfg.MaxConns = 10
	cfg.MaxConnIdleTime = 5 * time.Minute

	var lastErr error
	for attempt := 0; attempt < postgresConnectRetries; attempt++ {
		if attempt > 0 {
			postgresSleep(postgresRetryDelay)
		}
		pool, err := pgxPoolNewWithConfig(ctx, cfg)
		if err != nil {
			lastErr = err
			continue
		}
		pingCtx, cancel := context.WithTimeout(ctx, postgresPingTimeout)
		err = pool.Ping(pingCtx)
		cancel()
		if err == nil {
			return pool, nil
		}
		pool.Close()
		lastErr = err
	}
	return nil, fmt.Errorf("db ping retries exhausted: %w", lastErr)
}

func defaultPostgresURL() string {
	pick := func(key, fallback string) string {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
		return fallback
	}
	user := pick("DATABASE_USER", "payments")
	host := pick("DATABASE_HOST", "localhost")
	dbName := pick("DATABASE_NAME", "payments")
	sslmode := pick("DATABASE_SSLMODE", "disable")
	port := pick("DATABASE_PORT", "5432")
	if _, err := strconv.Atoi(port); err != nil {
		port = "5432"
	}

	dsn := &url.URL{
		Scheme: "postgres",
		Host:   host + ":" + port,
		Path:   "/" + dbName,
	}
	if password := os.Getenv("POSTGRES_PASSWORD"); password != "" {
		dsn.User = url.UserPassword(user, password)
	} else {
		dsn.User = url.User(user)
	}
	query := dsn.Query()
	query.Set("sslmode", sslmode)
	dsn.RawQuery = query.Encode()
	return dsn.String()
}

// validatePostgresTLS rejects DSNs whose sslmode would let the driver fall
// back to plaintext when DATABASE_REQUIRE_TLS is on.
func validatePostgresTLS(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(parsed.Query().Get("sslmode"))) {
	case "require", "verify-ca", "verify-full":
		return nil
	case "allow", "prefer", "disable":
		return fmt.Errorf("DATABASE_REQUIRE_TLS=true but DATABASE_URL sslmode=%q is insecure", parsed.Query().Get("sslmode"))
	default:
		return fmt.Errorf("DATABASE_REQUIRE_TLS=true requires explicit sslmode=require|verify-ca|verify-full")
	}
}

func requiresSecureTransport(envKey string) bool {
	switch strings.TrimSpace(strings.ToLower(os.Getenv(envKey))) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
