// Command api serves the international payments portal: registration,
// login, payment submission and the employee verification workflow.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ST10067544-Thato/JS-Demons-Payment-Portal/pkg/audit"
	"github.com/ST10067544-Thato/JS-Demons-Payment-Portal/pkg/auth"
	"github.com/ST10067544-Thato/JS-Demons-Payment-Portal/pkg/bruteforce"
	"github.com/ST10067544-Thato/JS-Demons-Payment-Portal/pkg/events"
	"github.com/ST10067544-Thato/JS-Demons-Payment-Portal/pkg/hardening"
	"github.com/ST10067544-Thato/JS-Demons-Payment-Portal/pkg/httpx"
	"github.com/ST10067544-Thato/JS-Demons-Payment-Portal/pkg/metrics"
	"github.com/ST10067544-Thato/JS-Demons-Payment-Portal/pkg/models"
	"github.com/ST10067544-Thato/JS-Demons-Payment-Portal/pkg/ratelimit"
	"github.com/ST10067544-Thato/JS-Demons-Payment-Portal/pkg/store"
	"github.com/ST10067544-Thato/JS-Demons-Payment-Portal/pkg/stream"
	"github.com/ST10067544-Thato/JS-Demons-Payment-Portal/pkg/telemetry"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	DB                  apiDB
	Cache               store.Cache
	Redis               *redis.Client
	Metrics             *metrics.Registry
	Events              *stream.Hub
	Publisher           events.Publisher
	Audit               auditStore
	Guard               *bruteforce.Guard
	RateLimiter         ratelimit.Limiter
	RateLimitEnabled    bool
	RateLimitPerMinute  int
	RateLimitWindow     time.Duration
	AuthMode            string
	AuthSecret          string
	TokenTTL            time.Duration
	AppEnv              string
	TrustedProxyCIDRs   []*net.IPNet
	MaxRequestBodyBytes int64
}

type apiDB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type auditStore interface {
	Append(ctx context.Context, rec audit.Record) error
}

type apiDBCloser interface {
	apiDB
	Close()
}

type apiInitTelemetryFunc func(ctx context.Context, service string) (func(context.Context) error, error)
type apiOpenDBFunc func(ctx context.Context) (apiDBCloser, error)
type apiOpenRedisFunc func(ctx context.Context) (*redis.Client, error)
type apiListenFunc func(server *http.Server) error
type apiStartLoopsFunc func(s *Server)

// Testable variables for main()
var (
	logFatalf     = log.Fatalf
	initTelemetry = telemetry.Init
	openDBFn      = func(ctx context.Context) (apiDBCloser, error) { return store.NewPostgresPool(ctx) }
	openRedisFn   = store.NewRedis
	listenFn      = func(server *http.Server) error { return server.ListenAndServe() }
	startLoopsFn  = func(s *Server) {
		go s.metricsLoop(context.Background())
	}
)

func main() {
	if err := runServer(initTelemetry, openDBFn, openRedisFn, listenFn, startLoopsFn); err != nil {
		logFatalf("api: %v", err)
	}
}

func runServer(
	initTelemetry apiInitTelemetryFunc,
	openDB apiOpenDBFunc,
	openRedis apiOpenRedisFunc,
	listen apiListenFunc,
	startLoops apiStartLoopsFunc,
) error {
	ctx := context.Background()
	shutdown, err := initTelemetry(ctx, "payment-portal")
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	pool, err := openDB(ctx)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer pool.Close()

	redisClient, err := openRedis(ctx)
	if err != nil {
		log.Printf("redis unavailable, falling back to in-memory cache/limits: %v", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	cache := store.NewCache(ctx, redisClient)

	rateLimitWindow := time.Second * time.Duration(envInt("RATE_LIMIT_WINDOW_SEC", 60))
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	tokenTTL := time.Minute * time.Duration(envInt("TOKEN_TTL_MIN", 60))
	if tokenTTL <= 0 {
		tokenTTL = time.Hour
	}
	maxRequestBodyBytes := int64(envInt("MAX_REQUEST_BODY_BYTES", 1<<20))
	if maxRequestBodyBytes <= 0 {
		maxRequestBodyBytes = 1 << 20
	}

	guard := bruteforce.New(cache)
	guard.FreeRetries = envInt("BRUTE_FORCE_FREE_RETRIES", guard.FreeRetries)
	guard.MinWait = time.Second * time.Duration(envInt("BRUTE_FORCE_MIN_WAIT_SEC", int(guard.MinWait/time.Second)))
	guard.MaxWait = time.Second * time.Duration(envInt("BRUTE_FORCE_MAX_WAIT_SEC", int(guard.MaxWait/time.Second)))
	guard.Lifetime = time.Second * time.Duration(envInt("BRUTE_FORCE_LIFETIME_SEC", int(guard.Lifetime/time.Second)))

	auditRedact := strings.EqualFold(strings.TrimSpace(env("AUDIT_REDACT", "false")), "true")

	s := &Server{
		DB:                  pool,
		Cache:               cache,
		Redis:               redisClient,
		Metrics:             metrics.NewRegistry(),
		Events:              stream.NewHub(),
		Publisher:           events.NopPublisher{},
		Audit:               &audit.Writer{DB: pool, RedactActors: auditRedact},
		Guard:               guard,
		RateLimitEnabled:    env("RATE_LIMIT_ENABLED", "true") == "true",
		RateLimitPerMinute:  envInt("RATE_LIMIT_PER_MINUTE", 240),
		RateLimitWindow:     rateLimitWindow,
		AuthMode:            env("AUTH_MODE", "hs256"),
		AuthSecret:          env("JWT_SECRET", ""),
		TokenTTL:            tokenTTL,
		AppEnv:              env("APP_ENV", env("ENVIRONMENT", "")),
		TrustedProxyCIDRs:   parseCIDRs(env("TRUSTED_PROXY_CIDRS", "")),
		MaxRequestBodyBytes: maxRequestBodyBytes,
	}

	if strings.EqualFold(s.AuthMode, "off") {
		if env("ALLOW_INSECURE_AUTH_OFF", "false") != "true" {
			return errors.New("AUTH_MODE=off is disabled unless ALLOW_INSECURE_AUTH_OFF=true")
		}
		if isProductionLikeEnv(s.AppEnv) {
			return errors.New("AUTH_MODE=off is forbidden in production-like environments")
		}
	}
	if err := hardening.ValidateProduction(hardening.Options{
		Service:            "payment-portal",
		Environment:        s.AppEnv,
		StrictProdSecurity: env("STRICT_PROD_SECURITY", "true"),
		JWTSecret:          s.AuthSecret,
		AuthMode:           s.AuthMode,
		DatabaseRequireTLS: env("DATABASE_REQUIRE_TLS", ""),
		RedisAddr:          env("REDIS_ADDR", ""),
		RedisRequireTLS:    env("REDIS_REQUIRE_TLS", ""),
		RedisTLSInsecure:   env("REDIS_TLS_INSECURE", ""),
		CORSAllowedOrigins: env("CORS_ALLOWED_ORIGINS", ""),
	}); err != nil {
		return err
	}

	if s.RateLimitEnabled {
		if redisClient != nil {
			s.RateLimiter = ratelimit.NewRedis(redisClient, rateLimitWindow)
		} else {
			s.RateLimiter = ratelimit.NewInMemory(rateLimitWindow)
		}
	}

	if brokers := strings.TrimSpace(env("PAYMENT_EVENTS_BROKERS", "")); brokers != "" {
		pub, err := events.NewKafkaPublisher(events.KafkaConfig{
			Brokers: strings.Split(brokers, ","),
			Topic:   env("PAYMENT_EVENTS_TOPIC", "payment-events"),
		})
		if err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
		defer func() { _ = pub.Close() }()
		s.Publisher = pub
	}

	r := chi.NewRouter()
	r.Use(httpx.CORSMiddleware(env("CORS_ALLOWED_ORIGINS", "")))
	r.Use(httpx.SecurityHeadersMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(telemetry.HTTPMiddleware("payment-portal"))
	r.Use(s.limitRequestBodyMiddleware)
	r.Use(s.rateLimitMiddleware)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, 200, map[string]string{"status": "ok", "service": "payment-portal"})
	})
	r.Post("/api/user/register", s.handleRegister)
	r.Post("/api/user/login", s.handleLogin)

	authRouter := chi.NewRouter()
	authRouter.Use(auth.Middleware(s.AuthMode, s.AuthSecret))
	authRouter.Get("/metrics", s.withRoles(s.Metrics.Handler(), models.RoleEmployee))
	authRouter.Get("/metrics/prometheus", s.withRoles(s.Metrics.PrometheusHandler(), models.RoleEmployee))
	authRouter.Post("/api/payment", s.withRoles(s.createPayment, models.RoleCustomer, models.RoleEmployee))
	authRouter.Get("/api/payment", s.withRoles(s.listAllPayments, models.RoleEmployee))
	authRouter.Get("/api/payment/{userId}", s.withRoles(s.listUserPayments, models.RoleCustomer, models.RoleEmployee))
	authRouter.Put("/api/payment/verify/{paymentId}", s.withRoles(s.verifyPayment, models.RoleEmployee))
	authRouter.Put("/api/payment/revert/{paymentId}", s.withRoles(s.revertPayment, models.RoleEmployee))
	authRouter.Put("/api/payment/toggle-status/{paymentId}", s.withRoles(s.togglePaymentStatus, models.RoleEmployee))
	authRouter.Delete("/api/payment/{paymentId}", s.withRoles(s.deletePayment, models.RoleCustomer, models.RoleEmployee))
	authRouter.Get("/api/stream", s.withRoles(s.streamEvents, models.RoleEmployee))
	r.Mount("/", authRouter)

	if startLoops != nil {
		startLoops(s)
	}

	addr := env("ADDR", ":8080")
	log.Printf("payment portal listening on %s", addr)
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: envDurationSec("HTTP_READ_HEADER_TIMEOUT_SEC", 5),
		ReadTimeout:       envDurationSec("HTTP_READ_TIMEOUT_SEC", 15),
		WriteTimeout:      envDurationSec("HTTP_WRITE_TIMEOUT_SEC", 30),
		IdleTimeout:       envDurationSec("HTTP_IDLE_TIMEOUT_SEC", 120),
	}
	if listen == nil {
		return errors.New("listen function required")
	}
	return listen(server)
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(statusCode int) {
	s.code = statusCode
	s.ResponseWriter.WriteHeader(statusCode)
}

func (srv *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: 200}
		next.ServeHTTP(rec, r)
		srv.Metrics.Observe(r.Method+" "+r.URL.Path, rec.code, time.Since(start))
	})
}

func (s *Server) limitRequestBodyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.MaxRequestBodyBytes > 0 && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.MaxRequestBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.RateLimitEnabled || s.RateLimiter == nil || s.RateLimitPerMinute <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		decision := s.RateLimiter.Allow("ip:"+s.clientIP(r), s.RateLimitPerMinute)
		if !decision.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(decision.RetryAfter(time.Now().UTC())))
			httpx.Error(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withRoles(h http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.EqualFold(s.AuthMode, "off") {
			h(w, r)
			return
		}
		principal, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			httpx.Error(w, http.StatusUnauthorized, "unauthenticated")
			return
		}
		if !auth.HasAnyRole(principal, roles...) {
			httpx.Error(w, http.StatusForbidden, "forbidden")
			return
		}
		h(w, r)
	}
}

func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	if s.Events == nil {
		httpx.Error(w, http.StatusServiceUnavailable, "stream unavailable")
		return
	}
	opts := &websocket.AcceptOptions{}
	if origins := wsOriginPatterns(env("WS_ALLOWED_ORIGINS", "")); len(origins) > 0 {
		opts.OriginPatterns = origins
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	sub := s.Events.Subscribe(64)
	defer s.Events.Unsubscribe(sub)

	_ = wsjson.Write(ctx, conn, stream.NewEvent(stream.EventReady, nil))
	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				readErr <- err
				return
			}
		}
	}()
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case <-readErr:
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case evt, ok := <-sub:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "closed")
				return
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, evt)
			cancelWrite()
			if err != nil {
				_ = conn.Close(websocket.StatusNormalClosure, "write_failed")
				return
			}
		}
	}
}

func (s *Server) publishPaymentEvent(ctx context.Context, eventType string, change stream.PaymentChange) {
	if s.Events != nil {
		s.Events.Publish(stream.NewEvent(eventType, change))
	}
	if s.Publisher != nil {
		evt := events.PaymentEvent{
			Type:      eventType,
			PaymentID: change.PaymentID,
			UserID:    change.UserID,
			Status:    change.Status,
		}
		if err := s.Publisher.Publish(ctx, evt); err != nil {
			log.Printf("payment event publish failed: %v", err)
		}
	}
}

func (s *Server) metricsLoop(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	s.updateOperationalMetrics(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.updateOperationalMetrics(ctx)
		}
	}
}

func (s *Server) updateOperationalMetrics(ctx context.Context) {
	if s.DB == nil || s.Metrics == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	var pendingPayments int
	_ = s.DB.QueryRow(ctx, `SELECT COUNT(*) FROM payments WHERE status=$1`, models.PaymentPending).Scan(&pendingPayments)
	s.Metrics.SetGauge("payments_pending", float64(pendingPayments))
	var users int
	_ = s.DB.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&users)
	s.Metrics.SetGauge("users_total", float64(users))
	if s.Events != nil {
		s.Metrics.SetGauge("stream_subscribers", float64(s.Events.Subscribers()))
	}
}

func (s *Server) clientIP(r *http.Request) string {
	remoteIP := parseIP(r.RemoteAddr)
	if remoteIP == "" {
		remoteIP = r.RemoteAddr
	}
	if remoteIP != "" && s.isTrustedProxy(remoteIP) {
		if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
			parts := strings.Split(xff, ",")
			if len(parts) > 0 {
				if candidate := parseIP(strings.TrimSpace(parts[0])); candidate != "" {
					return candidate
				}
			}
		}
		if realIP := parseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); realIP != "" {
			return realIP
		}
	}
	if remoteIP == "" {
		return "unknown"
	}
	return remoteIP
}

func (s *Server) isTrustedProxy(ipStr string) bool {
	if len(s.TrustedProxyCIDRs) == 0 {
		return false
	}
	ip := net.ParseIP(strings.TrimSpace(ipStr))
	if ip == nil {
		return false
	}
	for _, cidr := range s.TrustedProxyCIDRs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

func parseIP(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host
	}
	if net.ParseIP(addr) != nil {
		return addr
	}
	return ""
}

func parseCIDRs(raw string) []*net.IPNet {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]*net.IPNet, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.Contains(part, "/") {
			if _, cidr, err := net.ParseCIDR(part); err == nil {
				out = append(out, cidr)
			}
			continue
		}
		ip := net.ParseIP(part)
		if ip == nil {
			continue
		}
		bits := 32
		if ip.To4() == nil {
			bits = 128
		}
		out = append(out, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return out
}

func wsOriginPatterns(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func readRequestBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(r.Body)
	if err == nil {
		return body, true
	}
	if strings.Contains(strings.ToLower(err.Error()), "request body too large") {
		httpx.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
		return nil, false
	}
	httpx.Error(w, http.StatusBadRequest, "invalid request body")
	return nil, false
}

func isProductionLikeEnv(raw string) bool {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case "prod", "production", "staging", "stage":
		return true
	default:
		return false
	}
}

func isTestEnv(raw string) bool {
	value := strings.ToLower(strings.TrimSpace(raw))
	return value == "test" || value == "testing"
}

func envDurationSec(k string, def int) time.Duration {
	return time.Second * time.Duration(envInt(k, def))
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
