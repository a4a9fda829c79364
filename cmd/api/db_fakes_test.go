package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/ST10067544-Thato/JS-Demons-Payment-Portal/pkg/audit"
	"github.com/ST10067544-Thato/JS-Demons-Payment-Portal/pkg/auth"
	"github.com/ST10067544-Thato/JS-Demons-Payment-Portal/pkg/bruteforce"
	"github.com/ST10067544-Thato/JS-Demons-Payment-Portal/pkg/events"
	"github.com/ST10067544-Thato/JS-Demons-Payment-Portal/pkg/metrics"
	"github.com/ST10067544-Thato/JS-Demons-Payment-Portal/pkg/store"
	"github.com/ST10067544-Thato/JS-Demons-Payment-Portal/pkg/stream"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeAPIDB struct {
	execFn     func(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	queryFn    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	queryRowFn func(ctx context.Context, sql string, args ...any) pgx.Row
	execSQL    []string
	querySQL   []string
	rowSQL     []string
}

func (f *fakeAPIDB) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	f.execSQL = append(f.execSQL, sql)
	if f.execFn != nil {
		return f.execFn(ctx, sql, arguments...)
	}
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (f *fakeAPIDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.querySQL = append(f.querySQL, sql)
	if f.queryFn != nil {
		return f.queryFn(ctx, sql, args...)
	}
	return &fakeAPIRows{}, nil
}

func (f *fakeAPIDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.rowSQL = append(f.rowSQL, sql)
	if f.queryRowFn != nil {
		return f.queryRowFn(ctx, sql, args...)
	}
	return fakeAPIRow{err: pgx.ErrNoRows}
}

func (f *fakeAPIDB) dbCalls() int {
	return len(f.execSQL) + len(f.querySQL) + len(f.rowSQL)
}

type fakeAPIRow struct {
	values []any
	err    error
}

func (r fakeAPIRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return errors.New("scan arity mismatch")
	}
	for i := range dest {
		if err := assignAPIScan(dest[i], r.values[i]); err != nil {
			return err
		}
	}
	return nil
}

type fakeAPIRows struct {
	rows [][]any
	idx  int
	err  error
}

func (r *fakeAPIRows) Close()                                       {}
func (r *fakeAPIRows) Err() error                                   { return r.err }
func (r *fakeAPIRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT 1") }
func (r *fakeAPIRows) FieldDescriptions() []pgconn.FieldDescription { return nil }

func (r *fakeAPIRows) Next() bool {
	if r.err != nil {
		return false
	}
	if r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeAPIRows) Scan(dest ...any) error {
	if r.idx == 0 || r.idx > len(r.rows) {
		return errors.New("no current row")
	}
	current := r.rows[r.idx-1]
	if len(dest) != len(current) {
		return errors.New("scan arity mismatch")
	}
	for i := range dest {
		if err := assignAPIScan(dest[i], current[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeAPIRows) Values() ([]any, error) {
	if r.idx == 0 || r.idx > len(r.rows) {
		return nil, errors.New("no current row")
	}
	return append([]any(nil), r.rows[r.idx-1]...), nil
}

func (r *fakeAPIRows) RawValues() [][]byte { return nil }
func (r *fakeAPIRows) Conn() *pgx.Conn     { return nil }

func assignAPIScan(dest any, value any) error {
	switch d := dest.(type) {
	case *string:
		v, ok := value.(string)
		if !ok {
			return errors.New("value is not string")
		}
		*d = v
	case *float64:
		switch v := value.(type) {
		case float64:
			*d = v
		case int:
			*d = float64(v)
		case int64:
			*d = float64(v)
		default:
			return errors.New("value is not float64")
		}
	case *int:
		switch v := value.(type) {
		case int:
			*d = v
		case int64:
			*d = int(v)
		default:
			return errors.New("value is not int")
		}
	case *json.RawMessage:
		v, ok := value.([]byte)
		if !ok {
			return errors.New("value is not json raw")
		}
		*d = append((*d)[:0], v...)
	case *time.Time:
		v, ok := value.(time.Time)
		if !ok {
			return errors.New("value is not time.Time")
		}
		*d = v
	default:
		return errors.New("unsupported scan destination")
	}
	return nil
}

type fakeAuditStore struct {
	records []audit.Record
	err     error
}

func (f *fakeAuditStore) Append(ctx context.Context, rec audit.Record) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

type recordingPublisher struct {
	events []events.PaymentEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, evt events.PaymentEvent) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func newTestServer(t *testing.T, db *fakeAPIDB) (*Server, *fakeAuditStore, *recordingPublisher) {
	t.Helper()
	auditStore := &fakeAuditStore{}
	publisher := &recordingPublisher{}
	s := &Server{
		DB:         db,
		Cache:      store.NewMemoryCache(),
		Metrics:    metrics.NewRegistry(),
		Events:     stream.NewHub(),
		Publisher:  publisher,
		Audit:      auditStore,
		Guard:      bruteforce.New(store.NewMemoryCache()),
		AuthMode:   "hs256",
		AuthSecret: "test-secret",
		TokenTTL:   time.Hour,
	}
	return s, auditStore, publisher
}

func withAPIURLParams(req *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func withPrincipal(req *http.Request, p auth.Principal) *http.Request {
	return req.WithContext(auth.WithPrincipal(req.Context(), p))
}

func decodeJSONBody(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode response: %v (%s)", err, body)
	}
	return out
}
