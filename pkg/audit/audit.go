// Package audit appends portal events (login attempts, payment mutations)
// to an append-only Postgres trail.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	KindLoginAttempt         = "login_attempt"
	KindPaymentCreated       = "payment_created"
	KindPaymentStatusChanged = "payment_status_changed"
	KindPaymentDeleted       = "payment_deleted"
)

type auditDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Writer struct {
	DB auditDB
	// RedactActors replaces actor identifiers with a sha256 digest before
	// the row is written.
	RedactActors bool
}

type Record struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Actor     string          `json:"actor"`
	ClientIP  string          `json:"clientIp,omitempty"`
	Outcome   string          `json:"outcome"`
	Detail    json.RawMessage `json:"detail,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

func (w *Writer) Append(ctx context.Context, rec Record) error {
	if w == nil || w.DB == nil {
		return nil
	}
	actor := rec.Actor
	if w.RedactActors {
		actor = HashIdentity(actor)
	}
	_, err := w.DB.Exec(ctx, `
		INSERT INTO audit_events (id, kind, actor, client_ip, outcome, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, rec.ID, rec.Kind, actor, rec.ClientIP, rec.Outcome, rec.Detail, rec.CreatedAt)
	return err
}

// Recent returns the newest events of one kind, newest first.
func (w *Writer) Recent(ctx context.Context, kind string, limit int) ([]Record, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := w.DB.Query(ctx, `
		SELECT id, kind, actor, COALESCE(client_ip, ''), outcome, detail, created_at
		FROM audit_events WHERE kind=$1 ORDER BY created_at DESC LIMIT $2
	`, kind, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Record, 0, limit)
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Kind, &rec.Actor, &rec.ClientIP, &rec.Outcome, &rec.Detail, &rec.CreatedAt); err == nil {
			out = append(out, rec)
		}
	}
	return out, rows.Err()
}

// HashIdentity digests an identifier so the trail never stores raw values
// when redaction is on.
func HashIdentity(value string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(value)))
	return fmt.Sprintf("%x", sum[:])
}
