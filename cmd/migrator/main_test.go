package main

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// stubDB satisfies migrationDB; every hook defaults to success.
type stubDB struct {
	execFn     func(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	queryRowFn func(ctx context.Context, sql string, args ...any) pgx.Row
	tx         *stubTx
	beginErr   error
}

func (db *stubDB) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	if db.execFn != nil {
		return db.execFn(ctx, sql, arguments...)
	}
	return pgconn.NewCommandTag("EXEC 1"), nil
}

func (db *stubDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if db.queryRowFn != nil {
		return db.queryRowFn(ctx, sql, args...)
	}
	return boolRow{applied: false}
}

func (db *stubDB) Begin(ctx context.Context) (pgx.Tx, error) {
	if db.beginErr != nil {
		return nil, db.beginErr
	}
	if db.tx == nil {
		db.tx = &stubTx{}
	}
	return db.tx, nil
}

// boolRow scans the single EXISTS column the ledger lookup reads.
type boolRow struct {
	applied bool
	err     error
}

func (r boolRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != 1 {
		return errors.New("exists lookup scans one column")
	}
	target, ok := dest[0].(*bool)
	if !ok {
		return errors.New("exists lookup scans into *bool")
	}
	*target = r.applied
	return nil
}

type stubTx struct {
	execFn        func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	commitErr     error
	rollbackCalls int
}

func (t *stubTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if t.execFn != nil {
		return t.execFn(ctx, sql, args...)
	}
	return pgconn.NewCommandTag("EXEC 1"), nil
}

func (t *stubTx) Commit(ctx context.Context) error { return t.commitErr }

func (t *stubTx) Rollback(ctx context.Context) error {
	t.rollbackCalls++
	return nil
}

// The rest of pgx.Tx never runs during a migration.
func (t *stubTx) Begin(ctx context.Context) (pgx.Tx, error)                  { return t, nil }
func (t *stubTx) Conn() *pgx.Conn                                            { return nil }
func (t *stubTx) LargeObjects() pgx.LargeObjects                             { return pgx.LargeObjects{} }
func (t *stubTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *stubTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("not supported")
}
func (t *stubTx) Prepare(ctx context.Context, name string, sql string) (*pgconn.StatementDescription, error) {
	return nil, errors.New("not supported")
}
func (t *stubTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not supported")
}
func (t *stubTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return boolRow{err: errors.New("not supported")}
}

func TestValidateMigrationPath(t *testing.T) {
	t.Parallel()

	clean, err := validateMigrationPath("migrations", "migrations/001_init.sql")
	if err != nil {
		t.Fatalf("in-directory path should validate: %v", err)
	}
	if clean != filepath.Clean("migrations/001_init.sql") {
		t.Fatalf("unexpected clean path: %s", clean)
	}

	for _, bad := range []string{"../outside.sql", "other/001_init.sql"} {
		if _, err := validateMigrationPath("migrations", bad); err == nil {
			t.Errorf("%q should be rejected", bad)
		}
	}
}

func TestRunMigrationsAppliesOnlyUnapplied(t *testing.T) {
	db := &stubDB{
		queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return boolRow{applied: args[0].(string) == "001_init.sql"}
		},
	}

	readCalls := 0
	readFile := func(name string) ([]byte, error) {
		readCalls++
		return []byte("SELECT 1;"), nil
	}
	// out of order on purpose; the migrator must sort
	glob := func(pattern string) ([]string, error) {
		return []string{"migrations/002_indexes.sql", "migrations/001_init.sql"}, nil
	}
	var logs []string
	logf := func(format string, args ...any) { logs = append(logs, format) }

	if err := runMigrations(context.Background(), db, "migrations", readFile, glob, logf); err != nil {
		t.Fatalf("runMigrations: %v", err)
	}
	if readCalls != 1 {
		t.Fatalf("only the unapplied file should be read, got %d reads", readCalls)
	}
	if db.tx.rollbackCalls != 0 {
		t.Fatalf("unexpected rollbacks: %d", db.tx.rollbackCalls)
	}
	if len(logs) < 2 {
		t.Fatalf("expected an applied log plus the summary, got %#v", logs)
	}
}

func TestRunMigrationsErrorBranches(t *testing.T) {
	singleFile := func(pattern string) ([]string, error) {
		return []string{"migrations/001_init.sql"}, nil
	}
	sqlBody := func(name string) ([]byte, error) { return []byte("SELECT 1;"), nil }

	t.Run("db required", func(t *testing.T) {
		err := runMigrations(context.Background(), nil, "migrations", nil, nil, nil)
		if err == nil || !strings.Contains(err.Error(), "db required") {
			t.Fatalf("got %v", err)
		}
	})

	t.Run("ledger table create fails", func(t *testing.T) {
		db := &stubDB{
			execFn: func(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
				return pgconn.CommandTag{}, errors.New("create fail")
			},
		}
		err := runMigrations(context.Background(), db, "migrations", nil, nil, nil)
		if err == nil || !strings.Contains(err.Error(), "create schema_migrations") {
			t.Fatalf("got %v", err)
		}
	})

	t.Run("glob fails", func(t *testing.T) {
		glob := func(pattern string) ([]string, error) { return nil, errors.New("glob fail") }
		err := runMigrations(context.Background(), &stubDB{}, "migrations", nil, glob, nil)
		if err == nil || !strings.Contains(err.Error(), "glob migrations") {
			t.Fatalf("got %v", err)
		}
	})

	t.Run("escaping path rejected", func(t *testing.T) {
		glob := func(pattern string) ([]string, error) { return []string{"../evil.sql"}, nil }
		err := runMigrations(context.Background(), &stubDB{}, "migrations", nil, glob, nil)
		if err == nil || !strings.Contains(err.Error(), "invalid migration path") {
			t.Fatalf("got %v", err)
		}
	})

	t.Run("failed apply rolls back", func(t *testing.T) {
		db := &stubDB{tx: &stubTx{
			execFn: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
				return pgconn.CommandTag{}, errors.New("syntax error")
			},
		}}
		err := runMigrations(context.Background(), db, "migrations", sqlBody, singleFile, nil)
		if err == nil || !strings.Contains(err.Error(), "apply migration") {
			t.Fatalf("got %v", err)
		}
		if db.tx.rollbackCalls != 1 {
			t.Fatalf("expected one rollback, got %d", db.tx.rollbackCalls)
		}
	})

	t.Run("commit fails", func(t *testing.T) {
		db := &stubDB{tx: &stubTx{commitErr: errors.New("commit fail")}}
		err := runMigrations(context.Background(), db, "migrations", sqlBody, singleFile, nil)
		if err == nil || !strings.Contains(err.Error(), "commit migration") {
			t.Fatalf("got %v", err)
		}
	})
}

func TestMainUsesInjectedDB(t *testing.T) {
	origFatal := logFatalf
	origOpen := openDBFn
	defer func() {
		logFatalf = origFatal
		openDBFn = origOpen
	}()

	fatalCalls := 0
	logFatalf = func(format string, args ...any) { fatalCalls++ }
	openDBFn = func(ctx context.Context) (migratorDBCloser, error) {
		return nil, errors.New("no database")
	}
	main()
	if fatalCalls != 1 {
		t.Fatalf("expected one fatal log when the pool cannot open, got %d", fatalCalls)
	}
}
