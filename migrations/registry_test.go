package migrations

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	intake "github.com/goliatone/go-intake"
	_ "github.com/mattn/go-sqlite3"
)

func TestSchemas_EmbeddedDialectsShareVersions(t *testing.T) {
	schemas, err := Schemas(nil)
	if err != nil {
		t.Fatalf("schemas: %v", err)
	}
	if len(schemas) != 2 {
		t.Fatalf("expected postgres and sqlite schemas, got %d", len(schemas))
	}
	if schemas[0].Dialect != DialectPostgres || schemas[1].Dialect != DialectSQLite {
		t.Fatalf("unexpected dialect order %q %q", schemas[0].Dialect, schemas[1].Dialect)
	}
	for _, schema := range schemas {
		if len(schema.Versions) == 0 || schema.Versions[0] != "00001_intake_core" {
			t.Fatalf("expected core version first for %s, got %v", schema.Dialect, schema.Versions)
		}
		for _, version := range schema.Versions {
			content, err := fs.ReadFile(schema.FS, version+".down.sql")
			if err != nil || strings.TrimSpace(string(content)) == "" {
				t.Fatalf("expected %s down migration for %s: %v", schema.Dialect, version, err)
			}
		}
	}
}

func TestSchemas_Rejects(t *testing.T) {
	tests := []struct {
		name string
		root fstest.MapFS
	}{
		{
			name: "no up migrations",
			root: fstest.MapFS{
				"data/sql/migrations/README.md":        {Data: []byte("docs")},
				"data/sql/migrations/sqlite/README.md": {Data: []byte("docs")},
			},
		},
		{
			name: "dialects drifted",
			root: fstest.MapFS{
				"data/sql/migrations/00001_core.up.sql":        {Data: []byte("SELECT 1;")},
				"data/sql/migrations/00002_extra.up.sql":       {Data: []byte("SELECT 1;")},
				"data/sql/migrations/sqlite/00001_core.up.sql": {Data: []byte("SELECT 1;")},
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Schemas(tc.root); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestRegister_SelectsDialects(t *testing.T) {
	var calls []string
	plan, err := Register(context.Background(), func(_ context.Context, dialect string, _ string, _ fs.FS) error {
		calls = append(calls, dialect)
		return nil
	}, WithDialects(" SQLite ", "sqlite"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(calls) != 1 || calls[0] != DialectSQLite {
		t.Fatalf("expected single sqlite registration, got %v", calls)
	}
	if len(plan.Dialects) != 1 {
		t.Fatalf("expected deduplicated dialects, got %v", plan.Dialects)
	}

	_, err = Register(context.Background(), func(context.Context, string, string, fs.FS) error {
		return nil
	}, WithDialects("mysql"))
	if err == nil {
		t.Fatalf("expected unknown dialect to fail")
	}
}

func TestRegister_Label(t *testing.T) {
	var labels []string
	record := func(_ context.Context, _ string, label string, _ fs.FS) error {
		labels = append(labels, label)
		return nil
	}

	plan, err := Register(context.Background(), record)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if plan.Label != "go-intake" || len(labels) != 2 {
		t.Fatalf("expected default label on both dialects, got %q %v", plan.Label, labels)
	}

	labels = nil
	if _, err := Register(context.Background(), record, WithLabel("tenant-schema")); err != nil {
		t.Fatalf("register with label: %v", err)
	}
	for _, label := range labels {
		if label != "tenant-schema" {
			t.Fatalf("expected custom label, got %q", label)
		}
	}
}

func TestRegister_Errors(t *testing.T) {
	if _, err := Register(context.Background(), nil); err == nil {
		t.Fatalf("expected missing register function to fail")
	}

	custom := Schema{Dialect: "SQLite", FS: fstest.MapFS{"00001_x.up.sql": {Data: []byte("SELECT 1;")}}}
	_, err := Register(context.Background(), func(context.Context, string, string, fs.FS) error {
		return errors.New("boom")
	}, WithSchemas(custom), WithDialects(DialectSQLite))
	if err == nil || !strings.Contains(err.Error(), "register sqlite schema") {
		t.Fatalf("expected wrapped register error, got %v", err)
	}
}

func TestSQLiteCoreMigration_ApplyAndRollback(t *testing.T) {
	db, err := sql.Open("sqlite3", "file:migrations-intake-core?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()
	ctx := context.Background()

	sqliteMigrations, err := fs.Sub(intake.GetMigrationsFS(), "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}
	if err := execSQLMigration(ctx, db, sqliteMigrations, "00001_intake_core.up.sql"); err != nil {
		t.Fatalf("apply core migration up: %v", err)
	}

	tables := []string{
		"intake_tenants",
		"intake_raw_events",
		"intake_normalized_events",
		"intake_customers",
		"intake_quotes",
		"intake_actions",
		"intake_audit_records",
		"intake_error_records",
	}
	for _, table := range tables {
		if countSQLiteObjects(t, db, "table", table) != 1 {
			t.Fatalf("expected table %s after up migration", table)
		}
	}

	if _, err := db.ExecContext(ctx,
		`INSERT INTO intake_tenants (id, name, api_key) VALUES (?, ?, ?)`,
		"tenant_1", "Acme", "key_1",
	); err != nil {
		t.Fatalf("insert tenant: %v", err)
	}
	insertRaw := `INSERT INTO intake_raw_events (id, tenant_id, source, dedup_key, payload) VALUES (?, ?, ?, ?, ?)`
	if _, err := db.ExecContext(ctx, insertRaw, "raw_1", "tenant_1", "webchat", "msg-1", []byte("{}")); err != nil {
		t.Fatalf("insert raw event: %v", err)
	}
	if _, err := db.ExecContext(ctx, insertRaw, "raw_2", "tenant_1", "webchat", "msg-1", []byte("{}")); err == nil {
		t.Fatalf("expected (tenant_id, dedup_key) uniqueness violation")
	}
	if _, err := db.ExecContext(ctx, insertRaw, "raw_3", "tenant_missing", "webchat", "msg-2", []byte("{}")); err == nil {
		t.Fatalf("expected tenant foreign key violation")
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO intake_actions (id, tenant_id, kind, status) VALUES (?, ?, ?, ?)`,
		"action_1", "tenant_1", "notify_customer", "exploded",
	); err == nil {
		t.Fatalf("expected action status check violation")
	}

	if err := execSQLMigration(ctx, db, sqliteMigrations, "00001_intake_core.down.sql"); err != nil {
		t.Fatalf("apply core migration down: %v", err)
	}
	for _, table := range tables {
		if countSQLiteObjects(t, db, "table", table) != 0 {
			t.Fatalf("expected table %s dropped after down migration", table)
		}
	}
}

func countSQLiteObjects(t *testing.T, db *sql.DB, kind string, name string) int {
	t.Helper()
	var count int
	if err := db.QueryRowContext(
		context.Background(),
		`SELECT COUNT(*) FROM sqlite_master WHERE type = ? AND name = ?`,
		kind,
		name,
	).Scan(&count); err != nil {
		t.Fatalf("query sqlite_master for %s: %v", name, err)
	}
	return count
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, filename string) error {
	content, err := fs.ReadFile(fsys, filepath.Clean(filename))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, string(content))
	return err
}
