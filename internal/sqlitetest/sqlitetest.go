// Package sqlitetest opens migrated in-memory sqlite databases for tests.
package sqlitetest

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sync/atomic"
	"testing"
	"time"

	intakemigrations "github.com/goliatone/go-intake/migrations"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

var sequence atomic.Int64

type persistenceConfig struct {
	server string
}

func (c persistenceConfig) GetDebug() bool                { return false }
func (c persistenceConfig) GetDriver() string             { return "sqlite3" }
func (c persistenceConfig) GetServer() string             { return c.server }
func (c persistenceConfig) GetPingTimeout() time.Duration { return time.Second }
func (c persistenceConfig) GetOtelIdentifier() string     { return "go-intake-tests" }

// NewClient returns a persistence client on a fresh shared-cache memory
// database with the intake sqlite migrations applied. The client is closed
// when the test ends.
func NewClient(t testing.TB) *persistence.Client {
	t.Helper()
	dsn := fmt.Sprintf(
		"file:intake-%d-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
		sequence.Add(1),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	client, err := persistence.New(persistenceConfig{server: dsn}, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	_, err = intakemigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect == intakemigrations.DialectSQLite {
			client.RegisterSQLMigrations(fsys)
		}
		return nil
	}, intakemigrations.WithDialects(intakemigrations.DialectSQLite))
	if err != nil {
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return client
}
