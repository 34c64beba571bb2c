// Package migrations resolves the embedded intake schema for each supported
// SQL dialect and hands it to a persistence client for registration.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	intake "github.com/goliatone/go-intake"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	schemaRoot   = "data/sql/migrations"
	defaultLabel = "go-intake"
)

// Schema is one dialect's migration directory.
type Schema struct {
	Dialect  string
	Dir      string
	FS       fs.FS
	Versions []string
}

// RegisterFunc receives every selected schema. label names the owner of the
// migrations in the persistence client's bookkeeping.
type RegisterFunc func(ctx context.Context, dialect string, label string, fsys fs.FS) error

type Plan struct {
	Label    string
	Dialects []string
	Schemas  []Schema
}

type Option func(*Plan)

func WithLabel(label string) Option {
	return func(p *Plan) {
		if label = strings.TrimSpace(label); label != "" {
			p.Label = label
		}
	}
}

// WithDialects restricts registration to the named dialects.
func WithDialects(dialects ...string) Option {
	return func(p *Plan) {
		if selected := normalizeDialects(dialects); len(selected) > 0 {
			p.Dialects = selected
		}
	}
}

// WithSchemas replaces the embedded schemas, mostly for tests.
func WithSchemas(schemas ...Schema) Option {
	return func(p *Plan) {
		kept := schemas[:0:0]
		for _, schema := range schemas {
			schema.Dialect = strings.ToLower(strings.TrimSpace(schema.Dialect))
			if schema.Dialect != "" && schema.FS != nil {
				kept = append(kept, schema)
			}
		}
		if len(kept) > 0 {
			p.Schemas = kept
		}
	}
}

// Schemas lists the postgres and sqlite schemas found under
// data/sql/migrations in root, or in the embedded tree when root is nil.
func Schemas(root fs.FS) ([]Schema, error) {
	if root == nil {
		root = intake.GetMigrationsFS()
	}
	postgres, err := fs.Sub(root, schemaRoot)
	if err != nil {
		return nil, fmt.Errorf("migrations: open %s: %w", schemaRoot, err)
	}
	sqlite, err := fs.Sub(postgres, DialectSQLite)
	if err != nil {
		return nil, fmt.Errorf("migrations: open sqlite schema: %w", err)
	}

	out := []Schema{
		{Dialect: DialectPostgres, Dir: schemaRoot, FS: postgres},
		{Dialect: DialectSQLite, Dir: schemaRoot + "/" + DialectSQLite, FS: sqlite},
	}
	for i := range out {
		versions, err := upVersions(out[i].FS)
		if err != nil {
			return nil, fmt.Errorf("migrations: %s: %w", out[i].Dir, err)
		}
		out[i].Versions = versions
	}
	if err := sameVersions(out[0], out[1]); err != nil {
		return nil, err
	}
	return out, nil
}

// Register calls fn once per selected dialect schema.
func Register(ctx context.Context, fn RegisterFunc, opts ...Option) (Plan, error) {
	plan := Plan{
		Label:    defaultLabel,
		Dialects: []string{DialectPostgres, DialectSQLite},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&plan)
		}
	}
	if fn == nil {
		return plan, fmt.Errorf("migrations: register function is required")
	}
	if len(plan.Schemas) == 0 {
		schemas, err := Schemas(nil)
		if err != nil {
			return plan, err
		}
		plan.Schemas = schemas
	}

	registered := 0
	for _, schema := range plan.Schemas {
		if !contains(plan.Dialects, schema.Dialect) {
			continue
		}
		if err := fn(ctx, schema.Dialect, plan.Label, schema.FS); err != nil {
			return plan, fmt.Errorf("migrations: register %s schema: %w", schema.Dialect, err)
		}
		registered++
	}
	if registered == 0 {
		return plan, fmt.Errorf("migrations: no schema for dialects %v", plan.Dialects)
	}
	return plan, nil
}

func upVersions(fsys fs.FS) ([]string, error) {
	files, err := fs.Glob(fsys, "*.up.sql")
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no *.up.sql files")
	}
	versions := make([]string, 0, len(files))
	for _, file := range files {
		versions = append(versions, strings.TrimSuffix(file, ".up.sql"))
	}
	sort.Strings(versions)
	return versions, nil
}

// sameVersions keeps the two dialects from drifting apart.
func sameVersions(a, b Schema) error {
	if strings.Join(a.Versions, ",") == strings.Join(b.Versions, ",") {
		return nil
	}
	return fmt.Errorf("migrations: %s versions %v do not match %s versions %v",
		a.Dialect, a.Versions, b.Dialect, b.Versions)
}

func normalizeDialects(values []string) []string {
	var out []string
	for _, value := range values {
		value = strings.ToLower(strings.TrimSpace(value))
		if value != "" && !contains(out, value) {
			out = append(out, value)
		}
	}
	return out
}

func contains(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
