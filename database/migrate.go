package database

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"sort"

	"github.com/jackc/pgx/v5"
)

// MigrateUp applies every embedded up migration in order over an existing
// connection. The scripts are idempotent, so re-running against an already
// migrated destination is safe. Partial moves go through the Migrator in
// migrations.go, which tracks schema versions.
func MigrateUp(ctx context.Context, db *pgx.Conn) error {
	return runScripts(ctx, db, ".up.sql", false)
}

// MigrateDown runs the down migrations in reverse order, removing the
// checkpoint schema and all recorded progress.
func MigrateDown(ctx context.Context, db *pgx.Conn) error {
	return runScripts(ctx, db, ".down.sql", true)
}

func runScripts(ctx context.Context, db *pgx.Conn, suffix string, reverse bool) error {
	names, err := fs.Glob(migrationsFS, "migrations/*"+suffix)
	if err != nil {
		return err
	}
	sort.Strings(names)
	if reverse {
		slices.Reverse(names)
	}

	for _, name := range names {
		script, err := migrationsFS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if _, err := db.Exec(ctx, string(script)); err != nil {
			return fmt.Errorf("migration %s failed: %w", name, err)
		}
	}
	return nil
}
