package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// migrate runs every embedded .sql script, in filename order, on a single
// connection with foreign-key enforcement disabled for the duration. It is
// hand-rolled rather than built on golang-migrate: that library's sqlite3
// driver needs cgo (mattn/go-sqlite3), which would present a second sqlite
// binding to the linker alongside the pure-Go glebarez/modernc stack this
// Store already depends on (see SPEC_FULL.md §9's "two independent sqlite
// bindings collide" design note — it's the same conflict, one layer down).
// Scripts are idempotent (CREATE TABLE/INDEX IF NOT EXISTS) and append-only;
// there is no "applied migrations" ledger table because every script is
// safe to re-run.
func migrate(ctx context.Context, db *sql.DB) error {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("store: reading embedded migrations: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("store: acquiring migration connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return fmt.Errorf("store: disabling foreign keys: %w", err)
	}

	for _, name := range names {
		script, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("store: reading migration %s: %w", name, err)
		}
		// No wrapping transaction: some scripts recreate tables, which on
		// SQLite requires foreign keys to be off for the whole statement
		// sequence, not just a transaction scope.
		if _, err := conn.ExecContext(ctx, string(script)); err != nil {
			return fmt.Errorf("store: applying migration %s: %w", name, err)
		}
	}

	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("store: re-enabling foreign keys: %w", err)
	}

	return nil
}
