// Package migrations applies the embedded schema to PostgreSQL or SQLite.
//
// Each dialect has its own directory of NNN_description.sql files, executed in
// lexicographic order. Applied files are recorded in schema_migrations, so Run
// and RunSQLite are idempotent.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed postgres/*.sql sqlite/*.sql
var sqlFiles embed.FS

// Tables lists the tables both dialects must provide.
var Tables = []string{
	"cached_routes",
	"api_logs",
	"search_history",
	"admins",
	"refresh_tokens",
}

// entry holds the filename and raw SQL content of a single migration file.
type entry struct {
	version string // filename used as the unique version key
	sql     string
}

// target is one database dialect the runner can migrate.
type target interface {
	ensureMigrationsTable(ctx context.Context) error
	appliedVersions(ctx context.Context) (map[string]bool, error)
	// apply executes e and records its version in one transaction.
	apply(ctx context.Context, e entry) error
	tableExists(ctx context.Context, name string) (bool, error)
}

// Run applies all pending PostgreSQL migrations.
func Run(ctx context.Context, pool *pgxpool.Pool) error {
	return run(ctx, pgTarget{pool: pool}, "postgres")
}

// RunSQLite applies all pending SQLite migrations.
func RunSQLite(ctx context.Context, db *sql.DB) error {
	return run(ctx, sqliteTarget{db: db}, "sqlite")
}

// CheckSchema verifies that every table in Tables exists in the public schema.
func CheckSchema(ctx context.Context, pool *pgxpool.Pool) error {
	return checkSchema(ctx, pgTarget{pool: pool})
}

// CheckSQLiteSchema is CheckSchema for SQLite.
func CheckSQLiteSchema(ctx context.Context, db *sql.DB) error {
	return checkSchema(ctx, sqliteTarget{db: db})
}

func run(ctx context.Context, t target, dir string) error {
	if err := t.ensureMigrationsTable(ctx); err != nil {
		return fmt.Errorf("migrations: ensure tracking table: %w", err)
	}

	entries, err := loadEntries(dir)
	if err != nil {
		return fmt.Errorf("migrations: load files: %w", err)
	}

	applied, err := t.appliedVersions(ctx)
	if err != nil {
		return fmt.Errorf("migrations: read applied versions: %w", err)
	}

	pending := 0
	for _, e := range entries {
		if applied[e.version] {
			continue
		}
		if err := t.apply(ctx, e); err != nil {
			return fmt.Errorf("migrations: apply %q: %w", e.version, err)
		}
		log.Printf("migrations: applied %s/%s", dir, e.version)
		pending++
	}

	if pending == 0 {
		log.Printf("migrations: %s schema is up to date", dir)
	} else {
		log.Printf("migrations: %d %s migration(s) applied", pending, dir)
	}
	return nil
}

// checkSchema is a lightweight sanity check, not a structural diff.
func checkSchema(ctx context.Context, t target) error {
	for _, table := range Tables {
		ok, err := t.tableExists(ctx, table)
		if err != nil {
			return fmt.Errorf("migrations: check table %q: %w", table, err)
		}
		if !ok {
			return fmt.Errorf("migrations: required table %q is missing", table)
		}
	}
	return nil
}

// loadEntries reads dir's embedded SQL files in lexicographic order.
// embed.FS.ReadDir guarantees this ordering.
func loadEntries(dir string) ([]entry, error) {
	dirEntries, err := fs.ReadDir(sqlFiles, dir)
	if err != nil {
		return nil, fmt.Errorf("read embedded dir: %w", err)
	}

	var out []entry
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		content, err := fs.ReadFile(sqlFiles, dir+"/"+de.Name())
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", de.Name(), err)
		}
		out = append(out, entry{version: de.Name(), sql: string(content)})
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// PostgreSQL
// ---------------------------------------------------------------------------

type pgTarget struct {
	pool *pgxpool.Pool
}

func (t pgTarget) ensureMigrationsTable(ctx context.Context) error {
	_, err := t.pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS schema_migrations (
            version    VARCHAR(255) PRIMARY KEY,
            applied_at TIMESTAMP DEFAULT NOW()
        )`)
	return err
}

func (t pgTarget) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := t.pool.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		seen[v] = true
	}
	return seen, rows.Err()
}

func (t pgTarget) apply(ctx context.Context, e entry) error {
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, e.sql); err != nil {
		return fmt.Errorf("exec sql: %w", err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, e.version); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (t pgTarget) tableExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := t.pool.QueryRow(ctx,
		`SELECT EXISTS (
            SELECT 1
            FROM information_schema.tables
            WHERE table_schema = 'public'
              AND table_name   = $1
        )`, name,
	).Scan(&exists)
	return exists, err
}

// ---------------------------------------------------------------------------
// SQLite
// ---------------------------------------------------------------------------

type sqliteTarget struct {
	db *sql.DB
}

func (t sqliteTarget) ensureMigrationsTable(ctx context.Context) error {
	content, err := fs.ReadFile(sqlFiles, "sqlite/000_migrations_table.sql")
	if err != nil {
		return err
	}
	_, err = t.db.ExecContext(ctx, string(content))
	return err
}

func (t sqliteTarget) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := t.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		seen[v] = true
	}
	return seen, rows.Err()
}

func (t sqliteTarget) apply(ctx context.Context, e entry) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, e.sql); err != nil {
		return fmt.Errorf("exec sql: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, e.version); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (t sqliteTarget) tableExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := t.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name,
	).Scan(&n)
	return n > 0, err
}
