// Package migrations applies the embedded catalog schema. Runs hold a
// Postgres advisory lock so API replicas and linkreach-migrate can start
// together without applying the same version twice.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

//go:embed sql/*.sql
var embeddedFS embed.FS

const (
	migrationTable = "linkreach_schema_migrations"
	// "linkrch" in ASCII.
	migrationLockKey int64 = 0x6c696e6b726368
)

var migrationNamePattern = regexp.MustCompile(`^([0-9]+)_(.+)\.(up|down)\.sql$`)

type Runner struct {
	fsys fs.FS
}

func NewRunner() *Runner {
	return &Runner{fsys: embeddedFS}
}

type migration struct {
	Version int64
	Name    string
	UpSQL   string
	DownSQL string
}

// Status describes one known migration and whether the database has it.
type Status struct {
	Version int64
	Name    string
	Applied bool
}

// Up applies pending migrations in version order; steps <= 0 applies all.
func (r *Runner) Up(ctx context.Context, db *sql.DB, steps int) (int, error) {
	migrations, err := loadMigrations(r.fsys)
	if err != nil {
		return 0, err
	}
	runCount := 0
	err = withLock(ctx, db, func(conn *sql.Conn) error {
		applied, err := listAppliedVersions(ctx, conn, "ASC")
		if err != nil {
			return err
		}
		for _, item := range pendingUp(migrations, applied, steps) {
			if err := applyMigration(ctx, conn, item); err != nil {
				return err
			}
			runCount++
		}
		return nil
	})
	return runCount, err
}

// Down rolls back the newest applied migrations; steps <= 0 means one.
func (r *Runner) Down(ctx context.Context, db *sql.DB, steps int) (int, error) {
	migrations, err := loadMigrations(r.fsys)
	if err != nil {
		return 0, err
	}
	runCount := 0
	err = withLock(ctx, db, func(conn *sql.Conn) error {
		applied, err := listAppliedVersions(ctx, conn, "DESC")
		if err != nil {
			return err
		}
		items, err := pendingDown(migrations, applied, steps)
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := rollbackMigration(ctx, conn, item); err != nil {
				return err
			}
			runCount++
		}
		return nil
	})
	return runCount, err
}

// Status lists every embedded migration in version order, flagging the ones
// already applied.
func (r *Runner) Status(ctx context.Context, db *sql.DB) ([]Status, error) {
	migrations, err := loadMigrations(r.fsys)
	if err != nil {
		return nil, err
	}
	var out []Status
	err = withLock(ctx, db, func(conn *sql.Conn) error {
		applied, err := listAppliedVersions(ctx, conn, "ASC")
		if err != nil {
			return err
		}
		appliedSet := versionSet(applied)
		out = make([]Status, 0, len(migrations))
		for _, item := range migrations {
			_, ok := appliedSet[item.Version]
			out = append(out, Status{Version: item.Version, Name: item.Name, Applied: ok})
		}
		return nil
	})
	return out, err
}

// withLock pins one connection, takes the advisory lock on it and makes
// sure the bookkeeping table exists before fn runs.
func withLock(ctx context.Context, db *sql.DB, fn func(conn *sql.Conn) error) (err error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire migration connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, migrationLockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		// The lock is session scoped, so it must be released on the same
		// connection even when ctx is already done.
		if _, unlockErr := conn.ExecContext(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, migrationLockKey); unlockErr != nil && err == nil {
			err = fmt.Errorf("release migration lock: %w", unlockErr)
		}
	}()

	if err := ensureMigrationTable(ctx, conn); err != nil {
		return err
	}
	return fn(conn)
}

func pendingUp(migrations []migration, applied []int64, steps int) []migration {
	appliedSet := versionSet(applied)
	var out []migration
	for _, item := range migrations {
		if _, ok := appliedSet[item.Version]; ok {
			continue
		}
		if steps > 0 && len(out) >= steps {
			break
		}
		out = append(out, item)
	}
	return out
}

// pendingDown expects applied newest first.
func pendingDown(migrations []migration, applied []int64, steps int) ([]migration, error) {
	if steps <= 0 {
		steps = 1
	}
	lookup := make(map[int64]migration, len(migrations))
	for _, item := range migrations {
		lookup[item.Version] = item
	}
	var out []migration
	for _, version := range applied {
		if len(out) >= steps {
			break
		}
		item, ok := lookup[version]
		if !ok {
			return nil, fmt.Errorf("applied migration %d is missing from source", version)
		}
		out = append(out, item)
	}
	return out, nil
}

func versionSet(versions []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(versions))
	for _, version := range versions {
		set[version] = struct{}{}
	}
	return set
}

func ensureMigrationTable(ctx context.Context, conn *sql.Conn) error {
	query := `
CREATE TABLE IF NOT EXISTS ` + migrationTable + ` (
	version BIGINT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
	if _, err := conn.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}
	return nil
}

func applyMigration(ctx context.Context, conn *sql.Conn, item migration) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, item.UpSQL); err != nil {
		return fmt.Errorf("apply migration %d_%s: %w", item.Version, item.Name, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO `+migrationTable+` (version, name) VALUES ($1, $2)`, item.Version, item.Name); err != nil {
		return fmt.Errorf("mark migration %d: %w", item.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", item.Version, err)
	}
	return nil
}

func rollbackMigration(ctx context.Context, conn *sql.Conn, item migration) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, item.DownSQL); err != nil {
		return fmt.Errorf("rollback migration %d_%s: %w", item.Version, item.Name, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM `+migrationTable+` WHERE version = $1`, item.Version); err != nil {
		return fmt.Errorf("unmark migration %d: %w", item.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rollback %d: %w", item.Version, err)
	}
	return nil
}

func listAppliedVersions(ctx context.Context, conn *sql.Conn, order string) ([]int64, error) {
	if order != "DESC" {
		order = "ASC"
	}
	rows, err := conn.QueryContext(ctx, `SELECT version FROM `+migrationTable+` ORDER BY version `+order)
	if err != nil {
		return nil, fmt.Errorf("query applied versions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var versions []int64
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		versions = append(versions, version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return versions, nil
}

// loadMigrations pairs NNN_name.up.sql with NNN_name.down.sql. Both halves
// must be present and non-empty, and a version may carry only one name.
func loadMigrations(fsys fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, "sql")
	if err != nil {
		return nil, fmt.Errorf("read migration dir: %w", err)
	}

	items := map[int64]migration{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		base := path.Base(entry.Name())
		matches := migrationNamePattern.FindStringSubmatch(base)
		if len(matches) != 4 {
			continue
		}
		version, err := strconv.ParseInt(matches[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse migration version for %q: %w", base, err)
		}
		script, err := fs.ReadFile(fsys, path.Join("sql", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %q: %w", entry.Name(), err)
		}

		item := items[version]
		if item.Name != "" && item.Name != matches[2] {
			return nil, fmt.Errorf("migration %d has conflicting names %q and %q", version, item.Name, matches[2])
		}
		item.Version = version
		item.Name = matches[2]
		if matches[3] == "up" {
			item.UpSQL = string(script)
		} else {
			item.DownSQL = string(script)
		}
		items[version] = item
	}

	migrations := make([]migration, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item.UpSQL) == "" {
			return nil, fmt.Errorf("migration %d missing up SQL", item.Version)
		}
		if strings.TrimSpace(item.DownSQL) == "" {
			return nil, fmt.Errorf("migration %d missing down SQL", item.Version)
		}
		migrations = append(migrations, item)
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}
