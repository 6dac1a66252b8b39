package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"slices"
	"strconv"
	"strings"
)

// Script is one embedded schema step.
type Script struct {
	Version int
	Name    string
	SQL     string
}

// Scripts returns the embedded scripts ordered by version. Files without a
// numeric NNN_ prefix are ignored.
func Scripts() ([]Script, error) {
	entries, err := fs.ReadDir(FS, "scripts")
	if err != nil {
		return nil, err
	}

	var scripts []Script
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		version, err := parseVersion(name)
		if err != nil {
			continue
		}
		body, err := fs.ReadFile(FS, "scripts/"+name)
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, Script{Version: version, Name: strings.TrimSuffix(name, ".sql"), SQL: string(body)})
	}

	slices.SortFunc(scripts, func(a, b Script) int { return a.Version - b.Version })
	return scripts, nil
}

// Run applies every script newer than the recorded schema version, each in
// its own transaction.
func Run(ctx context.Context, db *sql.DB) error {
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return fmt.Errorf("read applied versions: %w", err)
	}
	scripts, err := Scripts()
	if err != nil {
		return fmt.Errorf("load scripts: %w", err)
	}

	for _, s := range scripts {
		if applied[s.Version] {
			continue
		}
		if err := apply(ctx, db, s); err != nil {
			return fmt.Errorf("apply %s: %w", s.Name, err)
		}
	}
	return nil
}

// Version returns the highest applied version, 0 for a fresh database.
func Version(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM _migrations").Scan(&version)
	return version, err
}

// Pending lists the versions Run would apply.
func Pending(ctx context.Context, db *sql.DB) ([]int, error) {
	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return nil, err
	}
	scripts, err := Scripts()
	if err != nil {
		return nil, err
	}

	var pending []int
	for _, s := range scripts {
		if !applied[s.Version] {
			pending = append(pending, s.Version)
		}
	}
	return pending, nil
}

func ensureMigrationsTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS _migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM _migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func parseVersion(filename string) (int, error) {
	prefix, _, ok := strings.Cut(filename, "_")
	if !ok {
		return 0, fmt.Errorf("invalid migration filename: %s", filename)
	}
	return strconv.Atoi(prefix)
}

func apply(ctx context.Context, db *sql.DB, s Script) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.SQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO _migrations (version, name) VALUES (?, ?)", s.Version, s.Name); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	return tx.Commit()
}
