// Package migrate is a small, dependency-free SQL migration runner driven by
// an embedded filesystem of numbered .sql files. It exists so the sqlite
// offset tracker doesn't need to pull in a full migration framework for a
// handful of DDL statements.
package migrate

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Step is a single numbered migration, optionally reversible.
type Step struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// Runner applies Steps to a database, tracking the applied version in a
// dedicated bookkeeping table.
type Runner struct {
	db        *sql.DB
	steps     []Step
	tableName string
}

// New creates a Runner that records progress in tableName.
func New(db *sql.DB, tableName string) *Runner {
	return &Runner{db: db, tableName: tableName}
}

// LoadFromFS loads migration files named "NNNNNN_description.up.sql" and
// "NNNNNN_description.down.sql" from dir within fsys.
func (r *Runner) LoadFromFS(fsys embed.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("read migration dir %s: %w", dir, err)
	}

	byVersion := make(map[int]*Step)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		parts := strings.SplitN(entry.Name(), "_", 2)
		if len(parts) != 2 {
			continue
		}
		version, err := strconv.Atoi(parts[0])
		if err != nil {
			continue
		}

		content, err := fs.ReadFile(fsys, filepath.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration file %s: %w", entry.Name(), err)
		}

		step, ok := byVersion[version]
		if !ok {
			step = &Step{Version: version}
			byVersion[version] = step
		}

		switch {
		case strings.HasSuffix(parts[1], ".up.sql"):
			step.Name = strings.TrimSuffix(parts[1], ".up.sql")
			step.Up = string(content)
		case strings.HasSuffix(parts[1], ".down.sql"):
			step.Down = string(content)
		}
	}

	for _, step := range byVersion {
		r.steps = append(r.steps, *step)
	}
	sort.Slice(r.steps, func(i, j int) bool { return r.steps[i].Version < r.steps[j].Version })

	return nil
}

func (r *Runner) ensureTable() error {
	_, err := r.db.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at INTEGER NOT NULL
		)
	`, r.tableName))
	if err != nil {
		return fmt.Errorf("ensure migration table %s: %w", r.tableName, err)
	}
	return nil
}

func (r *Runner) currentVersion() (int, error) {
	var version int
	err := r.db.QueryRow(fmt.Sprintf("SELECT COALESCE(MAX(version), 0) FROM %s", r.tableName)).Scan(&version)
	return version, err
}

// Up applies every pending migration in order, each in its own transaction.
func (r *Runner) Up() error {
	if err := r.ensureTable(); err != nil {
		return err
	}

	current, err := r.currentVersion()
	if err != nil {
		return fmt.Errorf("read migration version: %w", err)
	}

	for _, step := range r.steps {
		if step.Version <= current {
			continue
		}
		if err := r.apply(step); err != nil {
			return fmt.Errorf("apply migration %d (%s): %w", step.Version, step.Name, err)
		}
	}
	return nil
}

func (r *Runner) apply(step Step) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(step.Up); err != nil {
		return fmt.Errorf("exec up script: %w", err)
	}

	_, err = tx.Exec(fmt.Sprintf("INSERT INTO %s (version, name, applied_at) VALUES (?, ?, ?)", r.tableName),
		step.Version, step.Name, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("record migration: %w", err)
	}

	return tx.Commit()
}

// Version reports the highest applied migration version, 0 if none.
func (r *Runner) Version() (int, error) {
	if err := r.ensureTable(); err != nil {
		return 0, err
	}
	return r.currentVersion()
}
