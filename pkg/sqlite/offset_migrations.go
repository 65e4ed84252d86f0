package sqlite

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/brackenhill/eventflow/pkg/sqlite/migrate"
)

//go:embed offset_migrations/*.sql
var offsetMigrationsFS embed.FS

// runOffsetMigrations runs all pending subscription-offset migrations using
// the package's dependency-free migrator.
func runOffsetMigrations(db *sql.DB) error {
	m := migrate.New(db, "offset_schema_migrations")

	if err := m.LoadFromFS(offsetMigrationsFS, "offset_migrations"); err != nil {
		return fmt.Errorf("load offset migrations: %w", err)
	}

	if err := m.Up(); err != nil {
		return fmt.Errorf("run offset migrations: %w", err)
	}

	return nil
}
