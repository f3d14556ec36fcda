package app

import (
	"context"
	"fmt"
	"io/fs"
	"sort"

	"github.com/dropDatabas3/authflow/internal/observability/logger"
	migrations "github.com/dropDatabas3/authflow/migrations/postgres"
)

// Migrate aplica las migraciones embebidas que falten, en orden. Cada
// archivo aplicado queda registrado en schema_migrations.
func (c *Container) Migrate(ctx context.Context) error {
	if c.pool == nil {
		return fmt.Errorf("app: migrate requiere storage postgres")
	}
	log := logger.Named("migrate")

	_, err := c.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		name text PRIMARY KEY,
		applied_at timestamptz NOT NULL DEFAULT now()
	)`)
	if err != nil {
		return fmt.Errorf("app: schema_migrations: %w", err)
	}

	names, err := fs.Glob(migrations.FS, "*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)

	for _, name := range names {
		var applied bool
		err := c.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name = $1)`, name,
		).Scan(&applied)
		if err != nil {
			return fmt.Errorf("app: migrate %s: %w", name, err)
		}
		if applied {
			continue
		}

		sql, err := fs.ReadFile(migrations.FS, name)
		if err != nil {
			return err
		}
		tx, err := c.pool.Begin(ctx)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, string(sql)); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("app: migrate %s: %w", name, err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("app: migrate %s: %w", name, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}
		log.Info("migración aplicada", logger.String("file", name))
	}
	return nil
}
