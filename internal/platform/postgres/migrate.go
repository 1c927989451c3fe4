package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// migrationsSource is fixed rather than derived from the dsn scheme:
// this process only ever talks to Postgres, and the schema lives under
// a single directory regardless of which pool (pgxpool for queries,
// database/sql here for migrate's driver contract) opened it.
const migrationsSource = "file://migrations/postgres"

// RunMigrations applies the schema under migrationsSource against dsn.
// golang-migrate's postgres driver wants a *sql.DB, not a pgxpool.Pool,
// so this opens its own short-lived database/sql handle via lib/pq
// purely to hand to migrate.WithInstance — the pgxpool used for every
// application query is untouched.
func RunMigrations(dsn string, logger *zap.Logger) error {
	if dsn == "" {
		return fmt.Errorf("postgres: empty dsn")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("postgres: open migration handle: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("postgres: migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(migrationsSource, "postgres", driver)
	if err != nil {
		return fmt.Errorf("postgres: migrate instance: %w", err)
	}
	defer func() {
		if serr, derr := m.Close(); serr != nil || derr != nil {
			logger.Warn("migrate: close error", zap.Error(serr), zap.Error(derr))
		}
	}()

	logger.Info("migrate: applying schema", zap.String("source", migrationsSource))

	switch err := m.Up(); {
	case err == nil:
		logger.Info("migrate: schema applied")
	case errors.Is(err, migrate.ErrNoChange):
		logger.Info("migrate: schema already current")
	default:
		return fmt.Errorf("postgres: migrate up: %w", err)
	}

	return nil
}
