// Package database provides the PostgreSQL client and migration runner
// shared by every cmd/deepsoc subcommand.
package database

import (
	"context"
	stdsql "database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/codeready-toolchain/deepsoc/ent"
	"github.com/codeready-toolchain/deepsoc/pkg/config"
)

//go:embed migrations
var migrationsFS embed.FS

// Client wraps the generated ent client and exposes the underlying
// *sql.DB for health checks, the Publisher/Listener and raw SQL used
// where ent has no query builder support (e.g. the Expert lifecycle
// manager's pg_try_advisory_lock).
type Client struct {
	*ent.Client
	db *stdsql.DB
}

// DB returns the underlying *sql.DB.
func (c *Client) DB() *stdsql.DB {
	return c.db
}

// NewClientFromEnt wraps an existing ent client, useful for tests that
// construct their own driver (e.g. over a testcontainers Postgres).
func NewClientFromEnt(entClient *ent.Client, db *stdsql.DB) *Client {
	return &Client{Client: entClient, db: db}
}

// NewClient opens a pooled connection, runs embedded migrations, and
// returns a ready-to-use Client.
func NewClient(ctx context.Context, cfg config.DatabaseConfig) (*Client, error) {
	db, err := stdsql.Open("pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	drv := entsql.OpenDB(dialect.Postgres, db)
	entClient := ent.NewClient(ent.Driver(drv))

	if err := runMigrations(ctx, db, cfg.Database); err != nil {
		_ = entClient.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	if err := CreateSearchIndexes(ctx, drv); err != nil {
		_ = entClient.Close()
		return nil, fmt.Errorf("create search indexes: %w", err)
	}

	return &Client{Client: entClient, db: db}, nil
}

// runMigrations applies every embedded *.sql migration that has not yet
// run, using golang-migrate against the shared *sql.DB.
func runMigrations(ctx context.Context, db *stdsql.DB, database string) error {
	hasMigrations, err := hasEmbeddedMigrations()
	if err != nil {
		return fmt.Errorf("check embedded migrations: %w", err)
	}
	if !hasMigrations {
		return fmt.Errorf("no embedded migration files found, binary built incorrectly")
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, database, driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	// Do not call m.Close: it would close the shared *sql.DB via the
	// postgres driver, breaking the ent client that reuses it.
	return sourceDriver.Close()
}

func hasEmbeddedMigrations() (bool, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read embedded migrations: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && len(name) > 4 && name[len(name)-4:] == ".sql" {
			return true, nil
		}
	}
	return false, nil
}
