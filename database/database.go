package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"go.uber.org/zap"
)

//go:embed migrations/postgres/*.sql migrations/sqlite3/*.sql
var migrationsFS embed.FS

const (
	dialectPostgres = "postgres"
	dialectSQLite   = "sqlite3"
	dialectMemory   = "memory"
)

// parseURL maps a DATABASE_URL to its dialect and the DSN database/sql expects.
func parseURL(databaseURL string) (dialect, dsn string, err error) {
	scheme, rest, ok := strings.Cut(databaseURL, "://")
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedDriver, databaseURL)
	}
	switch scheme {
	case "postgres", "postgresql":
		return dialectPostgres, databaseURL, nil
	case "sqlite3", "sqlite":
		return dialectSQLite, rest, nil
	case "memory":
		return dialectMemory, "", nil
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedDriver, scheme)
	}
}

// InitDB initializes the database connection
func InitDB(driverName, dataSourceName string, logger *zap.Logger) (*sql.DB, error) {
	if driverName == dialectSQLite {
		if err := os.MkdirAll(filepath.Dir(dataSourceName), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory for SQLite: %w", err)
		}
	}

	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if driverName == dialectSQLite {
		// SQLite allows a single writer
		db.SetMaxOpenConns(1)
	}

	logger.Info("connected to database", zap.String("driver", driverName))
	return db, nil
}

// Open connects to the store named by databaseURL
// (postgres://..., sqlite3://path or memory://).
func Open(ctx context.Context, databaseURL string, logger *zap.Logger) (Store, error) {
	dialect, dsn, err := parseURL(databaseURL)
	if err != nil {
		return nil, err
	}
	if dialect == dialectMemory {
		logger.Warn("using in-memory store, data is lost on exit")
		return NewMemoryStore(), nil
	}

	db, err := InitDB(dialect, dsn, logger)
	if err != nil {
		return nil, err
	}
	return NewSQLStore(db, dialect), nil
}

// ApplyMigrations applies the embedded migrations for the database's dialect
func ApplyMigrations(databaseURL string, logger *zap.Logger) error {
	dialect, _, err := parseURL(databaseURL)
	if err != nil {
		return err
	}
	if dialect == dialectMemory {
		return nil
	}

	src, err := iofs.New(migrationsFS, "migrations/"+dialect)
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(dialect, databaseURL))
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("no database migrations to apply")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	logger.Info("database migrations applied successfully")
	return nil
}

func migrateURL(dialect, databaseURL string) string {
	if dialect == dialectSQLite {
		_, rest, _ := strings.Cut(databaseURL, "://")
		return "sqlite3://" + rest
	}
	return databaseURL
}
