package store

import (
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"

	_ "github.com/go-sql-driver/mysql" // MySQL driver for database/sql
	_ "modernc.org/sqlite"             // SQLite driver for database/sql
)

//go:embed migrations
var migrations embed.FS

// Supported database drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// TimeFormat is the canonical storage format for event dates. Dates are
// stored as text in this format so that lexical comparison matches
// chronological order on both supported drivers.
const TimeFormat = "2006-01-02 15:04:05"

// DBConfig holds database configuration options.
type DBConfig struct {
	// Driver selects the database driver: "sqlite" or "mysql".
	Driver string
	// MaxOpenConns is the maximum number of open connections to the database.
	// For SQLite, this is typically 1 for writes but can be higher for reads with WAL mode.
	MaxOpenConns int
	// MaxIdleConns is the maximum number of connections in the idle connection pool.
	MaxIdleConns int
	// ConnMaxLifetime is the maximum amount of time a connection may be reused.
	ConnMaxLifetime time.Duration
	// ConnMaxIdleTime is the maximum amount of time a connection may be idle.
	ConnMaxIdleTime time.Duration
}

// DefaultDBConfig returns sensible defaults for SQLite.
func DefaultDBConfig() DBConfig {
	return DBConfig{
		Driver: DriverSQLite,
		// SQLite with WAL mode supports multiple readers but single writer
		// Setting higher for read-heavy workloads
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

// NewDB opens a database connection for the given driver and configures it.
// For SQLite, dsn is the database file path.
func NewDB(driver, dsn string) (*sql.DB, error) {
	return NewDBWithConfig(dsn, DBConfig{
		Driver:          driver,
		MaxOpenConns:    DefaultDBConfig().MaxOpenConns,
		MaxIdleConns:    DefaultDBConfig().MaxIdleConns,
		ConnMaxLifetime: DefaultDBConfig().ConnMaxLifetime,
		ConnMaxIdleTime: DefaultDBConfig().ConnMaxIdleTime,
	})
}

// NewDBWithConfig opens a database connection with custom configuration.
func NewDBWithConfig(dsn string, cfg DBConfig) (*sql.DB, error) {
	if cfg.Driver == "" {
		cfg.Driver = DriverSQLite
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if cfg.Driver == DriverSQLite {
		// Configure SQLite for better performance and concurrency
		pragmas := []string{
			"PRAGMA journal_mode=WAL",   // Write-Ahead Logging for better concurrency
			"PRAGMA busy_timeout=5000",  // Wait 5s when database is locked
			"PRAGMA synchronous=NORMAL", // Good balance of safety and speed
			"PRAGMA cache_size=-64000",  // 64MB cache
			"PRAGMA foreign_keys=ON",    // Enforce foreign key constraints
			"PRAGMA temp_store=MEMORY",  // Store temp tables in memory
		}

		for _, pragma := range pragmas {
			if _, err := db.Exec(pragma); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("setting pragma %q: %w", pragma, err)
			}
		}
	}

	// Verify connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return db, nil
}

// Migrate runs all pending database migrations for the given driver.
func Migrate(db *sql.DB, driver string) error {
	goose.SetBaseFS(migrations)

	dialect := "sqlite3"
	dir := "migrations/sqlite"
	if driver == DriverMySQL {
		dialect = "mysql"
		dir = "migrations/mysql"
	}

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("setting dialect: %w", err)
	}

	if err := goose.Up(db, dir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	return nil
}
