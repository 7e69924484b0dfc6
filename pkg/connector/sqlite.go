// pkg/connector/sqlite.go
package connector

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/David-Botos/nhs-ingress/pkg/config"
)

// SQLiteConnector implements the DatabaseConnector interface for a local
// SQLite file
type SQLiteConnector struct {
	db     *sql.DB
	logger *zap.Logger
	cfg    *config.SQLiteConfig
}

// NewSQLiteConnector opens (and creates if needed) the SQLite database
func NewSQLiteConnector(ctx context.Context, cfg *config.SQLiteConfig) (*SQLiteConnector, error) {
	logger := zap.L().Named("sqlite-connector")
	logger.Info("Opening SQLite database", zap.String("path", cfg.Path))

	db, err := sql.Open("sqlite", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite connection: %w", err)
	}

	// SQLite allows a single writer
	ApplyConnectionSettings(db, 1, 1, 0, 0)

	if err := PingWithTimeout(ctx, db, 5*time.Second); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	return &SQLiteConnector{db: db, logger: logger, cfg: cfg}, nil
}

// DB returns the underlying database connection
func (c *SQLiteConnector) DB() *sql.DB {
	return c.db
}

// Dialect returns DialectSQLite
func (c *SQLiteConnector) Dialect() Dialect {
	return DialectSQLite
}

// Validate checks that the database answers queries
func (c *SQLiteConnector) Validate(ctx context.Context) error {
	var version string
	if err := c.db.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&version); err != nil {
		return fmt.Errorf("failed to query SQLite version: %w", err)
	}
	c.logger.Info("Connected to SQLite",
		zap.String("version", version),
		zap.String("path", c.cfg.Path))
	return nil
}

// EnsureMetricsTable creates the metrics table with TEXT document columns
func (c *SQLiteConnector) EnsureMetricsTable(ctx context.Context, table string) error {
	ddl := metricsTableDDL(table, "TEXT", "TEXT", "TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP")
	if _, err := c.ExecWithTimeout(ctx, ddl, 10*time.Second); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}
	c.logger.Debug("Ensured metrics table exists", zap.String("table", table))
	return nil
}

// Close closes the database connection
func (c *SQLiteConnector) Close() error {
	c.logger.Info("Closing SQLite database")
	LogConnectionStats(c.logger, c.cfg.Path, c.db)
	return c.db.Close()
}

// ExecWithTimeout executes a statement with a timeout
func (c *SQLiteConnector) ExecWithTimeout(
	ctx context.Context,
	query string,
	timeout time.Duration,
	args ...interface{},
) (sql.Result, error) {
	return execWithTimeout(ctx, c.db, query, timeout, args...)
}
