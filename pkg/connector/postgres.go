// pkg/connector/postgres.go
package connector

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
	"go.uber.org/zap"

	"github.com/David-Botos/nhs-ingress/pkg/config"
)

// PostgresConnector implements the DatabaseConnector interface for PostgreSQL
type PostgresConnector struct {
	db     *sql.DB
	logger *zap.Logger
	cfg    *config.PostgresConfig
}

// NewPostgresConnector creates and initializes a new PostgreSQL connector
func NewPostgresConnector(ctx context.Context, cfg *config.PostgresConfig) (*PostgresConnector, error) {
	logger := zap.L().Named("postgres-connector")

	// Log connection attempt
	logger.Info("Connecting to PostgreSQL",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Database),
		zap.String("user", cfg.User))

	db, err := sql.Open("pgx", cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL connection: %w", err)
	}

	// Configure connection pool
	ApplyConnectionSettings(
		db,
		cfg.MaxOpenConns,
		cfg.MaxIdleConns,
		cfg.ConnMaxLifetime,
		cfg.ConnMaxIdleTime,
	)

	// Verify connection
	if err := PingWithTimeout(ctx, db, 5*time.Second); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	connector := &PostgresConnector{
		db:     db,
		logger: logger,
		cfg:    cfg,
	}

	LogConnectionStats(logger, cfg.Database, db)
	return connector, nil
}

// DB returns the underlying database connection
func (c *PostgresConnector) DB() *sql.DB {
	return c.db
}

// Dialect returns DialectPostgres
func (c *PostgresConnector) Dialect() Dialect {
	return DialectPostgres
}

// Validate verifies the PostgreSQL connection and write permission
func (c *PostgresConnector) Validate(ctx context.Context) error {
	var version string
	if err := c.db.QueryRowContext(ctx, "SELECT version()").Scan(&version); err != nil {
		return fmt.Errorf("failed to query PostgreSQL version: %w", err)
	}
	c.logger.Info("Connected to PostgreSQL", zap.String("version", version))

	// Check permissions by creating a temp table
	_, err := c.ExecWithTimeout(ctx, `
		DO $$
		BEGIN
			CREATE TEMP TABLE _permission_check (id serial, doc jsonb);
			INSERT INTO _permission_check (doc) VALUES ('{}'::jsonb);
			DROP TABLE _permission_check;
		EXCEPTION WHEN OTHERS THEN
			RAISE EXCEPTION 'Permission check failed: %', SQLERRM;
		END $$;
	`, 10*time.Second)
	if err != nil {
		return fmt.Errorf("permission validation failed: %w", err)
	}

	c.logger.Info("PostgreSQL connection validated",
		zap.String("database", c.cfg.Database),
		zap.String("host", c.cfg.Host),
		zap.Int("port", c.cfg.Port))

	return nil
}

// EnsureMetricsTable creates the metrics table with JSONB document columns
func (c *PostgresConnector) EnsureMetricsTable(ctx context.Context, table string) error {
	ddl := metricsTableDDL(table, "DATE", "JSONB", "TIMESTAMPTZ NOT NULL DEFAULT now()")
	if _, err := c.ExecWithTimeout(ctx, ddl, 30*time.Second); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}
	c.logger.Debug("Ensured metrics table exists", zap.String("table", table))
	return nil
}

// Close closes the database connection
func (c *PostgresConnector) Close() error {
	c.logger.Info("Closing PostgreSQL connection")
	LogConnectionStats(c.logger, c.cfg.Database, c.db)
	return c.db.Close()
}

// ExecWithTimeout executes a statement with a timeout. The configured
// statement timeout caps the requested one.
func (c *PostgresConnector) ExecWithTimeout(
	ctx context.Context,
	query string,
	timeout time.Duration,
	args ...interface{},
) (sql.Result, error) {
	if c.cfg.StatementTimeout > 0 && c.cfg.StatementTimeout < timeout {
		timeout = c.cfg.StatementTimeout
	}
	return execWithTimeout(ctx, c.db, query, timeout, args...)
}
