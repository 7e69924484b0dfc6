// pkg/connector/snowflake.go
package connector

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sf "github.com/snowflakedb/gosnowflake"
	"go.uber.org/zap"

	"github.com/David-Botos/nhs-ingress/pkg/config"
)

// SnowflakeConnector implements the DatabaseConnector interface for Snowflake
type SnowflakeConnector struct {
	db     *sql.DB
	logger *zap.Logger
	cfg    *config.SnowflakeConfig
}

// NewSnowflakeConnector creates a new Snowflake connection
func NewSnowflakeConnector(ctx context.Context, cfg *config.SnowflakeConfig) (*SnowflakeConnector, error) {
	logger := zap.L().Named("snowflake-connector")

	// Create DSN using Snowflake's DSN builder
	sfConfig := &sf.Config{
		Account:       cfg.Account,
		User:          cfg.User,
		Password:      cfg.Password,
		Database:      cfg.Database,
		Schema:        cfg.Schema,
		Warehouse:     cfg.Warehouse,
		Role:          cfg.Role,
		Authenticator: cfg.Authenticator,
	}

	// Log connection attempt (without credentials)
	logger.Info("Connecting to Snowflake",
		zap.String("account", cfg.Account),
		zap.String("user", cfg.User),
		zap.String("database", cfg.Database),
		zap.String("schema", cfg.Schema),
		zap.String("warehouse", cfg.Warehouse),
		zap.String("role", cfg.Role))

	dsn, err := sf.DSN(sfConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to build Snowflake DSN: %w", err)
	}

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Snowflake connection: %w", err)
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
	if err := PingWithTimeout(ctx, db, 10*time.Second); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to Snowflake: %w", err)
	}

	connector := &SnowflakeConnector{
		db:     db,
		logger: logger,
		cfg:    cfg,
	}

	LogConnectionStats(logger, cfg.Database, db)
	return connector, nil
}

// DB returns the underlying database connection
func (c *SnowflakeConnector) DB() *sql.DB {
	return c.db
}

// Dialect returns DialectSnowflake
func (c *SnowflakeConnector) Dialect() Dialect {
	return DialectSnowflake
}

// Validate verifies the Snowflake connection and access rights
func (c *SnowflakeConnector) Validate(ctx context.Context) error {
	var role, database, schema, warehouse sql.NullString
	err := c.db.QueryRowContext(ctx,
		"SELECT CURRENT_ROLE(), CURRENT_DATABASE(), CURRENT_SCHEMA(), CURRENT_WAREHOUSE()").Scan(
		&role, &database, &schema, &warehouse)
	if err != nil {
		return fmt.Errorf("failed to verify Snowflake access: %w", err)
	}

	c.logger.Info("Connected to Snowflake",
		zap.String("role", role.String),
		zap.String("database", database.String),
		zap.String("schema", schema.String),
		zap.String("warehouse", warehouse.String))

	// Verify we're connected to the correct database
	if !strings.EqualFold(database.String, c.cfg.Database) {
		return fmt.Errorf("connected to wrong database: %s (expected: %s)",
			database.String, c.cfg.Database)
	}

	if !schema.Valid || schema.String == "" {
		return fmt.Errorf("schema %s not found in database %s", c.cfg.Schema, c.cfg.Database)
	}

	return nil
}

// EnsureMetricsTable creates the metrics table with VARIANT document columns
func (c *SnowflakeConnector) EnsureMetricsTable(ctx context.Context, table string) error {
	ddl := metricsTableDDL(table, "DATE", "VARIANT", "TIMESTAMP_LTZ DEFAULT CURRENT_TIMESTAMP()")
	if _, err := c.ExecWithTimeout(ctx, ddl, 60*time.Second); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}
	c.logger.Debug("Ensured metrics table exists", zap.String("table", table))
	return nil
}

// Close closes the database connection
func (c *SnowflakeConnector) Close() error {
	c.logger.Info("Closing Snowflake connection")
	LogConnectionStats(c.logger, c.cfg.Database, c.db)
	return c.db.Close()
}

// ExecWithTimeout executes a statement with a timeout
func (c *SnowflakeConnector) ExecWithTimeout(
	ctx context.Context,
	query string,
	timeout time.Duration,
	args ...interface{},
) (sql.Result, error) {
	if c.cfg.QueryTimeout > 0 && c.cfg.QueryTimeout < timeout {
		timeout = c.cfg.QueryTimeout
	}
	return execWithTimeout(ctx, c.db, query, timeout, args...)
}
