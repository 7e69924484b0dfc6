// pkg/connector/connector.go
package connector

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/nhs-ingress/pkg/model"
)

// DatabaseConnector defines the interface for database connectors
type DatabaseConnector interface {
	// DB returns the underlying database connection
	DB() *sql.DB

	// Dialect returns the SQL dialect spoken by the connection
	Dialect() Dialect

	// Validate verifies the connection and permissions
	Validate(ctx context.Context) error

	// EnsureMetricsTable creates the per-trust metrics table if it is missing
	EnsureMetricsTable(ctx context.Context, table string) error

	// Close closes the connection and releases resources
	Close() error

	// ExecWithTimeout executes a statement with a timeout
	ExecWithTimeout(ctx context.Context, query string, timeout time.Duration, args ...interface{}) (sql.Result, error)
}

// Dialect identifies the SQL flavour of a connection
type Dialect string

const (
	DialectPostgres  Dialect = "postgres"
	DialectSnowflake Dialect = "snowflake"
	DialectSQLite    Dialect = "sqlite"
)

// Placeholder returns the n-th (1-based) bind parameter marker
func (d Dialect) Placeholder(n int) string {
	if d == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Placeholders returns count comma-separated markers starting at from
func (d Dialect) Placeholders(from, count int) string {
	marks := make([]string, count)
	for i := range marks {
		marks[i] = d.Placeholder(from + i)
	}
	return strings.Join(marks, ", ")
}

// ConnStats contains standardized connection statistics
type ConnStats struct {
	OpenConnections int
	InUse           int
	Idle            int
	MaxOpenConns    int
	WaitCount       int64
	WaitDuration    time.Duration
}

// GetConnectionStats returns connection pool statistics for logging
func GetConnectionStats(db *sql.DB) ConnStats {
	stats := db.Stats()
	return ConnStats{
		OpenConnections: stats.OpenConnections,
		InUse:           stats.InUse,
		Idle:            stats.Idle,
		MaxOpenConns:    stats.MaxOpenConnections,
		WaitCount:       stats.WaitCount,
		WaitDuration:    stats.WaitDuration,
	}
}

// LogConnectionStats logs connection pool statistics
func LogConnectionStats(logger *zap.Logger, name string, db *sql.DB) {
	stats := GetConnectionStats(db)
	logger.Debug("Connection pool stats",
		zap.String("database", name),
		zap.Int("open_connections", stats.OpenConnections),
		zap.Int("in_use", stats.InUse),
		zap.Int("idle", stats.Idle),
		zap.Int("max_open", stats.MaxOpenConns),
		zap.Int64("wait_count", stats.WaitCount),
		zap.Duration("wait_duration", stats.WaitDuration),
	)
}

// PingWithTimeout attempts to ping a database with a timeout
func PingWithTimeout(ctx context.Context, db *sql.DB, timeout time.Duration) error {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if pingCtx.Err() != nil {
			return fmt.Errorf("ping timed out after %v: %w", timeout, pingCtx.Err())
		}
		return err
	}
	return nil
}

// ApplyConnectionSettings configures database connection pool settings
func ApplyConnectionSettings(db *sql.DB, maxOpen, maxIdle int, maxLifetime, maxIdleTime time.Duration) {
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	if maxLifetime > 0 {
		db.SetConnMaxLifetime(maxLifetime)
	}
	if maxIdleTime > 0 {
		db.SetConnMaxIdleTime(maxIdleTime)
	}
}

// execWithTimeout runs a statement under its own deadline
func execWithTimeout(
	ctx context.Context,
	db *sql.DB,
	query string,
	timeout time.Duration,
	args ...interface{},
) (sql.Result, error) {
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return db.ExecContext(queryCtx, query, args...)
}

// metricsTableDDL builds the CREATE TABLE statement for the metrics table.
// One document column is created per writable field.
func metricsTableDDL(table, periodType, docType, tsType string) string {
	cols := []string{
		"trust_code TEXT NOT NULL",
		"period " + periodType + " NOT NULL",
		"data_type TEXT NOT NULL",
	}
	for _, field := range model.KnownFields {
		cols = append(cols, field+" "+docType)
	}
	cols = append(cols,
		"updated_at "+tsType,
		"PRIMARY KEY (trust_code, period, data_type)",
	)
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", table, strings.Join(cols, ",\n\t"))
}
