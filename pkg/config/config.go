// pkg/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Sink drivers
const (
	DriverPostgres  = "postgres"
	DriverSnowflake = "snowflake"
	DriverSQLite    = "sqlite"
	DriverMemory    = "memory"
)

// Sink write modes
const (
	ModeUpsert     = "upsert"
	ModeUpdateOnly = "update-only"
)

// Config represents the application configuration
type Config struct {
	// Sink selection
	SinkDriver   string
	SinkMode     string
	SinkTimeout  time.Duration
	MetricsTable string

	// Database connections, only the one matching SinkDriver is loaded
	Snowflake *SnowflakeConfig
	Postgres  *PostgresConfig
	SQLite    *SQLiteConfig

	// Ingest settings
	HeaderScanRows int
	OrgFilter      []string
	WorkerPoolSize int
	CleaningAudit  bool
	MaxErrors      int

	// Verification thresholds
	VerifyFailRatio float64
	VerifyWarnRatio float64

	// Logging
	LogLevel  string
	LogFormat string
}

// LoadConfig loads configuration from a .env file (when present) and
// environment variables
func LoadConfig() (*Config, error) {
	if err := LoadDotEnv(getEnv("ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	cfg := &Config{
		// Default values
		SinkDriver:      strings.ToLower(getEnv("SINK_DRIVER", DriverSQLite)),
		SinkMode:        strings.ToLower(getEnv("SINK_MODE", ModeUpsert)),
		SinkTimeout:     time.Duration(getEnvAsInt("SINK_TIMEOUT_SECONDS", 30)) * time.Second,
		MetricsTable:    getEnv("METRICS_TABLE", "trust_metrics"),
		HeaderScanRows:  getEnvAsInt("HEADER_SCAN_ROWS", 10),
		OrgFilter:       getEnvAsStringSlice("ORG_FILTER", nil),
		WorkerPoolSize:  getEnvAsInt("WORKER_POOL_SIZE", 1),
		CleaningAudit:   getEnvAsBool("CLEANING_AUDIT", false),
		MaxErrors:       getEnvAsInt("MAX_ERRORS", 100),
		VerifyFailRatio: getEnvAsFloat("VERIFY_FAIL_RATIO", 0.10),
		VerifyWarnRatio: getEnvAsFloat("VERIFY_WARN_RATIO", 0.0),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
	}

	// Load the database configuration for the selected sink
	switch cfg.SinkDriver {
	case DriverSnowflake:
		snowConfig, err := LoadSnowflakeConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load Snowflake configuration: %w", err)
		}
		cfg.Snowflake = snowConfig
	case DriverPostgres:
		pgConfig, err := LoadPostgresConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load PostgreSQL configuration: %w", err)
		}
		cfg.Postgres = pgConfig
	case DriverSQLite:
		cfg.SQLite = LoadSQLiteConfig()
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadDotEnv loads variables from an env file without overriding values
// already set in the environment. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Validate ensures all required configuration is present and valid
func (c *Config) Validate() error {
	switch c.SinkDriver {
	case DriverPostgres:
		if c.Postgres == nil {
			return errors.New("postgreSQL configuration is required")
		}
	case DriverSnowflake:
		if c.Snowflake == nil {
			return errors.New("snowflake configuration is required")
		}
	case DriverSQLite:
		if c.SQLite == nil || c.SQLite.Path == "" {
			return errors.New("SQLITE_PATH is required for the sqlite sink")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown sink driver %q", c.SinkDriver)
	}

	if c.SinkMode != ModeUpsert && c.SinkMode != ModeUpdateOnly {
		return fmt.Errorf("unknown sink mode %q", c.SinkMode)
	}

	if c.SinkTimeout <= 0 {
		return errors.New("sink timeout must be positive")
	}

	if c.HeaderScanRows <= 0 {
		return errors.New("header scan rows must be positive")
	}

	if c.WorkerPoolSize < 0 {
		return errors.New("worker pool size cannot be negative")
	}

	if c.VerifyFailRatio < 0 || c.VerifyFailRatio > 1 {
		return errors.New("verify fail ratio must be between 0 and 1")
	}

	if c.VerifyWarnRatio < 0 || c.VerifyWarnRatio > c.VerifyFailRatio {
		return errors.New("verify warn ratio must be between 0 and the fail ratio")
	}

	if !isIdentifier(c.MetricsTable) {
		return fmt.Errorf("invalid metrics table name %q", c.MetricsTable)
	}

	return nil
}

// isIdentifier reports whether s is safe to splice into SQL as a table name
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		case r == '.' && i > 0:
		default:
			return false
		}
	}
	return true
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsStringSlice parses a comma-separated list from the environment.
// Entries are trimmed of whitespace and quotes; empty entries are dropped.
func getEnvAsStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var result []string
	for _, v := range strings.Split(value, ",") {
		v = strings.Trim(strings.TrimSpace(v), `"`)
		if v != "" {
			result = append(result, v)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}

	return result
}
