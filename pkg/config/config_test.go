package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

var configKeys = []string{
	"SINK_DRIVER", "SINK_MODE", "SINK_TIMEOUT_SECONDS", "METRICS_TABLE",
	"HEADER_SCAN_ROWS", "ORG_FILTER", "WORKER_POOL_SIZE", "CLEANING_AUDIT",
	"MAX_ERRORS", "VERIFY_FAIL_RATIO", "VERIFY_WARN_RATIO", "LOG_LEVEL",
	"LOG_FORMAT", "SQLITE_PATH", "SQLITE_BUSY_TIMEOUT_MS",
	"POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB",
}

// isolateEnv unsets every config key for the duration of the test and
// points ENV_FILE at envFile
func isolateEnv(t *testing.T, envFile string) {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	t.Setenv("ENV_FILE", envFile)
}

func TestLoadConfigDefaults(t *testing.T) {
	isolateEnv(t, filepath.Join(t.TempDir(), "missing.env"))

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.SinkDriver != DriverSQLite || cfg.SinkMode != ModeUpsert {
		t.Errorf("sink = %s/%s, want sqlite/upsert", cfg.SinkDriver, cfg.SinkMode)
	}
	if cfg.SQLite == nil || cfg.SQLite.Path != "nhs_metrics.db" {
		t.Errorf("SQLite = %+v, want default path", cfg.SQLite)
	}
	if cfg.SinkTimeout != 30*time.Second {
		t.Errorf("SinkTimeout = %v, want 30s", cfg.SinkTimeout)
	}
	if cfg.HeaderScanRows != 10 || cfg.WorkerPoolSize != 1 || cfg.MaxErrors != 100 {
		t.Errorf("ingest settings = %d/%d/%d, want 10/1/100",
			cfg.HeaderScanRows, cfg.WorkerPoolSize, cfg.MaxErrors)
	}
	if cfg.OrgFilter != nil {
		t.Errorf("OrgFilter = %v, want nil", cfg.OrgFilter)
	}
	if cfg.VerifyFailRatio != 0.10 || cfg.VerifyWarnRatio != 0 {
		t.Errorf("verify ratios = %v/%v, want 0.1/0", cfg.VerifyFailRatio, cfg.VerifyWarnRatio)
	}
	if cfg.Postgres != nil || cfg.Snowflake != nil {
		t.Error("only the selected sink's database config should be loaded")
	}
}

func TestLoadConfigFromDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := strings.Join([]string{
		"SINK_DRIVER=memory",
		"SINK_MODE=update-only",
		`ORG_FILTER="RXX, RYY,,"`,
		"WORKER_POOL_SIZE=4",
		"HEADER_SCAN_ROWS=not-a-number",
	}, "\n")
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}
	isolateEnv(t, envFile)

	// Process environment wins over the file
	t.Setenv("WORKER_POOL_SIZE", "2")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.SinkDriver != DriverMemory || cfg.SinkMode != ModeUpdateOnly {
		t.Errorf("sink = %s/%s, want memory/update-only", cfg.SinkDriver, cfg.SinkMode)
	}
	if want := []string{"RXX", "RYY"}; !reflect.DeepEqual(cfg.OrgFilter, want) {
		t.Errorf("OrgFilter = %v, want %v", cfg.OrgFilter, want)
	}
	if cfg.WorkerPoolSize != 2 {
		t.Errorf("WorkerPoolSize = %d, want 2", cfg.WorkerPoolSize)
	}
	if cfg.HeaderScanRows != 10 {
		t.Errorf("HeaderScanRows = %d, want default 10 for unparsable value", cfg.HeaderScanRows)
	}
}

func TestLoadConfigPostgresRequiresCredentials(t *testing.T) {
	isolateEnv(t, filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("SINK_DRIVER", "postgres")

	if _, err := LoadConfig(); err == nil || !strings.Contains(err.Error(), "POSTGRES_USER") {
		t.Fatalf("LoadConfig() error = %v, want missing POSTGRES_USER", err)
	}

	t.Setenv("POSTGRES_USER", "ingest")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_DB", "metrics")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	want := "host=localhost port=5432 user=ingest password=secret dbname=metrics sslmode=disable"
	if got := cfg.Postgres.ConnectionString(); got != want {
		t.Errorf("ConnectionString() = %q, want %q", got, want)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			SinkDriver:      DriverMemory,
			SinkMode:        ModeUpsert,
			SinkTimeout:     time.Second,
			MetricsTable:    "trust_metrics",
			HeaderScanRows:  10,
			WorkerPoolSize:  1,
			VerifyFailRatio: 0.1,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"schema qualified table", func(c *Config) { c.MetricsTable = "public.trust_metrics" }, ""},
		{"unknown driver", func(c *Config) { c.SinkDriver = "mysql" }, "unknown sink driver"},
		{"unknown mode", func(c *Config) { c.SinkMode = "append" }, "unknown sink mode"},
		{"sqlite without path", func(c *Config) { c.SinkDriver = DriverSQLite }, "SQLITE_PATH"},
		{"zero timeout", func(c *Config) { c.SinkTimeout = 0 }, "timeout"},
		{"zero scan rows", func(c *Config) { c.HeaderScanRows = 0 }, "header scan rows"},
		{"warn above fail", func(c *Config) { c.VerifyWarnRatio = 0.5 }, "warn ratio"},
		{"fail above one", func(c *Config) { c.VerifyFailRatio = 1.5 }, "fail ratio"},
		{"injected table name", func(c *Config) { c.MetricsTable = "metrics; DROP TABLE x" }, "invalid metrics table"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}
