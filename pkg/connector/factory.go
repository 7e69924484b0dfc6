// pkg/connector/factory.go
package connector

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/David-Botos/nhs-ingress/pkg/config"
)

// ConnectorFactory creates database connectors
type ConnectorFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewConnectorFactory creates a new connector factory
func NewConnectorFactory(cfg *config.Config, logger *zap.Logger) *ConnectorFactory {
	return &ConnectorFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateConnector opens the connector selected by SINK_DRIVER, validates it
// and makes sure the metrics table exists
func (f *ConnectorFactory) CreateConnector(ctx context.Context) (DatabaseConnector, error) {
	var (
		conn DatabaseConnector
		err  error
	)

	f.logger.Info("Creating connector", zap.String("driver", f.cfg.SinkDriver))

	switch f.cfg.SinkDriver {
	case config.DriverPostgres:
		conn, err = NewPostgresConnector(ctx, f.cfg.Postgres)
	case config.DriverSnowflake:
		conn, err = NewSnowflakeConnector(ctx, f.cfg.Snowflake)
	case config.DriverSQLite:
		conn, err = NewSQLiteConnector(ctx, f.cfg.SQLite)
	default:
		return nil, fmt.Errorf("sink driver %q has no database connector", f.cfg.SinkDriver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s connector: %w", f.cfg.SinkDriver, err)
	}

	if err := conn.Validate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to validate %s connector: %w", f.cfg.SinkDriver, err)
	}

	if err := conn.EnsureMetricsTable(ctx, f.cfg.MetricsTable); err != nil {
		conn.Close()
		return nil, err
	}

	return conn, nil
}
