package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/David-Botos/nhs-ingress/pkg/connector"
	"github.com/David-Botos/nhs-ingress/pkg/model"
)

// sqlxDriverNames maps dialects to the driver names sqlx uses to pick a
// bind style
var sqlxDriverNames = map[connector.Dialect]string{
	connector.DialectPostgres:  "pgx",
	connector.DialectSnowflake: "snowflake",
	connector.DialectSQLite:    "sqlite",
}

// SQLSink writes documents through a DatabaseConnector
type SQLSink struct {
	conn    connector.DatabaseConnector
	db      *sqlx.DB
	table   string
	mode    Mode
	timeout time.Duration
	locks   *KeyedMutex
	logger  *zap.Logger
}

// NewSQLSink wraps a connector whose metrics table already exists
func NewSQLSink(conn connector.DatabaseConnector, table string, mode Mode, timeout time.Duration, logger *zap.Logger) *SQLSink {
	if mode == "" {
		mode = ModeUpsert
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.L().Named("sink")
	}
	return &SQLSink{
		conn:    conn,
		db:      sqlx.NewDb(conn.DB(), sqlxDriverNames[conn.Dialect()]),
		table:   table,
		mode:    mode,
		timeout: timeout,
		locks:   NewKeyedMutex(),
		logger:  logger,
	}
}

// Connector returns the underlying connector
func (s *SQLSink) Connector() connector.DatabaseConnector {
	return s.conn
}

// Store upserts (or, in update-only mode, updates) one document field
func (s *SQLSink) Store(ctx context.Context, key model.PeriodKey, field string, body []byte) (bool, error) {
	if err := checkField(field); err != nil {
		return false, err
	}
	if err := checkKey(key); err != nil {
		return false, err
	}

	unlock := s.locks.Lock(key.String())
	defer unlock()

	d := s.conn.Dialect()
	doc := string(body)

	var (
		query string
		args  []interface{}
	)
	if s.mode == ModeUpdateOnly {
		query = updateSQL(d, s.table, field)
		args = []interface{}{doc, key.OrganisationCode, key.PeriodString(), string(key.Granularity)}
	} else {
		query = upsertSQL(d, s.table, field)
		args = []interface{}{key.OrganisationCode, key.PeriodString(), string(key.Granularity), doc}
	}

	start := time.Now()
	result, err := s.conn.ExecWithTimeout(ctx, query, s.timeout, args...)
	if err != nil {
		return false, fmt.Errorf("failed to store %s for %s: %w", field, key, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		// Some drivers cannot report affected rows for MERGE
		s.logger.Warn("Couldn't get rows affected", zap.String("key", key.String()), zap.Error(err))
		return s.mode == ModeUpsert, nil
	}

	s.logger.Debug("Stored document",
		zap.String("key", key.String()),
		zap.String("field", field),
		zap.Int("bytes", len(body)),
		zap.Int64("rows_affected", affected),
		zap.Duration("duration", time.Since(start)))

	return affected > 0, nil
}

// Documents reads one field back for verification
func (s *SQLSink) Documents(ctx context.Context, field string, orgs []string) ([]model.StoredDocument, error) {
	if err := checkField(field); err != nil {
		return nil, err
	}

	d := s.conn.Dialect()
	query := selectSQL(d, s.table, field, len(orgs) > 0)

	var args []interface{}
	if len(orgs) > 0 {
		if d == connector.DialectPostgres {
			args = []interface{}{pq.Array(orgs)}
		} else {
			expanded, inArgs, err := sqlx.In(query, orgs)
			if err != nil {
				return nil, fmt.Errorf("failed to expand organisation filter: %w", err)
			}
			query = s.db.Rebind(expanded)
			args = inArgs
		}
	}

	queryCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var docs []model.StoredDocument
	if err := s.db.SelectContext(queryCtx, &docs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to read %s documents: %w", field, err)
	}
	return docs, nil
}

// Close closes the connector
func (s *SQLSink) Close() error {
	return s.conn.Close()
}
