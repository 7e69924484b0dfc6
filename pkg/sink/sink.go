// Package sink persists aggregate documents into the per-trust metrics
// table, one row per (trust_code, period, data_type) and one JSON column
// per document field.
package sink

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/David-Botos/nhs-ingress/pkg/config"
	"github.com/David-Botos/nhs-ingress/pkg/connector"
	"github.com/David-Botos/nhs-ingress/pkg/model"
)

// ErrUnknownField is returned when a document targets a column that is not
// on the allow-list
var ErrUnknownField = errors.New("unknown document field")

// Mode selects how Store treats a key with no existing row
type Mode string

const (
	ModeUpsert     Mode = config.ModeUpsert
	ModeUpdateOnly Mode = config.ModeUpdateOnly
)

// Sink stores and reads back documents
type Sink interface {
	// Store replaces one field of the row identified by key. The boolean
	// reports whether a row was written; in update-only mode a missing row
	// yields false with a nil error.
	Store(ctx context.Context, key model.PeriodKey, field string, body []byte) (bool, error)

	// Documents returns the stored non-null documents of one field,
	// optionally restricted to some organisations
	Documents(ctx context.Context, field string, orgs []string) ([]model.StoredDocument, error)

	// Close releases the sink's resources
	Close() error
}

// StoreDocument is a convenience wrapper around Sink.Store
func StoreDocument(ctx context.Context, s Sink, doc model.Document) (bool, error) {
	return s.Store(ctx, doc.Key, doc.Field, doc.Body)
}

func checkField(field string) error {
	if !model.IsKnownField(field) {
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return nil
}

func checkKey(key model.PeriodKey) error {
	if key.OrganisationCode == "" {
		return errors.New("document key has no organisation code")
	}
	if key.Period.IsZero() {
		return fmt.Errorf("document key %s has no period", key)
	}
	if key.Granularity == "" {
		return fmt.Errorf("document key %s has no granularity", key)
	}
	return nil
}

// Open creates the sink selected by the configuration
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Sink, error) {
	mode := Mode(cfg.SinkMode)
	if cfg.SinkDriver == config.DriverMemory {
		return NewMemorySink(mode), nil
	}

	conn, err := connector.NewConnectorFactory(cfg, logger).CreateConnector(ctx)
	if err != nil {
		return nil, err
	}
	return NewSQLSink(conn, cfg.MetricsTable, mode, cfg.SinkTimeout, logger), nil
}
