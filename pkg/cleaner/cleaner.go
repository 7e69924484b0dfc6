// pkg/cleaner/cleaner.go
package cleaner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/nhs-ingress/pkg/connector"
	"github.com/David-Botos/nhs-ingress/pkg/model"
)

// CellCleaner coerces spreadsheet cells into numbers and keeps a record of
// every cell it had to change. One CellCleaner is used per document build.
type CellCleaner struct {
	logger     *zap.Logger
	mu         sync.Mutex
	operations []model.CleaningOperation
}

// NewCellCleaner creates a new CellCleaner
func NewCellCleaner(logger *zap.Logger) *CellCleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CellCleaner{logger: logger}
}

// Count coerces an observation cell. Blank, suppressed, non-numeric and
// negative values become 0; the change is recorded.
func (c *CellCleaner) Count(cc model.CleaningContext, raw string) float64 {
	val, stripped, err := ParseNumber(raw)
	if err != nil {
		c.record(cc, raw, 0, OperationZeroFill, reasonFor(err))
		return 0
	}
	if val < 0 {
		c.record(cc, raw, 0, OperationClampZero, ReasonNegative)
		return 0
	}
	if stripped {
		c.record(cc, raw, val, OperationSeparatorStrip, ReasonSeparator)
	}
	return val
}

// Total parses a bucket total. The second return value is false when the
// total is absent, non-numeric or not positive, in which case the bucket
// must be skipped. Skipped totals are not recorded as cleaning operations.
func (c *CellCleaner) Total(raw string) (float64, bool) {
	val, _, err := ParseNumber(raw)
	if err != nil || val <= 0 {
		return 0, false
	}
	return val, true
}

// Optional parses a cell that has a caller-supplied default when malformed
func (c *CellCleaner) Optional(raw string) (float64, bool) {
	val, _, err := ParseNumber(raw)
	if err != nil {
		return 0, false
	}
	return val, true
}

func (c *CellCleaner) record(cc model.CleaningContext, raw string, newVal float64, op, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.operations = append(c.operations, model.CleaningOperation{
		TableID:       cc.TableID,
		Organisation:  cc.Organisation,
		Label:         cc.Label,
		OriginalValue: raw,
		NewValue:      newVal,
		Operation:     op,
		Reason:        reason,
	})
}

// Operations returns a copy of the recorded cleaning operations
func (c *CellCleaner) Operations() []model.CleaningOperation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.CleaningOperation, len(c.operations))
	copy(out, c.operations)
	return out
}

// CoercedCount returns how many cells were changed
func (c *CellCleaner) CoercedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.operations)
}

// Recorder persists cleaning operations into the cleaned_on_ingress table
type Recorder struct {
	conn   connector.DatabaseConnector
	logger *zap.Logger
}

// NewRecorder creates a Recorder and ensures the tracking table exists
func NewRecorder(ctx context.Context, conn connector.DatabaseConnector, logger *zap.Logger) (*Recorder, error) {
	if conn == nil {
		return nil, errors.New("database connection cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	r := &Recorder{conn: conn, logger: logger}
	if err := r.setupCleaningTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to setup cleaning table: %w", err)
	}
	return r, nil
}

// setupCleaningTable ensures the cleaned_on_ingress tracking table exists
func (r *Recorder) setupCleaningTable(ctx context.Context) error {
	createTableSQL := `
		CREATE TABLE IF NOT EXISTS cleaned_on_ingress (
			trust_code TEXT NOT NULL,
			period TEXT NOT NULL,
			table_id TEXT NOT NULL,
			label TEXT NOT NULL,
			original_value TEXT,
			new_value DOUBLE PRECISION NOT NULL,
			cleaning_operation TEXT NOT NULL,
			cleaning_reason TEXT NOT NULL
		)
	`
	if _, err := r.conn.ExecWithTimeout(ctx, createTableSQL, 10*time.Second); err != nil {
		return fmt.Errorf("failed to create tracking table: %w", err)
	}

	r.logger.Debug("Ensured cleaned_on_ingress table exists")
	return nil
}

// RecordCleaningOperations batch inserts cleaning operations for one
// document key inside a transaction
func (r *Recorder) RecordCleaningOperations(ctx context.Context, key model.PeriodKey, operations []model.CleaningOperation) (err error) {
	if len(operations) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	tx, err := r.conn.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				r.logger.Error("Failed to rollback transaction",
					zap.Error(rbErr),
					zap.NamedError("cause", err))
			}
		}
	}()

	d := r.conn.Dialect()
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO cleaned_on_ingress
		(trust_code, period, table_id, label, original_value, new_value,
		 cleaning_operation, cleaning_reason)
		VALUES (%s)
	`, d.Placeholders(1, 8)))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, op := range operations {
		if _, err = stmt.ExecContext(ctx,
			key.OrganisationCode,
			key.PeriodString(),
			string(op.TableID),
			op.Label,
			op.OriginalValue,
			op.NewValue,
			op.Operation,
			op.Reason,
		); err != nil {
			return fmt.Errorf("failed to insert cleaning operation: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Debug("Recorded cleaning operations",
		zap.String("key", key.String()),
		zap.Int("count", len(operations)))
	return nil
}
