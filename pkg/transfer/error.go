package transfer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/nhs-ingress/pkg/locator"
	"github.com/David-Botos/nhs-ingress/pkg/period"
	"github.com/David-Botos/nhs-ingress/pkg/sink"
)

// ErrorCategory defines categories of errors during ingest
type ErrorCategory int

const (
	ErrorCategoryNone ErrorCategory = iota
	// ErrorCategoryInputAbsent is an expected sheet or table that could not be read
	ErrorCategoryInputAbsent
	// ErrorCategoryCellMalformed is a blank, sentinel or non-numeric cell
	ErrorCategoryCellMalformed
	// ErrorCategoryLabelUnmapped is a label with no canonical key
	ErrorCategoryLabelUnmapped
	// ErrorCategoryPeriodUnresolvable is a filename or date cell with no known period
	ErrorCategoryPeriodUnresolvable
	// ErrorCategorySinkFailure is a write that failed or touched no rows
	ErrorCategorySinkFailure
	// ErrorCategoryConnection is a lost or refused database connection
	ErrorCategoryConnection
	// ErrorCategoryCritical stops the batch
	ErrorCategoryCritical
)

// String returns a string representation of the error category
func (ec ErrorCategory) String() string {
	switch ec {
	case ErrorCategoryNone:
		return "None"
	case ErrorCategoryInputAbsent:
		return "InputAbsent"
	case ErrorCategoryCellMalformed:
		return "CellMalformed"
	case ErrorCategoryLabelUnmapped:
		return "LabelUnmapped"
	case ErrorCategoryPeriodUnresolvable:
		return "PeriodUnresolvable"
	case ErrorCategorySinkFailure:
		return "SinkFailure"
	case ErrorCategoryConnection:
		return "Connection"
	case ErrorCategoryCritical:
		return "Critical"
	default:
		return fmt.Sprintf("Unknown(%d)", ec)
	}
}

// MarshalText lets categories key JSON maps by name
func (ec ErrorCategory) MarshalText() ([]byte, error) {
	return []byte(ec.String()), nil
}

// ErrSinkNoRows is reported when an update-only write found no row for its key
var ErrSinkNoRows = errors.New("sink write affected no rows")

// ErrorRecord represents a single error during ingest
type ErrorRecord struct {
	Category     ErrorCategory
	File         string
	Table        string
	Organisation string
	Error        error  `json:"-"`
	Message      string // Derived from Error but stored for serialization
	Timestamp    time.Time
	Recoverable  bool
}

// NewErrorRecord creates a new error record with current timestamp
func NewErrorRecord(err error, category ErrorCategory) ErrorRecord {
	record := ErrorRecord{
		Category:    category,
		Error:       err,
		Timestamp:   time.Now(),
		Recoverable: category < ErrorCategoryConnection,
	}
	if err != nil {
		record.Message = err.Error()
	}
	return record
}

// WithFile adds the input file to the error record
func (r ErrorRecord) WithFile(path string) ErrorRecord {
	r.File = path
	return r
}

// WithTable adds table information to the error record
func (r ErrorRecord) WithTable(table string) ErrorRecord {
	r.Table = table
	return r
}

// WithOrganisation adds the organisation code to the error record
func (r ErrorRecord) WithOrganisation(code string) ErrorRecord {
	r.Organisation = code
	return r
}

// String returns a formatted error message
func (r ErrorRecord) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] ", r.Category))

	if r.File != "" {
		sb.WriteString(fmt.Sprintf("File: %s ", r.File))
	}
	if r.Table != "" {
		sb.WriteString(fmt.Sprintf("Table: %s ", r.Table))
	}
	if r.Organisation != "" {
		sb.WriteString(fmt.Sprintf("Org: %s ", r.Organisation))
	}

	if r.Error != nil {
		sb.WriteString(fmt.Sprintf("Error: %s", r.Error.Error()))
	} else if r.Message != "" {
		sb.WriteString(fmt.Sprintf("Error: %s", r.Message))
	}

	return sb.String()
}

// ErrorHandler collects error records for a batch
type ErrorHandler struct {
	logger          *zap.Logger
	errorThresholds map[ErrorCategory]int
	errorCounts     map[ErrorCategory]int
	sampleErrors    map[ErrorCategory][]ErrorRecord
	fileErrors      map[string]int
	recorded        int
	maxErrors       int
	mu              sync.Mutex
	maxSamples      int
}

// NewErrorHandler creates a new error handler. maxErrors caps the number of
// recorded file and key failures tolerated before the batch is abandoned;
// zero or less means no cap.
func NewErrorHandler(logger *zap.Logger, maxErrors int) *ErrorHandler {
	if logger == nil {
		logger = zap.L().Named("errors")
	}

	return &ErrorHandler{
		logger: logger,
		errorThresholds: map[ErrorCategory]int{
			ErrorCategoryConnection: 3,
			ErrorCategoryCritical:   0,
		},
		errorCounts:  make(map[ErrorCategory]int),
		sampleErrors: make(map[ErrorCategory][]ErrorRecord),
		fileErrors:   make(map[string]int),
		maxErrors:    maxErrors,
		maxSamples:   5,
	}
}

// CategorizeError determines the category of an error
func (eh *ErrorHandler) CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryNone
	}

	var category ErrorCategory
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		category = ErrorCategoryCritical
	case errors.Is(err, period.ErrUnresolvable):
		category = ErrorCategoryPeriodUnresolvable
	case errors.Is(err, locator.ErrSheetNotFound), errors.Is(err, locator.ErrHeaderNotDetected):
		category = ErrorCategoryInputAbsent
	case errors.Is(err, sink.ErrUnknownField):
		category = ErrorCategoryCritical
	case errors.Is(err, ErrSinkNoRows):
		category = ErrorCategorySinkFailure
	case isConnectionError(err):
		category = ErrorCategoryConnection
	default:
		category = ErrorCategorySinkFailure
	}

	eh.logger.Debug("Categorized error",
		zap.String("error", err.Error()),
		zap.String("category", category.String()))

	return category
}

// isConnectionError matches driver errors by message; the drivers do not
// share error types
func isConnectionError(err error) bool {
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "connection") && !strings.Contains(msg, "connect:") {
		return false
	}
	return strings.Contains(msg, "refused") ||
		strings.Contains(msg, "reset") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "eof") ||
		strings.Contains(msg, "closed")
}

// RecordError saves an error occurrence
func (eh *ErrorHandler) RecordError(record ErrorRecord) {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	eh.errorCounts[record.Category]++
	eh.recorded++

	samples := eh.sampleErrors[record.Category]
	if len(samples) < eh.maxSamples {
		eh.sampleErrors[record.Category] = append(samples, record)
	}

	if record.File != "" {
		eh.fileErrors[record.File]++
	}

	logLevel := zap.InfoLevel
	switch record.Category {
	case ErrorCategoryCellMalformed, ErrorCategoryLabelUnmapped:
		logLevel = zap.DebugLevel
	case ErrorCategoryInputAbsent, ErrorCategoryPeriodUnresolvable, ErrorCategorySinkFailure:
		logLevel = zap.WarnLevel
	case ErrorCategoryConnection, ErrorCategoryCritical:
		logLevel = zap.ErrorLevel
	}

	eh.logger.Log(logLevel, "Ingest error",
		zap.String("category", record.Category.String()),
		zap.String("file", record.File),
		zap.String("table", record.Table),
		zap.String("organisation", record.Organisation),
		zap.String("error", record.Message),
		zap.Bool("recoverable", record.Recoverable))
}

// RecordCount adds n occurrences of a category without keeping samples.
// Used for cell and label faults that are already listed in documents.
func (eh *ErrorHandler) RecordCount(category ErrorCategory, n int) {
	if n <= 0 {
		return
	}
	eh.mu.Lock()
	defer eh.mu.Unlock()
	eh.errorCounts[category] += n
}

// ShouldAbort reports whether the batch must stop: a critical error, a
// category beyond its threshold, or more recorded failures than maxErrors
func (eh *ErrorHandler) ShouldAbort() bool {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	for category, threshold := range eh.errorThresholds {
		if count := eh.errorCounts[category]; count > threshold {
			eh.logger.Error("Error threshold exceeded",
				zap.String("category", category.String()),
				zap.Int("errorCount", count),
				zap.Int("threshold", threshold))
			return true
		}
	}

	if eh.maxErrors > 0 && eh.recorded > eh.maxErrors {
		eh.logger.Error("Too many ingest errors",
			zap.Int("errorCount", eh.recorded),
			zap.Int("maxErrors", eh.maxErrors))
		return true
	}
	return false
}

// GetErrorSummary returns a copy of the per-category counts
func (eh *ErrorHandler) GetErrorSummary() map[ErrorCategory]int {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	summary := make(map[ErrorCategory]int, len(eh.errorCounts))
	for category, count := range eh.errorCounts {
		summary[category] = count
	}
	return summary
}

// GetErrorSamples returns sample errors for each category
func (eh *ErrorHandler) GetErrorSamples() map[ErrorCategory][]ErrorRecord {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	samples := make(map[ErrorCategory][]ErrorRecord, len(eh.sampleErrors))
	for category, records := range eh.sampleErrors {
		categorySamples := make([]ErrorRecord, len(records))
		copy(categorySamples, records)
		samples[category] = categorySamples
	}
	return samples
}

// GetFileErrorCounts returns error counts by input file, sorted by path
func (eh *ErrorHandler) GetFileErrorCounts() []FileErrorCount {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	out := make([]FileErrorCount, 0, len(eh.fileErrors))
	for file, count := range eh.fileErrors {
		out = append(out, FileErrorCount{File: file, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].File < out[j].File })
	return out
}

// FileErrorCount is the number of errors recorded against one file
type FileErrorCount struct {
	File  string
	Count int
}
