package transfer

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// Kind is the type of workbook a job ingests
type Kind string

const (
	KindCommunity Kind = "community"
	KindCancer    Kind = "cancer"
)

// ParseKind validates a workbook kind name
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindCommunity, KindCancer:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown workbook kind %q (expected %s or %s)", s, KindCommunity, KindCancer)
	}
}

// FileJob represents one workbook to ingest
type FileJob struct {
	ID        string
	Path      string
	Kind      Kind
	CreatedAt time.Time
}

// NewFileJob creates a new file job
func NewFileJob(path string, kind Kind) FileJob {
	return FileJob{
		ID:        uuid.New().String(),
		Path:      path,
		Kind:      kind,
		CreatedAt: time.Now(),
	}
}

// Name returns the file name without its directory
func (j FileJob) Name() string {
	return filepath.Base(j.Path)
}

// FileResult represents the result of ingesting one workbook
type FileResult struct {
	JobID                string
	Path                 string
	Kind                 Kind
	Success              bool
	Organisations        int
	DocumentsWritten     int
	DocumentsRejected    int
	OrganisationsSkipped int
	AbsentTables         []string
	CleaningOperations   int
	DroppedLabels        int
	Periods              []string
	Errors               []ErrorRecord
	Warnings             []string
	StartTime            time.Time
	EndTime              time.Time
	Duration             time.Duration
}

// NewFileResult initializes a result for a job
func NewFileResult(job FileJob) *FileResult {
	return &FileResult{
		JobID:     job.ID,
		Path:      job.Path,
		Kind:      job.Kind,
		StartTime: time.Now(),
		Errors:    make([]ErrorRecord, 0),
		Warnings:  make([]string, 0),
	}
}

// Complete marks the file as complete and calculates duration
func (r *FileResult) Complete(success bool) {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
	r.Success = success
}

// AddError adds an error to the result
func (r *FileResult) AddError(err ErrorRecord) {
	r.Errors = append(r.Errors, err)
}

// AddWarning adds a warning to the result
func (r *FileResult) AddWarning(warning string) {
	r.Warnings = append(r.Warnings, warning)
}

// addPeriod records a period label once
func (r *FileResult) addPeriod(p string) {
	for _, existing := range r.Periods {
		if existing == p {
			return
		}
	}
	r.Periods = append(r.Periods, p)
	sort.Strings(r.Periods)
}

// HasErrors checks if any errors occurred
func (r *FileResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// BatchSummary is the outcome of a whole ingest run
type BatchSummary struct {
	BatchID          string
	Kind             Kind
	TotalFiles       int
	SuccessfulFiles  int
	FailedFiles      int
	Organisations    int
	DocumentsWritten int
	FirstErrors      []ErrorRecord
	ErrorCategories  map[ErrorCategory]int
	ErrorSamples     map[ErrorCategory][]ErrorRecord
	FileErrorCounts  []FileErrorCount
	Results          []FileResult
	Aborted          bool
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration

	maxErrors int
}

// NewBatchSummary initializes a new summary that keeps up to maxErrors error
// records
func NewBatchSummary(kind Kind, maxErrors int) *BatchSummary {
	if maxErrors <= 0 {
		maxErrors = 10
	}
	return &BatchSummary{
		BatchID:         uuid.New().String(),
		Kind:            kind,
		StartTime:       time.Now(),
		ErrorCategories: make(map[ErrorCategory]int),
		maxErrors:       maxErrors,
	}
}

// AddFileResult incorporates a file result into the summary
func (s *BatchSummary) AddFileResult(result FileResult) {
	s.TotalFiles++
	if result.Success {
		s.SuccessfulFiles++
	} else {
		s.FailedFiles++
	}
	s.Organisations += result.Organisations
	s.DocumentsWritten += result.DocumentsWritten

	for _, e := range result.Errors {
		s.ErrorCategories[e.Category]++
		if len(s.FirstErrors) < s.maxErrors {
			s.FirstErrors = append(s.FirstErrors, e)
		}
	}
	s.Results = append(s.Results, result)
}

// Complete marks the batch as complete. Results are ordered by path so that
// summaries do not depend on worker scheduling. When eh is given, its
// per-category counts (which also include cell and label faults), error
// samples and per-file counts are copied into the summary.
func (s *BatchSummary) Complete(eh *ErrorHandler) {
	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)
	sort.Slice(s.Results, func(i, j int) bool { return s.Results[i].Path < s.Results[j].Path })
	if eh != nil {
		s.ErrorCategories = eh.GetErrorSummary()
		s.ErrorSamples = eh.GetErrorSamples()
		s.FileErrorCounts = eh.GetFileErrorCounts()
	}
}

// SuccessRate returns the percentage of files ingested successfully
func (s *BatchSummary) SuccessRate() float64 {
	if s.TotalFiles == 0 {
		return 0
	}
	return float64(s.SuccessfulFiles) / float64(s.TotalFiles) * 100
}

// Err combines the failures of every unsuccessful file, or returns nil
func (s *BatchSummary) Err() error {
	var err error
	for _, r := range s.Results {
		if r.Success {
			continue
		}
		msg := "unknown error"
		if len(r.Errors) > 0 {
			msg = r.Errors[0].String()
		}
		err = multierr.Append(err, fmt.Errorf("%s: %s", r.Path, msg))
	}
	return err
}
