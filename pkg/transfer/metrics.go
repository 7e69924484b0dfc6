package transfer

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// KindMetrics tracks metrics for one workbook kind
type KindMetrics struct {
	Kind             Kind
	SuccessfulFiles  []string
	FailedFiles      map[string]string // path -> first error message
	Organisations    int
	DocumentsWritten int
	CleaningOps      int
	DroppedLabels    int
}

// NewKindMetrics creates a new per-kind tracker
func NewKindMetrics(kind Kind) *KindMetrics {
	return &KindMetrics{
		Kind:            kind,
		SuccessfulFiles: make([]string, 0),
		FailedFiles:     make(map[string]string),
	}
}

// TotalFiles returns the number of files processed
func (km *KindMetrics) TotalFiles() int {
	return len(km.SuccessfulFiles) + len(km.FailedFiles)
}

// IngestMetrics tracks metrics for an ingest run
type IngestMetrics struct {
	mu                   sync.Mutex
	logger               *zap.Logger
	StartTime            time.Time
	EndTime              time.Time
	KindMetrics          map[Kind]*KindMetrics
	SuccessfulFiles      int
	FailedFiles          int
	Organisations        int
	OrganisationsSkipped int
	DocumentsWritten     int
	DocumentsRejected    int
	TotalCleaningOps     int
	ErrorCounts          map[ErrorCategory]int
	FileDurations        map[string]time.Duration
}

// NewIngestMetrics creates a new IngestMetrics instance
func NewIngestMetrics(logger *zap.Logger) *IngestMetrics {
	if logger == nil {
		logger = zap.L().Named("metrics")
	}
	return &IngestMetrics{
		StartTime:     time.Now(),
		KindMetrics:   make(map[Kind]*KindMetrics),
		ErrorCounts:   make(map[ErrorCategory]int),
		FileDurations: make(map[string]time.Duration),
		logger:        logger,
	}
}

// RecordFile records metrics for a completed file
func (im *IngestMetrics) RecordFile(result FileResult) {
	im.mu.Lock()
	defer im.mu.Unlock()

	km, ok := im.KindMetrics[result.Kind]
	if !ok {
		km = NewKindMetrics(result.Kind)
		im.KindMetrics[result.Kind] = km
	}

	if result.Success {
		im.SuccessfulFiles++
		km.SuccessfulFiles = append(km.SuccessfulFiles, result.Path)
	} else {
		im.FailedFiles++
		msg := "unknown error"
		if len(result.Errors) > 0 {
			msg = result.Errors[0].Message
		}
		km.FailedFiles[result.Path] = msg
	}

	im.Organisations += result.Organisations
	im.OrganisationsSkipped += result.OrganisationsSkipped
	im.DocumentsWritten += result.DocumentsWritten
	im.DocumentsRejected += result.DocumentsRejected
	im.TotalCleaningOps += result.CleaningOperations
	im.FileDurations[result.Path] = result.Duration

	km.Organisations += result.Organisations
	km.DocumentsWritten += result.DocumentsWritten
	km.CleaningOps += result.CleaningOperations
	km.DroppedLabels += result.DroppedLabels

	for _, e := range result.Errors {
		im.ErrorCounts[e.Category]++
	}

	im.logger.Info("Recorded file",
		zap.String("file", result.Path),
		zap.String("kind", string(result.Kind)),
		zap.Bool("success", result.Success),
		zap.Int("organisations", result.Organisations),
		zap.Int("documents", result.DocumentsWritten),
		zap.Duration("duration", result.Duration))
}

// Complete stops the run clock
func (im *IngestMetrics) Complete() {
	im.mu.Lock()
	defer im.mu.Unlock()
	im.EndTime = time.Now()
}

// Duration returns the run duration so far
func (im *IngestMetrics) Duration() time.Duration {
	if im.EndTime.IsZero() {
		return time.Since(im.StartTime)
	}
	return im.EndTime.Sub(im.StartTime)
}

// formatDuration formats a duration to a human-readable string
func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	} else if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// getPercentage safely calculates a percentage, avoiding division by zero
func getPercentage(value, total float64) float64 {
	if total == 0 {
		return 0
	}
	return (value / total) * 100
}

// GenerateMetricsReport creates a text metrics report
func (im *IngestMetrics) GenerateMetricsReport() string {
	im.mu.Lock()
	defer im.mu.Unlock()

	totalFiles := im.SuccessfulFiles + im.FailedFiles

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`
Ingest Metrics Report
=====================
Duration:                %s

Files Summary
-------------
Total Files:             %d
Successful Files:        %d (%.1f%%)
Failed Files:            %d (%.1f%%)

Documents Summary
-----------------
Organisations:           %d
Organisations Skipped:   %d
Documents Written:       %d
Documents Rejected:      %d
Total Cleaning Ops:      %d
`,
		formatDuration(im.Duration()),
		totalFiles,
		im.SuccessfulFiles, getPercentage(float64(im.SuccessfulFiles), float64(totalFiles)),
		im.FailedFiles, getPercentage(float64(im.FailedFiles), float64(totalFiles)),
		im.Organisations,
		im.OrganisationsSkipped,
		im.DocumentsWritten,
		im.DocumentsRejected,
		im.TotalCleaningOps,
	))

	kinds := make([]string, 0, len(im.KindMetrics))
	for k := range im.KindMetrics {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)

	sb.WriteString("\nWorkbook Kinds\n--------------\n")
	for _, k := range kinds {
		km := im.KindMetrics[Kind(k)]
		sb.WriteString(fmt.Sprintf("- %s: %d files, %.1f%% success, %d documents, %d dropped labels\n",
			k,
			km.TotalFiles(),
			getPercentage(float64(len(km.SuccessfulFiles)), float64(km.TotalFiles())),
			km.DocumentsWritten,
			km.DroppedLabels))

		failed := make([]string, 0, len(km.FailedFiles))
		for path := range km.FailedFiles {
			failed = append(failed, path)
		}
		sort.Strings(failed)
		for _, path := range failed {
			sb.WriteString(fmt.Sprintf("    failed %s: %s\n", path, km.FailedFiles[path]))
		}
	}

	if len(im.ErrorCounts) > 0 {
		sb.WriteString("\nError Distribution\n------------------\n")
		totalErrors := 0
		categories := make([]int, 0, len(im.ErrorCounts))
		for category, count := range im.ErrorCounts {
			totalErrors += count
			categories = append(categories, int(category))
		}
		sort.Ints(categories)

		for _, c := range categories {
			count := im.ErrorCounts[ErrorCategory(c)]
			sb.WriteString(fmt.Sprintf("- %s: %d (%.1f%%)\n",
				ErrorCategory(c).String(), count, getPercentage(float64(count), float64(totalErrors))))
		}
	}

	return sb.String()
}

// ToJSON serializes metrics to JSON
func (im *IngestMetrics) ToJSON() ([]byte, error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	return json.Marshal(struct {
		Duration             string                `json:"duration"`
		SuccessfulFiles      int                   `json:"successfulFiles"`
		FailedFiles          int                   `json:"failedFiles"`
		Organisations        int                   `json:"organisations"`
		OrganisationsSkipped int                   `json:"organisationsSkipped"`
		DocumentsWritten     int                   `json:"documentsWritten"`
		DocumentsRejected    int                   `json:"documentsRejected"`
		TotalCleaningOps     int                   `json:"totalCleaningOps"`
		ErrorDistribution    map[ErrorCategory]int `json:"errorDistribution"`
	}{
		Duration:             im.Duration().String(),
		SuccessfulFiles:      im.SuccessfulFiles,
		FailedFiles:          im.FailedFiles,
		Organisations:        im.Organisations,
		OrganisationsSkipped: im.OrganisationsSkipped,
		DocumentsWritten:     im.DocumentsWritten,
		DocumentsRejected:    im.DocumentsRejected,
		TotalCleaningOps:     im.TotalCleaningOps,
		ErrorDistribution:    im.ErrorCounts,
	})
}
