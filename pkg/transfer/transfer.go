// Package transfer runs ingest batches: it turns workbooks into documents
// and writes them to a sink, collecting per-file results, error samples and
// metrics.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/David-Botos/nhs-ingress/pkg/builder"
	"github.com/David-Botos/nhs-ingress/pkg/cleaner"
	"github.com/David-Botos/nhs-ingress/pkg/config"
	"github.com/David-Botos/nhs-ingress/pkg/labels"
	"github.com/David-Botos/nhs-ingress/pkg/sink"
)

// ErrBatchAborted is returned when error thresholds stop a batch early
var ErrBatchAborted = errors.New("ingest batch aborted")

// IngestManager orchestrates the ingest of a set of workbooks
type IngestManager struct {
	cfg          *config.Config
	sink         sink.Sink
	builder      *builder.Builder
	recorder     *cleaner.Recorder
	errorHandler *ErrorHandler
	metrics      *IngestMetrics
	logger       *zap.Logger
	workerCount  int
}

// NewIngestManager creates a new ingest manager writing to s. When cleaning
// audit is enabled and s is a SQL sink, coerced cells are also written to
// the cleaned_on_ingress table.
func NewIngestManager(ctx context.Context, cfg *config.Config, s sink.Sink, logger *zap.Logger) (*IngestManager, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if s == nil {
		return nil, errors.New("sink cannot be nil")
	}
	if logger == nil {
		logger = zap.L().Named("ingest")
	}

	registry, err := labels.Default()
	if err != nil {
		return nil, fmt.Errorf("failed to load label maps: %w", err)
	}
	b, err := builder.NewBuilder(registry, logger.Named("builder"))
	if err != nil {
		return nil, err
	}

	var recorder *cleaner.Recorder
	if cfg.CleaningAudit {
		if sqlSink, ok := s.(*sink.SQLSink); ok {
			recorder, err = cleaner.NewRecorder(ctx, sqlSink.Connector(), logger.Named("cleaner"))
			if err != nil {
				return nil, fmt.Errorf("failed to create cleaning recorder: %w", err)
			}
		} else {
			logger.Warn("Cleaning audit needs a database sink, skipping",
				zap.String("driver", cfg.SinkDriver))
		}
	}

	workerCount := cfg.WorkerPoolSize
	if workerCount < 1 {
		workerCount = 1
	}

	return &IngestManager{
		cfg:          cfg,
		sink:         s,
		builder:      b,
		recorder:     recorder,
		errorHandler: NewErrorHandler(logger.Named("errors"), cfg.MaxErrors),
		metrics:      NewIngestMetrics(logger.Named("metrics")),
		logger:       logger,
		workerCount:  workerCount,
	}, nil
}

// WithWorkerCount overrides the configured worker pool size
func (im *IngestManager) WithWorkerCount(count int) *IngestManager {
	if count > 0 {
		im.workerCount = count
	}
	return im
}

// Ingest expands paths and ingests every workbook found as kind
func (im *IngestManager) Ingest(ctx context.Context, kind Kind, paths []string) (*BatchSummary, error) {
	files, err := ExpandPaths(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no workbooks found in %s", strings.Join(paths, ", "))
	}

	jobs := make([]FileJob, 0, len(files))
	for _, f := range files {
		jobs = append(jobs, NewFileJob(f, kind))
	}
	return im.Run(ctx, jobs)
}

// Run ingests jobs on a bounded pool of workers. Every file gets a result in
// the summary. The returned error combines the failed files' errors and any
// error that stopped the batch.
func (im *IngestManager) Run(ctx context.Context, jobs []FileJob) (*BatchSummary, error) {
	kind := Kind("")
	if len(jobs) > 0 {
		kind = jobs[0].Kind
	}
	summary := NewBatchSummary(kind, im.cfg.MaxErrors)

	im.logger.Info("Starting ingest batch",
		zap.String("batchID", summary.BatchID),
		zap.Int("files", len(jobs)),
		zap.Int("workers", im.workerCount))

	workers := make(chan *Worker, im.workerCount)
	for i := 0; i < im.workerCount; i++ {
		workers <- NewWorker(i, im.cfg, im.builder, im.sink, im.recorder, im.errorHandler, im.logger)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.workerCount)

	var mu sync.Mutex
	for _, job := range jobs {
		if gctx.Err() != nil {
			break
		}
		job := job
		g.Go(func() error {
			w := <-workers
			defer func() { workers <- w }()

			result, err := w.ProcessJob(gctx, job)

			mu.Lock()
			summary.AddFileResult(result)
			mu.Unlock()
			im.metrics.RecordFile(result)

			if err != nil {
				return fmt.Errorf("%s: %w", job.Path, err)
			}
			if im.errorHandler.ShouldAbort() {
				return ErrBatchAborted
			}
			return nil
		})
	}

	waitErr := g.Wait()
	if waitErr == nil {
		waitErr = ctx.Err()
	}
	summary.Aborted = waitErr != nil
	summary.Complete(im.errorHandler)
	im.metrics.Complete()

	im.logger.Info("Ingest batch completed",
		zap.String("batchID", summary.BatchID),
		zap.Int("successfulFiles", summary.SuccessfulFiles),
		zap.Int("failedFiles", summary.FailedFiles),
		zap.Int("skippedFiles", len(jobs)-summary.TotalFiles),
		zap.Int("documentsWritten", summary.DocumentsWritten),
		zap.Bool("aborted", summary.Aborted),
		zap.Duration("duration", summary.Duration))

	return summary, multierr.Combine(waitErr, summary.Err())
}

// GetMetrics returns the run metrics
func (im *IngestManager) GetMetrics() *IngestMetrics {
	return im.metrics
}

// GenerateReport returns the text metrics report
func (im *IngestManager) GenerateReport() string {
	return im.metrics.GenerateMetricsReport()
}

// workbookExt lists the extensions picked up from directories
var workbookExt = map[string]bool{".xlsx": true, ".xlsm": true}

// ExpandPaths resolves files, directories and glob patterns into a sorted
// list of workbook paths. Directories contribute their .xlsx and .xlsm files;
// Office lock files ("~$...") are ignored.
func ExpandPaths(paths []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if strings.HasPrefix(filepath.Base(p), "~$") || seen[p] {
			return
		}
		seen[p] = true
		out = append(out, p)
	}

	for _, p := range paths {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("bad path pattern %q: %w", p, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no such file or directory: %s", p)
		}

		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil {
				return nil, fmt.Errorf("failed to stat %s: %w", m, err)
			}
			if !info.IsDir() {
				add(m)
				continue
			}

			entries, err := os.ReadDir(m)
			if err != nil {
				return nil, fmt.Errorf("failed to read directory %s: %w", m, err)
			}
			for _, e := range entries {
				if !e.IsDir() && workbookExt[strings.ToLower(filepath.Ext(e.Name()))] {
					add(filepath.Join(m, e.Name()))
				}
			}
		}
	}

	sort.Strings(out)
	return out, nil
}
