package transfer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/nhs-ingress/pkg/aligner"
	"github.com/David-Botos/nhs-ingress/pkg/builder"
	"github.com/David-Botos/nhs-ingress/pkg/cleaner"
	"github.com/David-Botos/nhs-ingress/pkg/config"
	"github.com/David-Botos/nhs-ingress/pkg/locator"
	"github.com/David-Botos/nhs-ingress/pkg/model"
	"github.com/David-Botos/nhs-ingress/pkg/period"
	"github.com/David-Botos/nhs-ingress/pkg/sink"
)

// Worker ingests one workbook at a time: locate, align, build, store
type Worker struct {
	ID           int
	locator      *locator.Locator
	builder      *builder.Builder
	sink         sink.Sink
	recorder     *cleaner.Recorder
	errorHandler *ErrorHandler
	layout       aligner.Layout
	filter       aligner.OrgFilter
	cancerCols   builder.CancerColumns
	scanRows     int
	logger       *zap.Logger
}

// NewWorker creates a new worker. recorder may be nil.
func NewWorker(
	id int,
	cfg *config.Config,
	b *builder.Builder,
	s sink.Sink,
	recorder *cleaner.Recorder,
	errorHandler *ErrorHandler,
	logger *zap.Logger,
) *Worker {
	layout := aligner.DefaultLayout()
	layout.VerifyIdentity = true

	logger = logger.With(zap.Int("workerID", id))
	return &Worker{
		ID:           id,
		locator:      locator.NewLocator(logger.Named("locator")),
		builder:      b,
		sink:         s,
		recorder:     recorder,
		errorHandler: errorHandler,
		layout:       layout,
		filter:       aligner.NewOrgFilter(cfg.OrgFilter),
		cancerCols:   builder.DefaultCancerColumns(),
		scanRows:     cfg.HeaderScanRows,
		logger:       logger,
	}
}

// ProcessJob ingests a single workbook. File-level problems are reported in
// the result; the returned error is non-nil only when the batch must stop.
func (w *Worker) ProcessJob(ctx context.Context, job FileJob) (FileResult, error) {
	result := NewFileResult(job)
	startTime := time.Now()

	w.logger.Info("Starting workbook ingest",
		zap.String("file", job.Path),
		zap.String("kind", string(job.Kind)))

	var err error
	switch job.Kind {
	case KindCommunity:
		err = w.ingestCommunity(ctx, job, result)
	case KindCancer:
		err = w.ingestCancer(ctx, job, result)
	default:
		err = w.record(job, result, ErrorCategoryCritical, "", "",
			fmt.Errorf("unknown workbook kind %q", job.Kind))
	}

	result.Complete(err == nil && !result.HasErrors())
	result.Duration = time.Since(startTime)

	if result.Success {
		w.logger.Info("Workbook ingest completed successfully",
			zap.String("file", job.Path),
			zap.Strings("periods", result.Periods),
			zap.Int("documentsWritten", result.DocumentsWritten),
			zap.Int("absentTables", len(result.AbsentTables)),
			zap.Duration("duration", result.Duration))
	} else {
		w.logger.Warn("Workbook ingest failed",
			zap.String("file", job.Path),
			zap.Int("errors", len(result.Errors)),
			zap.Int("documentsWritten", result.DocumentsWritten),
			zap.Duration("duration", result.Duration))
	}

	return *result, err
}

// record adds an error to the result and the batch handler. Critical errors
// are returned so the caller can stop the batch.
func (w *Worker) record(job FileJob, result *FileResult, category ErrorCategory, table, org string, err error) error {
	rec := NewErrorRecord(err, category).
		WithFile(job.Path).
		WithTable(table).
		WithOrganisation(org)
	result.AddError(rec)
	w.errorHandler.RecordError(rec)

	if category == ErrorCategoryCritical {
		return err
	}
	return nil
}

// fail is record with the category derived from the error
func (w *Worker) fail(job FileJob, result *FileResult, table, org string, err error) error {
	return w.record(job, result, w.errorHandler.CategorizeError(err), table, org, err)
}

// ingestCommunity builds one community health document per organisation of
// a monthly workbook
func (w *Worker) ingestCommunity(ctx context.Context, job FileJob, result *FileResult) error {
	key, err := period.FromFilename(job.Path)
	if err != nil {
		return w.fail(job, result, "", "", err)
	}

	wb, err := locator.OpenWorkbook(job.Path)
	if err != nil {
		return w.record(job, result, ErrorCategoryInputAbsent, "", "", err)
	}
	defer wb.Close()

	located, err := w.locator.Locate(ctx, wb, CommunitySpecs(w.scanRows))
	if err != nil {
		return w.fail(job, result, "", "", err)
	}

	w.noteAbsent(result, located, builder.TotalsTable)
	if located.IsAbsent(builder.TotalsTable) {
		return w.record(job, result, ErrorCategoryInputAbsent, string(builder.TotalsTable), "",
			fmt.Errorf("primary table %s not found: %w", builder.TotalsTable, absentErr(located, builder.TotalsTable)))
	}

	alignment := aligner.Align(located.Tables, builder.TotalsTable, w.filter, w.layout)
	for _, d := range alignment.Duplicates {
		result.AddWarning(fmt.Sprintf("organisation %s repeated at row %d, using row %d", d.Code, d.RowIndex, d.FirstRow))
	}
	for _, m := range alignment.Mismatches {
		result.AddWarning(fmt.Sprintf("table %s row %d holds %q where %s expected %q",
			m.Table, m.RowIndex, m.Found, alignment.Primary, m.Code))
	}

	result.addPeriod(key.Label)
	for _, org := range alignment.Organisations {
		if err := ctx.Err(); err != nil {
			return w.fail(job, result, "", org.Code, err)
		}

		in := builder.NewCommunityInput(alignment, located.Tables, org, key, w.layout)
		doc, ops := w.builder.BuildCommunity(in)
		w.noteBuild(result, ops, doc.Metadata.DroppedLabelCount)

		if doc.Metadata.ServicesReported == 0 {
			result.OrganisationsSkipped++
			w.logger.Debug("No services reported",
				zap.String("organisation", org.Code),
				zap.String("period", key.PeriodString()))
			continue
		}

		if err := w.store(ctx, job, result, in.Period, model.FieldCommunityHealth, doc, ops); err != nil {
			return err
		}
	}
	return nil
}

// ingestCancer builds one cancer document per organisation and month of an
// extract, plus a quarterly document for every fiscal quarter whose three
// months are all present
func (w *Worker) ingestCancer(ctx context.Context, job FileJob, result *FileResult) error {
	wb, err := locator.OpenWorkbook(job.Path)
	if err != nil {
		return w.record(job, result, ErrorCategoryInputAbsent, "", "", err)
	}
	defer wb.Close()

	located, err := w.locator.Locate(ctx, wb, []locator.TableSpec{CancerSpec(w.scanRows, w.cancerCols)})
	if err != nil {
		return w.fail(job, result, "", "", err)
	}

	table := located.Table(builder.CancerTable)
	if table == nil {
		w.noteAbsent(result, located, builder.CancerTable)
		return w.record(job, result, ErrorCategoryInputAbsent, string(builder.CancerTable), "",
			fmt.Errorf("primary table %s not found: %w", builder.CancerTable, absentErr(located, builder.CancerTable)))
	}

	rows, rowErrs, err := builder.ParseCancerRows(table, w.cancerCols)
	if err != nil {
		return w.record(job, result, ErrorCategoryInputAbsent, string(builder.CancerTable), "", err)
	}
	for _, re := range rowErrs {
		result.AddWarning(re.Error())
	}
	w.errorHandler.RecordCount(ErrorCategoryPeriodUnresolvable, len(rowErrs))
	if len(rows) == 0 && len(rowErrs) > 0 {
		return w.record(job, result, ErrorCategoryPeriodUnresolvable, string(builder.CancerTable), "",
			fmt.Errorf("%w: no extract row has a usable period", period.ErrUnresolvable))
	}

	byMonth := make(map[time.Time][]builder.CancerRow)
	byQuarter := make(map[string][]builder.CancerRow)
	quarterStart := make(map[string]time.Time)
	quarterYear := make(map[string]int)
	quarterMonths := make(map[string]map[string]bool)
	for _, r := range rows {
		if !w.filter.Admits(r.OrgCode) {
			continue
		}
		month := period.MonthlyKey(r.Period).Period
		byMonth[month] = append(byMonth[month], r)

		q := period.QuarterOf(r.Period)
		if _, ok := quarterStart[q.Label]; !ok {
			quarterStart[q.Label] = q.Start
			quarterYear[q.Label] = period.FiscalStartYear(r.Period)
			quarterMonths[q.Label] = make(map[string]bool, 3)
		}
		byQuarter[q.Label] = append(byQuarter[q.Label], r)
		quarterMonths[q.Label][r.Period.Format("Jan")] = true
	}

	months := make([]time.Time, 0, len(byMonth))
	for m := range byMonth {
		months = append(months, m)
	}
	sort.Slice(months, func(i, j int) bool { return months[i].Before(months[j]) })

	for _, m := range months {
		key := period.MonthlyKey(m)
		result.addPeriod(key.Label)
		if err := w.buildCancerPeriod(ctx, job, result, key, byMonth[m]); err != nil {
			return err
		}
	}

	groups := make([]string, 0, len(quarterStart))
	for label := range quarterStart {
		groups = append(groups, label)
	}
	sort.Slice(groups, func(i, j int) bool { return quarterStart[groups[i]].Before(quarterStart[groups[j]]) })

	for _, group := range groups {
		if len(quarterMonths[group]) != 3 {
			w.logger.Debug("Skipping incomplete quarter",
				zap.String("file", job.Path),
				zap.String("quarter", group),
				zap.Int("months", len(quarterMonths[group])))
			continue
		}

		names := make([]string, 0, 3)
		for name := range quarterMonths[group] {
			names = append(names, name)
		}
		q, err := period.QuarterFor(names, quarterYear[group])
		if err != nil {
			w.record(job, result, ErrorCategoryPeriodUnresolvable, string(builder.CancerTable), "", err)
			continue
		}

		key := q.Key()
		result.addPeriod(key.Label)
		if err := w.buildCancerPeriod(ctx, job, result, key, byQuarter[group]); err != nil {
			return err
		}
	}
	return nil
}

// buildCancerPeriod builds and stores one document per organisation for the
// rows of one period
func (w *Worker) buildCancerPeriod(ctx context.Context, job FileJob, result *FileResult, key model.PeriodKey, rows []builder.CancerRow) error {
	groups, order := builder.GroupCancerRows(rows)
	for _, org := range order {
		if err := ctx.Err(); err != nil {
			return w.fail(job, result, "", org, err)
		}

		orgKey := key.WithOrganisation(org)
		doc, ops := w.builder.BuildCancer(builder.CancerInput{Period: orgKey, Rows: groups[org]})
		w.noteBuild(result, ops, doc.Metadata.DroppedLabelCount)

		if doc.Metadata.StandardsReported == 0 {
			result.OrganisationsSkipped++
			continue
		}

		if err := w.store(ctx, job, result, orgKey, model.FieldCancer, doc, ops); err != nil {
			return err
		}
	}
	return nil
}

// store encodes and writes one document, then records its cleaning
// operations when an audit recorder is configured
func (w *Worker) store(
	ctx context.Context,
	job FileJob,
	result *FileResult,
	key model.PeriodKey,
	field string,
	aggregate interface{},
	ops []model.CleaningOperation,
) error {
	doc, err := model.NewDocument(key, field, aggregate)
	if err != nil {
		return w.record(job, result, ErrorCategoryCritical, "", key.OrganisationCode, err)
	}

	written, err := sink.StoreDocument(ctx, w.sink, doc)
	if err != nil {
		result.DocumentsRejected++
		return w.fail(job, result, "", key.OrganisationCode,
			fmt.Errorf("failed to store %s for %s: %w", field, key, err))
	}
	if !written {
		result.DocumentsRejected++
		return w.record(job, result, ErrorCategorySinkFailure, "", key.OrganisationCode,
			fmt.Errorf("%w: %s for %s", ErrSinkNoRows, field, key))
	}
	result.DocumentsWritten++

	if w.recorder != nil && len(ops) > 0 {
		if err := w.recorder.RecordCleaningOperations(ctx, key, ops); err != nil {
			result.AddWarning(fmt.Sprintf("failed to record cleaning operations for %s: %v", key, err))
			w.logger.Warn("Failed to record cleaning operations",
				zap.String("key", key.String()),
				zap.Error(err))
		}
	}
	return nil
}

// noteBuild accounts for the cell and label faults of one build
func (w *Worker) noteBuild(result *FileResult, ops []model.CleaningOperation, dropped int) {
	result.Organisations++
	result.CleaningOperations += len(ops)
	result.DroppedLabels += dropped
	w.errorHandler.RecordCount(ErrorCategoryCellMalformed, len(ops))
	w.errorHandler.RecordCount(ErrorCategoryLabelUnmapped, dropped)
}

// noteAbsent lists absent tables as warnings. The primary table is left to
// the caller, which fails the file for it.
func (w *Worker) noteAbsent(result *FileResult, located *locator.Located, primary model.TableID) {
	n := 0
	for _, a := range located.Absent {
		result.AbsentTables = append(result.AbsentTables, string(a.ID))
		if a.ID == primary {
			continue
		}
		n++
		result.AddWarning(fmt.Sprintf("table %s absent: %s", a.ID, a.Reason))
	}
	w.errorHandler.RecordCount(ErrorCategoryInputAbsent, n)
}

func absentErr(located *locator.Located, id model.TableID) error {
	for _, a := range located.Absent {
		if a.ID == id && a.Err != nil {
			return a.Err
		}
	}
	return errors.New("not located")
}
