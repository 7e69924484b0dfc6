// Command nhs-ingress loads NHS performance workbooks into the per-trust
// metrics table and verifies the stored documents.
//
//	nhs-ingress ingest community|cancer <paths...>
//	nhs-ingress verify community_health_data|cancer_data
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/nhs-ingress/pkg/config"
	"github.com/David-Botos/nhs-ingress/pkg/sink"
	"github.com/David-Botos/nhs-ingress/pkg/transfer"
	"github.com/David-Botos/nhs-ingress/pkg/verify"
)

// Exit codes
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  nhs-ingress ingest [-workers n] [-json] community|cancer <paths...>")
	fmt.Fprintln(os.Stderr, "  nhs-ingress verify [-json] [-expect RXX,RYY] community_health_data|cancer_data")
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return exitUsage
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitUsage
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return exitUsage
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch args[0] {
	case "ingest":
		return runIngest(ctx, cfg, logger, args[1:])
	case "verify":
		return runVerify(ctx, cfg, logger, args[1:])
	default:
		usage()
		return exitUsage
	}
}

// newLogger builds a production (json) or development (console) logger
func newLogger(level, format string) (*zap.Logger, error) {
	var zcfg zap.Config
	switch strings.ToLower(format) {
	case "console", "text", "dev":
		zcfg = zap.NewDevelopmentConfig()
	default:
		zcfg = zap.NewProductionConfig()
	}

	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}
	zcfg.Level = lvl
	zcfg.EncoderConfig.TimeKey = "ts"

	return zcfg.Build()
}

func runIngest(ctx context.Context, cfg *config.Config, logger *zap.Logger, args []string) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	workers := fs.Int("workers", 0, "worker pool size (overrides WORKER_POOL_SIZE)")
	asJSON := fs.Bool("json", false, "print metrics as JSON")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() < 2 {
		usage()
		return exitUsage
	}

	kind, err := transfer.ParseKind(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}

	s, err := sink.Open(ctx, cfg, logger.Named("sink"))
	if err != nil {
		logger.Error("Failed to open sink", zap.String("driver", cfg.SinkDriver), zap.Error(err))
		return exitFailure
	}
	defer s.Close()

	manager, err := transfer.NewIngestManager(ctx, cfg, s, logger.Named("ingest"))
	if err != nil {
		logger.Error("Failed to create ingest manager", zap.Error(err))
		return exitFailure
	}
	manager.WithWorkerCount(*workers)

	summary, err := manager.Ingest(ctx, kind, fs.Args()[1:])
	if summary == nil {
		logger.Error("Ingest failed", zap.Error(err))
		return exitFailure
	}

	if *asJSON {
		out, jerr := manager.GetMetrics().ToJSON()
		if jerr != nil {
			logger.Error("Failed to encode metrics", zap.Error(jerr))
			return exitFailure
		}
		fmt.Println(string(out))
	} else {
		fmt.Print(manager.GenerateReport())
		printSummary(summary)
	}

	if err != nil {
		if errors.Is(err, transfer.ErrBatchAborted) {
			logger.Error("Ingest batch aborted", zap.Error(err))
		} else {
			logger.Warn("Ingest finished with failures", zap.Error(err))
		}
		return exitFailure
	}
	return exitOK
}

func printSummary(s *transfer.BatchSummary) {
	fmt.Printf("\nBatch %s: %d/%d files ingested (%.1f%%), %d documents written in %s\n",
		s.BatchID, s.SuccessfulFiles, s.TotalFiles, s.SuccessRate(), s.DocumentsWritten,
		s.Duration.Round(time.Millisecond))
	if s.Aborted {
		fmt.Println("Batch was aborted before every file was processed")
	}

	if len(s.FileErrorCounts) > 0 {
		fmt.Println("\nErrors by file:")
		for _, fc := range s.FileErrorCounts {
			fmt.Printf("  %-50s %d\n", fc.File, fc.Count)
		}
	}

	categories := make([]transfer.ErrorCategory, 0, len(s.ErrorSamples))
	for c := range s.ErrorSamples {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })
	for _, c := range categories {
		fmt.Printf("\n%s (%d):\n", c, s.ErrorCategories[c])
		for _, e := range s.ErrorSamples[c] {
			fmt.Printf("  - %s\n", e.String())
		}
	}
}

func runVerify(ctx context.Context, cfg *config.Config, logger *zap.Logger, args []string) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "print the report as JSON")
	expect := fs.String("expect", strings.Join(cfg.OrgFilter, ","), "organisation codes every period must cover")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 1 {
		usage()
		return exitUsage
	}

	s, err := sink.Open(ctx, cfg, logger.Named("sink"))
	if err != nil {
		logger.Error("Failed to open sink", zap.String("driver", cfg.SinkDriver), zap.Error(err))
		return exitFailure
	}
	defer s.Close()

	v := verify.NewVerifier(s, verify.Thresholds{
		FailRatio: cfg.VerifyFailRatio,
		WarnRatio: cfg.VerifyWarnRatio,
	}, logger.Named("verify"))
	if codes := splitCodes(*expect); len(codes) > 0 {
		v.WithExpectedOrganisations(codes)
	}

	report, err := v.Verify(ctx, fs.Arg(0))
	if err != nil {
		logger.Error("Verification failed", zap.String("field", fs.Arg(0)), zap.Error(err))
		return exitFailure
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		err = enc.Encode(report)
	} else {
		err = report.WriteText(os.Stdout)
	}
	if err != nil {
		logger.Error("Failed to write report", zap.Error(err))
		return exitFailure
	}

	if report.Verdict == verify.VerdictFail {
		return exitFailure
	}
	return exitOK
}

func splitCodes(s string) []string {
	var codes []string
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			codes = append(codes, c)
		}
	}
	return codes
}
