package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/Ch00k/geoping/internal/catalog"
	"github.com/Ch00k/geoping/internal/cli"
	"github.com/Ch00k/geoping/internal/pipeline"
	"github.com/Ch00k/geoping/internal/report"
	"github.com/Ch00k/geoping/internal/stats"
)

// loadCatalog loads the catalog directory with debug timing
func loadCatalog(logger *zap.SugaredLogger, dir string) (catalog.Catalog, error) {
	start := time.Now()
	defer func() {
		logger.Debugw("Load catalog completed", "elapsed", time.Since(start))
	}()

	return catalog.LoadDir(dir, logger)
}

// runPipeline runs the measurement pipeline with debug timing
func runPipeline(
	ctx context.Context,
	logger *zap.SugaredLogger,
	cat catalog.Catalog,
	cfg pipeline.Config,
	deps pipeline.Dependencies,
) (pipeline.Report, error) {
	start := time.Now()
	defer func() {
		logger.Debugw("Pipeline completed", "elapsed", time.Since(start))
	}()

	return pipeline.Run(ctx, cat, cfg, deps)
}

// writeReports writes the statistics to every configured sink with debug timing
func writeReports(
	ctx context.Context,
	logger *zap.SugaredLogger,
	cfg cli.Config,
	rows []stats.CountryStats,
	stdout io.Writer,
	store *report.SQLiteStore,
	now time.Time,
) error {
	start := time.Now()
	defer func() {
		logger.Debugw("Write reports completed", "elapsed", time.Since(start))
	}()

	if err := report.WriteTSVFile(cfg.Output, rows, report.TSVOptions{DecimalComma: cfg.DecimalComma}); err != nil {
		return err
	}
	logger.Infow("Wrote report", "path", cfg.Output, "countries", len(rows))

	if table := report.Table(rows); table != "" {
		_, _ = fmt.Fprint(stdout, table)
	} else {
		_, _ = fmt.Fprintln(stdout, "No reachable endpoints")
	}

	if store != nil {
		runID, err := store.Write(ctx, rows, now)
		if err != nil {
			return fmt.Errorf("failed to store report: %w", err)
		}
		logger.Infow("Stored report", "path", cfg.SQLitePath, "run_id", runID)
	}
	return nil
}
