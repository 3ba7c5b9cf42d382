// Package main provides the command-line interface for geoping.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	urfavecli "github.com/urfave/cli"
	"go.uber.org/zap"

	"github.com/Ch00k/geoping/internal/cli"
	"github.com/Ch00k/geoping/internal/geo"
	"github.com/Ch00k/geoping/internal/logging"
	"github.com/Ch00k/geoping/internal/metrics"
	"github.com/Ch00k/geoping/internal/pipeline"
	"github.com/Ch00k/geoping/internal/ping"
	"github.com/Ch00k/geoping/internal/report"
	"github.com/Ch00k/geoping/internal/stats"
)

var Version = "dev"

var errNoEndpoints = errors.New("no endpoints found")

const usage = "measure ICMP latency to a server catalog and summarize it per actual country"

// Dependencies encapsulates external dependencies for testing
type Dependencies struct {
	PingerFactory ping.PingerFactory
	NewLocator    func(cli.Config, *zap.SugaredLogger) (geo.Locator, func() error, error)
	Now           func() time.Time
	Stdout        io.Writer
	Stderr        io.Writer
}

// DefaultDependencies returns production dependencies
func DefaultDependencies() Dependencies {
	return Dependencies{
		PingerFactory: ping.NewDefaultPingerFactory(),
		NewLocator:    makeNewLocator(Version),
		Now:           time.Now,
		Stdout:        os.Stdout,
		Stderr:        os.Stderr,
	}
}

// makeNewLocator creates the geolocation backend selected by the configuration
func makeNewLocator(version string) func(cli.Config, *zap.SugaredLogger) (geo.Locator, func() error, error) {
	return func(cfg cli.Config, logger *zap.SugaredLogger) (geo.Locator, func() error, error) {
		if strings.EqualFold(cfg.GeoBackend, cli.BackendMaxMind) {
			reader, err := geo.OpenMaxMind(cfg.MaxMindDB)
			if err != nil {
				return nil, nil, err
			}
			return reader, reader.Close, nil
		}

		if cfg.IPInfoToken == "" {
			logger.Warnw("No ipinfo.io token configured, lookups are subject to anonymous rate limits")
		}
		opts := []geo.IPInfoOption{
			geo.WithToken(cfg.IPInfoToken),
			geo.WithVersion(version),
			geo.WithLogger(logger),
		}
		if cfg.IPInfoURL != "" {
			opts = append(opts, geo.WithURL(cfg.IPInfoURL))
		}
		return geo.NewIPInfoClient(opts...), func() error { return nil }, nil
	}
}

func main() {
	// Create a context that can be cancelled with SIGINT or SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	if err := run(ctx, os.Args[1:], DefaultDependencies()); err != nil {
		// Don't print error if user cancelled with Ctrl-C
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "Operation cancelled")
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		cancel()
		os.Exit(1)
	}
	cancel()
}

func run(ctx context.Context, args []string, deps Dependencies) error {
	app := urfavecli.NewApp()
	app.Name = "geoping"
	app.Version = Version
	app.Usage = usage
	app.Flags = cli.Flags()
	app.Writer = deps.Stdout
	app.ErrWriter = deps.Stderr
	app.Action = func(c *urfavecli.Context) error {
		if c.NArg() > 0 {
			return fmt.Errorf("unexpected argument: %s", c.Args().First())
		}
		cfg, err := cli.FromContext(c)
		if err != nil {
			return err
		}
		return execute(ctx, cfg, deps)
	}

	return app.Run(append([]string{"geoping"}, args...))
}

// execute performs one run with a validated configuration
func execute(ctx context.Context, cfg cli.Config, deps Dependencies) error {
	logger := logging.NewLogger(cfg.LogLevel, deps.Stderr, cfg.LogFile)
	defer func() { _ = logger.Sync() }()

	logger.Debugw("Config",
		"catalog", cfg.CatalogDir,
		"output", cfg.Output,
		"timeout_ms", cfg.Timeout,
		"count", cfg.Count,
		"workers", cfg.Workers,
		"geo_workers", cfg.GeoWorkers,
		"geo_backend", cfg.GeoBackend,
	)

	// Start timing for the entire operation
	operationStart := deps.Now()
	defer func() {
		logger.Debugw("Total operation completed", "elapsed", deps.Now().Sub(operationStart))
	}()

	cat, err := loadCatalog(logger, cfg.CatalogDir)
	if err != nil {
		return err
	}
	if cat.Count() == 0 {
		return errNoEndpoints
	}

	locator, closeLocator, err := deps.NewLocator(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize geolocation: %w", err)
	}
	defer func() { _ = closeLocator() }()

	var store *report.SQLiteStore
	if cfg.SQLitePath != "" {
		store, err = report.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
	}

	recorder := metrics.NewRecorder()
	rep, err := runPipeline(ctx, logger, cat, pipelineConfig(cfg), pipeline.Dependencies{
		PingerFactory: deps.PingerFactory,
		Locator:       locator,
		Logger:        logger,
		Recorder:      recorder,
	})
	if err != nil {
		return err
	}

	if err := writeReports(ctx, logger, cfg, rep.Stats, deps.Stdout, store, deps.Now()); err != nil {
		return err
	}

	if cfg.MetricsFile != "" {
		if err := recorder.WriteTextfile(cfg.MetricsFile); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}

	_, _ = fmt.Fprintf(deps.Stdout,
		"Done, it took %s: %s of %s endpoints reachable, %s relocated, %s countries\n",
		deps.Now().Sub(operationStart).Round(time.Millisecond),
		humanize.Comma(int64(rep.Reachable)),
		humanize.Comma(int64(rep.Endpoints)),
		humanize.Comma(int64(rep.Reconcile.Relocated)),
		humanize.Comma(int64(len(rep.Stats))),
	)
	return nil
}

// pipelineConfig maps the command-line configuration onto pipeline settings
func pipelineConfig(cfg cli.Config) pipeline.Config {
	median := stats.MedianConventional
	if cfg.MedianLowerMiddle {
		median = stats.MedianLowerMiddle
	}
	return pipeline.Config{
		Probe: ping.ProbeOptions{
			Count:   cfg.Count,
			Timeout: time.Duration(cfg.Timeout) * time.Millisecond,
		},
		Workers:    cfg.Workers,
		GeoWorkers: cfg.GeoWorkers,
		Median:     median,
	}
}
