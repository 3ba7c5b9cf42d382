// Package pipeline runs one measurement pass: probe the catalog, move
// endpoints to the country they are located in and summarize the result.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Ch00k/geoping/internal/catalog"
	"github.com/Ch00k/geoping/internal/geo"
	"github.com/Ch00k/geoping/internal/logging"
	"github.com/Ch00k/geoping/internal/metrics"
	"github.com/Ch00k/geoping/internal/ping"
	"github.com/Ch00k/geoping/internal/reconcile"
	"github.com/Ch00k/geoping/internal/stats"
)

// Config holds the tunables of one run
type Config struct {
	Probe ping.ProbeOptions
	// Workers bounds concurrent probes within one country
	Workers int
	// GeoWorkers bounds concurrent geolocation lookups
	GeoWorkers int
	Median     stats.MedianMode
}

// Dependencies are the external services a run talks to
type Dependencies struct {
	PingerFactory ping.PingerFactory
	Locator       geo.Locator
	Logger        *zap.SugaredLogger
	Recorder      *metrics.Recorder
}

// Report is the outcome of a run
type Report struct {
	// Stats is ordered ascending by minimum RTT
	Stats     []stats.CountryStats
	Endpoints int
	Reachable int
	Reconcile reconcile.Result
	// CachedLocations is the number of distinct addresses resolved
	CachedLocations int
	Elapsed         time.Duration
}

// Run probes every endpoint of cat, reconciles the reachable ones against
// their geolocation and aggregates per-country statistics. The geolocation
// cache lives for the duration of the call.
func Run(ctx context.Context, cat catalog.Catalog, cfg Config, deps Dependencies) (Report, error) {
	logger := logging.OrNop(deps.Logger)
	start := time.Now()

	report := Report{Endpoints: cat.Count()}

	groups, err := ping.Measure(ctx, cat, deps.PingerFactory, ping.MeasureOptions{
		Probe:    cfg.Probe,
		Workers:  cfg.Workers,
		Logger:   logger,
		Recorder: deps.Recorder,
	})
	if err != nil {
		return report, fmt.Errorf("failed to measure endpoints: %w", err)
	}
	report.Reachable = groups.Count()
	logger.Debugw("Measure phase completed", "elapsed", time.Since(start))

	cache := geo.NewCache(deps.Locator, logger, deps.Recorder)
	reconcileStart := time.Now()
	report.Reconcile, err = reconcile.Reconcile(ctx, groups, cache, reconcile.Options{
		Workers:  cfg.GeoWorkers,
		Logger:   logger,
		Recorder: deps.Recorder,
	})
	if err != nil {
		return report, fmt.Errorf("failed to reconcile countries: %w", err)
	}
	report.CachedLocations = cache.Len()
	logger.Debugw("Reconcile phase completed", "elapsed", time.Since(reconcileStart))

	report.Stats = stats.Aggregate(groups, stats.Options{Median: cfg.Median})
	report.Elapsed = time.Since(start)

	logger.Infow("Pipeline completed",
		"endpoints", report.Endpoints,
		"reachable", report.Reachable,
		"relocated", report.Reconcile.Relocated,
		"countries", len(report.Stats),
		"elapsed", report.Elapsed,
	)
	return report, nil
}
