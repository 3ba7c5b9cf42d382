// Package ping measures ICMP round-trip times to catalog endpoints.
package ping

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Ch00k/geoping/internal/catalog"
	"github.com/Ch00k/geoping/internal/icmp"
	"github.com/Ch00k/geoping/internal/logging"
	"github.com/Ch00k/geoping/internal/metrics"
	"github.com/Ch00k/geoping/internal/progress"
)

const (
	protocolICMP   = 1
	protocolICMPv6 = 58
)

// countryProgressEvery is how often, in endpoints, per-country progress is logged
const countryProgressEvery = 10

// Measurement is an endpoint together with its representative RTT in milliseconds
type Measurement struct {
	Endpoint catalog.Endpoint
	RTT      float64
}

// Groups maps a country code to the measurements currently attributed to it
type Groups map[string][]Measurement

// Count returns the total number of measurements.
func (g Groups) Count() int {
	var n int
	for _, ms := range g {
		n += len(ms)
	}
	return n
}

// Countries returns the country codes in ascending order.
func (g Groups) Countries() []string {
	countries := make([]string, 0, len(g))
	for cc := range g {
		countries = append(countries, cc)
	}
	slices.Sort(countries)
	return countries
}

// MeasureOptions configures the probing phase
type MeasureOptions struct {
	Probe ProbeOptions
	// Workers bounds concurrent probes within one country; 1 probes sequentially
	Workers  int
	Logger   *zap.SugaredLogger
	Recorder *metrics.Recorder
}

// result contains the outcome of probing one catalog entry
type result struct {
	index int
	rtt   float64
	ok    bool
}

// Measure probes every endpoint of the catalog and groups the reachable ones
// by claimed country, in catalog order. Unreachable and invalid endpoints are
// dropped. Pingers are created up front, so a socket failure aborts the run
// before any probe is sent.
func Measure(
	ctx context.Context,
	cat catalog.Catalog,
	factory PingerFactory,
	opts MeasureOptions,
) (Groups, error) {
	logger := logging.OrNop(opts.Logger)
	groups := make(Groups)

	total := cat.Count()
	if total == 0 {
		return groups, nil
	}

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	start := time.Now()
	pingers, err := createPingers(cat, factory)
	if err != nil {
		logger.Errorw("Failed to create pinger", "error", err)
		return nil, err
	}
	defer func() {
		for _, p := range pingers {
			_ = p.Close()
		}
	}()
	logger.Debugw("Socket creation completed", "elapsed", time.Since(start), "sockets", len(pingers))

	prober := NewProber(pingers, opts.Probe, logger, opts.Recorder)
	probe := prober.opts
	logger.Infow("Starting to ping endpoints",
		"endpoints", total,
		"countries", len(cat),
		"workers", workers,
		"count", probe.Count,
		"timeout", probe.Timeout,
	)

	overall := progress.NewTracker(total, 0)
	for _, cc := range cat.Countries() {
		endpoints := cat[cc]
		results := probeCountry(ctx, cc, endpoints, prober, workers, logger)

		for i, r := range results {
			if r.ok {
				groups[cc] = append(groups[cc], Measurement{Endpoint: endpoints[i], RTT: r.rtt})
			}
		}

		pct, _ := overall.Add(len(endpoints))
		logger.Infow("Probed country",
			"country", cc,
			"reachable", len(groups[cc]),
			"endpoints", len(endpoints),
			"total", fmt.Sprintf("%.0f%%", pct),
		)

		if ctx.Err() != nil {
			logger.Warnw("Ping operation cancelled", "error", ctx.Err())
			return groups, ctx.Err()
		}
	}

	logger.Infow("Ping completed", "reachable", groups.Count(), "endpoints", total, "elapsed", time.Since(start))
	return groups, nil
}

// createPingers creates one pinger per IP version present in the catalog
func createPingers(cat catalog.Catalog, factory PingerFactory) (map[icmp.IPVersion]Pinger, error) {
	var versions []icmp.IPVersion
	for _, endpoints := range cat {
		for _, e := range endpoints {
			ip, ok := ParseAddress(e.Address)
			if !ok {
				continue
			}
			if v := icmp.VersionOf(ip); !slices.Contains(versions, v) {
				versions = append(versions, v)
			}
		}
	}
	slices.Sort(versions)

	pingers := make(map[icmp.IPVersion]Pinger, len(versions))
	for _, v := range versions {
		p, err := factory.CreatePinger(v)
		if err != nil {
			for _, created := range pingers {
				_ = created.Close()
			}
			return nil, fmt.Errorf("failed to create %s pinger: %w", v, err)
		}
		pingers[v] = p
	}
	return pingers, nil
}

// probeCountry probes the endpoints of one country with a bounded worker pool.
// Results are indexed like endpoints, whatever order probes complete in.
func probeCountry(
	ctx context.Context,
	cc string,
	endpoints []catalog.Endpoint,
	prober *Prober,
	workers int,
	logger *zap.SugaredLogger,
) []result {
	results := make([]result, len(endpoints))
	if len(endpoints) == 0 {
		return results
	}

	// Don't spin up more workers than endpoints
	numWorkers := min(workers, len(endpoints))

	workChan := make(chan int)
	resultChan := make(chan result, len(endpoints))

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pingWorker(ctx, endpoints, workChan, resultChan, prober)
		}()
	}

	go func() {
		defer close(workChan)
		for i := range endpoints {
			select {
			case <-ctx.Done():
				return
			case workChan <- i:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	var done int
	for r := range resultChan {
		results[r.index] = r
		done++
		if done%countryProgressEvery == 0 || done == len(endpoints) {
			fields := []any{
				"country", cc,
				"progress", fmt.Sprintf("%.0f%%", float64(done)*100/float64(len(endpoints))),
			}
			if r.ok {
				fields = append(fields, "rtt_ms", fmt.Sprintf("%.2f", r.rtt))
			}
			logger.Infow("Probing", fields...)
		}
	}

	return results
}

// pingWorker probes endpoints by index from the work channel
func pingWorker(
	ctx context.Context,
	endpoints []catalog.Endpoint,
	workChan <-chan int,
	resultChan chan<- result,
	prober *Prober,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case i, ok := <-workChan:
			if !ok {
				return
			}
			rtt, measured := prober.Probe(ctx, endpoints[i].Address)
			resultChan <- result{index: i, rtt: rtt, ok: measured}
		}
	}
}
