// Package reconcile moves measurements to the country their address is
// actually located in.
package reconcile

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Ch00k/geoping/internal/geo"
	"github.com/Ch00k/geoping/internal/logging"
	"github.com/Ch00k/geoping/internal/metrics"
	"github.com/Ch00k/geoping/internal/ping"
	"github.com/Ch00k/geoping/internal/progress"
)

// progressStep is the percentage step at which reconciliation progress is logged
const progressStep = 5.0

// Resolver resolves an address to its geolocation
type Resolver interface {
	Resolve(ctx context.Context, addr string) (geo.Record, error)
}

// Options configures a reconciliation pass
type Options struct {
	// Workers bounds concurrent lookups; 1 resolves sequentially
	Workers  int
	Logger   *zap.SugaredLogger
	Recorder *metrics.Recorder
}

// Move records one relocation decision
type Move struct {
	Address string
	From    string
	To      string
	// Index is the position of the measurement in the From group before the pass
	Index int
}

// Result summarizes a reconciliation pass
type Result struct {
	Scanned   int
	Relocated int
	Failed    int
	Moves     []Move
}

// scanItem identifies one measurement to resolve
type scanItem struct {
	country string
	index   int
}

// scanResult is the outcome of resolving one measurement
type scanResult struct {
	item    scanItem
	country string
	err     error
}

// Reconcile resolves every measurement of groups and moves those whose
// resolved country differs from their group into the resolved country's
// group, creating it if needed. Measurements whose lookup fails stay where
// they are. Groups are only mutated after every measurement was resolved;
// on cancellation groups are left untouched and ctx.Err() is returned.
func Reconcile(ctx context.Context, groups ping.Groups, resolver Resolver, opts Options) (Result, error) {
	logger := logging.OrNop(opts.Logger)
	start := time.Now()

	items := make([]scanItem, 0, groups.Count())
	for _, cc := range groups.Countries() {
		for i := range groups[cc] {
			items = append(items, scanItem{country: cc, index: i})
		}
	}

	result := Result{Scanned: len(items)}
	if len(items) == 0 {
		return result, nil
	}

	logger.Infow("Starting country reconciliation", "endpoints", len(items), "countries", len(groups))

	resolved, err := scan(ctx, groups, items, resolver, opts.Workers, logger)
	if err != nil {
		logger.Warnw("Reconciliation cancelled", "error", err)
		return Result{}, err
	}

	for i, r := range resolved {
		if r.err != nil {
			result.Failed++
			continue
		}
		if r.country == "" || r.country == items[i].country {
			continue
		}
		result.Moves = append(result.Moves, Move{
			Address: groups[items[i].country][items[i].index].Endpoint.Address,
			From:    items[i].country,
			To:      r.country,
			Index:   items[i].index,
		})
	}

	apply(groups, result.Moves)
	result.Relocated = len(result.Moves)
	opts.Recorder.ObserveRelocations(result.Relocated)

	for _, m := range result.Moves {
		logger.Debugw("Relocated endpoint", "address", m.Address, "from", m.From, "to", m.To)
	}
	logger.Infow("Reconciliation completed",
		"scanned", result.Scanned,
		"relocated", result.Relocated,
		"failed", result.Failed,
		"elapsed", time.Since(start),
	)
	return result, nil
}

// scan resolves every item with a bounded worker pool. Results are indexed
// like items.
func scan(
	ctx context.Context,
	groups ping.Groups,
	items []scanItem,
	resolver Resolver,
	workers int,
	logger *zap.SugaredLogger,
) ([]scanResult, error) {
	if workers < 1 {
		workers = 1
	}
	numWorkers := min(workers, len(items))

	workChan := make(chan int)
	resultChan := make(chan indexedResult, len(items))

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case i, ok := <-workChan:
					if !ok {
						return
					}
					item := items[i]
					addr := groups[item.country][item.index].Endpoint.Address
					rec, err := resolver.Resolve(ctx, addr)
					resultChan <- indexedResult{
						index:  i,
						result: scanResult{item: item, country: strings.ToUpper(rec.Country), err: err},
					}
				}
			}
		}()
	}

	go func() {
		defer close(workChan)
		for i := range items {
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

	results := make([]scanResult, len(items))
	tracker := progress.NewTracker(len(items), progressStep)
	for r := range resultChan {
		results[r.index] = r.result
		if r.result.err != nil && ctx.Err() == nil {
			item := r.result.item
			logger.Warnw("Failed to resolve endpoint location",
				"address", groups[item.country][item.index].Endpoint.Address,
				"country", item.country,
				"error", r.result.err,
			)
		}
		if pct, ok := tracker.Add(1); ok {
			logger.Infow("Reconciling", "progress", fmt.Sprintf("%.0f%%", pct))
		}
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return results, nil
}

type indexedResult struct {
	index  int
	result scanResult
}

// apply removes every moved measurement from its source group in one
// filtering pass per group, then appends it to its target group in move order.
// Groups left empty are deleted.
func apply(groups ping.Groups, moves []Move) {
	if len(moves) == 0 {
		return
	}

	removed := make(map[string]map[int]bool)
	moved := make([]ping.Measurement, len(moves))
	for i, m := range moves {
		moved[i] = groups[m.From][m.Index]
		if removed[m.From] == nil {
			removed[m.From] = make(map[int]bool)
		}
		removed[m.From][m.Index] = true
	}

	for cc, indices := range removed {
		kept := make([]ping.Measurement, 0, len(groups[cc])-len(indices))
		for i, m := range groups[cc] {
			if !indices[i] {
				kept = append(kept, m)
			}
		}
		groups[cc] = kept
	}

	for i, m := range moves {
		groups[m.To] = append(groups[m.To], moved[i])
	}

	for cc, ms := range groups {
		if len(ms) == 0 {
			delete(groups, cc)
		}
	}
}
