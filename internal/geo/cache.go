package geo

import (
	"context"
	"fmt"

	cache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Ch00k/geoping/internal/logging"
	"github.com/Ch00k/geoping/internal/metrics"
)

// Cache memoizes successful lookups of a Locator for the lifetime of a run.
// Failed lookups are not cached. Concurrent resolutions of one address share
// a single lookup.
type Cache struct {
	locator  Locator
	records  *cache.Cache
	inFlight singleflight.Group
	logger   *zap.SugaredLogger
	recorder *metrics.Recorder
}

// NewCache creates an empty cache in front of locator
func NewCache(locator Locator, logger *zap.SugaredLogger, recorder *metrics.Recorder) *Cache {
	return &Cache{
		locator:  locator,
		records:  cache.New(cache.NoExpiration, 0),
		logger:   logging.OrNop(logger),
		recorder: recorder,
	}
}

// Resolve returns the record for addr, querying the locator on a cache miss
func (c *Cache) Resolve(ctx context.Context, addr string) (Record, error) {
	if rec, ok := c.get(addr); ok {
		c.recorder.ObserveLookup(metrics.LookupHit)
		return rec, nil
	}

	v, err, _ := c.inFlight.Do(addr, func() (any, error) {
		// A lookup for addr may have completed between get and Do
		if rec, ok := c.get(addr); ok {
			return rec, nil
		}

		c.recorder.ObserveLookup(metrics.LookupMiss)
		rec, err := c.locator.Lookup(ctx, addr)
		if err != nil {
			c.recorder.ObserveLookup(metrics.LookupError)
			return Record{}, err
		}

		c.records.Set(addr, rec, cache.NoExpiration)
		c.logger.Debugw("Cached geolocation", "address", addr, "country", rec.Country, "city", rec.City)
		return rec, nil
	})
	if err != nil {
		return Record{}, fmt.Errorf("failed to resolve %s: %w", addr, err)
	}
	return v.(Record), nil
}

// Len returns the number of cached records
func (c *Cache) Len() int {
	return c.records.ItemCount()
}

func (c *Cache) get(addr string) (Record, bool) {
	v, found := c.records.Get(addr)
	if !found {
		return Record{}, false
	}
	rec, ok := v.(Record)
	return rec, ok
}
