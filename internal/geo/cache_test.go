package geo

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ch00k/geoping/internal/metrics"
)

func TestCache_ResolvesOnce(t *testing.T) {
	locator := NewMockLocator(map[string]Record{
		"198.51.100.10": {Country: "PL", City: "Warsaw"},
	})
	c := NewCache(locator, nil, nil)

	for i := 0; i < 3; i++ {
		rec, err := c.Resolve(context.Background(), "198.51.100.10")
		require.NoError(t, err)
		assert.Equal(t, Record{Country: "PL", City: "Warsaw"}, rec)
	}

	assert.Equal(t, 1, locator.CallCount("198.51.100.10"))
	assert.Equal(t, 1, c.Len())
}

func TestCache_FailuresAreNotCached(t *testing.T) {
	locator := NewMockLocator(map[string]Record{
		"198.51.100.10": {Country: "DE"},
	})
	boom := errors.New("service unavailable")
	locator.SetError("198.51.100.10", boom)
	c := NewCache(locator, nil, nil)

	_, err := c.Resolve(context.Background(), "198.51.100.10")
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())

	locator.SetError("198.51.100.10", nil)
	rec, err := c.Resolve(context.Background(), "198.51.100.10")
	require.NoError(t, err)
	assert.Equal(t, "DE", rec.Country)

	assert.Equal(t, 2, locator.CallCount("198.51.100.10"))
	assert.Equal(t, 1, c.Len())
}

func TestCache_ConcurrentResolvesShareLookup(t *testing.T) {
	var lookups atomic.Int32
	release := make(chan struct{})
	locator := NewMockLocator(nil)
	locator.LookupFunc = func(_ context.Context, _ string) (Record, error) {
		lookups.Add(1)
		<-release
		return Record{Country: "NL"}, nil
	}
	c := NewCache(locator, nil, nil)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]Record, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Resolve(context.Background(), "192.0.2.30")
		}(i)
	}

	// Give every caller a chance to join the in-flight lookup
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "NL", results[i].Country)
	}
	assert.Equal(t, int32(1), lookups.Load())
}

func TestCache_DistinctAddresses(t *testing.T) {
	locator := NewMockLocator(map[string]Record{
		"192.0.2.1": {Country: "DE"},
		"192.0.2.2": {Country: "PL"},
	})
	c := NewCache(locator, nil, nil)

	a, err := c.Resolve(context.Background(), "192.0.2.1")
	require.NoError(t, err)
	b, err := c.Resolve(context.Background(), "192.0.2.2")
	require.NoError(t, err)

	assert.Equal(t, "DE", a.Country)
	assert.Equal(t, "PL", b.Country)
	assert.Equal(t, 2, c.Len())

	_, err = c.Resolve(context.Background(), "192.0.2.3")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 2, c.Len())
}

func TestCache_RecordsLookupMetrics(t *testing.T) {
	recorder := metrics.NewRecorder()
	locator := NewMockLocator(map[string]Record{"192.0.2.1": {Country: "DE"}})
	c := NewCache(locator, nil, recorder)

	_, _ = c.Resolve(context.Background(), "192.0.2.1")
	_, _ = c.Resolve(context.Background(), "192.0.2.1")
	_, _ = c.Resolve(context.Background(), "192.0.2.9")

	count, err := testutil.GatherAndCount(recorder.Registry(), "geoping_geo_lookups_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count, "expected hit, miss and error series")
}
