package pipeline

import (
	"context"
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ch00k/geoping/internal/catalog"
	"github.com/Ch00k/geoping/internal/geo"
	"github.com/Ch00k/geoping/internal/icmp"
	"github.com/Ch00k/geoping/internal/ping"
	"github.com/Ch00k/geoping/internal/stats"
)

func ms(n float64) time.Duration {
	return time.Duration(n * float64(time.Millisecond))
}

// scriptedFactory returns pingers answering every probe of an address with a fixed RTT
func scriptedFactory(rtts map[string]time.Duration) *ping.MockPingerFactory {
	factory := ping.NewMockPingerFactory()
	factory.CreatePingerFunc = func(icmp.IPVersion) (ping.Pinger, error) {
		p := ping.NewMockPinger()
		p.PingFunc = func(_ context.Context, ip netip.Addr, _ time.Duration) (time.Duration, error) {
			rtt, ok := rtts[ip.String()]
			if !ok {
				return 0, ping.ErrTimeout
			}
			return rtt, nil
		}
		return p, nil
	}
	return factory
}

func testConfig() Config {
	return Config{
		Probe:      ping.ProbeOptions{Count: 3, Timeout: 500 * time.Millisecond},
		Workers:    2,
		GeoWorkers: 2,
	}
}

func TestRun_EndToEnd(t *testing.T) {
	cat := catalog.Catalog{
		"DE": {
			{Name: "Berlin", Address: "198.51.100.1", Country: "DE"},
			{Name: "Actually Warsaw", Address: "198.51.100.2", Country: "DE"},
			{Name: "Down", Address: "198.51.100.3", Country: "DE"},
		},
		"NL": {
			{Name: "Amsterdam", Address: "198.51.100.4", Country: "NL"},
			{Name: "Broken", Address: "not-an-ip", Country: "NL"},
		},
	}
	factory := scriptedFactory(map[string]time.Duration{
		"198.51.100.1": ms(20),
		"198.51.100.2": ms(30),
		"198.51.100.4": ms(8),
	})
	locator := geo.NewMockLocator(map[string]geo.Record{
		"198.51.100.1": {Country: "DE"},
		"198.51.100.2": {Country: "PL"},
		"198.51.100.4": {Country: "NL"},
	})

	report, err := Run(context.Background(), cat, testConfig(), Dependencies{
		PingerFactory: factory,
		Locator:       locator,
	})
	require.NoError(t, err)

	assert.Equal(t, 5, report.Endpoints)
	assert.Equal(t, 3, report.Reachable)
	assert.Equal(t, 1, report.Reconcile.Relocated)
	assert.Equal(t, 3, report.CachedLocations)

	want := []stats.CountryStats{
		{Country: "NL", Min: 8, Median: 8, Average: 8, Max: 8, Count: 1},
		{Country: "DE", Min: 20, Median: 20, Average: 20, Max: 20, Count: 1},
		{Country: "PL", Min: 30, Median: 30, Average: 30, Max: 30, Count: 1},
	}
	assert.Equal(t, want, report.Stats)

	// Unreachable and invalid endpoints are never looked up
	assert.Equal(t, 0, locator.CallCount("198.51.100.3"))
	assert.Equal(t, 0, locator.CallCount("not-an-ip"))
}

func TestRun_LookupFailureKeepsClaimedCountry(t *testing.T) {
	cat := catalog.Catalog{
		"FR": {
			{Address: "192.0.2.1", Country: "FR"},
			{Address: "192.0.2.2", Country: "FR"},
		},
	}
	factory := scriptedFactory(map[string]time.Duration{
		"192.0.2.1": ms(10),
		"192.0.2.2": ms(40),
	})
	locator := geo.NewMockLocator(map[string]geo.Record{"192.0.2.1": {Country: "FR"}})
	locator.SetError("192.0.2.2", errors.New("unavailable"))

	report, err := Run(context.Background(), cat, testConfig(), Dependencies{
		PingerFactory: factory,
		Locator:       locator,
	})
	require.NoError(t, err)

	require.Len(t, report.Stats, 1)
	assert.Equal(t, "FR", report.Stats[0].Country)
	assert.Equal(t, 2, report.Stats[0].Count)
	assert.Equal(t, 25.0, report.Stats[0].Median)
	assert.Equal(t, 1, report.Reconcile.Failed)
}

func TestRun_MedianMode(t *testing.T) {
	cat := catalog.Catalog{
		"SE": {
			{Address: "192.0.2.1", Country: "SE"},
			{Address: "192.0.2.2", Country: "SE"},
		},
	}
	factory := scriptedFactory(map[string]time.Duration{
		"192.0.2.1": ms(10),
		"192.0.2.2": ms(20),
	})
	locator := geo.NewMockLocator(map[string]geo.Record{
		"192.0.2.1": {Country: "SE"},
		"192.0.2.2": {Country: "SE"},
	})

	cfg := testConfig()
	cfg.Median = stats.MedianLowerMiddle
	report, err := Run(context.Background(), cat, cfg, Dependencies{PingerFactory: factory, Locator: locator})
	require.NoError(t, err)
	require.Len(t, report.Stats, 1)
	assert.Equal(t, 10.0, report.Stats[0].Median)
}

func TestRun_EmptyCatalog(t *testing.T) {
	factory := ping.NewMockPingerFactory()
	locator := geo.NewMockLocator(nil)

	report, err := Run(context.Background(), catalog.Catalog{}, testConfig(), Dependencies{
		PingerFactory: factory,
		Locator:       locator,
	})
	require.NoError(t, err)
	assert.Empty(t, report.Stats)
	assert.Empty(t, factory.GetCreatePingerCalls())
	assert.Equal(t, 0, locator.TotalCalls())
}

func TestRun_PingerFactoryError(t *testing.T) {
	factory := ping.NewMockPingerFactory()
	factory.CreatePingerErrFunc = func() error { return errors.New("permission denied") }

	_, err := Run(context.Background(), catalog.Catalog{"DE": {{Address: "192.0.2.1", Country: "DE"}}}, testConfig(), Dependencies{
		PingerFactory: factory,
		Locator:       geo.NewMockLocator(nil),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, catalog.Catalog{"DE": {{Address: "192.0.2.1", Country: "DE"}}}, testConfig(), Dependencies{
		PingerFactory: scriptedFactory(map[string]time.Duration{"192.0.2.1": ms(5)}),
		Locator:       geo.NewMockLocator(nil),
	})
	require.ErrorIs(t, err, context.Canceled)
}
