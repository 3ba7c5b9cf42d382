package ping

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Ch00k/geoping/internal/catalog"
	"github.com/Ch00k/geoping/internal/icmp"
)

func testOptions(workers int) MeasureOptions {
	return MeasureOptions{
		Probe:   ProbeOptions{Count: 3, Timeout: 500 * time.Millisecond},
		Workers: workers,
	}
}

func TestMeasure_EmptyCatalog(t *testing.T) {
	factory := NewMockPingerFactory()

	groups, err := Measure(context.Background(), catalog.Catalog{}, factory, testOptions(1))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(groups) != 0 {
		t.Errorf("Expected empty result, got %d groups", len(groups))
	}

	// Verify factory was NOT called (no need to create a socket for an empty catalog)
	if calls := factory.GetCreatePingerCalls(); len(calls) != 0 {
		t.Errorf("Expected 0 CreatePinger calls for empty catalog, got %d", len(calls))
	}
}

func TestMeasure_SingleEndpoint(t *testing.T) {
	factory := NewMockPingerFactory()
	cat := catalog.Catalog{
		"DE": {{Name: "Berlin", Address: "198.51.100.10", Country: "DE"}},
	}

	groups, err := Measure(context.Background(), cat, factory, testOptions(1))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(groups["DE"]) != 1 {
		t.Fatalf("Expected 1 DE measurement, got %d", len(groups["DE"]))
	}
	m := groups["DE"][0]
	if m.Endpoint.Name != "Berlin" || m.Endpoint.Country != "DE" {
		t.Errorf("Unexpected endpoint: %+v", m.Endpoint)
	}
	if m.RTT != 10.0 {
		t.Errorf("Expected RTT 10.0ms, got %fms", m.RTT)
	}

	pingers := factory.GetCreatedPingers()
	if len(pingers) != 1 {
		t.Fatalf("Expected 1 pinger created, got %d", len(pingers))
	}
	calls := pingers[0].GetPingCalls()
	if len(calls) != 3 {
		t.Fatalf("Expected 3 ping calls, got %d", len(calls))
	}
	if calls[0].IP != netip.MustParseAddr("198.51.100.10") {
		t.Errorf("Expected IP 198.51.100.10, got %s", calls[0].IP)
	}
	if !pingers[0].IsClosed() {
		t.Error("Pinger should be closed after measuring")
	}
}

func TestMeasure_CreatesPingerPerFamily(t *testing.T) {
	factory := NewMockPingerFactory()
	cat := catalog.Catalog{
		"PL": {
			{Address: "192.0.2.20", Country: "PL"},
			{Address: "2001:db8::20", Country: "PL"},
			{Address: "2001:db8::21", Country: "PL"},
		},
	}

	groups, err := Measure(context.Background(), cat, factory, testOptions(1))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(groups["PL"]) != 3 {
		t.Errorf("Expected 3 measurements, got %d", len(groups["PL"]))
	}

	calls := factory.GetCreatePingerCalls()
	if len(calls) != 2 {
		t.Fatalf("Expected 2 CreatePinger calls, got %d", len(calls))
	}
	if calls[0].IPVersion != icmp.IPv4 || calls[1].IPVersion != icmp.IPv6 {
		t.Errorf("Unexpected IP versions: %+v", calls)
	}
}

func TestMeasure_DropsUnreachableAndInvalid(t *testing.T) {
	factory := NewMockPingerFactory()
	factory.CreatePingerFunc = func(icmp.IPVersion) (Pinger, error) {
		return NewScriptedPinger(map[string][]time.Duration{
			"198.51.100.10": {ms(12), ms(11), ms(13)},
			"198.51.100.11": nil, // never answers
			"198.51.100.12": {ms(30), 0},
		}), nil
	}

	cat := catalog.Catalog{
		"DE": {
			{Name: "a", Address: "198.51.100.10", Country: "DE"},
			{Name: "b", Address: "198.51.100.11", Country: "DE"},
			{Name: "c", Address: "not-an-ip", Country: "DE"},
			{Name: "d", Address: "198.51.100.12", Country: "DE"},
		},
		"AT": {
			{Name: "e", Address: "198.51.100.11", Country: "AT"},
		},
	}

	groups, err := Measure(context.Background(), cat, factory, testOptions(1))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	de := groups["DE"]
	if len(de) != 2 {
		t.Fatalf("Expected 2 DE measurements, got %d", len(de))
	}
	if de[0].Endpoint.Name != "a" || de[0].RTT != 11 {
		t.Errorf("Unexpected first measurement: %+v", de[0])
	}
	if de[1].Endpoint.Name != "d" || de[1].RTT != 30 {
		t.Errorf("Unexpected second measurement: %+v", de[1])
	}

	if _, ok := groups["AT"]; ok {
		t.Error("Country without reachable endpoints should have no group")
	}
}

func TestMeasure_WorkersPreserveCatalogOrder(t *testing.T) {
	factory := NewMockPingerFactory()
	var inFlight, maxInFlight atomic.Int32
	factory.CreatePingerFunc = func(icmp.IPVersion) (Pinger, error) {
		p := NewMockPinger()
		p.PingFunc = func(_ context.Context, ip netip.Addr, _ time.Duration) (time.Duration, error) {
			// RTT depends on the address only
			last := ip.As4()[3]
			return time.Duration(100-int(last)) * time.Millisecond, nil
		}
		return &concurrencyTracker{Pinger: p, inFlight: &inFlight, maxInFlight: &maxInFlight}, nil
	}

	endpoints := make([]catalog.Endpoint, 20)
	for i := range endpoints {
		endpoints[i] = catalog.Endpoint{
			Name:    fmt.Sprintf("ep-%02d", i),
			Address: fmt.Sprintf("198.51.100.%d", i+1),
			Country: "NL",
		}
	}

	groups, err := Measure(context.Background(), catalog.Catalog{"NL": endpoints}, factory, testOptions(4))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	nl := groups["NL"]
	if len(nl) != len(endpoints) {
		t.Fatalf("Expected %d measurements, got %d", len(endpoints), len(nl))
	}
	for i, m := range nl {
		if m.Endpoint.Name != endpoints[i].Name {
			t.Errorf("Position %d: expected %s, got %s", i, endpoints[i].Name, m.Endpoint.Name)
		}
	}
	if maxInFlight.Load() > 4 {
		t.Errorf("Expected at most 4 concurrent probes, got %d", maxInFlight.Load())
	}
}

func TestMeasure_FactoryError(t *testing.T) {
	factory := NewMockPingerFactory()
	factory.CreatePingerErrFunc = func() error {
		return errors.New("socket: operation not permitted")
	}

	cat := catalog.Catalog{"DE": {{Address: "198.51.100.10", Country: "DE"}}}
	groups, err := Measure(context.Background(), cat, factory, testOptions(1))
	if err == nil {
		t.Fatal("Expected error when pinger cannot be created")
	}
	if groups != nil {
		t.Errorf("Expected nil groups on initialization failure, got %v", groups)
	}
}

func TestMeasure_ContextCancelled(t *testing.T) {
	factory := NewMockPingerFactory()
	cat := catalog.Catalog{
		"DE": {{Address: "198.51.100.10", Country: "DE"}},
		"PL": {{Address: "198.51.100.20", Country: "PL"}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Measure(ctx, cat, factory, testOptions(2))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestGroups(t *testing.T) {
	groups := Groups{
		"PL": {{RTT: 1}},
		"DE": {{RTT: 2}, {RTT: 3}},
		"AT": nil,
	}

	if groups.Count() != 3 {
		t.Errorf("Count() = %d, want 3", groups.Count())
	}
	countries := groups.Countries()
	if len(countries) != 3 || countries[0] != "AT" || countries[2] != "PL" {
		t.Errorf("Countries() = %v, want sorted codes", countries)
	}
}

// concurrencyTracker wraps a Pinger and records the peak number of concurrent Ping calls
type concurrencyTracker struct {
	Pinger
	inFlight    *atomic.Int32
	maxInFlight *atomic.Int32
}

func (c *concurrencyTracker) Ping(ctx context.Context, ip netip.Addr, timeout time.Duration) (time.Duration, error) {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		peak := c.maxInFlight.Load()
		if n <= peak || c.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(time.Millisecond)
	return c.Pinger.Ping(ctx, ip, timeout)
}
